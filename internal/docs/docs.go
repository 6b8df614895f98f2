// Package docs registers the Swagger spec for /swagger/*, in the shape
// `swag init` generates: a minimal JSON template registered against
// swag.Register so http-swagger can serve it. Hand-authored here because
// this module's build never runs the swag code generator.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
	"schemes": {{ marshal .Schemes }},
	"swagger": "2.0",
	"info": {
		"description": "{{escape .Description}}",
		"title": "{{.Title}}",
		"contact": {},
		"version": "{{.Version}}"
	},
	"host": "{{.Host}}",
	"basePath": "{{.BasePath}}",
	"paths": {}
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Bulk SMS Dispatch Core API",
	Description:      "Control surface for campaign sessions: create, start, schedule, pause, resume, stop, opt-out and clear-exhausted, plus stats and event streaming.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
