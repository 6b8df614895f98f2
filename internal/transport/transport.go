// Package transport defines the Transport external collaborator (§6): the
// single porting seam that hides the platform SMS transmission primitive.
// Everything else in this module depends only on this interface.
package transport

import "context"

// ErrorCategory classifies a send failure so the executor can decide
// retry-vs-permanent without knowing the transport's wire format.
type ErrorCategory string

const (
	Transient         ErrorCategory = "TRANSIENT"
	PermanentInvalid  ErrorCategory = "PERMANENT_INVALID"
	PermanentBlocked  ErrorCategory = "PERMANENT_BLOCKED"
	PermanentOther    ErrorCategory = "PERMANENT_OTHER"
)

// SendResult is the synchronous outcome of handing a message to the radio.
type SendResult struct {
	MsgID      string
	OK         bool
	Category   ErrorCategory // meaningful only when !OK
	ErrorCode  string
	ErrorMessage string
}

// DeliveryReport is an asynchronous network acknowledgment that may never
// arrive (§4.6).
type DeliveryReport struct {
	MsgID     string
	Delivered bool
	At        int64 // epoch-ms
}

// Transport is the consumed external interface (§6). Send blocks until the
// transport has a synchronous outcome (ack or ackTimeout); DeliveryReport
// events arrive later, out-of-band, via the callback registered via
// OnDeliveryReport.
type Transport interface {
	// Send hands one message to the radio/network.
	Send(ctx context.Context, msgID, phone, body string, simSlot int) (SendResult, error)

	// OnDeliveryReport registers a callback invoked whenever an async
	// delivery report arrives. Only one callback is supported; subsequent
	// calls replace the previous one.
	OnDeliveryReport(fn func(DeliveryReport))
}
