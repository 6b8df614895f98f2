package template

import (
	"testing"
)

type fakeFields map[string]string

func (f fakeFields) Field(key string) (string, bool) {
	v, ok := f[key]
	return v, ok
}

func TestRender_SubstitutesKnownFields(t *testing.T) {
	r := New()
	src := fakeFields{"name": "Ada", "amount": "500"}

	out := r.Render("sess-1", "Hi {{name}}, your balance is {{amount}}.", src, nil)
	if out != "Hi Ada, your balance is 500." {
		t.Fatalf("unexpected render: %q", out)
	}
}

func TestRender_MissingFieldRendersEmptyAndWarnsOnce(t *testing.T) {
	r := New()
	src := fakeFields{"name": "Ada"}

	var missing []MissingVariable
	onMissing := func(m MissingVariable) { missing = append(missing, m) }

	out1 := r.Render("sess-1", "Hi {{name}}, code {{otp}}.", src, onMissing)
	if out1 != "Hi Ada, code ." {
		t.Fatalf("unexpected render: %q", out1)
	}

	out2 := r.Render("sess-1", "Retry code {{otp}}.", src, onMissing)
	if out2 != "Retry code ." {
		t.Fatalf("unexpected render: %q", out2)
	}

	if len(missing) != 1 {
		t.Fatalf("expected exactly one warning for the session, got %d: %v", len(missing), missing)
	}
	if missing[0].Name != "otp" || missing[0].SessionID != "sess-1" {
		t.Fatalf("unexpected missing variable: %+v", missing[0])
	}
}

func TestRender_DifferentSessionsWarnIndependently(t *testing.T) {
	r := New()
	src := fakeFields{}

	var missing []MissingVariable
	onMissing := func(m MissingVariable) { missing = append(missing, m) }

	r.Render("sess-1", "{{otp}}", src, onMissing)
	r.Render("sess-2", "{{otp}}", src, onMissing)

	if len(missing) != 2 {
		t.Fatalf("expected one warning per session, got %d", len(missing))
	}
}

func TestRender_UnterminatedPlaceholderEmitsLiteralDelimiter(t *testing.T) {
	r := New()
	out := r.Render("sess-1", "Hello {{name", fakeFields{}, nil)
	if out != "Hello {{" {
		t.Fatalf("unexpected render: %q", out)
	}
}

func TestResetSession_ClearsDedupState(t *testing.T) {
	r := New()
	src := fakeFields{}

	var count int
	onMissing := func(MissingVariable) { count++ }

	r.Render("sess-1", "{{otp}}", src, onMissing)
	r.Render("sess-1", "{{otp}}", src, onMissing)
	if count != 1 {
		t.Fatalf("expected dedup before reset, got %d warnings", count)
	}

	r.ResetSession("sess-1")
	r.Render("sess-1", "{{otp}}", src, onMissing)
	if count != 2 {
		t.Fatalf("expected a fresh warning after ResetSession, got %d", count)
	}
}
