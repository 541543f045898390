package transport

import (
	"testing"
	"time"
)

func TestCursorRoundTrip(t *testing.T) {
	c := NewCursorStore(t.TempDir())

	got, err := c.Load("mail")
	if err != nil {
		t.Fatalf("Load empty: %v", err)
	}
	if got != "" {
		t.Errorf("fresh cursor = %q, want empty", got)
	}

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := c.Save("mail", "4711", now); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err = c.Load("mail")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != "4711" {
		t.Errorf("cursor = %q, want 4711", got)
	}

	// Cursors are per transport.
	other, err := c.Load("telegram")
	if err != nil {
		t.Fatal(err)
	}
	if other != "" {
		t.Errorf("telegram cursor = %q, want empty", other)
	}
}

func TestErrorTagging(t *testing.T) {
	te := Transientf("poll", errTest)
	if !IsTransient(te) {
		t.Error("Transientf not recognized as transient")
	}
	pe := Permanentf("auth", errTest)
	if IsTransient(pe) {
		t.Error("Permanentf recognized as transient")
	}
}

var errTest = &testErr{}

type testErr struct{}

func (*testErr) Error() string { return "boom" }
