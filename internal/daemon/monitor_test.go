package daemon

import (
	"context"
	"io"
	"log"
	"testing"
)

// fakeSampler scripts a sequence of pane tails.
type fakeSampler struct {
	tails []string
	idx   int
}

func (f *fakeSampler) HasSession(name string) (bool, error) { return true, nil }

func (f *fakeSampler) CapturePane(session string, lines int) (string, error) {
	if f.idx < len(f.tails) {
		t := f.tails[f.idx]
		f.idx++
		return t, nil
	}
	return f.tails[len(f.tails)-1], nil
}

type fakeNotifier struct {
	calls []string
}

func (f *fakeNotifier) Notify(ctx context.Context, subject, body string) error {
	f.calls = append(f.calls, subject)
	return nil
}

const (
	busyTail = "✻ Working… 12s"
	idleTail = "done\n│ > "
)

func TestMonitorNotifiesOnceOnBusyToIdle(t *testing.T) {
	sampler := &fakeSampler{tails: []string{busyTail, busyTail, idleTail, idleTail, idleTail, idleTail}}
	notifier := &fakeNotifier{}
	m := newMonitor("pane", "widget", sampler, notifier, log.New(io.Discard, "", 0))

	for i := 0; i < 6; i++ {
		m.sample(context.Background())
	}

	if len(notifier.calls) != 1 {
		t.Fatalf("notified %d times, want 1", len(notifier.calls))
	}
	if notifier.calls[0] != "widget is waiting for you" {
		t.Errorf("subject = %q", notifier.calls[0])
	}
}

func TestMonitorRequiresStableIdle(t *testing.T) {
	// One idle flicker between busy samples must not notify.
	sampler := &fakeSampler{tails: []string{busyTail, idleTail, busyTail, busyTail}}
	notifier := &fakeNotifier{}
	m := newMonitor("pane", "widget", sampler, notifier, log.New(io.Discard, "", 0))

	for i := 0; i < 4; i++ {
		m.sample(context.Background())
	}
	if len(notifier.calls) != 0 {
		t.Fatalf("notified on an idle flicker: %v", notifier.calls)
	}
}

func TestMonitorIgnoresIdleWithoutPriorWork(t *testing.T) {
	sampler := &fakeSampler{tails: []string{idleTail, idleTail, idleTail}}
	notifier := &fakeNotifier{}
	m := newMonitor("pane", "widget", sampler, notifier, log.New(io.Discard, "", 0))

	for i := 0; i < 3; i++ {
		m.sample(context.Background())
	}
	if len(notifier.calls) != 0 {
		t.Fatalf("notified without a busy phase: %v", notifier.calls)
	}
}

func TestExcerptKeepsTail(t *testing.T) {
	got := excerpt("a\nb\nc\nd\n", 2)
	if got != "c\nd" {
		t.Errorf("excerpt = %q, want %q", got, "c\nd")
	}
}
