package notify

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/saishivanagaram1324-cpu/admin-chiro/internal/model"
)

type fakeChannel struct {
	calls  int
	to     string
	body   string
	result Result
}

func (c *fakeChannel) Send(_ context.Context, to string, body string) Result {
	c.calls++
	c.to = to
	c.body = body
	return c.result
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAppointment() model.Appointment {
	date := time.Date(2026, 9, 4, 0, 0, 0, 0, time.UTC)
	return model.Appointment{
		ID:            "a1",
		FullName:      "Asha Rao",
		Phone:         "9876543210",
		PreferredDate: &date,
		Location:      "MG Road clinic",
		Status:        model.StatusPending,
	}
}

func TestNotify_Confirmed(t *testing.T) {
	ch := &fakeChannel{result: Result{Delivered: true, Detail: "ok"}}
	n := New(ch, testLogger())

	res := n.Notify(context.Background(), testAppointment(), model.StatusConfirmed)
	if !res.Delivered {
		t.Fatalf("expected delivered, detail: %s", res.Detail)
	}
	if ch.calls != 1 {
		t.Fatalf("expected 1 send, got %d", ch.calls)
	}
	if ch.to != "9876543210" {
		t.Fatalf("expected raw phone passed to channel, got %s", ch.to)
	}
	for _, want := range []string{"Asha Rao", "Friday, 4 September 2026", "MG Road clinic", "CONFIRMED"} {
		if !strings.Contains(ch.body, want) {
			t.Fatalf("body missing %q: %s", want, ch.body)
		}
	}
}

func TestNotify_CompletedOmitsLocation(t *testing.T) {
	ch := &fakeChannel{result: Result{Delivered: true}}
	n := New(ch, testLogger())

	n.Notify(context.Background(), testAppointment(), model.StatusCompleted)
	if !strings.Contains(ch.body, "COMPLETED") {
		t.Fatalf("body missing COMPLETED: %s", ch.body)
	}
	if strings.Contains(ch.body, "MG Road clinic") {
		t.Fatalf("completed message must not include location: %s", ch.body)
	}
}

func TestNotify_Cancelled(t *testing.T) {
	ch := &fakeChannel{result: Result{Delivered: true}}
	n := New(ch, testLogger())

	n.Notify(context.Background(), testAppointment(), model.StatusCancelled)
	if !strings.Contains(ch.body, "CANCELLED") {
		t.Fatalf("body missing CANCELLED: %s", ch.body)
	}
	if strings.Contains(ch.body, "MG Road clinic") {
		t.Fatalf("cancelled message must not include location: %s", ch.body)
	}
}

func TestNotify_PendingIsNoOp(t *testing.T) {
	ch := &fakeChannel{result: Result{Delivered: true}}
	n := New(ch, testLogger())

	res := n.Notify(context.Background(), testAppointment(), model.StatusPending)
	if res.Delivered {
		t.Fatal("expected delivered=false for pending")
	}
	if ch.calls != 0 {
		t.Fatalf("expected no send, got %d", ch.calls)
	}
}

func TestNotify_MissingPhone(t *testing.T) {
	ch := &fakeChannel{result: Result{Delivered: true}}
	n := New(ch, testLogger())

	appt := testAppointment()
	appt.Phone = "  "
	res := n.Notify(context.Background(), appt, model.StatusConfirmed)
	if res.Delivered {
		t.Fatal("expected delivered=false without a phone")
	}
	if ch.calls != 0 {
		t.Fatalf("expected no send, got %d", ch.calls)
	}
}

func TestNotify_MissingDateUsesPlaceholder(t *testing.T) {
	ch := &fakeChannel{result: Result{Delivered: true}}
	n := New(ch, testLogger())

	appt := testAppointment()
	appt.PreferredDate = nil
	n.Notify(context.Background(), appt, model.StatusConfirmed)
	if !strings.Contains(ch.body, "your scheduled date") {
		t.Fatalf("expected date placeholder in body: %s", ch.body)
	}
}
