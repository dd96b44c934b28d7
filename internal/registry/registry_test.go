package registry

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/saishivanagaram1324-cpu/admin-chiro/internal/model"
	"github.com/saishivanagaram1324-cpu/admin-chiro/internal/notify"
	"github.com/saishivanagaram1324-cpu/admin-chiro/internal/whatsapp"
)

type statusUpdate struct {
	id     string
	status model.Status
}

type fakeStore struct {
	mu        sync.Mutex
	appts     []model.Appointment
	fetchErr  error
	updateErr error
	fetches   int
	updates   []statusUpdate
}

func (s *fakeStore) FetchAll(_ context.Context) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	out := make([]model.Appointment, len(s.appts))
	copy(out, s.appts)
	return out, nil
}

func (s *fakeStore) UpdateStatus(_ context.Context, id string, status model.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	s.updates = append(s.updates, statusUpdate{id: id, status: status})
	return nil
}

func (s *fakeStore) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

type notifyCall struct {
	appt      model.Appointment
	newStatus model.Status
}

type fakeNotifier struct {
	calls  []notifyCall
	result notify.Result
}

func (n *fakeNotifier) Notify(_ context.Context, appt model.Appointment, newStatus model.Status) notify.Result {
	n.calls = append(n.calls, notifyCall{appt: appt, newStatus: newStatus})
	return n.result
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedAppointments() []model.Appointment {
	created := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	date := time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC)
	return []model.Appointment{
		{ID: "a2", FullName: "Ravi", Phone: "9123456780", Status: model.StatusConfirmed, CreatedAt: created.Add(time.Hour)},
		{ID: "a1", FullName: "Asha", Phone: "9876543210", PreferredDate: &date, Location: "MG Road clinic", Status: model.StatusPending, CreatedAt: created},
	}
}

func newTestRegistry(t *testing.T, store *fakeStore, notifier *fakeNotifier) *Registry {
	t.Helper()
	reg := New(store, notifier, testLogger())
	if err := reg.Refresh(context.Background()); err != nil {
		t.Fatalf("initial refresh failed: %v", err)
	}
	return reg
}

func TestRefresh_ReplacesSnapshotAndClearsFlags(t *testing.T) {
	store := &fakeStore{appts: seedAppointments()}
	reg := newTestRegistry(t, store, &fakeNotifier{})

	if got := len(reg.Snapshot()); got != 2 {
		t.Fatalf("expected 2 records, got %d", got)
	}
	state := reg.State()
	if state.Loading || state.Refreshing {
		t.Fatalf("expected flags cleared, got %+v", state)
	}
	if state.Err != "" {
		t.Fatalf("expected no error, got %q", state.Err)
	}
}

func TestRefresh_FailurePreservesSnapshot(t *testing.T) {
	store := &fakeStore{appts: seedAppointments()}
	reg := newTestRegistry(t, store, &fakeNotifier{})
	before := reg.Counts()

	store.mu.Lock()
	store.fetchErr = errors.New("connection refused")
	store.mu.Unlock()

	if err := reg.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}

	if got := len(reg.Snapshot()); got != 2 {
		t.Fatalf("snapshot must survive a failed refresh, got %d records", got)
	}
	after := reg.Counts()
	for status, n := range before {
		if after[status] != n {
			t.Fatalf("counts changed for %s: %d -> %d", status, n, after[status])
		}
	}
	state := reg.State()
	if state.Loading || state.Refreshing {
		t.Fatalf("expected flags cleared after failure, got %+v", state)
	}
	if state.Err == "" {
		t.Fatal("expected a user-facing error")
	}
}

func TestUpdateStatus_EndToEnd(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	date := now.AddDate(0, 0, 7)
	store := &fakeStore{appts: []model.Appointment{{
		ID:            "a1",
		FullName:      "Asha",
		Phone:         "9876543210",
		PreferredDate: &date,
		Status:        model.StatusPending,
		CreatedAt:     now.Add(-24 * time.Hour),
	}}}

	var sends int
	var gotTo, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sends++
		var payload struct {
			To   string `json:"to"`
			Text struct {
				Body string `json:"body"`
			} `json:"text"`
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		gotTo = payload.To
		gotBody = payload.Text.Body
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.ok"}]}`))
	}))
	defer srv.Close()

	channel := whatsapp.NewClient(whatsapp.Config{AccessToken: "t", PhoneNumberID: "p", BaseURL: srv.URL})
	reg := New(store, notify.New(channel, testLogger()), testLogger())
	if err := reg.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	if got := len(reg.Upcoming(now)); got != 1 {
		t.Fatalf("expected a1 upcoming before update, got %d", got)
	}

	updated, res, err := reg.UpdateStatus(context.Background(), "a1", model.StatusConfirmed)
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if len(store.updates) != 1 || store.updates[0] != (statusUpdate{id: "a1", status: model.StatusConfirmed}) {
		t.Fatalf("unexpected store writes: %+v", store.updates)
	}
	if updated.Status != model.StatusConfirmed {
		t.Fatalf("expected returned record confirmed, got %s", updated.Status)
	}
	if reg.Snapshot()[0].Status != model.StatusConfirmed {
		t.Fatalf("expected local record patched, got %s", reg.Snapshot()[0].Status)
	}
	if !res.Delivered {
		t.Fatalf("expected delivered, detail: %s", res.Detail)
	}
	if sends != 1 {
		t.Fatalf("expected exactly one send, got %d", sends)
	}
	if gotTo != "919876543210" {
		t.Fatalf("expected normalized destination, got %s", gotTo)
	}
	if !strings.Contains(gotBody, "CONFIRMED") {
		t.Fatalf("expected CONFIRMED in body: %s", gotBody)
	}
	if got := len(reg.Upcoming(now)); got != 1 {
		t.Fatalf("expected a1 still upcoming after update, got %d", got)
	}
}

func TestUpdateStatus_PendingNeverNotifies(t *testing.T) {
	store := &fakeStore{appts: seedAppointments()}
	notifier := &fakeNotifier{result: notify.Result{Delivered: true}}
	reg := newTestRegistry(t, store, notifier)

	// a2 is confirmed; moving back to pending is a valid transition but not
	// notification-worthy.
	_, res, err := reg.UpdateStatus(context.Background(), "a2", model.StatusPending)
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if res.Delivered {
		t.Fatal("expected no delivery for pending")
	}
	if len(notifier.calls) != 0 {
		t.Fatalf("expected no notification attempt, got %d", len(notifier.calls))
	}
	if len(store.updates) != 1 {
		t.Fatalf("expected the write to go through, got %+v", store.updates)
	}
}

func TestUpdateStatus_NotifierGetsPreUpdateRecord(t *testing.T) {
	store := &fakeStore{appts: seedAppointments()}
	notifier := &fakeNotifier{result: notify.Result{Delivered: true}}
	reg := newTestRegistry(t, store, notifier)

	if _, _, err := reg.UpdateStatus(context.Background(), "a1", model.StatusConfirmed); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if len(notifier.calls) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifier.calls))
	}
	call := notifier.calls[0]
	if call.appt.Status != model.StatusPending {
		t.Fatalf("notifier must receive the pre-update record, got status %s", call.appt.Status)
	}
	if call.newStatus != model.StatusConfirmed {
		t.Fatalf("unexpected new status %s", call.newStatus)
	}
}

func TestUpdateStatus_DeliveryFailureDoesNotRollBack(t *testing.T) {
	store := &fakeStore{appts: seedAppointments()}
	notifier := &fakeNotifier{result: notify.Result{Detail: "provider rejected request"}}
	reg := newTestRegistry(t, store, notifier)

	updated, res, err := reg.UpdateStatus(context.Background(), "a1", model.StatusCancelled)
	if err != nil {
		t.Fatalf("UpdateStatus must not fail on delivery failure: %v", err)
	}
	if res.Delivered {
		t.Fatal("expected delivered=false")
	}
	if updated.Status != model.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", updated.Status)
	}
	for _, appt := range reg.Snapshot() {
		if appt.ID == "a1" && appt.Status != model.StatusCancelled {
			t.Fatalf("local patch must survive delivery failure, got %s", appt.Status)
		}
	}
}

func TestUpdateStatus_StoreFailureLeavesSnapshot(t *testing.T) {
	store := &fakeStore{appts: seedAppointments(), updateErr: errors.New("write failed")}
	notifier := &fakeNotifier{result: notify.Result{Delivered: true}}
	reg := newTestRegistry(t, store, notifier)

	if _, _, err := reg.UpdateStatus(context.Background(), "a1", model.StatusConfirmed); err == nil {
		t.Fatal("expected error from store failure")
	}
	for _, appt := range reg.Snapshot() {
		if appt.ID == "a1" && appt.Status != model.StatusPending {
			t.Fatalf("snapshot must be unchanged, got %s", appt.Status)
		}
	}
	if len(notifier.calls) != 0 {
		t.Fatalf("expected no notification after failed write, got %d", len(notifier.calls))
	}
}

func TestUpdateStatus_UnknownIDSkipsNotification(t *testing.T) {
	store := &fakeStore{appts: seedAppointments()}
	notifier := &fakeNotifier{result: notify.Result{Delivered: true}}
	reg := newTestRegistry(t, store, notifier)

	_, res, err := reg.UpdateStatus(context.Background(), "ghost", model.StatusConfirmed)
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if len(store.updates) != 1 || store.updates[0].id != "ghost" {
		t.Fatalf("the write must still be attempted, got %+v", store.updates)
	}
	if len(notifier.calls) != 0 {
		t.Fatalf("expected no notification for unknown local id, got %d", len(notifier.calls))
	}
	if res.Delivered {
		t.Fatal("expected delivered=false")
	}
}

func TestUpdateStatus_RepeatedTransitionSendsAgain(t *testing.T) {
	store := &fakeStore{appts: seedAppointments()}
	notifier := &fakeNotifier{result: notify.Result{Delivered: true}}
	reg := newTestRegistry(t, store, notifier)

	for i := 0; i < 2; i++ {
		if _, _, err := reg.UpdateStatus(context.Background(), "a1", model.StatusConfirmed); err != nil {
			t.Fatalf("UpdateStatus %d failed: %v", i, err)
		}
	}
	if len(notifier.calls) != 2 {
		t.Fatalf("expected 2 sends (no dedup), got %d", len(notifier.calls))
	}
}

func TestCountsAndFilter(t *testing.T) {
	store := &fakeStore{appts: seedAppointments()}
	reg := newTestRegistry(t, store, &fakeNotifier{})

	counts := reg.Counts()
	if counts[model.StatusPending] != 1 || counts[model.StatusConfirmed] != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
	if counts[model.StatusCompleted] != 0 || counts[model.StatusCancelled] != 0 {
		t.Fatalf("expected zero entries present for empty statuses: %+v", counts)
	}

	pending := reg.FilterByStatus(model.StatusPending)
	if len(pending) != 1 || pending[0].ID != "a1" {
		t.Fatalf("unexpected filter result: %+v", pending)
	}
}

func TestUpcoming_WindowAndOrdering(t *testing.T) {
	now := time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC)
	day := func(offset int) *time.Time {
		d := now.AddDate(0, 0, offset)
		return &d
	}
	store := &fakeStore{appts: []model.Appointment{
		{ID: "edge", Status: model.StatusConfirmed, PreferredDate: day(7)},
		{ID: "late", Status: model.StatusPending, PreferredDate: day(8)},
		{ID: "today", Status: model.StatusPending, PreferredDate: day(0)},
		{ID: "done", Status: model.StatusCompleted, PreferredDate: day(3)},
		{ID: "past", Status: model.StatusPending, PreferredDate: day(-1)},
		{ID: "undated", Status: model.StatusPending},
	}}
	reg := newTestRegistry(t, store, &fakeNotifier{})

	got := reg.Upcoming(now)
	if len(got) != 2 {
		t.Fatalf("expected 2 upcoming, got %d", len(got))
	}
	// Snapshot order (creation order as fetched), not date order.
	if got[0].ID != "edge" || got[1].ID != "today" {
		t.Fatalf("unexpected order: %s, %s", got[0].ID, got[1].ID)
	}
}

func TestRun_ChangeEventTriggersRefresh(t *testing.T) {
	store := &fakeStore{appts: seedAppointments()}
	reg := newTestRegistry(t, store, &fakeNotifier{})
	before := store.fetchCount()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		reg.Run(ctx, changes)
		close(done)
	}()

	changes <- struct{}{}
	deadline := time.Now().Add(2 * time.Second)
	for store.fetchCount() == before {
		if time.Now().After(deadline) {
			t.Fatal("change event did not trigger a refresh")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on context cancellation")
	}
}
