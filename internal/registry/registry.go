package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/saishivanagaram1324-cpu/admin-chiro/internal/model"
	"github.com/saishivanagaram1324-cpu/admin-chiro/internal/notify"
)

// Store is the slice of the appointment store the registry depends on.
type Store interface {
	FetchAll(ctx context.Context) ([]model.Appointment, error)
	UpdateStatus(ctx context.Context, id string, status model.Status) error
}

// Notifier delivers the patient notification for a status transition.
type Notifier interface {
	Notify(ctx context.Context, appt model.Appointment, newStatus model.Status) notify.Result
}

// State is the caller-visible load state alongside the snapshot.
type State struct {
	Loading    bool   `json:"loading"`
	Refreshing bool   `json:"refreshing"`
	Err        string `json:"error,omitempty"`
}

// Registry holds the process-local snapshot of all appointments. It is the
// single writer of that snapshot: refreshes replace it wholesale, status
// updates patch one record in place.
type Registry struct {
	store    Store
	notifier Notifier
	logger   *slog.Logger

	mu         sync.Mutex
	snapshot   []model.Appointment
	loading    bool
	refreshing bool
	lastErr    string
}

func New(store Store, notifier Notifier, logger *slog.Logger) *Registry {
	return &Registry{
		store:    store,
		notifier: notifier,
		logger:   logger,
		loading:  true,
	}
}

// Refresh refetches the full snapshot. On failure the previous snapshot is
// preserved and a user-facing error recorded. The loading/refreshing flags
// are cleared on every exit path.
func (r *Registry) Refresh(ctx context.Context) error {
	r.mu.Lock()
	r.refreshing = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.refreshing = false
		r.loading = false
		r.mu.Unlock()
	}()

	appts, err := r.store.FetchAll(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.lastErr = "failed to load appointments"
		return fmt.Errorf("fetch appointments: %w", err)
	}
	r.snapshot = appts
	r.lastErr = ""
	return nil
}

// UpdateStatus commits the new status to the store, patches the local record
// in place, and, for notification-worthy transitions, sends the patient
// notification using the record's pre-update contact fields. The notification
// outcome never affects the committed write or the patched snapshot; it is
// returned only for observability. There is no auto-retry here: a store
// failure is returned to the caller as-is.
func (r *Registry) UpdateStatus(ctx context.Context, id string, newStatus model.Status) (model.Appointment, notify.Result, error) {
	prev, known := r.find(id)

	// The write is attempted even when the operator's view is stale and the
	// id is unknown locally; only the notification step requires the record.
	if err := r.store.UpdateStatus(ctx, id, newStatus); err != nil {
		return model.Appointment{}, notify.Result{}, fmt.Errorf("update appointment %s: %w", id, err)
	}

	updated := prev
	updated.Status = newStatus
	if known {
		r.mu.Lock()
		for i := range r.snapshot {
			if r.snapshot[i].ID == id {
				r.snapshot[i].Status = newStatus
				updated = r.snapshot[i]
				break
			}
		}
		r.mu.Unlock()
	}

	var res notify.Result
	switch {
	case !newStatus.NotificationWorthy():
		res = notify.Result{Detail: "status not notification-worthy"}
	case !known:
		res = notify.Result{Detail: "record not in local snapshot"}
		r.logger.Warn("notification skipped: record not in local snapshot", "appointment_id", id)
	default:
		res = r.notifier.Notify(ctx, prev, newStatus)
	}
	return updated, res, nil
}

// Run consumes the store's change feed. Every event triggers a full refresh:
// no diffing, last successful fetch wins.
func (r *Registry) Run(ctx context.Context, changes <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-changes:
			if err := r.Refresh(ctx); err != nil {
				r.logger.Error("refresh after change event failed", "err", err)
			}
		}
	}
}

func (r *Registry) find(id string) (model.Appointment, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.snapshot {
		if r.snapshot[i].ID == id {
			return r.snapshot[i], true
		}
	}
	return model.Appointment{}, false
}

// Snapshot returns a copy of the current records, newest-created first.
func (r *Registry) Snapshot() []model.Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Appointment, len(r.snapshot))
	copy(out, r.snapshot)
	return out
}

func (r *Registry) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return State{Loading: r.loading, Refreshing: r.refreshing, Err: r.lastErr}
}

// FilterByStatus returns the records currently in the given status, snapshot
// order preserved.
func (r *Registry) FilterByStatus(status model.Status) []model.Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Appointment
	for _, appt := range r.snapshot {
		if appt.Status == status {
			out = append(out, appt)
		}
	}
	return out
}

// Counts returns per-status aggregate counts over the current snapshot.
func (r *Registry) Counts() map[model.Status]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[model.Status]int, len(model.Statuses))
	for _, s := range model.Statuses {
		counts[s] = 0
	}
	for _, appt := range r.snapshot {
		counts[appt.Status]++
	}
	return counts
}

// Upcoming returns pending or confirmed records whose preferred date falls
// within [now, now+7 days] inclusive. Order follows the snapshot
// (creation-desc), not the appointment date.
func (r *Registry) Upcoming(now time.Time) []model.Appointment {
	end := now.AddDate(0, 0, 7)

	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Appointment
	for _, appt := range r.snapshot {
		if appt.Status != model.StatusPending && appt.Status != model.StatusConfirmed {
			continue
		}
		if appt.PreferredDate == nil {
			continue
		}
		d := *appt.PreferredDate
		if d.Before(now) || d.After(end) {
			continue
		}
		out = append(out, appt)
	}
	return out
}
