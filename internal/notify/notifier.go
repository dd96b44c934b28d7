package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/saishivanagaram1324-cpu/admin-chiro/internal/model"
)

// Result is the outcome of one delivery attempt. It is never an error:
// notification is a best-effort side channel and a failed send must not
// disturb the status change that triggered it.
type Result struct {
	Delivered bool   `json:"delivered"`
	Detail    string `json:"detail"`
}

// Channel delivers a rendered message to a destination address.
type Channel interface {
	Send(ctx context.Context, to string, body string) Result
}

type Notifier struct {
	channel Channel
	logger  *slog.Logger
}

func New(channel Channel, logger *slog.Logger) *Notifier {
	return &Notifier{channel: channel, logger: logger}
}

// Notify renders and sends the message for a status transition. Safe to call
// for any status: non-worthy transitions are a no-op result, not an error.
func (n *Notifier) Notify(ctx context.Context, appt model.Appointment, newStatus model.Status) Result {
	if !newStatus.NotificationWorthy() {
		return Result{Detail: "status not notification-worthy"}
	}
	if strings.TrimSpace(appt.Phone) == "" {
		n.logger.Warn("notification skipped: no phone on record", "appointment_id", appt.ID, "status", newStatus)
		return Result{Detail: "no phone number on record"}
	}

	body := renderBody(appt, newStatus)
	res := n.channel.Send(ctx, appt.Phone, body)
	if res.Delivered {
		n.logger.Info("notification delivered", "appointment_id", appt.ID, "status", newStatus)
	} else {
		n.logger.Warn("notification not delivered", "appointment_id", appt.ID, "status", newStatus, "detail", res.Detail)
	}
	return res
}

const missingDatePlaceholder = "your scheduled date"

func renderBody(appt model.Appointment, newStatus model.Status) string {
	name := strings.TrimSpace(appt.FullName)
	date := humanDate(appt.PreferredDate)

	switch newStatus {
	case model.StatusConfirmed:
		location := strings.TrimSpace(appt.Location)
		if location == "" {
			location = "our clinic"
		}
		return fmt.Sprintf("Hi %s, your appointment on %s at %s is CONFIRMED. See you soon!", name, date, location)
	case model.StatusCompleted:
		return fmt.Sprintf("Hi %s, your appointment on %s has been marked COMPLETED. Thank you for visiting us!", name, date)
	case model.StatusCancelled:
		return fmt.Sprintf("Hi %s, your appointment on %s has been CANCELLED. Please contact us to reschedule.", name, date)
	}
	return ""
}

func humanDate(t *time.Time) string {
	if t == nil {
		return missingDatePlaceholder
	}
	return t.Format("Monday, 2 January 2006")
}
