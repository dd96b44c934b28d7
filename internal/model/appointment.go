package model

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of an appointment. There is no enforced
// transition graph: the operator may move an appointment from any status to
// any other.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

var Statuses = []Status{StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled}

func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return s, nil
	}
	return "", fmt.Errorf("unknown appointment status %q", raw)
}

// NotificationWorthy reports whether moving an appointment into s should
// trigger a patient notification. Moving into pending never does.
func (s Status) NotificationWorthy() bool {
	switch s {
	case StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

type Appointment struct {
	ID            string
	FullName      string
	Phone         string
	Email         string
	PreferredDate *time.Time
	Location      string
	Notes         string
	Status        Status
	CreatedAt     time.Time
}
