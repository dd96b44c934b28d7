package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/saishivanagaram1324-cpu/admin-chiro/internal/model"
	"github.com/saishivanagaram1324-cpu/admin-chiro/libs/db"
)

// ErrNotFound is returned when an update targets an appointment id that does
// not exist in the store.
var ErrNotFound = errors.New("appointment not found")

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// FetchAll returns every appointment, newest-created first.
func (r *Repository) FetchAll(ctx context.Context) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, full_name, phone, COALESCE(email, ''), preferred_date,
			COALESCE(location, ''), COALESCE(notes, ''), status, created_at
		FROM appointments
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		var appt model.Appointment
		var preferredDate *time.Time
		var status string
		if err := rows.Scan(
			&appt.ID,
			&appt.FullName,
			&appt.Phone,
			&appt.Email,
			&preferredDate,
			&appt.Location,
			&appt.Notes,
			&status,
			&appt.CreatedAt,
		); err != nil {
			return nil, err
		}
		appt.PreferredDate = preferredDate
		appt.Status = model.Status(status)
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

// UpdateStatus persists the new status for exactly one appointment.
func (r *Repository) UpdateStatus(ctx context.Context, id string, status model.Status) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET status = $2
		WHERE id = $1
	`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, pgx.ErrNoRows)
}
