package store

import (
	"context"

	"github.com/google/uuid"

	"clinicqueue/backend/internal/domain"
)

// Query describes the search surface: an optional case-insensitive substring
// match over patient name and contact, and offset-based paging. Results are
// always ordered by scheduled_at ascending with id as the tiebreak, so a
// fixed dataset pages deterministically.
type Query struct {
	FilterText string
	Offset     int
	Limit      int
}

// AppointmentRepository owns persisted appointments. Create and Update are
// required to enforce the (clinic_id, scheduled_at) uniqueness at the storage
// layer and report violations as ErrConflict, so concurrent bookings of the
// same slot resolve to exactly one winner.
type AppointmentRepository interface {
	Create(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	ListAll(ctx context.Context) ([]domain.Appointment, error)
	ListByClinic(ctx context.Context, clinicID string) ([]domain.Appointment, error)
	Update(ctx context.Context, id uuid.UUID, appt domain.Appointment) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status) error
	UpdateCheckedIn(ctx context.Context, id uuid.UUID, checkedIn bool) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, q Query) ([]domain.Appointment, error)
}
