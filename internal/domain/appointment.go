package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Status tags an appointment's lifecycle stage. The set is open: admins may
// assign statuses beyond the named constants, so callers must not treat the
// constants as exhaustive.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusCompleted Status = "Completed"
)

type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID             uuid.UUID `bun:"id,pk,type:uuid"`
	PatientName    string    `bun:"patient_name,notnull"`
	PatientContact string    `bun:"patient_contact,notnull"`
	ScheduledAt    time.Time `bun:"scheduled_at,notnull"`
	ClinicID       string    `bun:"clinic_id,notnull"`
	CheckedIn      bool      `bun:"checked_in,notnull,default:false"`
	Status         Status    `bun:"status,notnull,default:'Pending'"`
	CreatedAt      time.Time `bun:"created_at,notnull"`
	UpdatedAt      time.Time `bun:"updated_at,notnull"`
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = id
		}
		if a.Status == "" {
			a.Status = StatusPending
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}
