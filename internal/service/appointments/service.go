package appointments

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"clinicqueue/backend/internal/cache"
	"clinicqueue/backend/internal/domain"
	"clinicqueue/backend/internal/store"
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// validateSchedule is the booking validator: pure, no I/O, applied
// identically on create and update. A slot at or before now is rejected.
func validateSchedule(scheduledAt, now time.Time) error {
	if !scheduledAt.After(now) {
		return validationError("scheduled_at must be in the future")
	}
	return nil
}

type Service struct {
	repo     store.AppointmentRepository
	listing  *cache.ListingCache
	cacheTTL time.Duration

	now func() time.Time
}

func NewService(repo store.AppointmentRepository, listing *cache.ListingCache, cacheTTL time.Duration) *Service {
	return &Service{
		repo:     repo,
		listing:  listing,
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

// Draft carries the caller-supplied appointment fields for both booking and
// full updates.
type Draft struct {
	PatientName    string
	PatientContact string
	ScheduledAt    time.Time
	ClinicID       string
}

func (s *Service) validateDraft(in Draft) (Draft, error) {
	out := Draft{
		PatientName:    strings.TrimSpace(in.PatientName),
		PatientContact: strings.TrimSpace(in.PatientContact),
		ScheduledAt:    in.ScheduledAt.UTC(),
		ClinicID:       strings.TrimSpace(in.ClinicID),
	}
	if out.PatientName == "" {
		return Draft{}, validationError("patient_name is required")
	}
	if out.PatientContact == "" {
		return Draft{}, validationError("patient_contact is required")
	}
	if out.ClinicID == "" {
		return Draft{}, validationError("clinic_id is required")
	}
	if err := validateSchedule(out.ScheduledAt, s.now().UTC()); err != nil {
		return Draft{}, err
	}
	return out, nil
}

func (s *Service) Book(ctx context.Context, in Draft) (domain.Appointment, error) {
	draft, err := s.validateDraft(in)
	if err != nil {
		return domain.Appointment{}, err
	}

	appt := domain.Appointment{
		PatientName:    draft.PatientName,
		PatientContact: draft.PatientContact,
		ScheduledAt:    draft.ScheduledAt,
		ClinicID:       draft.ClinicID,
		Status:         domain.StatusPending,
	}

	var out domain.Appointment
	err = s.retryTransient(func() error {
		var createErr error
		out, createErr = s.repo.Create(ctx, appt)
		return createErr
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	var out domain.Appointment
	err := s.retryTransient(func() error {
		var getErr error
		out, getErr = s.repo.GetByID(ctx, id)
		return getErr
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	return out, nil
}

// ListAll serves the full listing read-through: a cache hit answers directly,
// a miss reads the store and repopulates. Writes never invalidate the entry,
// so the listing may trail the store by up to the configured TTL.
func (s *Service) ListAll(ctx context.Context) ([]domain.Appointment, error) {
	if items, ok := s.listing.Get(); ok {
		return items, nil
	}

	var items []domain.Appointment
	err := s.retryTransient(func() error {
		var listErr error
		items, listErr = s.repo.ListAll(ctx)
		return listErr
	})
	if err != nil {
		return nil, err
	}
	s.listing.Set(items, s.cacheTTL)
	return items, nil
}

// ListByClinic always bypasses the listing cache. An empty result reports
// store.ErrNotFound.
func (s *Service) ListByClinic(ctx context.Context, clinicID string) ([]domain.Appointment, error) {
	clinicID = strings.TrimSpace(clinicID)
	if clinicID == "" {
		return nil, validationError("clinic_id is required")
	}

	var items []domain.Appointment
	err := s.retryTransient(func() error {
		var listErr error
		items, listErr = s.repo.ListByClinic(ctx, clinicID)
		return listErr
	})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, store.ErrNotFound
	}
	return items, nil
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, in Draft) error {
	if id == uuid.Nil {
		return validationError("appointment_id is required")
	}
	draft, err := s.validateDraft(in)
	if err != nil {
		return err
	}

	appt := domain.Appointment{
		PatientName:    draft.PatientName,
		PatientContact: draft.PatientContact,
		ScheduledAt:    draft.ScheduledAt,
		ClinicID:       draft.ClinicID,
	}
	return s.retryTransient(func() error {
		return s.repo.Update(ctx, id, appt)
	})
}

// UpdateStatus accepts any non-empty status. The status set is open beyond
// Pending and Completed; only whitespace is normalized.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	if id == uuid.Nil {
		return validationError("appointment_id is required")
	}
	status = strings.TrimSpace(status)
	if status == "" {
		return validationError("status is required")
	}
	return s.retryTransient(func() error {
		return s.repo.UpdateStatus(ctx, id, domain.Status(status))
	})
}

func (s *Service) CheckIn(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return validationError("appointment_id is required")
	}
	return s.retryTransient(func() error {
		return s.repo.UpdateCheckedIn(ctx, id, true)
	})
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return validationError("appointment_id is required")
	}
	return s.retryTransient(func() error {
		return s.repo.Delete(ctx, id)
	})
}

// Search pages the filtered, ordered appointment set. Pages past the end
// return an empty slice. The listing cache is never consulted.
func (s *Service) Search(ctx context.Context, query string, page, pageSize int) ([]domain.Appointment, error) {
	if page < 1 {
		return nil, validationError("page must be at least 1")
	}
	if pageSize < 1 {
		return nil, validationError("page_size must be at least 1")
	}

	q := store.Query{
		FilterText: strings.TrimSpace(query),
		Offset:     (page - 1) * pageSize,
		Limit:      pageSize,
	}

	var items []domain.Appointment
	err := s.retryTransient(func() error {
		var searchErr error
		items, searchErr = s.repo.Search(ctx, q)
		return searchErr
	})
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Appointment{}
	}
	return items, nil
}

// retryTransient retries a store call once when it fails as unavailable.
// Deterministic failures (validation, conflict, not found) pass through.
func (s *Service) retryTransient(fn func() error) error {
	err := fn()
	if errors.Is(err, store.ErrUnavailable) {
		err = fn()
	}
	return err
}
