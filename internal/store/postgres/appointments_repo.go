package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"clinicqueue/backend/internal/domain"
	"clinicqueue/backend/internal/store"
)

// slotConstraint is the unique index over (clinic_id, scheduled_at). The
// database is the arbiter of slot ownership: a booking that loses the insert
// race surfaces here as a unique violation, never as a torn write.
const slotConstraint = "appointments_clinic_slot_key"

const defaultQueryTimeout = 5 * time.Second

type AppointmentRepo struct {
	db           *bun.DB
	queryTimeout time.Duration
}

func NewAppointmentRepo(db *bun.DB, queryTimeout time.Duration) *AppointmentRepo {
	if queryTimeout <= 0 {
		queryTimeout = defaultQueryTimeout
	}
	return &AppointmentRepo{db: db, queryTimeout: queryTimeout}
}

func (r *AppointmentRepo) Create(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	m := domain.Appointment{
		ID:             appt.ID,
		PatientName:    appt.PatientName,
		PatientContact: appt.PatientContact,
		ScheduledAt:    appt.ScheduledAt,
		ClinicID:       appt.ClinicID,
		CheckedIn:      appt.CheckedIn,
		Status:         appt.Status,
		CreatedAt:      appt.CreatedAt,
		UpdatedAt:      appt.UpdatedAt,
	}

	_, err := r.db.NewInsert().Model(&m).Exec(ctx)
	if err != nil {
		return domain.Appointment{}, mapStoreError(err)
	}
	return m, nil
}

func (r *AppointmentRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	var m domain.Appointment
	err := r.db.NewSelect().
		Model(&m).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Appointment{}, store.ErrNotFound
		}
		return domain.Appointment{}, mapStoreError(err)
	}
	return m, nil
}

func (r *AppointmentRepo) ListAll(ctx context.Context) ([]domain.Appointment, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	var rows []domain.Appointment
	err := r.db.NewSelect().
		Model(&rows).
		OrderExpr("scheduled_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return rows, nil
}

func (r *AppointmentRepo) ListByClinic(ctx context.Context, clinicID string) ([]domain.Appointment, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	var rows []domain.Appointment
	err := r.db.NewSelect().
		Model(&rows).
		Where("clinic_id = ?", clinicID).
		OrderExpr("scheduled_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return rows, nil
}

// Update replaces the mutable fields in one statement. Moving an appointment
// onto an occupied (clinic_id, scheduled_at) slot trips the same unique index
// as Create and reports ErrConflict.
func (r *AppointmentRepo) Update(ctx context.Context, id uuid.UUID, appt domain.Appointment) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	res, err := r.db.NewUpdate().
		Model((*domain.Appointment)(nil)).
		Set("patient_name = ?", appt.PatientName).
		Set("patient_contact = ?", appt.PatientContact).
		Set("scheduled_at = ?", appt.ScheduledAt).
		Set("clinic_id = ?", appt.ClinicID).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return mapStoreError(err)
	}
	return requireAffected(res)
}

func (r *AppointmentRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	res, err := r.db.NewUpdate().
		Model((*domain.Appointment)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return mapStoreError(err)
	}
	return requireAffected(res)
}

func (r *AppointmentRepo) UpdateCheckedIn(ctx context.Context, id uuid.UUID, checkedIn bool) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	res, err := r.db.NewUpdate().
		Model((*domain.Appointment)(nil)).
		Set("checked_in = ?", checkedIn).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return mapStoreError(err)
	}
	return requireAffected(res)
}

func (r *AppointmentRepo) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	res, err := r.db.NewDelete().
		Model((*domain.Appointment)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return mapStoreError(err)
	}
	return requireAffected(res)
}

// Search filters case-insensitively (ILIKE) on patient name and contact.
func (r *AppointmentRepo) Search(ctx context.Context, q store.Query) ([]domain.Appointment, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	var rows []domain.Appointment
	query := r.db.NewSelect().Model(&rows)
	if filter := strings.TrimSpace(q.FilterText); filter != "" {
		pattern := "%" + escapeLike(filter) + "%"
		query = query.Where("(patient_name ILIKE ? OR patient_contact ILIKE ?)", pattern, pattern)
	}
	err := query.
		OrderExpr("scheduled_at ASC, id ASC").
		Offset(q.Offset).
		Limit(q.Limit).
		Scan(ctx)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return rows, nil
}

func (r *AppointmentRepo) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.queryTimeout)
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func mapStoreError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" && pgErr.ConstraintName == slotConstraint {
			return store.ErrConflict
		}
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return store.ErrUnavailable
	}
	return err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
