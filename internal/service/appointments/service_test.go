package appointments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"clinicqueue/backend/internal/cache"
	"clinicqueue/backend/internal/domain"
	"clinicqueue/backend/internal/store"
)

type fakeRepo struct {
	createFn          func(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	getByIDFn         func(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	listAllFn         func(ctx context.Context) ([]domain.Appointment, error)
	listByClinicFn    func(ctx context.Context, clinicID string) ([]domain.Appointment, error)
	updateFn          func(ctx context.Context, id uuid.UUID, appt domain.Appointment) error
	updateStatusFn    func(ctx context.Context, id uuid.UUID, status domain.Status) error
	updateCheckedInFn func(ctx context.Context, id uuid.UUID, checkedIn bool) error
	deleteFn          func(ctx context.Context, id uuid.UUID) error
	searchFn          func(ctx context.Context, q store.Query) ([]domain.Appointment, error)
}

func (f *fakeRepo) Create(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	if f.createFn == nil {
		panic("Create not configured")
	}
	return f.createFn(ctx, appt)
}

func (f *fakeRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if f.getByIDFn == nil {
		panic("GetByID not configured")
	}
	return f.getByIDFn(ctx, id)
}

func (f *fakeRepo) ListAll(ctx context.Context) ([]domain.Appointment, error) {
	if f.listAllFn == nil {
		panic("ListAll not configured")
	}
	return f.listAllFn(ctx)
}

func (f *fakeRepo) ListByClinic(ctx context.Context, clinicID string) ([]domain.Appointment, error) {
	if f.listByClinicFn == nil {
		panic("ListByClinic not configured")
	}
	return f.listByClinicFn(ctx, clinicID)
}

func (f *fakeRepo) Update(ctx context.Context, id uuid.UUID, appt domain.Appointment) error {
	if f.updateFn == nil {
		panic("Update not configured")
	}
	return f.updateFn(ctx, id, appt)
}

func (f *fakeRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status) error {
	if f.updateStatusFn == nil {
		panic("UpdateStatus not configured")
	}
	return f.updateStatusFn(ctx, id, status)
}

func (f *fakeRepo) UpdateCheckedIn(ctx context.Context, id uuid.UUID, checkedIn bool) error {
	if f.updateCheckedInFn == nil {
		panic("UpdateCheckedIn not configured")
	}
	return f.updateCheckedInFn(ctx, id, checkedIn)
}

func (f *fakeRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if f.deleteFn == nil {
		panic("Delete not configured")
	}
	return f.deleteFn(ctx, id)
}

func (f *fakeRepo) Search(ctx context.Context, q store.Query) ([]domain.Appointment, error) {
	if f.searchFn == nil {
		panic("Search not configured")
	}
	return f.searchFn(ctx, q)
}

func newTestService(repo store.AppointmentRepository, ttl time.Duration) *Service {
	return NewService(repo, cache.NewListingCache(), ttl)
}

func futureDraft() Draft {
	return Draft{
		PatientName:    "John Doe",
		PatientContact: "john@example.com",
		ScheduledAt:    time.Now().Add(48 * time.Hour),
		ClinicID:       "C1",
	}
}

func TestValidateSchedule(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := validateSchedule(now.Add(time.Minute), now); err != nil {
		t.Fatalf("future schedule rejected: %v", err)
	}
	if err := validateSchedule(now, now); err == nil {
		t.Fatalf("schedule equal to now must be rejected")
	}
	if err := validateSchedule(now.Add(-time.Hour), now); err == nil {
		t.Fatalf("past schedule must be rejected")
	}
}

func TestServiceBook_ValidationErrorType(t *testing.T) {
	svc := newTestService(&fakeRepo{
		createFn: func(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
			return appt, nil
		},
	}, time.Minute)

	in := futureDraft()
	in.PatientName = "   "
	_, err := svc.Book(context.Background(), in)
	if err == nil {
		t.Fatalf("expected error")
	}
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error type = %T, want *ValidationError", err)
	}
	if vErr.Error() != "patient_name is required" {
		t.Fatalf("error = %q, want %q", vErr.Error(), "patient_name is required")
	}
}

func TestServiceBook_PastScheduleNeverReachesStore(t *testing.T) {
	calls := 0
	svc := newTestService(&fakeRepo{
		createFn: func(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
			calls++
			return appt, nil
		},
	}, time.Minute)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	in := futureDraft()
	in.ScheduledAt = time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	_, err := svc.Book(context.Background(), in)

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error type = %T, want *ValidationError", err)
	}
	if calls != 0 {
		t.Fatalf("store reached %d times, want 0", calls)
	}
}

func TestServiceBook_TrimsAndNormalizesToUTC(t *testing.T) {
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Fatalf("LoadLocation error: %v", err)
	}

	var got domain.Appointment
	svc := newTestService(&fakeRepo{
		createFn: func(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
			got = appt
			return appt, nil
		},
	}, time.Minute)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	_, err = svc.Book(context.Background(), Draft{
		PatientName:    "  John Doe  ",
		PatientContact: " john@example.com ",
		ScheduledAt:    time.Date(2026, 3, 10, 9, 0, 0, 0, loc),
		ClinicID:       " C1 ",
	})
	if err != nil {
		t.Fatalf("Book error: %v", err)
	}
	if got.PatientName != "John Doe" || got.PatientContact != "john@example.com" || got.ClinicID != "C1" {
		t.Fatalf("fields not trimmed: %+v", got)
	}
	if got.ScheduledAt.Location() != time.UTC {
		t.Fatalf("scheduled_at not UTC: %v", got.ScheduledAt)
	}
	if got.Status != domain.StatusPending {
		t.Fatalf("status = %q, want %q", got.Status, domain.StatusPending)
	}
}

func TestServiceBook_PropagatesConflict(t *testing.T) {
	svc := newTestService(&fakeRepo{
		createFn: func(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
			return domain.Appointment{}, store.ErrConflict
		},
	}, time.Minute)

	_, err := svc.Book(context.Background(), futureDraft())
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("error = %v, want %v", err, store.ErrConflict)
	}
}

func TestServiceUpdate_PastScheduleRejectedLikeBook(t *testing.T) {
	calls := 0
	svc := newTestService(&fakeRepo{
		updateFn: func(ctx context.Context, id uuid.UUID, appt domain.Appointment) error {
			calls++
			return nil
		},
	}, time.Minute)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	in := futureDraft()
	in.ScheduledAt = time.Date(2026, 2, 28, 12, 0, 0, 0, time.UTC)
	err := svc.Update(context.Background(), uuid.MustParse("00000000-0000-0000-0000-000000000001"), in)

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error type = %T, want *ValidationError", err)
	}
	if calls != 0 {
		t.Fatalf("store reached %d times, want 0", calls)
	}
}

func TestServiceUpdate_NotFoundPassesThrough(t *testing.T) {
	svc := newTestService(&fakeRepo{
		updateFn: func(ctx context.Context, id uuid.UUID, appt domain.Appointment) error {
			return store.ErrNotFound
		},
	}, time.Minute)

	err := svc.Update(context.Background(), uuid.MustParse("00000000-0000-0000-0000-000000000001"), futureDraft())
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("error = %v, want %v", err, store.ErrNotFound)
	}
}

func TestServiceListAll_CachesListing(t *testing.T) {
	calls := 0
	svc := newTestService(&fakeRepo{
		listAllFn: func(ctx context.Context) ([]domain.Appointment, error) {
			calls++
			return []domain.Appointment{{PatientName: "John Doe"}}, nil
		},
	}, time.Hour)

	for i := 0; i < 3; i++ {
		items, err := svc.ListAll(context.Background())
		if err != nil {
			t.Fatalf("ListAll error: %v", err)
		}
		if len(items) != 1 {
			t.Fatalf("len(items) = %d, want 1", len(items))
		}
	}
	if calls != 1 {
		t.Fatalf("store reached %d times, want 1", calls)
	}
}

func TestServiceListAll_WritesDoNotInvalidateListing(t *testing.T) {
	listCalls := 0
	svc := newTestService(&fakeRepo{
		listAllFn: func(ctx context.Context) ([]domain.Appointment, error) {
			listCalls++
			return []domain.Appointment{{PatientName: "before write"}}, nil
		},
		createFn: func(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
			return appt, nil
		},
	}, time.Hour)

	if _, err := svc.ListAll(context.Background()); err != nil {
		t.Fatalf("ListAll error: %v", err)
	}
	if _, err := svc.Book(context.Background(), futureDraft()); err != nil {
		t.Fatalf("Book error: %v", err)
	}

	items, err := svc.ListAll(context.Background())
	if err != nil {
		t.Fatalf("ListAll error: %v", err)
	}
	if listCalls != 1 {
		t.Fatalf("store reached %d times, want 1 (stale listing served)", listCalls)
	}
	if items[0].PatientName != "before write" {
		t.Fatalf("expected the pre-write snapshot, got %+v", items)
	}
}

func TestServiceListByClinic_BypassesCacheAndMapsEmptyToNotFound(t *testing.T) {
	clinicCalls := 0
	svc := newTestService(&fakeRepo{
		listAllFn: func(ctx context.Context) ([]domain.Appointment, error) {
			return []domain.Appointment{{ClinicID: "C1"}}, nil
		},
		listByClinicFn: func(ctx context.Context, clinicID string) ([]domain.Appointment, error) {
			clinicCalls++
			if clinicID == "C1" {
				return []domain.Appointment{{ClinicID: "C1"}}, nil
			}
			return nil, nil
		},
	}, time.Hour)

	// Populate the listing cache first; by-clinic reads must not use it.
	if _, err := svc.ListAll(context.Background()); err != nil {
		t.Fatalf("ListAll error: %v", err)
	}

	if _, err := svc.ListByClinic(context.Background(), "C1"); err != nil {
		t.Fatalf("ListByClinic error: %v", err)
	}
	if clinicCalls != 1 {
		t.Fatalf("store reached %d times, want 1", clinicCalls)
	}

	_, err := svc.ListByClinic(context.Background(), "C2")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("empty clinic error = %v, want %v", err, store.ErrNotFound)
	}
}

func TestServiceSearch_OffsetMath(t *testing.T) {
	var got store.Query
	svc := newTestService(&fakeRepo{
		searchFn: func(ctx context.Context, q store.Query) ([]domain.Appointment, error) {
			got = q
			return nil, nil
		},
	}, time.Minute)

	items, err := svc.Search(context.Background(), "  Doe ", 3, 10)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if got.Offset != 20 || got.Limit != 10 {
		t.Fatalf("offset/limit = %d/%d, want 20/10", got.Offset, got.Limit)
	}
	if got.FilterText != "Doe" {
		t.Fatalf("filter = %q, want %q", got.FilterText, "Doe")
	}
	if items == nil {
		t.Fatalf("past-the-end page must return an empty slice, not nil")
	}
}

func TestServiceSearch_RejectsBadPaging(t *testing.T) {
	svc := newTestService(&fakeRepo{}, time.Minute)

	for _, tc := range []struct{ page, size int }{{0, 10}, {-1, 10}, {1, 0}, {1, -5}} {
		_, err := svc.Search(context.Background(), "", tc.page, tc.size)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("page=%d size=%d: error type = %T, want *ValidationError", tc.page, tc.size, err)
		}
	}
}

func TestServiceRetriesTransientOnce(t *testing.T) {
	t.Run("second attempt succeeds", func(t *testing.T) {
		calls := 0
		svc := newTestService(&fakeRepo{
			deleteFn: func(ctx context.Context, id uuid.UUID) error {
				calls++
				if calls == 1 {
					return store.ErrUnavailable
				}
				return nil
			},
		}, time.Minute)

		err := svc.Delete(context.Background(), uuid.MustParse("00000000-0000-0000-0000-000000000001"))
		if err != nil {
			t.Fatalf("Delete error: %v", err)
		}
		if calls != 2 {
			t.Fatalf("store reached %d times, want 2", calls)
		}
	})

	t.Run("second failure surfaces", func(t *testing.T) {
		calls := 0
		svc := newTestService(&fakeRepo{
			deleteFn: func(ctx context.Context, id uuid.UUID) error {
				calls++
				return store.ErrUnavailable
			},
		}, time.Minute)

		err := svc.Delete(context.Background(), uuid.MustParse("00000000-0000-0000-0000-000000000001"))
		if !errors.Is(err, store.ErrUnavailable) {
			t.Fatalf("error = %v, want %v", err, store.ErrUnavailable)
		}
		if calls != 2 {
			t.Fatalf("store reached %d times, want 2", calls)
		}
	})

	t.Run("conflict is never retried", func(t *testing.T) {
		calls := 0
		svc := newTestService(&fakeRepo{
			createFn: func(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
				calls++
				return domain.Appointment{}, store.ErrConflict
			},
		}, time.Minute)

		_, err := svc.Book(context.Background(), futureDraft())
		if !errors.Is(err, store.ErrConflict) {
			t.Fatalf("error = %v, want %v", err, store.ErrConflict)
		}
		if calls != 1 {
			t.Fatalf("store reached %d times, want 1", calls)
		}
	})
}

func TestServiceUpdateStatus_Validation(t *testing.T) {
	var gotStatus domain.Status
	svc := newTestService(&fakeRepo{
		updateStatusFn: func(ctx context.Context, id uuid.UUID, status domain.Status) error {
			gotStatus = status
			return nil
		},
	}, time.Minute)

	id := uuid.MustParse("00000000-0000-0000-0000-000000000001")

	if err := svc.UpdateStatus(context.Background(), id, "  Completed "); err != nil {
		t.Fatalf("UpdateStatus error: %v", err)
	}
	if gotStatus != domain.StatusCompleted {
		t.Fatalf("status = %q, want %q", gotStatus, domain.StatusCompleted)
	}

	err := svc.UpdateStatus(context.Background(), id, "   ")
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error type = %T, want *ValidationError", err)
	}

	err = svc.UpdateStatus(context.Background(), uuid.Nil, "Completed")
	if !errors.As(err, &vErr) {
		t.Fatalf("error type = %T, want *ValidationError", err)
	}
}

func TestServiceCheckIn_SetsFlag(t *testing.T) {
	var gotCheckedIn bool
	svc := newTestService(&fakeRepo{
		updateCheckedInFn: func(ctx context.Context, id uuid.UUID, checkedIn bool) error {
			gotCheckedIn = checkedIn
			return nil
		},
	}, time.Minute)

	if err := svc.CheckIn(context.Background(), uuid.MustParse("00000000-0000-0000-0000-000000000001")); err != nil {
		t.Fatalf("CheckIn error: %v", err)
	}
	if !gotCheckedIn {
		t.Fatalf("expected checked_in = true")
	}
}
