package rest

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"clinicqueue/backend/internal/domain"
	"clinicqueue/backend/internal/service/appointments"
	"clinicqueue/backend/internal/store"
)

const (
	defaultPage     = 1
	defaultPageSize = 20
)

type AppointmentsServer struct {
	svc      appointmentsService
	validate *validator.Validate
	log      *slog.Logger
}

type appointmentsService interface {
	Book(ctx context.Context, in appointments.Draft) (domain.Appointment, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	ListAll(ctx context.Context) ([]domain.Appointment, error)
	ListByClinic(ctx context.Context, clinicID string) ([]domain.Appointment, error)
	Update(ctx context.Context, id uuid.UUID, in appointments.Draft) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	CheckIn(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, query string, page, pageSize int) ([]domain.Appointment, error)
}

func NewAppointmentsServer(svc appointmentsService, log *slog.Logger) *AppointmentsServer {
	if log == nil {
		log = slog.Default()
	}
	return &AppointmentsServer{
		svc:      svc,
		validate: validator.New(),
		log:      log.With(slog.String("component", "rest.appointments")),
	}
}

func (s *AppointmentsServer) Register(e *echo.Echo) {
	e.GET("/healthz", s.Healthz)

	e.POST("/appointments", s.BookAppointment)
	e.GET("/appointments", s.ListAppointments)
	e.GET("/appointments/search", s.SearchAppointments)
	e.GET("/appointments/clinic/:clinicId", s.ListByClinic)
	e.GET("/appointments/:id", s.GetAppointment)
	e.PUT("/appointments/:id", s.UpdateAppointment)
	e.PUT("/appointments/:id/status", s.UpdateStatus)
	e.PUT("/appointments/:id/checkin", s.CheckIn)
	e.DELETE("/appointments/:id", s.DeleteAppointment)
}

type appointmentRequest struct {
	PatientName    string    `json:"patientName" validate:"required,max=128"`
	PatientContact string    `json:"patientContact" validate:"required,max=128"`
	ScheduledAt    time.Time `json:"scheduledAt" validate:"required"`
	ClinicID       string    `json:"clinicId" validate:"required,max=64"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required,max=64"`
}

type appointmentResponse struct {
	ID             uuid.UUID     `json:"id"`
	PatientName    string        `json:"patientName"`
	PatientContact string        `json:"patientContact"`
	ScheduledAt    time.Time     `json:"scheduledAt"`
	ClinicID       string        `json:"clinicId"`
	CheckedIn      bool          `json:"checkedIn"`
	Status         domain.Status `json:"status"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *AppointmentsServer) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *AppointmentsServer) BookAppointment(c echo.Context) error {
	log := s.log.With(slog.String("handler", "BookAppointment"))

	var req appointmentRequest
	if err := c.Bind(&req); err != nil {
		log.Warn("invalid request", slog.String("reason", "malformed_body"))
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "malformed request body"})
	}
	if err := s.validate.Struct(&req); err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	appt, err := s.svc.Book(c.Request().Context(), appointments.Draft{
		PatientName:    req.PatientName,
		PatientContact: req.PatientContact,
		ScheduledAt:    req.ScheduledAt,
		ClinicID:       req.ClinicID,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			log.Info(
				"booking conflict",
				slog.String("clinic_id", req.ClinicID),
				slog.Time("scheduled_at", req.ScheduledAt),
			)
			return c.JSON(http.StatusConflict, errorResponse{Error: "that clinic slot is already booked"})
		}
		return s.writeError(c, log, err)
	}

	log.Info(
		"appointment booked",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("clinic_id", appt.ClinicID),
		slog.Time("scheduled_at", appt.ScheduledAt),
	)

	c.Response().Header().Set(echo.HeaderLocation, "/appointments/"+appt.ID.String())
	return c.JSON(http.StatusCreated, toAppointmentResponse(appt))
}

func (s *AppointmentsServer) GetAppointment(c echo.Context) error {
	log := s.log.With(slog.String("handler", "GetAppointment"))

	id, err := parseID(c)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "id must be a UUID"})
	}

	appt, err := s.svc.Get(c.Request().Context(), id)
	if err != nil {
		return s.writeError(c, log, err)
	}
	return c.JSON(http.StatusOK, toAppointmentResponse(appt))
}

func (s *AppointmentsServer) ListAppointments(c echo.Context) error {
	log := s.log.With(slog.String("handler", "ListAppointments"))

	appts, err := s.svc.ListAll(c.Request().Context())
	if err != nil {
		return s.writeError(c, log, err)
	}

	log.Debug("appointments listed", slog.Int("count", len(appts)))
	return c.JSON(http.StatusOK, toAppointmentResponses(appts))
}

func (s *AppointmentsServer) ListByClinic(c echo.Context) error {
	log := s.log.With(slog.String("handler", "ListByClinic"))

	clinicID := c.Param("clinicId")
	appts, err := s.svc.ListByClinic(c.Request().Context(), clinicID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Info("no appointments for clinic", slog.String("clinic_id", clinicID))
			return c.JSON(http.StatusNotFound, errorResponse{Error: "no appointments for clinic"})
		}
		return s.writeError(c, log, err)
	}

	log.Debug("clinic appointments listed", slog.String("clinic_id", clinicID), slog.Int("count", len(appts)))
	return c.JSON(http.StatusOK, toAppointmentResponses(appts))
}

func (s *AppointmentsServer) UpdateAppointment(c echo.Context) error {
	log := s.log.With(slog.String("handler", "UpdateAppointment"))

	id, err := parseID(c)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "id must be a UUID"})
	}

	var req appointmentRequest
	if err := c.Bind(&req); err != nil {
		log.Warn("invalid request", slog.String("reason", "malformed_body"), slog.String("appointment_id", id.String()))
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "malformed request body"})
	}
	if err := s.validate.Struct(&req); err != nil {
		log.Warn("invalid request", slog.Any("err", err), slog.String("appointment_id", id.String()))
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	err = s.svc.Update(c.Request().Context(), id, appointments.Draft{
		PatientName:    req.PatientName,
		PatientContact: req.PatientContact,
		ScheduledAt:    req.ScheduledAt,
		ClinicID:       req.ClinicID,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			log.Info("update conflict", slog.String("appointment_id", id.String()))
			return c.JSON(http.StatusConflict, errorResponse{Error: "that clinic slot is already booked"})
		}
		return s.writeError(c, log, err)
	}

	log.Info("appointment updated", slog.String("appointment_id", id.String()))
	return c.NoContent(http.StatusNoContent)
}

func (s *AppointmentsServer) UpdateStatus(c echo.Context) error {
	log := s.log.With(slog.String("handler", "UpdateStatus"))

	id, err := parseID(c)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "id must be a UUID"})
	}

	var req statusRequest
	if err := c.Bind(&req); err != nil {
		log.Warn("invalid request", slog.String("reason", "malformed_body"), slog.String("appointment_id", id.String()))
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "malformed request body"})
	}
	if err := s.validate.Struct(&req); err != nil {
		log.Warn("invalid request", slog.Any("err", err), slog.String("appointment_id", id.String()))
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	if err := s.svc.UpdateStatus(c.Request().Context(), id, req.Status); err != nil {
		return s.writeError(c, log, err)
	}

	log.Info("appointment status updated", slog.String("appointment_id", id.String()), slog.String("status", req.Status))
	return c.JSON(http.StatusOK, messageResponse{Message: "appointment status updated"})
}

func (s *AppointmentsServer) CheckIn(c echo.Context) error {
	log := s.log.With(slog.String("handler", "CheckIn"))

	id, err := parseID(c)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "id must be a UUID"})
	}

	if err := s.svc.CheckIn(c.Request().Context(), id); err != nil {
		return s.writeError(c, log, err)
	}

	log.Info("patient checked in", slog.String("appointment_id", id.String()))
	return c.JSON(http.StatusOK, messageResponse{Message: "patient checked in"})
}

func (s *AppointmentsServer) DeleteAppointment(c echo.Context) error {
	log := s.log.With(slog.String("handler", "DeleteAppointment"))

	id, err := parseID(c)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "id must be a UUID"})
	}

	if err := s.svc.Delete(c.Request().Context(), id); err != nil {
		return s.writeError(c, log, err)
	}

	log.Info("appointment deleted", slog.String("appointment_id", id.String()))
	return c.NoContent(http.StatusNoContent)
}

func (s *AppointmentsServer) SearchAppointments(c echo.Context) error {
	log := s.log.With(slog.String("handler", "SearchAppointments"))

	page, err := intQueryParam(c, "page", defaultPage)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "bad_page"))
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "page must be an integer"})
	}
	pageSize, err := intQueryParam(c, "pageSize", defaultPageSize)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "bad_page_size"))
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "pageSize must be an integer"})
	}

	appts, err := s.svc.Search(c.Request().Context(), c.QueryParam("query"), page, pageSize)
	if err != nil {
		return s.writeError(c, log, err)
	}

	log.Debug(
		"appointments searched",
		slog.String("query", c.QueryParam("query")),
		slog.Int("page", page),
		slog.Int("page_size", pageSize),
		slog.Int("count", len(appts)),
	)
	return c.JSON(http.StatusOK, toAppointmentResponses(appts))
}

func (s *AppointmentsServer) writeError(c echo.Context, log *slog.Logger, err error) error {
	var vErr *appointments.ValidationError
	switch {
	case errors.As(err, &vErr):
		log.Warn("invalid request", slog.Any("err", err))
		return c.JSON(http.StatusBadRequest, errorResponse{Error: vErr.Error()})
	case errors.Is(err, store.ErrNotFound):
		log.Info("appointment not found")
		return c.JSON(http.StatusNotFound, errorResponse{Error: "appointment not found"})
	case errors.Is(err, store.ErrConflict):
		log.Info("slot conflict")
		return c.JSON(http.StatusConflict, errorResponse{Error: "that clinic slot is already booked"})
	case errors.Is(err, store.ErrUnavailable):
		log.Warn("store unavailable", slog.Any("err", err))
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "temporarily unavailable, try again"})
	default:
		log.Error("request failed", slog.Any("err", err))
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func parseID(c echo.Context) (uuid.UUID, error) {
	return uuid.Parse(c.Param("id"))
}

func intQueryParam(c echo.Context, name string, fallback int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func toAppointmentResponse(a domain.Appointment) appointmentResponse {
	return appointmentResponse{
		ID:             a.ID,
		PatientName:    a.PatientName,
		PatientContact: a.PatientContact,
		ScheduledAt:    a.ScheduledAt,
		ClinicID:       a.ClinicID,
		CheckedIn:      a.CheckedIn,
		Status:         a.Status,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

func toAppointmentResponses(appts []domain.Appointment) []appointmentResponse {
	out := make([]appointmentResponse, 0, len(appts))
	for _, a := range appts {
		out = append(out, toAppointmentResponse(a))
	}
	return out
}
