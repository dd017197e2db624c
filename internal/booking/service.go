package booking

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/careslot/booking-engine/internal/config"
	redisclient "github.com/careslot/booking-engine/internal/redis"
)

const (
	EventAppointmentBooked      = "APPOINTMENT_BOOKED"
	EventAppointmentConfirmed   = "APPOINTMENT_CONFIRMED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted   = "APPOINTMENT_COMPLETED"
	EventAppointmentNoShow      = "APPOINTMENT_NO_SHOW"
	EventPaymentReceived        = "PAYMENT_RECEIVED"
	EventReminderSent           = "REMINDER_SENT"
)

var (
	ErrInvalidInterval = errors.New("end time must be after start time")
	ErrInvalidType     = errors.New("unknown appointment type")
	ErrInPast          = errors.New("appointment starts in the past")
	ErrRuleOverlap     = errors.New("rule overlaps an existing availability rule")
	ErrTerminalState   = errors.New("appointment is in a terminal state")
	ErrNotConfirmed    = errors.New("appointment is not confirmed")
	ErrTooCloseToStart = errors.New("too close to the appointment start")
	ErrForbidden       = errors.New("actor is not allowed to perform this operation")
	ErrBookingBusy     = errors.New("interval is currently being booked, please retry")
)

// Service is the booking engine. It is the sole mutator of slots and
// appointments; every operation either fully applies or leaves the store
// untouched.
type Service struct {
	repo   Repository
	locker redisclient.Locker
	cfg    config.Config
	now    func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, cfg config.Config) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		cfg:    cfg,
		now:    time.Now,
	}
}

type BookSlotRequest struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	Date      time.Time
	Start     ClockMinutes
	End       ClockMinutes
	Type      AppointmentType
	Reason    *string
	Symptoms  *string
	Amount    int64
}

// BookSlot reserves the interval for the patient. The check-and-reserve
// runs under a per-(doctor, date) lock and a single repository
// transaction, so two concurrent attempts for the same interval resolve
// to exactly one success.
func (s *Service) BookSlot(ctx context.Context, actor Actor, req BookSlotRequest) (*Appointment, error) {
	if !req.Start.Valid() || !req.End.Valid() || req.Start >= req.End {
		return nil, ErrInvalidInterval
	}
	if req.Type == "" {
		req.Type = TypeConsultation
	}
	if !req.Type.Valid() {
		return nil, ErrInvalidType
	}

	now := s.now()
	if req.Start.At(req.Date).Before(now) {
		return nil, ErrInPast
	}

	// Patients book for themselves, doctors onto their own schedule;
	// only staff book on someone else's behalf.
	switch actor.Role {
	case RoleStaff:
	case RolePatient:
		if actor.ID != req.PatientID {
			return nil, ErrForbidden
		}
	case RoleDoctor:
		if actor.ID != req.DoctorID {
			return nil, ErrForbidden
		}
	default:
		return nil, ErrForbidden
	}

	if _, err := s.repo.GetPatientByID(ctx, req.PatientID); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetDoctorByID(ctx, req.DoctorID); err != nil {
		return nil, err
	}

	status := StatusPending
	if s.cfg.AutoConfirm {
		status = StatusConfirmed
	}

	appt := &Appointment{
		ID:        uuid.New(),
		PatientID: req.PatientID,
		DoctorID:  req.DoctorID,
		Type:      req.Type,
		Status:    status,
		Date:      DateOf(req.Date),
		Start:     req.Start,
		End:       req.End,
		Reason:    req.Reason,
		Symptoms:  req.Symptoms,
		Amount:    req.Amount,
	}

	var created *Appointment
	err := s.locker.WithBookingLock(ctx, req.DoctorID, appt.Date, func(lockCtx context.Context) error {
		res, err := s.repo.ReserveAppointment(lockCtx, ReserveRequest{
			Appointment: appt,
			RequireSlot: s.cfg.RequireSlot,
		})
		if err != nil {
			return err
		}
		created = res
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrBookingBusy
		}
		return nil, err
	}

	s.logEvent(ctx, created.ID, EventAppointmentBooked, map[string]any{
		"doctor_id":  created.DoctorID.String(),
		"patient_id": created.PatientID.String(),
		"date":       created.Date.Format("2006-01-02"),
		"start":      created.Start.String(),
		"end":        created.End.String(),
		"status":     string(created.Status),
	})

	if created.Status == StatusConfirmed {
		s.scheduleReminder(ctx, created)
	}

	return created, nil
}

// Reschedule moves an active appointment to a new interval. The target
// check excludes the appointment itself, so moving within the original
// window is allowed.
func (s *Service) Reschedule(ctx context.Context, actor Actor, apptID uuid.UUID, newDate time.Time, newStart, newEnd ClockMinutes, reason *string) (*Appointment, error) {
	if !newStart.Valid() || !newEnd.Valid() || newStart >= newEnd {
		return nil, ErrInvalidInterval
	}

	now := s.now()
	if newStart.At(newDate).Before(now) {
		return nil, ErrInPast
	}

	appt, err := s.repo.GetAppointmentByID(ctx, apptID)
	if err != nil {
		return nil, err
	}
	if !canAct(actor, appt) {
		return nil, ErrForbidden
	}
	if !appt.Status.Active() {
		return nil, ErrTerminalState
	}

	move := MoveRequest{
		AppointmentID: apptID,
		NewDate:       DateOf(newDate),
		NewStart:      newStart,
		NewEnd:        newEnd,
		RequireSlot:   s.cfg.RequireSlot,
		Audit: RescheduleLog{
			AppointmentID: apptID,
			OldDate:       appt.Date,
			OldStart:      appt.Start,
			OldEnd:        appt.End,
			NewDate:       DateOf(newDate),
			NewStart:      newStart,
			NewEnd:        newEnd,
			RequestedBy:   actor.ID,
			Reason:        reason,
		},
	}

	var moved *Appointment
	err = s.locker.WithBookingLock(ctx, appt.DoctorID, move.NewDate, func(lockCtx context.Context) error {
		res, err := s.repo.MoveAppointment(lockCtx, move)
		if err != nil {
			return err
		}
		moved = res
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrBookingBusy
		}
		if errors.Is(err, ErrAppointmentNotFound) {
			// The appointment existed a moment ago: another transition won.
			return nil, ErrTerminalState
		}
		return nil, err
	}

	s.logEvent(ctx, moved.ID, EventAppointmentRescheduled, map[string]any{
		"old_date":  appt.Date.Format("2006-01-02"),
		"old_start": appt.Start.String(),
		"new_date":  moved.Date.Format("2006-01-02"),
		"new_start": moved.Start.String(),
	})

	return moved, nil
}

// Cancel transitions an active appointment to cancelled and frees its
// slot. Patients and doctors must be outside the cancellation lead time;
// staff may cancel at any moment before the appointment has terminated.
func (s *Service) Cancel(ctx context.Context, actor Actor, apptID uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, apptID)
	if err != nil {
		return nil, err
	}
	if !canAct(actor, appt) {
		return nil, ErrForbidden
	}
	if !appt.Status.Active() {
		return nil, ErrTerminalState
	}

	if actor.Role != RoleStaff {
		// Strictly more than the lead time must remain before the
		// start; cancelling exactly at the boundary is rejected.
		if !appt.StartAt().After(s.now().Add(s.cfg.CancelLeadTime)) {
			return nil, ErrTooCloseToStart
		}
	}

	cancelled, err := s.repo.ReleaseAppointment(ctx, apptID)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Lost a race with another transition.
			return nil, ErrTerminalState
		}
		return nil, err
	}

	s.logEvent(ctx, cancelled.ID, EventAppointmentCancelled, map[string]any{
		"actor_id":   actor.ID.String(),
		"actor_role": string(actor.Role),
	})

	return cancelled, nil
}

// MarkCompleted closes out a confirmed appointment. Doctor-side only;
// the slot stays consumed.
func (s *Service) MarkCompleted(ctx context.Context, actor Actor, apptID uuid.UUID) (*Appointment, error) {
	return s.finishAppointment(ctx, actor, apptID, StatusCompleted, EventAppointmentCompleted)
}

// MarkNoShow records that the patient did not turn up. Doctor-side only.
func (s *Service) MarkNoShow(ctx context.Context, actor Actor, apptID uuid.UUID) (*Appointment, error) {
	return s.finishAppointment(ctx, actor, apptID, StatusNoShow, EventAppointmentNoShow)
}

func (s *Service) finishAppointment(ctx context.Context, actor Actor, apptID uuid.UUID, to AppointmentStatus, event string) (*Appointment, error) {
	if actor.Role != RoleDoctor && actor.Role != RoleStaff {
		return nil, ErrForbidden
	}

	appt, err := s.repo.GetAppointmentByID(ctx, apptID)
	if err != nil {
		return nil, err
	}
	if !canAct(actor, appt) {
		return nil, ErrForbidden
	}
	if appt.Status.Terminal() {
		return nil, ErrTerminalState
	}
	if appt.Status != StatusConfirmed {
		return nil, ErrNotConfirmed
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, apptID, StatusConfirmed, to)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrTerminalState
		}
		return nil, err
	}

	s.logEvent(ctx, updated.ID, event, map[string]any{
		"actor_id": actor.ID.String(),
	})

	return updated, nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetAppointmentByID(ctx, id)
}

func (s *Service) ListPatientAppointments(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListAppointmentsByPatient(ctx, patientID, limit, offset)
}

func (s *Service) ListDoctorAppointments(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error) {
	return s.repo.ListAppointmentsByDoctor(ctx, doctorID, DateOf(date))
}

func (s *Service) ListReschedules(ctx context.Context, apptID uuid.UUID) ([]RescheduleLog, error) {
	return s.repo.ListReschedules(ctx, apptID)
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("failed to marshal event payload for %s: %v", eventType, err)
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		log.Printf("failed to insert event log %s for appointment %s: %v", eventType, appointmentID, err)
	}
}

// canAct reports whether the actor may mutate the appointment. Staff
// always can; patients and doctors only when the appointment is their
// own.
func canAct(actor Actor, appt *Appointment) bool {
	switch actor.Role {
	case RoleStaff:
		return true
	case RolePatient:
		return actor.ID == appt.PatientID
	case RoleDoctor:
		return actor.ID == appt.DoctorID
	}
	return false
}

// RejectionCode maps a rejection to a stable machine-readable code for
// logs and transports.
func RejectionCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInterval), errors.Is(err, ErrInvalidType):
		return "validation"
	case errors.Is(err, ErrInPast):
		return "in_past"
	case errors.Is(err, ErrSlotNotFound):
		return "slot_not_found"
	case errors.Is(err, ErrSlotTaken):
		return "slot_already_taken"
	case errors.Is(err, ErrOverlap):
		return "overlaps_existing_appointment"
	case errors.Is(err, ErrTooCloseToStart):
		return "too_close_to_start"
	case errors.Is(err, ErrTerminalState):
		return "already_terminal"
	case errors.Is(err, ErrNotConfirmed):
		return "not_confirmed"
	case errors.Is(err, ErrRuleOverlap):
		return "rule_overlap"
	case errors.Is(err, ErrPatientNotFound):
		return "patient_not_found"
	case errors.Is(err, ErrDoctorNotFound):
		return "doctor_not_found"
	case errors.Is(err, ErrRuleNotFound):
		return "rule_not_found"
	case errors.Is(err, ErrAppointmentNotFound):
		return "appointment_not_found"
	case errors.Is(err, ErrReminderNotFound):
		return "reminder_not_found"
	default:
		return "error"
	}
}
