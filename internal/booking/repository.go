package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrRuleNotFound        = errors.New("availability rule not found")
	ErrExceptionNotFound   = errors.New("availability exception not found")
	ErrSlotNotFound        = errors.New("slot not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrReminderNotFound    = errors.New("reminder not found")

	// ErrSlotTaken and ErrOverlap are raised inside the atomic
	// check-and-reserve; callers may offer alternate slots but the
	// repository never retries on its own.
	ErrSlotTaken = errors.New("slot is already taken")
	ErrOverlap   = errors.New("interval overlaps an existing appointment")
)

// ReserveRequest is the unit handed to the repository's atomic
// check-and-reserve. RequireSlot selects the pre-materialized slot model:
// when set, a matching open slot row must exist; when unset a missing
// slot row is created on the fly and only the overlap query guards the
// interval.
type ReserveRequest struct {
	Appointment *Appointment
	RequireSlot bool
}

// MoveRequest atomically relocates an appointment to a new interval,
// freeing the old slot and reserving (or creating) the new one.
type MoveRequest struct {
	AppointmentID uuid.UUID
	NewDate       time.Time
	NewStart      ClockMinutes
	NewEnd        ClockMinutes
	RequireSlot   bool
	Audit         RescheduleLog
}

// Repository contains all store interactions needed by the engine.
// Methods documented as atomic perform their reads and writes inside a
// single transaction (or equivalent critical section): they either fully
// apply or leave the store untouched.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)

	// Availability rules and exceptions
	CreateRule(ctx context.Context, rule *AvailabilityRule) error
	ListRules(ctx context.Context, doctorID uuid.UUID) ([]AvailabilityRule, error)
	DeactivateRule(ctx context.Context, doctorID, ruleID uuid.UUID) error
	UpsertException(ctx context.Context, exc *AvailabilityException) error
	GetException(ctx context.Context, doctorID uuid.UUID, date time.Time) (*AvailabilityException, error)

	// Slots. CreateSlots skips rows whose (doctor, date, start, end)
	// already exist, which is what makes generation idempotent.
	CreateSlots(ctx context.Context, slots []Slot) error
	ListSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Slot, error)

	// Appointments
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)

	// ReserveAppointment is the atomic check-and-reserve: overlap check
	// against active appointments, slot flip and appointment insert as
	// one unit. Returns ErrSlotNotFound, ErrSlotTaken or ErrOverlap.
	ReserveAppointment(ctx context.Context, req ReserveRequest) (*Appointment, error)

	// MoveAppointment atomically validates the target interval
	// (excluding the moved appointment itself), releases the old slot,
	// reserves the new one, updates the appointment and writes the
	// audit row.
	MoveAppointment(ctx context.Context, req MoveRequest) (*Appointment, error)

	// UpdateAppointmentStatus is a compare-and-swap: the update applies
	// only if the current status equals from. A missed swap surfaces as
	// ErrAppointmentNotFound.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)

	// ReleaseAppointment cancels an active appointment and frees its
	// linked slot in one unit. Fails the same way as a missed CAS when
	// the appointment is no longer active.
	ReleaseAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// MarkAppointmentPaid sets the paid flag and transaction reference
	// once; newly reports false when the appointment was already paid.
	MarkAppointmentPaid(ctx context.Context, id uuid.UUID, txnRef string) (appt *Appointment, newly bool, err error)

	// Reminders. CreateReminder skips duplicates per
	// (appointment, channel); MarkReminderSent is a no-op on resend.
	CreateReminder(ctx context.Context, rem *Reminder) (created bool, err error)
	DueReminders(ctx context.Context, now time.Time) ([]Reminder, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) (updated bool, err error)

	ListReschedules(ctx context.Context, appointmentID uuid.UUID) ([]RescheduleLog, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
