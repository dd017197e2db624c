package booking

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusNoShow    AppointmentStatus = "no_show"
)

// Terminal reports whether no further status transitions are allowed.
func (s AppointmentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

// Active reports whether the appointment still occupies its interval.
func (s AppointmentStatus) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

type AppointmentType string

const (
	TypeConsultation AppointmentType = "consultation"
	TypeFollowUp     AppointmentType = "follow_up"
	TypeEmergency    AppointmentType = "emergency"
	TypeCheckup      AppointmentType = "checkup"
	TypeOther        AppointmentType = "other"
)

func (t AppointmentType) Valid() bool {
	switch t {
	case TypeConsultation, TypeFollowUp, TypeEmergency, TypeCheckup, TypeOther:
		return true
	}
	return false
}

type ReminderChannel string

const (
	ChannelEmail ReminderChannel = "email"
	ChannelSMS   ReminderChannel = "sms"
	ChannelPush  ReminderChannel = "push"
)

// Role of the authenticated actor invoking an operation. Identity and
// authentication live outside this module; the engine only enforces
// role preconditions.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleStaff   Role = "staff"
)

type Actor struct {
	ID   uuid.UUID
	Role Role
}

type Patient struct {
	ID              uuid.UUID
	Name            string
	Email           *string
	ReminderChannel ReminderChannel
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Doctor struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AvailabilityRule is one recurring weekly working window for a doctor.
// Several rules may exist per weekday but active rules must not overlap.
type AvailabilityRule struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	Weekday   time.Weekday
	Start     ClockMinutes
	End       ClockMinutes
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AvailabilityException overrides the weekly rules on one calendar date,
// either for the whole day or for a sub-range. One row per (doctor, date).
type AvailabilityException struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	Date      time.Time
	AllDay    bool
	Start     ClockMinutes
	End       ClockMinutes
	Reason    *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Slot is one concrete bookable interval for a doctor on a date.
// An unavailable slot always carries the appointment occupying it.
type Slot struct {
	ID            uuid.UUID
	DoctorID      uuid.UUID
	Date          time.Time
	Start         ClockMinutes
	End           ClockMinutes
	Available     bool
	AppointmentID *uuid.UUID
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Appointment struct {
	ID        uuid.UUID
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	Type      AppointmentType
	Status    AppointmentStatus
	Date      time.Time
	Start     ClockMinutes
	End       ClockMinutes
	Reason    *string
	Symptoms  *string
	Notes     *string
	IsPaid    bool
	Amount    int64 // smallest currency unit
	TxnRef    *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StartAt is the appointment start as an absolute timestamp.
func (a *Appointment) StartAt() time.Time {
	return a.Start.At(a.Date)
}

type Reminder struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	Channel       ReminderChannel
	FireAt        time.Time
	Sent          bool
	SentAt        *time.Time
	CreatedAt     time.Time
}

// RescheduleLog records one move of an appointment for auditing.
type RescheduleLog struct {
	ID            int64
	AppointmentID uuid.UUID
	OldDate       time.Time
	OldStart      ClockMinutes
	OldEnd        ClockMinutes
	NewDate       time.Time
	NewStart      ClockMinutes
	NewEnd        ClockMinutes
	RequestedBy   uuid.UUID
	Reason        *string
	CreatedAt     time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
