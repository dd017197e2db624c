package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/careslot/booking-engine/internal/booking"
)

type AddRuleRequest struct {
	Weekday int    `json:"weekday"` // 0 = Sunday
	Start   string `json:"start"`   // "09:00"
	End     string `json:"end"`
}

type RuleResponse struct {
	ID      uuid.UUID `json:"id"`
	Weekday int       `json:"weekday"`
	Start   string    `json:"start"`
	End     string    `json:"end"`
	Active  bool      `json:"active"`
}

type SetExceptionRequest struct {
	Date   string  `json:"date"` // "2006-01-02"
	AllDay bool    `json:"all_day"`
	Start  string  `json:"start,omitempty"`
	End    string  `json:"end,omitempty"`
	Reason *string `json:"reason,omitempty"`
}

type AvailabilityResponse struct {
	DoctorID uuid.UUID   `json:"doctor_id"`
	Date     string      `json:"date"`
	Ranges   []RangeJSON `json:"available_ranges"`
}

type RangeJSON struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type GenerateSlotsRequest struct {
	Date            string `json:"date"`
	DurationMinutes int    `json:"duration_minutes"` // 0 = one slot per window
}

type SlotResponse struct {
	ID        uuid.UUID `json:"id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	Date      string    `json:"date"`
	Start     string    `json:"start"`
	End       string    `json:"end"`
	Available bool      `json:"available"`
}

type BookAppointmentRequest struct {
	PatientID string  `json:"patient_id"`
	DoctorID  string  `json:"doctor_id"`
	Date      string  `json:"date"`
	Start     string  `json:"start"`
	End       string  `json:"end"`
	Type      string  `json:"type,omitempty"`
	Reason    *string `json:"reason,omitempty"`
	Symptoms  *string `json:"symptoms,omitempty"`
	Amount    int64   `json:"amount,omitempty"`
}

type RescheduleRequest struct {
	Date   string  `json:"date"`
	Start  string  `json:"start"`
	End    string  `json:"end"`
	Reason *string `json:"reason,omitempty"`
}

type PaymentConfirmedRequest struct {
	AppointmentID string `json:"appointment_id"`
	TxnRef        string `json:"txn_ref"`
}

type AppointmentResponse struct {
	ID        uuid.UUID `json:"id"`
	PatientID uuid.UUID `json:"patient_id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	Date      string    `json:"date"`
	Start     string    `json:"start"`
	End       string    `json:"end"`
	IsPaid    bool      `json:"is_paid"`
	Amount    int64     `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        a.ID,
		PatientID: a.PatientID,
		DoctorID:  a.DoctorID,
		Type:      string(a.Type),
		Status:    string(a.Status),
		Date:      a.Date.Format("2006-01-02"),
		Start:     a.Start.String(),
		End:       a.End.String(),
		IsPaid:    a.IsPaid,
		Amount:    a.Amount,
		CreatedAt: a.CreatedAt,
	}
}

func toSlotResponse(s booking.Slot) SlotResponse {
	return SlotResponse{
		ID:        s.ID,
		DoctorID:  s.DoctorID,
		Date:      s.Date.Format("2006-01-02"),
		Start:     s.Start.String(),
		End:       s.End.String(),
		Available: s.Available,
	}
}
