package booking

import (
	"context"

	"github.com/google/uuid"
)

// OnPaymentConfirmed applies the effect of a verified gateway event:
// mark the appointment paid and promote pending to confirmed. The hook
// is idempotent so duplicate webhook deliveries are safe: an already
// paid appointment is returned unchanged and no second reminder is ever
// scheduled. Signature and amount verification belong to the caller.
func (s *Service) OnPaymentConfirmed(ctx context.Context, apptID uuid.UUID, txnRef string) (*Appointment, error) {
	appt, newly, err := s.repo.MarkAppointmentPaid(ctx, apptID, txnRef)
	if err != nil {
		return nil, err
	}
	if !newly {
		return appt, nil
	}

	s.logEvent(ctx, appt.ID, EventPaymentReceived, map[string]any{
		"txn_ref": txnRef,
	})

	if appt.Status == StatusConfirmed {
		s.logEvent(ctx, appt.ID, EventAppointmentConfirmed, map[string]any{
			"via": "payment",
		})
		s.scheduleReminder(ctx, appt)
	}

	return appt, nil
}
