package booking

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
)

// ReminderNotice is the delivery unit handed to the external transport:
// the reminder plus enough appointment context to render a message.
type ReminderNotice struct {
	Reminder    Reminder
	Appointment Appointment
	Patient     Patient
	Doctor      Doctor
}

// ReminderSender attempts delivery over the reminder's channel. Failures
// are the transport's concern; the reminder stays unsent and is retried
// on the next run.
type ReminderSender func(ctx context.Context, notice ReminderNotice) error

// scheduleReminder derives the reminder for a newly confirmed
// appointment. A fire time already in the past is silently skipped, and
// the (appointment, channel) pair is created at most once no matter how
// often confirmation is replayed.
func (s *Service) scheduleReminder(ctx context.Context, appt *Appointment) {
	fireAt := appt.StartAt().Add(-s.cfg.ReminderLeadTime)
	if !fireAt.After(s.now()) {
		return
	}

	channel := ChannelEmail
	if patient, err := s.repo.GetPatientByID(ctx, appt.PatientID); err == nil && patient.ReminderChannel != "" {
		channel = patient.ReminderChannel
	}

	rem := &Reminder{
		ID:            uuid.New(),
		AppointmentID: appt.ID,
		Channel:       channel,
		FireAt:        fireAt,
	}

	// created == false means an earlier confirmation already scheduled it.
	if _, err := s.repo.CreateReminder(ctx, rem); err != nil {
		log.Printf("failed to create reminder for appointment %s: %v", appt.ID, err)
	}
}

// DueReminders lists unsent reminders whose fire time has passed.
func (s *Service) DueReminders(ctx context.Context, now time.Time) ([]Reminder, error) {
	return s.repo.DueReminders(ctx, now)
}

// MarkReminderSent records delivery. Calling it twice is a no-op on the
// second call.
func (s *Service) MarkReminderSent(ctx context.Context, id uuid.UUID) error {
	_, err := s.repo.MarkReminderSent(ctx, id, s.now())
	return err
}

// DispatchDueReminders drains the due reminders through send, marking
// each one sent only after a successful delivery. Returns the number
// dispatched.
func (s *Service) DispatchDueReminders(ctx context.Context, now time.Time, send ReminderSender) (int, error) {
	due, err := s.repo.DueReminders(ctx, now)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, rem := range due {
		notice, err := s.buildNotice(ctx, rem)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				// Appointment vanished; drop the reminder so it stops recycling.
				if _, err := s.repo.MarkReminderSent(ctx, rem.ID, now); err != nil {
					log.Printf("failed to retire orphan reminder %s: %v", rem.ID, err)
				}
				continue
			}
			log.Printf("failed to hydrate reminder %s: %v", rem.ID, err)
			continue
		}

		// Reminders for appointments that got cancelled in the meantime
		// are retired without delivery.
		if !notice.Appointment.Status.Active() {
			if _, err := s.repo.MarkReminderSent(ctx, rem.ID, now); err != nil {
				log.Printf("failed to retire reminder %s: %v", rem.ID, err)
			}
			continue
		}

		if err := send(ctx, notice); err != nil {
			log.Printf("reminder %s delivery failed: %v", rem.ID, err)
			continue
		}

		if _, err := s.repo.MarkReminderSent(ctx, rem.ID, now); err != nil {
			log.Printf("failed to mark reminder %s sent: %v", rem.ID, err)
			continue
		}
		s.logEvent(ctx, rem.AppointmentID, EventReminderSent, map[string]any{
			"reminder_id": rem.ID.String(),
			"channel":     string(rem.Channel),
		})
		sent++
	}

	return sent, nil
}

func (s *Service) buildNotice(ctx context.Context, rem Reminder) (ReminderNotice, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, rem.AppointmentID)
	if err != nil {
		return ReminderNotice{}, err
	}
	patient, err := s.repo.GetPatientByID(ctx, appt.PatientID)
	if err != nil {
		return ReminderNotice{}, err
	}
	doctor, err := s.repo.GetDoctorByID(ctx, appt.DoctorID)
	if err != nil {
		return ReminderNotice{}, err
	}
	return ReminderNotice{
		Reminder:    rem,
		Appointment: *appt,
		Patient:     *patient,
		Doctor:      *doctor,
	}, nil
}
