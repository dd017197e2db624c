package notify

import (
	"context"
	"fmt"
	"log"

	"gopkg.in/gomail.v2"

	"github.com/careslot/booking-engine/internal/booking"
)

// Notifier delivers one reminder notice. Implementations own their
// transport entirely; a failed delivery leaves the reminder unsent and
// the worker retries it on the next run.
type Notifier interface {
	Send(ctx context.Context, notice booking.ReminderNotice) error
}

// EmailNotifier delivers email reminders over SMTP. Notices for other
// channels fall through to a log line, since SMS and push delivery live
// outside this service.
type EmailNotifier struct {
	dialer *gomail.Dialer
	from   string
}

func NewEmailNotifier(host string, port int, username, password, from string) *EmailNotifier {
	return &EmailNotifier{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
	}
}

func (n *EmailNotifier) Send(_ context.Context, notice booking.ReminderNotice) error {
	if notice.Reminder.Channel != booking.ChannelEmail {
		log.Printf("no transport for channel %s, reminder %s logged only", notice.Reminder.Channel, notice.Reminder.ID)
		return nil
	}
	if notice.Patient.Email == nil || *notice.Patient.Email == "" {
		return fmt.Errorf("patient %s has no email address", notice.Patient.ID)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", n.from)
	msg.SetHeader("To", *notice.Patient.Email)
	msg.SetHeader("Subject", fmt.Sprintf("Reminder: appointment with %s", notice.Doctor.Name))
	msg.SetBody("text/html", renderReminderBody(notice))

	if err := n.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send reminder email: %w", err)
	}
	return nil
}

func renderReminderBody(notice booking.ReminderNotice) string {
	appt := notice.Appointment
	return fmt.Sprintf(`
		<p>Dear %s,</p>
		<p>This is a reminder for your upcoming appointment.</p>
		<ul>
			<li><strong>Doctor:</strong> %s</li>
			<li><strong>Date:</strong> %s</li>
			<li><strong>Time:</strong> %s to %s</li>
			<li><strong>Type:</strong> %s</li>
		</ul>
		<p>If you need to reschedule or cancel, please do so as soon as possible.</p>
	`, notice.Patient.Name, notice.Doctor.Name,
		appt.Date.Format("Monday, 2 January 2006"),
		appt.Start.String(), appt.End.String(), appt.Type)
}

// LogNotifier writes notices to the log instead of delivering them.
// Used in dev environments without SMTP credentials.
type LogNotifier struct{}

func (LogNotifier) Send(_ context.Context, notice booking.ReminderNotice) error {
	log.Printf("reminder %s (%s) for appointment %s on %s %s",
		notice.Reminder.ID, notice.Reminder.Channel, notice.Appointment.ID,
		notice.Appointment.Date.Format("2006-01-02"), notice.Appointment.Start)
	return nil
}
