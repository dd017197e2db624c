package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email *string
	var channel *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&email,
		&channel,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.Email = email
	if channel != nil {
		p.ReminderChannel = ReminderChannel(*channel)
	}
	return &p, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var specialty *string

	err := row.Scan(
		&d.ID,
		&d.Name,
		&specialty,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	d.Specialty = specialty
	return &d, nil
}

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot

	err := row.Scan(
		&s.ID,
		&s.DoctorID,
		&s.Date,
		&s.Start,
		&s.End,
		&s.Available,
		&s.AppointmentID,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	return &s, nil
}

const appointmentColumns = `id, patient_id, doctor_id, appointment_type, status, date, start_min, end_min,
	reason, symptoms, notes, is_paid, amount, txn_ref, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.Type,
		&a.Status,
		&a.Date,
		&a.Start,
		&a.End,
		&a.Reason,
		&a.Symptoms,
		&a.Notes,
		&a.IsPaid,
		&a.Amount,
		&a.TxnRef,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Date = DateOf(a.Date)
	return &a, nil
}

func scanReminder(row pgx.Row) (*Reminder, error) {
	var r Reminder

	err := row.Scan(
		&r.ID,
		&r.AppointmentID,
		&r.Channel,
		&r.FireAt,
		&r.Sent,
		&r.SentAt,
		&r.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReminderNotFound
		}
		return nil, err
	}

	return &r, nil
}

// Interface methods

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, reminder_channel, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) CreateRule(ctx context.Context, rule *AvailabilityRule) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin rule tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock the doctor's rules for this weekday so two concurrent inserts
	// cannot both pass the overlap check.
	rows, err := tx.Query(ctx, `
		SELECT start_min, end_min FROM availability_rules
		WHERE doctor_id = $1 AND weekday = $2 AND active
		FOR UPDATE
	`, rule.DoctorID, int(rule.Weekday))
	if err != nil {
		return fmt.Errorf("lock availability rules: %w", err)
	}
	for rows.Next() {
		var start, end ClockMinutes
		if err := rows.Scan(&start, &end); err != nil {
			rows.Close()
			return fmt.Errorf("scan availability rule: %w", err)
		}
		if start < rule.End && end > rule.Start {
			rows.Close()
			return ErrRuleOverlap
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate availability rules: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO availability_rules (id, doctor_id, weekday, start_min, end_min, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
	`, rule.ID, rule.DoctorID, int(rule.Weekday), rule.Start, rule.End, rule.Active)
	if err != nil {
		return fmt.Errorf("insert availability rule: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *PgRepository) ListRules(ctx context.Context, doctorID uuid.UUID) ([]AvailabilityRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, doctor_id, weekday, start_min, end_min, active, created_at, updated_at
		FROM availability_rules
		WHERE doctor_id = $1
		ORDER BY weekday, start_min
	`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AvailabilityRule
	for rows.Next() {
		var rule AvailabilityRule
		var weekday int
		if err := rows.Scan(&rule.ID, &rule.DoctorID, &weekday, &rule.Start, &rule.End, &rule.Active, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
			return nil, err
		}
		rule.Weekday = time.Weekday(weekday)
		result = append(result, rule)
	}
	return result, rows.Err()
}

func (r *PgRepository) DeactivateRule(ctx context.Context, doctorID, ruleID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE availability_rules
		SET active = false,
		    updated_at = now()
		WHERE id = $1 AND doctor_id = $2
	`, ruleID, doctorID)
	if err != nil {
		return fmt.Errorf("deactivate availability rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}

func (r *PgRepository) UpsertException(ctx context.Context, exc *AvailabilityException) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO availability_exceptions (id, doctor_id, date, all_day, start_min, end_min, reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		ON CONFLICT (doctor_id, date) DO UPDATE
		SET all_day = EXCLUDED.all_day,
		    start_min = EXCLUDED.start_min,
		    end_min = EXCLUDED.end_min,
		    reason = EXCLUDED.reason,
		    updated_at = now()
	`, exc.ID, exc.DoctorID, exc.Date, exc.AllDay, exc.Start, exc.End, exc.Reason)
	if err != nil {
		return fmt.Errorf("upsert availability exception: %w", err)
	}
	return nil
}

func (r *PgRepository) GetException(ctx context.Context, doctorID uuid.UUID, date time.Time) (*AvailabilityException, error) {
	var exc AvailabilityException
	err := r.pool.QueryRow(ctx, `
		SELECT id, doctor_id, date, all_day, start_min, end_min, reason, created_at, updated_at
		FROM availability_exceptions
		WHERE doctor_id = $1 AND date = $2
	`, doctorID, date).Scan(&exc.ID, &exc.DoctorID, &exc.Date, &exc.AllDay, &exc.Start, &exc.End, &exc.Reason, &exc.CreatedAt, &exc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExceptionNotFound
		}
		return nil, err
	}
	exc.Date = DateOf(exc.Date)
	return &exc, nil
}

func (r *PgRepository) CreateSlots(ctx context.Context, slots []Slot) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create slots: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, s := range slots {
		_, err := tx.Exec(ctx, `
			INSERT INTO slots (id, doctor_id, date, start_min, end_min, is_available, appointment_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, true, NULL, now(), now())
			ON CONFLICT (doctor_id, date, start_min, end_min) DO NOTHING
		`, s.ID, s.DoctorID, s.Date, s.Start, s.End)
		if err != nil {
			return fmt.Errorf("insert slot: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (r *PgRepository) ListSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, doctor_id, date, start_min, end_min, is_available, appointment_id, created_at, updated_at
		FROM slots
		WHERE doctor_id = $1 AND date = $2
		ORDER BY start_min
	`, doctorID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		s.Date = DateOf(s.Date)
		result = append(result, *s)
	}
	return result, rows.Err()
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1 AND date = $2
		ORDER BY start_min
	`, doctorID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY date DESC, start_min
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

// ReserveAppointment performs the atomic check-and-reserve inside one
// transaction: slot row lock, overlap query with FOR UPDATE, appointment
// insert and slot flip. The unique indexes on slots and on active
// appointment starts back the check even if the transaction-level
// serialization is bypassed.
func (r *PgRepository) ReserveAppointment(ctx context.Context, req ReserveRequest) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin reserve: %w", err)
	}
	defer tx.Rollback(ctx)

	appt := req.Appointment

	slot, err := lockSlot(ctx, tx, appt.DoctorID, appt.Date, appt.Start, appt.End)
	if err != nil && !errors.Is(err, ErrSlotNotFound) {
		return nil, err
	}
	if slot == nil && req.RequireSlot {
		return nil, ErrSlotNotFound
	}
	if slot != nil && !slot.Available {
		return nil, ErrSlotTaken
	}

	if err := checkOverlap(ctx, tx, appt.DoctorID, appt.Date, appt.Start, appt.End, uuid.Nil); err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, appointment_type, status, date, start_min, end_min,
			reason, symptoms, notes, is_paid, amount, txn_ref, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULL, false, $11, NULL, now(), now())
		RETURNING `+appointmentColumns+`
	`, appt.ID, appt.PatientID, appt.DoctorID, appt.Type, appt.Status, appt.Date, appt.Start, appt.End,
		appt.Reason, appt.Symptoms, appt.Amount)

	created, err := scanAppointment(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrOverlap
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}

	if err := occupySlot(ctx, tx, slot, created); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit reserve: %w", err)
	}
	return created, nil
}

func (r *PgRepository) MoveAppointment(ctx context.Context, req MoveRequest) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin move: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND status IN ('pending', 'confirmed')
		FOR UPDATE
	`, req.AppointmentID)
	appt, err := scanAppointment(row)
	if err != nil {
		return nil, err
	}

	if err := checkOverlap(ctx, tx, appt.DoctorID, req.NewDate, req.NewStart, req.NewEnd, appt.ID); err != nil {
		return nil, err
	}

	target, err := lockSlot(ctx, tx, appt.DoctorID, req.NewDate, req.NewStart, req.NewEnd)
	if err != nil && !errors.Is(err, ErrSlotNotFound) {
		return nil, err
	}
	if target == nil && req.RequireSlot {
		return nil, ErrSlotNotFound
	}
	if target != nil && !target.Available {
		// Moving onto its own slot is a no-op reservation, not a conflict.
		if target.AppointmentID == nil || *target.AppointmentID != appt.ID {
			return nil, ErrSlotTaken
		}
	}

	// Free whatever slot currently holds the appointment.
	if _, err := tx.Exec(ctx, `
		UPDATE slots
		SET is_available = true,
		    appointment_id = NULL,
		    updated_at = now()
		WHERE appointment_id = $1
	`, appt.ID); err != nil {
		return nil, fmt.Errorf("free old slot: %w", err)
	}

	row = tx.QueryRow(ctx, `
		UPDATE appointments
		SET date = $2,
		    start_min = $3,
		    end_min = $4,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, appt.ID, req.NewDate, req.NewStart, req.NewEnd)
	moved, err := scanAppointment(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrOverlap
		}
		return nil, fmt.Errorf("update appointment interval: %w", err)
	}

	if err := occupySlot(ctx, tx, target, moved); err != nil {
		return nil, err
	}

	audit := req.Audit
	if _, err := tx.Exec(ctx, `
		INSERT INTO reschedule_logs (appointment_id, old_date, old_start_min, old_end_min,
			new_date, new_start_min, new_end_min, requested_by, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
	`, audit.AppointmentID, audit.OldDate, audit.OldStart, audit.OldEnd,
		audit.NewDate, audit.NewStart, audit.NewEnd, audit.RequestedBy, audit.Reason); err != nil {
		return nil, fmt.Errorf("insert reschedule log: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit move: %w", err)
	}
	return moved, nil
}

// lockSlot loads and row-locks the exact slot for the interval, or
// returns ErrSlotNotFound when none is materialized.
func lockSlot(ctx context.Context, tx pgx.Tx, doctorID uuid.UUID, date time.Time, start, end ClockMinutes) (*Slot, error) {
	row := tx.QueryRow(ctx, `
		SELECT id, doctor_id, date, start_min, end_min, is_available, appointment_id, created_at, updated_at
		FROM slots
		WHERE doctor_id = $1 AND date = $2 AND start_min = $3 AND end_min = $4
		FOR UPDATE
	`, doctorID, date, start, end)
	return scanSlot(row)
}

// checkOverlap applies the half-open interval test against the doctor's
// active appointments on the date, locking any match so a concurrent
// transaction cannot slide in between check and insert.
func checkOverlap(ctx context.Context, tx pgx.Tx, doctorID uuid.UUID, date time.Time, start, end ClockMinutes, exclude uuid.UUID) error {
	var id uuid.UUID
	err := tx.QueryRow(ctx, `
		SELECT id
		FROM appointments
		WHERE doctor_id = $1
		  AND date = $2
		  AND status IN ('pending', 'confirmed')
		  AND start_min < $4
		  AND end_min > $3
		  AND id <> $5
		LIMIT 1
		FOR UPDATE
	`, doctorID, date, start, end, exclude).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("overlap check: %w", err)
	}
	return ErrOverlap
}

// occupySlot links the appointment to the locked slot, creating the slot
// row on the fly when the overlap-query-only model is in use.
func occupySlot(ctx context.Context, tx pgx.Tx, slot *Slot, appt *Appointment) error {
	if slot != nil {
		if _, err := tx.Exec(ctx, `
			UPDATE slots
			SET is_available = false,
			    appointment_id = $2,
			    updated_at = now()
			WHERE id = $1
		`, slot.ID, appt.ID); err != nil {
			return fmt.Errorf("occupy slot: %w", err)
		}
		return nil
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO slots (id, doctor_id, date, start_min, end_min, is_available, appointment_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, false, $6, now(), now())
	`, uuid.New(), appt.DoctorID, appt.Date, appt.Start, appt.End, appt.ID); err != nil {
		if isUniqueViolation(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("materialize occupied slot: %w", err)
	}
	return nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)
	return scanAppointment(row)
}

func (r *PgRepository) ReleaseAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin release: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
		    updated_at = now()
		WHERE id = $1
		  AND status IN ('pending', 'confirmed')
		RETURNING `+appointmentColumns+`
	`, id)
	appt, err := scanAppointment(row)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE slots
		SET is_available = true,
		    appointment_id = NULL,
		    updated_at = now()
		WHERE appointment_id = $1
	`, id); err != nil {
		return nil, fmt.Errorf("free slot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit release: %w", err)
	}
	return appt, nil
}

func (r *PgRepository) MarkAppointmentPaid(ctx context.Context, id uuid.UUID, txnRef string) (*Appointment, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin mark paid: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id)
	appt, err := scanAppointment(row)
	if err != nil {
		return nil, false, err
	}

	if appt.IsPaid {
		// Duplicate webhook delivery: already reconciled.
		return appt, false, tx.Commit(ctx)
	}

	row = tx.QueryRow(ctx, `
		UPDATE appointments
		SET is_paid = true,
		    txn_ref = $2,
		    status = CASE WHEN status = 'pending' THEN 'confirmed' ELSE status END,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, id, txnRef)
	updated, err := scanAppointment(row)
	if err != nil {
		return nil, false, fmt.Errorf("mark paid: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit mark paid: %w", err)
	}
	return updated, true, nil
}

func (r *PgRepository) CreateReminder(ctx context.Context, rem *Reminder) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO reminders (id, appointment_id, channel, fire_at, is_sent, sent_at, created_at)
		VALUES ($1, $2, $3, $4, false, NULL, now())
		ON CONFLICT (appointment_id, channel) DO NOTHING
	`, rem.ID, rem.AppointmentID, rem.Channel, rem.FireAt)
	if err != nil {
		return false, fmt.Errorf("insert reminder: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PgRepository) DueReminders(ctx context.Context, now time.Time) ([]Reminder, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, appointment_id, channel, fire_at, is_sent, sent_at, created_at
		FROM reminders
		WHERE is_sent = false
		  AND fire_at <= $1
		ORDER BY fire_at
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Reminder
	for rows.Next() {
		rem, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rem)
	}
	return result, rows.Err()
}

func (r *PgRepository) MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE reminders
		SET is_sent = true,
		    sent_at = $2
		WHERE id = $1
		  AND is_sent = false
	`, id, at)
	if err != nil {
		return false, fmt.Errorf("mark reminder sent: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM reminders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, ErrReminderNotFound
	}
	return false, nil
}

func (r *PgRepository) ListReschedules(ctx context.Context, appointmentID uuid.UUID) ([]RescheduleLog, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, appointment_id, old_date, old_start_min, old_end_min,
		       new_date, new_start_min, new_end_min, requested_by, reason, created_at
		FROM reschedule_logs
		WHERE appointment_id = $1
		ORDER BY created_at
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []RescheduleLog
	for rows.Next() {
		var rl RescheduleLog
		if err := rows.Scan(&rl.ID, &rl.AppointmentID, &rl.OldDate, &rl.OldStart, &rl.OldEnd,
			&rl.NewDate, &rl.NewStart, &rl.NewEnd, &rl.RequestedBy, &rl.Reason, &rl.CreatedAt); err != nil {
			return nil, err
		}
		rl.OldDate = DateOf(rl.OldDate)
		rl.NewDate = DateOf(rl.NewDate)
		result = append(result, rl)
	}
	return result, rows.Err()
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	var appID *uuid.UUID
	if ev.AppointmentID != nil {
		appID = ev.AppointmentID
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, appID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
