package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-process Repository with the same atomicity
// contract as the Postgres implementation: every atomic operation runs
// under one mutex, so concurrent reservations of the same interval
// resolve to a single winner. It backs the engine tests and has no
// durability.
type MemoryRepository struct {
	mu sync.Mutex

	patients    map[uuid.UUID]Patient
	doctors     map[uuid.UUID]Doctor
	rules       map[uuid.UUID]AvailabilityRule
	exceptions  map[string]AvailabilityException // doctor|date
	slots       map[uuid.UUID]Slot
	appts       map[uuid.UUID]Appointment
	reminders   map[uuid.UUID]Reminder
	reschedules []RescheduleLog
	events      []EventLog

	nextLogID int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		patients:   make(map[uuid.UUID]Patient),
		doctors:    make(map[uuid.UUID]Doctor),
		rules:      make(map[uuid.UUID]AvailabilityRule),
		exceptions: make(map[string]AvailabilityException),
		slots:      make(map[uuid.UUID]Slot),
		appts:      make(map[uuid.UUID]Appointment),
		reminders:  make(map[uuid.UUID]Reminder),
	}
}

func excKey(doctorID uuid.UUID, date time.Time) string {
	return doctorID.String() + "|" + DateOf(date).Format("2006-01-02")
}

// AddPatient and AddDoctor are test/seeding hooks, not part of the
// Repository interface.
func (m *MemoryRepository) AddPatient(p Patient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patients[p.ID] = p
}

func (m *MemoryRepository) AddDoctor(d Doctor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doctors[d.ID] = d
}

func (m *MemoryRepository) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (m *MemoryRepository) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &d, nil
}

func (m *MemoryRepository) CreateRule(_ context.Context, rule *AvailabilityRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rules {
		if r.DoctorID != rule.DoctorID || r.Weekday != rule.Weekday || !r.Active {
			continue
		}
		if r.Start < rule.End && r.End > rule.Start {
			return ErrRuleOverlap
		}
	}
	rule.CreatedAt = time.Now()
	rule.UpdatedAt = rule.CreatedAt
	m.rules[rule.ID] = *rule
	return nil
}

func (m *MemoryRepository) ListRules(_ context.Context, doctorID uuid.UUID) ([]AvailabilityRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AvailabilityRule
	for _, r := range m.rules {
		if r.DoctorID == doctorID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weekday != out[j].Weekday {
			return out[i].Weekday < out[j].Weekday
		}
		return out[i].Start < out[j].Start
	})
	return out, nil
}

func (m *MemoryRepository) DeactivateRule(_ context.Context, doctorID, ruleID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[ruleID]
	if !ok || r.DoctorID != doctorID {
		return ErrRuleNotFound
	}
	r.Active = false
	r.UpdatedAt = time.Now()
	m.rules[ruleID] = r
	return nil
}

func (m *MemoryRepository) UpsertException(_ context.Context, exc *AvailabilityException) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := excKey(exc.DoctorID, exc.Date)
	if prev, ok := m.exceptions[key]; ok {
		exc.ID = prev.ID
		exc.CreatedAt = prev.CreatedAt
	} else {
		exc.CreatedAt = time.Now()
	}
	exc.UpdatedAt = time.Now()
	m.exceptions[key] = *exc
	return nil
}

func (m *MemoryRepository) GetException(_ context.Context, doctorID uuid.UUID, date time.Time) (*AvailabilityException, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exc, ok := m.exceptions[excKey(doctorID, date)]
	if !ok {
		return nil, ErrExceptionNotFound
	}
	return &exc, nil
}

func (m *MemoryRepository) CreateSlots(_ context.Context, slots []Slot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range slots {
		if m.findSlotLocked(s.DoctorID, s.Date, s.Start, s.End) != nil {
			continue
		}
		s.CreatedAt = time.Now()
		s.UpdatedAt = s.CreatedAt
		m.slots[s.ID] = s
	}
	return nil
}

func (m *MemoryRepository) ListSlots(_ context.Context, doctorID uuid.UUID, date time.Time) ([]Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	day := DateOf(date)
	var out []Slot
	for _, s := range m.slots {
		if s.DoctorID == doctorID && s.Date.Equal(day) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out, nil
}

func (m *MemoryRepository) findSlotLocked(doctorID uuid.UUID, date time.Time, start, end ClockMinutes) *Slot {
	for id, s := range m.slots {
		if s.DoctorID == doctorID && s.Date.Equal(date) && s.Start == start && s.End == end {
			slot := m.slots[id]
			return &slot
		}
	}
	return nil
}

func (m *MemoryRepository) overlapLocked(doctorID uuid.UUID, date time.Time, start, end ClockMinutes, exclude uuid.UUID) bool {
	for _, a := range m.appts {
		if a.DoctorID != doctorID || !a.Date.Equal(date) || a.ID == exclude {
			continue
		}
		if !a.Status.Active() {
			continue
		}
		if a.Start < end && a.End > start {
			return true
		}
	}
	return false
}

func (m *MemoryRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (m *MemoryRepository) ListAppointmentsByDoctor(_ context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	day := DateOf(date)
	var out []Appointment
	for _, a := range m.appts {
		if a.DoctorID == doctorID && a.Date.Equal(day) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out, nil
}

func (m *MemoryRepository) ListAppointmentsByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appts {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].Start < out[j].Start
	})
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryRepository) ReserveAppointment(_ context.Context, req ReserveRequest) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	appt := *req.Appointment

	slot := m.findSlotLocked(appt.DoctorID, appt.Date, appt.Start, appt.End)
	if slot == nil && req.RequireSlot {
		return nil, ErrSlotNotFound
	}
	if slot != nil && !slot.Available {
		return nil, ErrSlotTaken
	}
	if m.overlapLocked(appt.DoctorID, appt.Date, appt.Start, appt.End, uuid.Nil) {
		return nil, ErrOverlap
	}

	appt.CreatedAt = time.Now()
	appt.UpdatedAt = appt.CreatedAt
	m.appts[appt.ID] = appt
	m.occupySlotLocked(slot, appt)

	stored := m.appts[appt.ID]
	return &stored, nil
}

func (m *MemoryRepository) occupySlotLocked(slot *Slot, appt Appointment) {
	if slot == nil {
		id := appt.ID
		slotID := uuid.New()
		m.slots[slotID] = Slot{
			ID:            slotID,
			DoctorID:      appt.DoctorID,
			Date:          appt.Date,
			Start:         appt.Start,
			End:           appt.End,
			Available:     false,
			AppointmentID: &id,
			CreatedAt:     time.Now(),
			UpdatedAt:     time.Now(),
		}
		return
	}
	s := m.slots[slot.ID]
	id := appt.ID
	s.Available = false
	s.AppointmentID = &id
	s.UpdatedAt = time.Now()
	m.slots[slot.ID] = s
}

func (m *MemoryRepository) MoveAppointment(_ context.Context, req MoveRequest) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	appt, ok := m.appts[req.AppointmentID]
	if !ok || !appt.Status.Active() {
		return nil, ErrAppointmentNotFound
	}

	if m.overlapLocked(appt.DoctorID, req.NewDate, req.NewStart, req.NewEnd, appt.ID) {
		return nil, ErrOverlap
	}

	target := m.findSlotLocked(appt.DoctorID, req.NewDate, req.NewStart, req.NewEnd)
	if target == nil && req.RequireSlot {
		return nil, ErrSlotNotFound
	}
	if target != nil && !target.Available {
		if target.AppointmentID == nil || *target.AppointmentID != appt.ID {
			return nil, ErrSlotTaken
		}
	}

	m.freeSlotsLocked(appt.ID)

	appt.Date = req.NewDate
	appt.Start = req.NewStart
	appt.End = req.NewEnd
	appt.UpdatedAt = time.Now()
	m.appts[appt.ID] = appt

	// Re-read: the old slot may have been the target.
	target = m.findSlotLocked(appt.DoctorID, req.NewDate, req.NewStart, req.NewEnd)
	m.occupySlotLocked(target, appt)

	m.nextLogID++
	audit := req.Audit
	audit.ID = m.nextLogID
	audit.CreatedAt = time.Now()
	m.reschedules = append(m.reschedules, audit)

	return &appt, nil
}

func (m *MemoryRepository) freeSlotsLocked(apptID uuid.UUID) {
	for id, s := range m.slots {
		if s.AppointmentID != nil && *s.AppointmentID == apptID {
			s.Available = true
			s.AppointmentID = nil
			s.UpdatedAt = time.Now()
			m.slots[id] = s
		}
	}
}

func (m *MemoryRepository) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	m.appts[id] = a
	return &a, nil
}

func (m *MemoryRepository) ReleaseAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok || !a.Status.Active() {
		return nil, ErrAppointmentNotFound
	}
	a.Status = StatusCancelled
	a.UpdatedAt = time.Now()
	m.appts[id] = a
	m.freeSlotsLocked(id)
	return &a, nil
}

func (m *MemoryRepository) MarkAppointmentPaid(_ context.Context, id uuid.UUID, txnRef string) (*Appointment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, false, ErrAppointmentNotFound
	}
	if a.IsPaid {
		return &a, false, nil
	}
	ref := txnRef
	a.IsPaid = true
	a.TxnRef = &ref
	if a.Status == StatusPending {
		a.Status = StatusConfirmed
	}
	a.UpdatedAt = time.Now()
	m.appts[id] = a
	return &a, true, nil
}

func (m *MemoryRepository) CreateReminder(_ context.Context, rem *Reminder) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reminders {
		if r.AppointmentID == rem.AppointmentID && r.Channel == rem.Channel {
			return false, nil
		}
	}
	rem.CreatedAt = time.Now()
	m.reminders[rem.ID] = *rem
	return true, nil
}

func (m *MemoryRepository) DueReminders(_ context.Context, now time.Time) ([]Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Reminder
	for _, r := range m.reminders {
		if !r.Sent && !r.FireAt.After(now) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FireAt.Before(out[j].FireAt) })
	return out, nil
}

func (m *MemoryRepository) MarkReminderSent(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reminders[id]
	if !ok {
		return false, ErrReminderNotFound
	}
	if r.Sent {
		return false, nil
	}
	r.Sent = true
	sentAt := at
	r.SentAt = &sentAt
	m.reminders[id] = r
	return true, nil
}

func (m *MemoryRepository) ListReschedules(_ context.Context, appointmentID uuid.UUID) ([]RescheduleLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []RescheduleLog
	for _, rl := range m.reschedules {
		if rl.AppointmentID == appointmentID {
			out = append(out, rl)
		}
	}
	return out, nil
}

func (m *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextLogID++
	ev.ID = m.nextLogID
	m.events = append(m.events, ev)
	return nil
}

// Reminders returns a snapshot of all reminders, for tests.
func (m *MemoryRepository) Reminders() []Reminder {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Reminder, 0, len(m.reminders))
	for _, r := range m.reminders {
		out = append(out, r)
	}
	return out
}

// Slots returns a snapshot of all slots, for tests.
func (m *MemoryRepository) Slots() []Slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Slot, 0, len(m.slots))
	for _, s := range m.slots {
		out = append(out, s)
	}
	return out
}
