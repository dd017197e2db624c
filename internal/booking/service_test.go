package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestBookSlotRejectsOverlapAllowsAdjacent(t *testing.T) {
	svc, _, patientID, doctorID := newTestService(t, testConfig())
	ctx := context.Background()
	actor := Actor{ID: patientID, Role: RolePatient}

	book := func(start, end ClockMinutes) (*Appointment, error) {
		return svc.BookSlot(ctx, actor, BookSlotRequest{
			PatientID: patientID,
			DoctorID:  doctorID,
			Date:      testMonday,
			Start:     start,
			End:       end,
		})
	}

	first, err := book(9*60, 9*60+30)
	if err != nil {
		t.Fatalf("book 09:00-09:30: %v", err)
	}
	if first.Status != StatusPending {
		t.Fatalf("new booking status = %s, want pending", first.Status)
	}
	if first.Type != TypeConsultation {
		t.Fatalf("default type = %s, want consultation", first.Type)
	}

	if _, err := book(9*60+15, 9*60+45); !errors.Is(err, ErrOverlap) {
		t.Fatalf("book 09:15-09:45: got %v, want ErrOverlap", err)
	}

	// Adjacent interval shares only the boundary instant.
	if _, err := book(9*60+30, 10*60); err != nil {
		t.Fatalf("book 09:30-10:00: %v", err)
	}
}

func TestBookSlotValidation(t *testing.T) {
	svc, _, patientID, doctorID := newTestService(t, testConfig())
	ctx := context.Background()
	actor := Actor{ID: patientID, Role: RolePatient}

	cases := []struct {
		name string
		req  BookSlotRequest
		want error
	}{
		{
			name: "end before start",
			req:  BookSlotRequest{PatientID: patientID, DoctorID: doctorID, Date: testMonday, Start: 10 * 60, End: 9 * 60},
			want: ErrInvalidInterval,
		},
		{
			name: "empty interval",
			req:  BookSlotRequest{PatientID: patientID, DoctorID: doctorID, Date: testMonday, Start: 9 * 60, End: 9 * 60},
			want: ErrInvalidInterval,
		},
		{
			name: "unknown type",
			req:  BookSlotRequest{PatientID: patientID, DoctorID: doctorID, Date: testMonday, Start: 9 * 60, End: 10 * 60, Type: "surgery"},
			want: ErrInvalidType,
		},
		{
			name: "start in the past",
			req:  BookSlotRequest{PatientID: patientID, DoctorID: doctorID, Date: testNow.AddDate(0, 0, -1), Start: 9 * 60, End: 10 * 60},
			want: ErrInPast,
		},
		{
			name: "unknown patient",
			req:  BookSlotRequest{PatientID: uuid.New(), DoctorID: doctorID, Date: testMonday, Start: 9 * 60, End: 10 * 60},
			want: ErrPatientNotFound,
		},
		{
			name: "unknown doctor",
			req:  BookSlotRequest{PatientID: patientID, DoctorID: uuid.New(), Date: testMonday, Start: 9 * 60, End: 10 * 60},
			want: ErrDoctorNotFound,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := svc.BookSlot(ctx, actor, c.req); !errors.Is(err, c.want) {
				t.Fatalf("got %v, want %v", err, c.want)
			}
		})
	}
}

func TestBookSlotRequiresGeneratedSlot(t *testing.T) {
	cfg := testConfig()
	cfg.RequireSlot = true
	svc, _, patientID, doctorID := newTestService(t, cfg)
	ctx := context.Background()
	actor := Actor{ID: patientID, Role: RolePatient}

	req := BookSlotRequest{
		PatientID: patientID,
		DoctorID:  doctorID,
		Date:      testMonday,
		Start:     9 * 60,
		End:       9*60 + 30,
	}

	if _, err := svc.BookSlot(ctx, actor, req); !errors.Is(err, ErrSlotNotFound) {
		t.Fatalf("book before generation: got %v, want ErrSlotNotFound", err)
	}

	mustAddRule(t, svc, doctorID, time.Monday, 9*60, 12*60)
	if _, err := svc.GenerateSlots(ctx, doctorID, testMonday, 30*time.Minute); err != nil {
		t.Fatalf("generate slots: %v", err)
	}

	if _, err := svc.BookSlot(ctx, actor, req); err != nil {
		t.Fatalf("book generated slot: %v", err)
	}

	// The same slot cannot be taken twice.
	if _, err := svc.BookSlot(ctx, actor, req); !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("rebook taken slot: got %v, want ErrSlotTaken", err)
	}

	// Intervals that do not line up with a generated slot are rejected.
	off := req
	off.Start = 9*60 + 10
	off.End = 9*60 + 40
	if _, err := svc.BookSlot(ctx, actor, off); !errors.Is(err, ErrSlotNotFound) {
		t.Fatalf("book off-grid interval: got %v, want ErrSlotNotFound", err)
	}
}

func TestConcurrentBookingSingleWinner(t *testing.T) {
	svc, _, patientID, doctorID := newTestService(t, testConfig())
	ctx := context.Background()
	actor := Actor{ID: patientID, Role: RolePatient}

	const attempts = 32

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.BookSlot(ctx, actor, BookSlotRequest{
				PatientID: patientID,
				DoctorID:  doctorID,
				Date:      testMonday,
				Start:     9 * 60,
				End:       9*60 + 30,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrOverlap), errors.Is(err, ErrSlotTaken):
				conflicts++
			default:
				t.Errorf("unexpected booking error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("got %d winners, want exactly 1", successes)
	}
	if conflicts != attempts-1 {
		t.Fatalf("got %d conflicts, want %d", conflicts, attempts-1)
	}
}

func TestCancelFreesSlot(t *testing.T) {
	cfg := testConfig()
	cfg.RequireSlot = true
	svc, repo, patientID, doctorID := newTestService(t, cfg)
	ctx := context.Background()
	actor := Actor{ID: patientID, Role: RolePatient}

	mustAddRule(t, svc, doctorID, time.Monday, 9*60, 12*60)
	if _, err := svc.GenerateSlots(ctx, doctorID, testMonday, 30*time.Minute); err != nil {
		t.Fatalf("generate slots: %v", err)
	}

	appt, err := svc.BookSlot(ctx, actor, BookSlotRequest{
		PatientID: patientID,
		DoctorID:  doctorID,
		Date:      testMonday,
		Start:     9 * 60,
		End:       9*60 + 30,
	})
	if err != nil {
		t.Fatalf("book slot: %v", err)
	}

	// testNow is four days before the appointment, well outside the
	// 24 hour lead time.
	cancelled, err := svc.Cancel(ctx, actor, appt.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Fatalf("status = %s, want cancelled", cancelled.Status)
	}

	for _, s := range repo.Slots() {
		if s.Start == 9*60 && !s.Available {
			t.Fatalf("slot 09:00 still occupied after cancellation")
		}
	}

	// The freed interval is bookable again.
	if _, err := svc.BookSlot(ctx, actor, BookSlotRequest{
		PatientID: patientID,
		DoctorID:  doctorID,
		Date:      testMonday,
		Start:     9 * 60,
		End:       9*60 + 30,
	}); err != nil {
		t.Fatalf("rebook freed slot: %v", err)
	}
}

func TestCancelLeadTime(t *testing.T) {
	svc, _, patientID, doctorID := newTestService(t, testConfig())
	ctx := context.Background()
	patient := Actor{ID: patientID, Role: RolePatient}

	book := func(start, end ClockMinutes) *Appointment {
		t.Helper()
		appt, err := svc.BookSlot(ctx, patient, BookSlotRequest{
			PatientID: patientID,
			DoctorID:  doctorID,
			Date:      testMonday,
			Start:     start,
			End:       end,
		})
		if err != nil {
			t.Fatalf("book %s-%s: %v", start, end, err)
		}
		return appt
	}

	first := book(9*60, 9*60+30)
	second := book(10*60, 10*60+30)

	// Two hours before start: inside the 24 hour window.
	svc.now = func() time.Time { return time.Date(2026, 1, 5, 7, 0, 0, 0, time.UTC) }

	if _, err := svc.Cancel(ctx, patient, first.ID); !errors.Is(err, ErrTooCloseToStart) {
		t.Fatalf("patient cancel inside lead time: got %v, want ErrTooCloseToStart", err)
	}

	// Exactly 24 hours before start counts as inside the window; strictly
	// more than the lead time must remain.
	svc.now = func() time.Time { return time.Date(2026, 1, 4, 9, 0, 0, 0, time.UTC) }
	if _, err := svc.Cancel(ctx, patient, first.ID); !errors.Is(err, ErrTooCloseToStart) {
		t.Fatalf("patient cancel at boundary: got %v, want ErrTooCloseToStart", err)
	}

	// A second earlier and the cancellation goes through.
	svc.now = func() time.Time { return time.Date(2026, 1, 4, 8, 59, 59, 0, time.UTC) }
	if _, err := svc.Cancel(ctx, patient, first.ID); err != nil {
		t.Fatalf("patient cancel just outside lead time: %v", err)
	}

	// Staff are exempt from the lead time.
	svc.now = func() time.Time { return time.Date(2026, 1, 5, 9, 30, 0, 0, time.UTC) }
	staff := Actor{ID: uuid.New(), Role: RoleStaff}
	if _, err := svc.Cancel(ctx, staff, second.ID); err != nil {
		t.Fatalf("staff cancel inside lead time: %v", err)
	}
}

func TestMutationRequiresOwnership(t *testing.T) {
	svc, repo, patientID, doctorID := newTestService(t, testConfig())
	ctx := context.Background()
	patient := Actor{ID: patientID, Role: RolePatient}

	otherPatient := Patient{ID: uuid.New(), Name: "Grace"}
	repo.AddPatient(otherPatient)

	// Patients book only for themselves, doctors only onto their own
	// schedule.
	req := BookSlotRequest{
		PatientID: otherPatient.ID,
		DoctorID:  doctorID,
		Date:      testMonday,
		Start:     9 * 60,
		End:       9*60 + 30,
	}
	if _, err := svc.BookSlot(ctx, patient, req); !errors.Is(err, ErrForbidden) {
		t.Fatalf("book for another patient: got %v, want ErrForbidden", err)
	}
	if _, err := svc.BookSlot(ctx, Actor{ID: uuid.New(), Role: RoleDoctor}, req); !errors.Is(err, ErrForbidden) {
		t.Fatalf("doctor book onto other schedule: got %v, want ErrForbidden", err)
	}

	appt, err := svc.BookSlot(ctx, patient, BookSlotRequest{
		PatientID: patientID,
		DoctorID:  doctorID,
		Date:      testMonday,
		Start:     10 * 60,
		End:       10*60 + 30,
	})
	if err != nil {
		t.Fatalf("book slot: %v", err)
	}

	stranger := Actor{ID: otherPatient.ID, Role: RolePatient}
	if _, err := svc.Cancel(ctx, stranger, appt.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("stranger cancel: got %v, want ErrForbidden", err)
	}
	if _, err := svc.Reschedule(ctx, stranger, appt.ID, testMonday, 11*60, 11*60+30, nil); !errors.Is(err, ErrForbidden) {
		t.Fatalf("stranger reschedule: got %v, want ErrForbidden", err)
	}

	otherDoctor := Actor{ID: uuid.New(), Role: RoleDoctor}
	if _, err := svc.Cancel(ctx, otherDoctor, appt.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("unrelated doctor cancel: got %v, want ErrForbidden", err)
	}

	// The appointment's own doctor and staff remain allowed.
	if _, err := svc.Reschedule(ctx, Actor{ID: doctorID, Role: RoleDoctor}, appt.ID, testMonday, 11*60, 11*60+30, nil); err != nil {
		t.Fatalf("own doctor reschedule: %v", err)
	}
	if _, err := svc.Cancel(ctx, Actor{ID: uuid.New(), Role: RoleStaff}, appt.ID); err != nil {
		t.Fatalf("staff cancel: %v", err)
	}
}

func TestCancelTerminalAppointment(t *testing.T) {
	svc, _, patientID, doctorID := newTestService(t, testConfig())
	ctx := context.Background()
	actor := Actor{ID: patientID, Role: RolePatient}

	appt, err := svc.BookSlot(ctx, actor, BookSlotRequest{
		PatientID: patientID,
		DoctorID:  doctorID,
		Date:      testMonday,
		Start:     9 * 60,
		End:       10 * 60,
	})
	if err != nil {
		t.Fatalf("book slot: %v", err)
	}

	if _, err := svc.Cancel(ctx, actor, appt.ID); err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	if _, err := svc.Cancel(ctx, actor, appt.ID); !errors.Is(err, ErrTerminalState) {
		t.Fatalf("second cancel: got %v, want ErrTerminalState", err)
	}
	if _, err := svc.Reschedule(ctx, actor, appt.ID, testMonday, 11*60, 12*60, nil); !errors.Is(err, ErrTerminalState) {
		t.Fatalf("reschedule cancelled: got %v, want ErrTerminalState", err)
	}
}

func TestRescheduleMovesInterval(t *testing.T) {
	cfg := testConfig()
	cfg.RequireSlot = true
	svc, repo, patientID, doctorID := newTestService(t, cfg)
	ctx := context.Background()
	actor := Actor{ID: patientID, Role: RolePatient}

	mustAddRule(t, svc, doctorID, time.Monday, 9*60, 12*60)
	if _, err := svc.GenerateSlots(ctx, doctorID, testMonday, 30*time.Minute); err != nil {
		t.Fatalf("generate slots: %v", err)
	}

	appt, err := svc.BookSlot(ctx, actor, BookSlotRequest{
		PatientID: patientID,
		DoctorID:  doctorID,
		Date:      testMonday,
		Start:     9 * 60,
		End:       9*60 + 30,
	})
	if err != nil {
		t.Fatalf("book slot: %v", err)
	}

	reason := "patient request"
	moved, err := svc.Reschedule(ctx, actor, appt.ID, testMonday, 10*60, 10*60+30, &reason)
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if moved.Start != 10*60 || moved.End != 10*60+30 {
		t.Fatalf("moved to %s-%s, want 10:00-10:30", moved.Start, moved.End)
	}

	for _, s := range repo.Slots() {
		switch s.Start {
		case 9 * 60:
			if !s.Available {
				t.Fatalf("old slot 09:00 still occupied after move")
			}
		case 10 * 60:
			if s.Available {
				t.Fatalf("target slot 10:00 not occupied after move")
			}
		}
	}

	logs, err := svc.ListReschedules(ctx, appt.ID)
	if err != nil {
		t.Fatalf("list reschedules: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("got %d reschedule logs, want 1", len(logs))
	}
	lg := logs[0]
	if lg.OldStart != 9*60 || lg.NewStart != 10*60 || lg.RequestedBy != actor.ID {
		t.Fatalf("unexpected audit row: %+v", lg)
	}
	if lg.Reason == nil || *lg.Reason != reason {
		t.Fatalf("audit reason = %v, want %q", lg.Reason, reason)
	}
}

func TestRescheduleWithinOwnInterval(t *testing.T) {
	cfg := testConfig()
	cfg.RequireSlot = true
	svc, _, patientID, doctorID := newTestService(t, cfg)
	ctx := context.Background()
	actor := Actor{ID: patientID, Role: RolePatient}

	mustAddRule(t, svc, doctorID, time.Monday, 9*60, 12*60)
	if _, err := svc.GenerateSlots(ctx, doctorID, testMonday, 30*time.Minute); err != nil {
		t.Fatalf("generate slots: %v", err)
	}

	appt, err := svc.BookSlot(ctx, actor, BookSlotRequest{
		PatientID: patientID,
		DoctorID:  doctorID,
		Date:      testMonday,
		Start:     9 * 60,
		End:       9*60 + 30,
	})
	if err != nil {
		t.Fatalf("book slot: %v", err)
	}

	// Moving onto the appointment's own slot must not conflict with itself.
	if _, err := svc.Reschedule(ctx, actor, appt.ID, testMonday, 9*60, 9*60+30, nil); err != nil {
		t.Fatalf("reschedule onto own interval: %v", err)
	}
}

func TestRescheduleRejectsOccupiedTarget(t *testing.T) {
	svc, _, patientID, doctorID := newTestService(t, testConfig())
	ctx := context.Background()
	actor := Actor{ID: patientID, Role: RolePatient}

	book := func(start, end ClockMinutes) *Appointment {
		t.Helper()
		appt, err := svc.BookSlot(ctx, actor, BookSlotRequest{
			PatientID: patientID,
			DoctorID:  doctorID,
			Date:      testMonday,
			Start:     start,
			End:       end,
		})
		if err != nil {
			t.Fatalf("book %s-%s: %v", start, end, err)
		}
		return appt
	}

	first := book(9*60, 9*60+30)
	book(10*60, 10*60+30)

	_, err := svc.Reschedule(ctx, actor, first.ID, testMonday, 10*60+15, 10*60+45, nil)
	if !errors.Is(err, ErrOverlap) {
		t.Fatalf("got %v, want ErrOverlap", err)
	}
}

func TestCompleteAndNoShowTransitions(t *testing.T) {
	cfg := testConfig()
	cfg.AutoConfirm = true
	svc, _, patientID, doctorID := newTestService(t, cfg)
	ctx := context.Background()
	patient := Actor{ID: patientID, Role: RolePatient}
	doctor := Actor{ID: doctorID, Role: RoleDoctor}

	appt, err := svc.BookSlot(ctx, patient, BookSlotRequest{
		PatientID: patientID,
		DoctorID:  doctorID,
		Date:      testMonday,
		Start:     9 * 60,
		End:       10 * 60,
	})
	if err != nil {
		t.Fatalf("book slot: %v", err)
	}
	if appt.Status != StatusConfirmed {
		t.Fatalf("auto-confirm booking status = %s, want confirmed", appt.Status)
	}

	// Patients cannot close out appointments, and neither can a doctor
	// the appointment does not belong to.
	if _, err := svc.MarkCompleted(ctx, patient, appt.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("patient complete: got %v, want ErrForbidden", err)
	}
	if _, err := svc.MarkCompleted(ctx, Actor{ID: uuid.New(), Role: RoleDoctor}, appt.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("unrelated doctor complete: got %v, want ErrForbidden", err)
	}

	done, err := svc.MarkCompleted(ctx, doctor, appt.ID)
	if err != nil {
		t.Fatalf("doctor complete: %v", err)
	}
	if done.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed", done.Status)
	}

	if _, err := svc.MarkNoShow(ctx, doctor, appt.ID); !errors.Is(err, ErrTerminalState) {
		t.Fatalf("no-show after completion: got %v, want ErrTerminalState", err)
	}
}

func TestCompleteRequiresConfirmed(t *testing.T) {
	svc, _, patientID, doctorID := newTestService(t, testConfig())
	ctx := context.Background()

	appt, err := svc.BookSlot(ctx, Actor{ID: patientID, Role: RolePatient}, BookSlotRequest{
		PatientID: patientID,
		DoctorID:  doctorID,
		Date:      testMonday,
		Start:     9 * 60,
		End:       10 * 60,
	})
	if err != nil {
		t.Fatalf("book slot: %v", err)
	}

	_, err = svc.MarkCompleted(ctx, Actor{ID: doctorID, Role: RoleDoctor}, appt.ID)
	if !errors.Is(err, ErrNotConfirmed) {
		t.Fatalf("complete pending: got %v, want ErrNotConfirmed", err)
	}
}

func TestListPatientAppointmentsPagination(t *testing.T) {
	svc, _, patientID, doctorID := newTestService(t, testConfig())
	ctx := context.Background()
	actor := Actor{ID: patientID, Role: RolePatient}

	for i := 0; i < 5; i++ {
		if _, err := svc.BookSlot(ctx, actor, BookSlotRequest{
			PatientID: patientID,
			DoctorID:  doctorID,
			Date:      testMonday,
			Start:     ClockMinutes(9*60 + i*60),
			End:       ClockMinutes(9*60 + i*60 + 30),
		}); err != nil {
			t.Fatalf("book %d: %v", i, err)
		}
	}

	page, err := svc.ListPatientAppointments(ctx, patientID, 2, 0)
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("first page size = %d, want 2", len(page))
	}

	rest, err := svc.ListPatientAppointments(ctx, patientID, 10, 2)
	if err != nil {
		t.Fatalf("rest: %v", err)
	}
	if len(rest) != 3 {
		t.Fatalf("rest size = %d, want 3", len(rest))
	}
}

func TestRejectionCode(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{ErrOverlap, "overlaps_existing_appointment"},
		{ErrSlotTaken, "slot_already_taken"},
		{ErrTooCloseToStart, "too_close_to_start"},
		{ErrTerminalState, "already_terminal"},
		{ErrInPast, "in_past"},
		{ErrInvalidInterval, "validation"},
		{errors.New("boom"), "error"},
	}
	for _, c := range cases {
		if got := RejectionCode(c.err); got != c.want {
			t.Errorf("RejectionCode(%v) = %q, want %q", c.err, got, c.want)
		}
	}
}
