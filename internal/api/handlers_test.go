package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/careslot/booking-engine/internal/booking"
	"github.com/careslot/booking-engine/internal/config"
	redisclient "github.com/careslot/booking-engine/internal/redis"
)

type testAPI struct {
	handler   http.Handler
	repo      *booking.MemoryRepository
	patientID uuid.UUID
	doctorID  uuid.UUID
}

func newTestAPI(t *testing.T, cfg config.Config) *testAPI {
	t.Helper()

	repo := booking.NewMemoryRepository()
	patientID := uuid.New()
	doctorID := uuid.New()
	email := "ama@example.com"
	repo.AddPatient(booking.Patient{ID: patientID, Name: "Ama", Email: &email})
	repo.AddDoctor(booking.Doctor{ID: doctorID, Name: "Dr. Mensah"})

	svc := booking.NewService(repo, redisclient.NopLocker{}, cfg)
	handler := NewRouter(RouterConfig{Service: svc, Env: "test", Version: "test"})

	return &testAPI{handler: handler, repo: repo, patientID: patientID, doctorID: doctorID}
}

// bookingDate is far enough out that appointments are never in the past
// while the suite runs.
func bookingDate() string {
	return time.Now().UTC().AddDate(0, 0, 14).Format("2006-01-02")
}

func (a *testAPI) do(t *testing.T, method, path string, body any, actor *booking.Actor) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != nil {
		req.Header.Set("X-Actor-ID", actor.ID.String())
		req.Header.Set("X-Actor-Role", string(actor.Role))
	}

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestBookAppointmentEndpoint(t *testing.T) {
	a := newTestAPI(t, config.Config{CancelLeadTime: 24 * time.Hour, ReminderLeadTime: 24 * time.Hour})
	actor := &booking.Actor{ID: a.patientID, Role: booking.RolePatient}
	date := bookingDate()

	body := BookAppointmentRequest{
		PatientID: a.patientID.String(),
		DoctorID:  a.doctorID.String(),
		Date:      date,
		Start:     "09:00",
		End:       "09:30",
		Type:      "consultation",
	}

	rec := a.do(t, http.MethodPost, "/appointments", body, actor)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body: %s", rec.Code, rec.Body.String())
	}

	var created AppointmentResponse
	decodeInto(t, rec, &created)
	if created.ID == uuid.Nil || created.Status != "pending" || created.Start != "09:00" {
		t.Fatalf("unexpected response: %+v", created)
	}

	// Overlapping request conflicts.
	overlap := body
	overlap.Start = "09:15"
	overlap.End = "09:45"
	rec = a.do(t, http.MethodPost, "/appointments", overlap, actor)
	if rec.Code != http.StatusConflict {
		t.Fatalf("overlap status = %d, want 409; body: %s", rec.Code, rec.Body.String())
	}
	var apiErr ErrorResponse
	decodeInto(t, rec, &apiErr)
	if apiErr.Error != "overlaps_existing_appointment" {
		t.Fatalf("error code = %q, want overlaps_existing_appointment", apiErr.Error)
	}

	// The created appointment is readable.
	rec = a.do(t, http.MethodGet, "/appointments/"+created.ID.String(), nil, actor)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", rec.Code)
	}
}

func TestBookAppointmentRequiresActor(t *testing.T) {
	a := newTestAPI(t, config.Config{})

	rec := a.do(t, http.MethodPost, "/appointments", BookAppointmentRequest{}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestBookAppointmentRejectsBadInput(t *testing.T) {
	a := newTestAPI(t, config.Config{})
	actor := &booking.Actor{ID: a.patientID, Role: booking.RolePatient}

	cases := []struct {
		name string
		body BookAppointmentRequest
	}{
		{"bad patient id", BookAppointmentRequest{PatientID: "nope", DoctorID: a.doctorID.String(), Date: bookingDate(), Start: "09:00", End: "09:30"}},
		{"bad date", BookAppointmentRequest{PatientID: a.patientID.String(), DoctorID: a.doctorID.String(), Date: "tomorrow", Start: "09:00", End: "09:30"}},
		{"bad clock", BookAppointmentRequest{PatientID: a.patientID.String(), DoctorID: a.doctorID.String(), Date: bookingDate(), Start: "9am", End: "09:30"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rec := a.do(t, http.MethodPost, "/appointments", c.body, actor)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400; body: %s", rec.Code, rec.Body.String())
			}
		})
	}

	rec := a.do(t, http.MethodPost, "/appointments", BookAppointmentRequest{
		PatientID: uuid.NewString(),
		DoctorID:  a.doctorID.String(),
		Date:      bookingDate(),
		Start:     "09:00",
		End:       "09:30",
	}, actor)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown patient status = %d, want 404", rec.Code)
	}
}

func TestAvailabilityAndSlotEndpoints(t *testing.T) {
	a := newTestAPI(t, config.Config{RequireSlot: true})
	staff := &booking.Actor{ID: uuid.New(), Role: booking.RoleStaff}
	date := bookingDate()

	parsed, err := booking.ParseDate(date)
	if err != nil {
		t.Fatalf("parse date: %v", err)
	}
	weekday := int(parsed.Weekday())

	rec := a.do(t, http.MethodPost, fmt.Sprintf("/doctors/%s/availability-rules", a.doctorID), AddRuleRequest{
		Weekday: weekday,
		Start:   "09:00",
		End:     "12:00",
	}, staff)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add rule status = %d, want 201; body: %s", rec.Code, rec.Body.String())
	}

	// Same window again conflicts.
	rec = a.do(t, http.MethodPost, fmt.Sprintf("/doctors/%s/availability-rules", a.doctorID), AddRuleRequest{
		Weekday: weekday,
		Start:   "10:00",
		End:     "11:00",
	}, staff)
	if rec.Code != http.StatusConflict {
		t.Fatalf("overlapping rule status = %d, want 409", rec.Code)
	}

	rec = a.do(t, http.MethodGet, fmt.Sprintf("/doctors/%s/availability?date=%s", a.doctorID, date), nil, staff)
	if rec.Code != http.StatusOK {
		t.Fatalf("availability status = %d, want 200", rec.Code)
	}
	var avail AvailabilityResponse
	decodeInto(t, rec, &avail)
	if len(avail.Ranges) != 1 || avail.Ranges[0].Start != "09:00" || avail.Ranges[0].End != "12:00" {
		t.Fatalf("unexpected availability: %+v", avail)
	}

	rec = a.do(t, http.MethodPost, fmt.Sprintf("/doctors/%s/slots/generate", a.doctorID), GenerateSlotsRequest{
		Date:            date,
		DurationMinutes: 30,
	}, staff)
	if rec.Code != http.StatusOK {
		t.Fatalf("generate status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}
	var slots []SlotResponse
	decodeInto(t, rec, &slots)
	if len(slots) != 6 {
		t.Fatalf("generated %d slots, want 6", len(slots))
	}

	// Book one slot, then the open listing shrinks by one.
	patient := &booking.Actor{ID: a.patientID, Role: booking.RolePatient}
	rec = a.do(t, http.MethodPost, "/appointments", BookAppointmentRequest{
		PatientID: a.patientID.String(),
		DoctorID:  a.doctorID.String(),
		Date:      date,
		Start:     "09:00",
		End:       "09:30",
	}, patient)
	if rec.Code != http.StatusCreated {
		t.Fatalf("book status = %d, want 201; body: %s", rec.Code, rec.Body.String())
	}

	rec = a.do(t, http.MethodGet, fmt.Sprintf("/doctors/%s/slots?date=%s", a.doctorID, date), nil, patient)
	if rec.Code != http.StatusOK {
		t.Fatalf("list slots status = %d, want 200", rec.Code)
	}
	var open []SlotResponse
	decodeInto(t, rec, &open)
	if len(open) != 5 {
		t.Fatalf("got %d open slots, want 5", len(open))
	}
}

func TestCancelAndTransitionEndpoints(t *testing.T) {
	a := newTestAPI(t, config.Config{CancelLeadTime: 24 * time.Hour, AutoConfirm: true})
	patient := &booking.Actor{ID: a.patientID, Role: booking.RolePatient}
	doctor := &booking.Actor{ID: a.doctorID, Role: booking.RoleDoctor}
	date := bookingDate()

	book := func(start, end string) AppointmentResponse {
		t.Helper()
		rec := a.do(t, http.MethodPost, "/appointments", BookAppointmentRequest{
			PatientID: a.patientID.String(),
			DoctorID:  a.doctorID.String(),
			Date:      date,
			Start:     start,
			End:       end,
		}, patient)
		if rec.Code != http.StatusCreated {
			t.Fatalf("book status = %d, want 201; body: %s", rec.Code, rec.Body.String())
		}
		var appt AppointmentResponse
		decodeInto(t, rec, &appt)
		return appt
	}

	first := book("09:00", "09:30")

	// Two weeks ahead, so the patient is outside the lead time.
	rec := a.do(t, http.MethodPost, "/appointments/"+first.ID.String()+"/cancel", nil, patient)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}

	rec = a.do(t, http.MethodPost, "/appointments/"+first.ID.String()+"/cancel", nil, patient)
	if rec.Code != http.StatusConflict {
		t.Fatalf("double cancel status = %d, want 409", rec.Code)
	}

	second := book("10:00", "10:30")

	rec = a.do(t, http.MethodPost, "/appointments/"+second.ID.String()+"/complete", nil, patient)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("patient complete status = %d, want 403", rec.Code)
	}

	rec = a.do(t, http.MethodPost, "/appointments/"+second.ID.String()+"/complete", nil, doctor)
	if rec.Code != http.StatusOK {
		t.Fatalf("doctor complete status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}
	var done AppointmentResponse
	decodeInto(t, rec, &done)
	if done.Status != "completed" {
		t.Fatalf("status = %q, want completed", done.Status)
	}
}

func TestPaymentConfirmedEndpoint(t *testing.T) {
	a := newTestAPI(t, config.Config{ReminderLeadTime: 24 * time.Hour})
	patient := &booking.Actor{ID: a.patientID, Role: booking.RolePatient}

	rec := a.do(t, http.MethodPost, "/appointments", BookAppointmentRequest{
		PatientID: a.patientID.String(),
		DoctorID:  a.doctorID.String(),
		Date:      bookingDate(),
		Start:     "09:00",
		End:       "09:30",
		Amount:    5000,
	}, patient)
	if rec.Code != http.StatusCreated {
		t.Fatalf("book status = %d, want 201", rec.Code)
	}
	var appt AppointmentResponse
	decodeInto(t, rec, &appt)

	rec = a.do(t, http.MethodPost, "/payments/confirmed", PaymentConfirmedRequest{
		AppointmentID: appt.ID.String(),
		TxnRef:        "txn-100",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("payment status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}
	var paid AppointmentResponse
	decodeInto(t, rec, &paid)
	if paid.Status != "confirmed" || !paid.IsPaid {
		t.Fatalf("got status=%q paid=%v, want confirmed paid", paid.Status, paid.IsPaid)
	}

	rec = a.do(t, http.MethodPost, "/payments/confirmed", PaymentConfirmedRequest{
		AppointmentID: appt.ID.String(),
		TxnRef:        "",
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing txn_ref status = %d, want 400", rec.Code)
	}
}

func TestListPatientAppointmentsEndpoint(t *testing.T) {
	a := newTestAPI(t, config.Config{})
	patient := &booking.Actor{ID: a.patientID, Role: booking.RolePatient}
	date := bookingDate()

	for _, iv := range [][2]string{{"09:00", "09:30"}, {"10:00", "10:30"}, {"11:00", "11:30"}} {
		rec := a.do(t, http.MethodPost, "/appointments", BookAppointmentRequest{
			PatientID: a.patientID.String(),
			DoctorID:  a.doctorID.String(),
			Date:      date,
			Start:     iv[0],
			End:       iv[1],
		}, patient)
		if rec.Code != http.StatusCreated {
			t.Fatalf("book %s: status = %d; body: %s", iv[0], rec.Code, rec.Body.String())
		}
	}

	rec := a.do(t, http.MethodGet, "/patients/"+a.patientID.String()+"/appointments?limit=2", nil, patient)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rec.Code)
	}
	var appts []AppointmentResponse
	decodeInto(t, rec, &appts)
	if len(appts) != 2 {
		t.Fatalf("got %d appointments, want 2", len(appts))
	}
}
