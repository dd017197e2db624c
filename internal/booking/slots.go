package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// GenerateSlots materializes bookable slots for a doctor on a date from
// the effective availability. A zero slotDuration produces one slot per
// availability window; otherwise each window is subdivided into
// fixed-duration slots, dropping any trailing remainder. Regeneration is
// idempotent: intervals already present in the store are reused, never
// duplicated.
func (s *Service) GenerateSlots(ctx context.Context, doctorID uuid.UUID, date time.Time, slotDuration time.Duration) ([]Slot, error) {
	day := DateOf(date)

	ranges, err := s.EffectiveAvailability(ctx, doctorID, day)
	if err != nil {
		return nil, err
	}

	var candidates []Slot
	for _, r := range ranges {
		for _, iv := range partition(r, slotDuration) {
			candidates = append(candidates, Slot{
				ID:        uuid.New(),
				DoctorID:  doctorID,
				Date:      day,
				Start:     iv.Start,
				End:       iv.End,
				Available: true,
			})
		}
	}

	if len(candidates) > 0 {
		if err := s.repo.CreateSlots(ctx, candidates); err != nil {
			return nil, err
		}
	}

	return s.repo.ListSlots(ctx, doctorID, day)
}

// ListOpenSlots returns the available slots still bookable at now.
// Past slots are filtered out of the listing but stay in the store.
func (s *Service) ListOpenSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Slot, error) {
	day := DateOf(date)

	slots, err := s.repo.ListSlots(ctx, doctorID, day)
	if err != nil {
		return nil, err
	}

	now := s.now()
	open := make([]Slot, 0, len(slots))
	for _, sl := range slots {
		if !sl.Available {
			continue
		}
		if sl.Start.At(sl.Date).Before(now) {
			continue
		}
		open = append(open, sl)
	}
	return open, nil
}

func partition(r TimeRange, d time.Duration) []TimeRange {
	if d <= 0 {
		return []TimeRange{r}
	}

	step := ClockMinutes(d / time.Minute)
	if step <= 0 {
		return []TimeRange{r}
	}

	var out []TimeRange
	for start := r.Start; start+step <= r.End; start += step {
		out = append(out, TimeRange{Start: start, End: start + step})
	}
	return out
}
