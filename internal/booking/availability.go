package booking

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
)

// AddRule registers a recurring weekly working window for a doctor.
// The repository checks the window against the doctor's other active
// rules on the same weekday and inserts atomically, so effective
// availability stays a set of disjoint ranges even under concurrent
// adds.
func (s *Service) AddRule(ctx context.Context, doctorID uuid.UUID, weekday time.Weekday, start, end ClockMinutes) (*AvailabilityRule, error) {
	if !start.Valid() || !end.Valid() || start >= end {
		return nil, ErrInvalidInterval
	}
	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		return nil, err
	}

	rule := &AvailabilityRule{
		ID:       uuid.New(),
		DoctorID: doctorID,
		Weekday:  weekday,
		Start:    start,
		End:      end,
		Active:   true,
	}
	if err := s.repo.CreateRule(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// RemoveRule deactivates a rule. Slots already generated from it are not
// touched; only future generation stops covering the window.
func (s *Service) RemoveRule(ctx context.Context, doctorID, ruleID uuid.UUID) error {
	return s.repo.DeactivateRule(ctx, doctorID, ruleID)
}

// SetException upserts the single exception for (doctor, date). A second
// call for the same date replaces the first.
func (s *Service) SetException(ctx context.Context, doctorID uuid.UUID, date time.Time, allDay bool, start, end ClockMinutes, reason *string) (*AvailabilityException, error) {
	if !allDay {
		if !start.Valid() || !end.Valid() || start >= end {
			return nil, ErrInvalidInterval
		}
	}
	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		return nil, err
	}

	exc := &AvailabilityException{
		ID:       uuid.New(),
		DoctorID: doctorID,
		Date:     DateOf(date),
		AllDay:   allDay,
		Start:    start,
		End:      end,
		Reason:   reason,
	}
	if err := s.repo.UpsertException(ctx, exc); err != nil {
		return nil, err
	}
	return exc, nil
}

// EffectiveAvailability resolves the doctor's working windows on a date:
// the weekday's active rules minus the exception, as disjoint sorted
// ranges.
func (s *Service) EffectiveAvailability(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]TimeRange, error) {
	day := DateOf(date)

	rules, err := s.repo.ListRules(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	var ranges []TimeRange
	for _, r := range rules {
		if r.Weekday == day.Weekday() && r.Active {
			ranges = append(ranges, TimeRange{Start: r.Start, End: r.End})
		}
	}
	sortRanges(ranges)

	exc, err := s.repo.GetException(ctx, doctorID, day)
	if err != nil {
		if errors.Is(err, ErrExceptionNotFound) {
			return ranges, nil
		}
		return nil, err
	}

	if exc.AllDay {
		return nil, nil
	}
	return subtractRange(ranges, TimeRange{Start: exc.Start, End: exc.End}), nil
}

func sortRanges(ranges []TimeRange) {
	sort.Slice(ranges, func(i, j int) bool {
		return ranges[i].Start < ranges[j].Start
	})
}

// subtractRange removes cut from every range, splitting ranges that
// straddle it. Input must be sorted; output stays sorted and disjoint.
func subtractRange(ranges []TimeRange, cut TimeRange) []TimeRange {
	var out []TimeRange
	for _, r := range ranges {
		if !r.Overlaps(cut) {
			out = append(out, r)
			continue
		}
		if r.Start < cut.Start {
			out = append(out, TimeRange{Start: r.Start, End: cut.Start})
		}
		if cut.End < r.End {
			out = append(out, TimeRange{Start: cut.End, End: r.End})
		}
	}
	return out
}
