package models

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

var ErrInvalidCondition = errors.New("invalid delivery condition")

type ConditionKind string

const (
	ConditionFixedDate        ConditionKind = "fixed_date"
	ConditionRandomWindow     ConditionKind = "random_window"
	ConditionSenderInactivity ConditionKind = "sender_inactivity"
)

const (
	DefaultWindowStartOffset = 24 * time.Hour
	DefaultWindowEndOffset   = 3 * 365 * 24 * time.Hour
	MaxInactivityDays        = 3650
	maxFixedDateAhead        = 10 * 365 * 24 * time.Hour
)

// DeliveryCondition decides when a letter becomes readable. Exactly one of
// FixedDate, RandomWindow or SenderInactivity.
type DeliveryCondition interface {
	Kind() ConditionKind
	isDeliveryCondition()
}

type FixedDate struct {
	At time.Time
}

// RandomWindow delivers at a uniformly random instant between Start and End.
// Nil bounds default to tomorrow and three years from now. The part of the
// window already in the past is skipped.
type RandomWindow struct {
	Start *time.Time
	End   *time.Time
}

// SenderInactivity delivers once the sender has been silent for Days days.
type SenderInactivity struct {
	Days int
}

func (FixedDate) Kind() ConditionKind        { return ConditionFixedDate }
func (RandomWindow) Kind() ConditionKind     { return ConditionRandomWindow }
func (SenderInactivity) Kind() ConditionKind { return ConditionSenderInactivity }

func (FixedDate) isDeliveryCondition()        {}
func (RandomWindow) isDeliveryCondition()     {}
func (SenderInactivity) isDeliveryCondition() {}

// ResolveCondition validates cond and turns a RandomWindow into the FixedDate
// it will be delivered at. The sample is taken once; callers store the result.
func ResolveCondition(cond DeliveryCondition, now time.Time, rng *rand.Rand) (DeliveryCondition, error) {
	switch c := cond.(type) {
	case FixedDate:
		if c.At.IsZero() {
			return nil, fmt.Errorf("%w: fixed date missing", ErrInvalidCondition)
		}
		if c.At.After(now.Add(maxFixedDateAhead)) {
			return nil, fmt.Errorf("%w: fixed date too far ahead", ErrInvalidCondition)
		}
		return c, nil

	case RandomWindow:
		start := now.Add(DefaultWindowStartOffset)
		if c.Start != nil {
			start = *c.Start
		}
		end := now.Add(DefaultWindowEndOffset)
		if c.End != nil {
			end = *c.End
		}
		if !start.Before(end) {
			return nil, fmt.Errorf("%w: window start must be before end", ErrInvalidCondition)
		}
		if end.After(now.Add(maxFixedDateAhead)) {
			return nil, fmt.Errorf("%w: window end too far ahead", ErrInvalidCondition)
		}
		// Only the part of the window from now on can be sampled, which also
		// keeps the span well inside a Duration.
		if start.Before(now) {
			start = now
		}
		if !end.After(start) {
			return FixedDate{At: start}, nil
		}
		span := end.Sub(start)
		var offset time.Duration
		if rng != nil {
			offset = time.Duration(rng.Int64N(int64(span) + 1))
		} else {
			offset = time.Duration(rand.Int64N(int64(span) + 1))
		}
		return FixedDate{At: start.Add(offset)}, nil

	case SenderInactivity:
		if c.Days < 1 || c.Days > MaxInactivityDays {
			return nil, fmt.Errorf("%w: inactivity days must be between 1 and %d", ErrInvalidCondition, MaxInactivityDays)
		}
		return c, nil

	case nil:
		return nil, fmt.Errorf("%w: missing", ErrInvalidCondition)
	}

	return nil, fmt.Errorf("%w: unknown kind %T", ErrInvalidCondition, cond)
}

// DeliverAt returns the instant a resolved condition fires, if it has one.
// SenderInactivity has no fixed instant.
func DeliverAt(cond DeliveryCondition) (time.Time, bool) {
	if c, ok := cond.(FixedDate); ok {
		return c.At, true
	}
	return time.Time{}, false
}

// InactivityDeadline is the instant a SenderInactivity letter becomes due,
// measured from the later of creation and the sender's last heartbeat.
func InactivityDeadline(c SenderInactivity, createdAt, lastActiveAt time.Time) time.Time {
	from := createdAt
	if lastActiveAt.After(from) {
		from = lastActiveAt
	}
	return from.Add(time.Duration(c.Days) * 24 * time.Hour)
}

// ConditionSpec is the flat form of a DeliveryCondition used by JSON
// transports and storage.
type ConditionSpec struct {
	Kind  ConditionKind `json:"kind"`
	At    *time.Time    `json:"at,omitempty"`
	Start *time.Time    `json:"start,omitempty"`
	End   *time.Time    `json:"end,omitempty"`
	Days  int           `json:"days,omitempty"`
}

func SpecFromCondition(cond DeliveryCondition) ConditionSpec {
	switch c := cond.(type) {
	case FixedDate:
		at := c.At
		return ConditionSpec{Kind: ConditionFixedDate, At: &at}
	case RandomWindow:
		return ConditionSpec{Kind: ConditionRandomWindow, Start: c.Start, End: c.End}
	case SenderInactivity:
		return ConditionSpec{Kind: ConditionSenderInactivity, Days: c.Days}
	}
	return ConditionSpec{}
}

func (s ConditionSpec) Condition() (DeliveryCondition, error) {
	switch s.Kind {
	case ConditionFixedDate:
		if s.At == nil {
			return nil, fmt.Errorf("%w: fixed date missing", ErrInvalidCondition)
		}
		return FixedDate{At: *s.At}, nil
	case ConditionRandomWindow:
		return RandomWindow{Start: s.Start, End: s.End}, nil
	case ConditionSenderInactivity:
		return SenderInactivity{Days: s.Days}, nil
	}
	return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidCondition, s.Kind)
}
