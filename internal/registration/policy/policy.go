// Package policy decides whether a mobile number may register again.
//
// Each policy is a single predicate evaluated before a code is allocated.
// The check is best-effort under concurrency: there is no storage-level
// uniqueness on mobile numbers, so two simultaneous first registrations with
// the same number can both pass.
package policy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"checkin/internal/registration/models"
	"checkin/pkg/platform/sentinel"
)

const (
	NameStrict       = "strict"
	NamePerDay       = "per-day"
	NameUnrestricted = "unrestricted"
)

// Finder returns the earliest registration for mobile created within the
// inclusive window, or sentinel.ErrNotFound. Zero bounds are unbounded.
type Finder interface {
	FindEarliestByMobile(ctx context.Context, mobile string, from, to time.Time) (*models.Registration, error)
}

// Policy is the duplicate-registration predicate. Check returns
// *models.DuplicateRegistrationError when mobile may not register at now.
type Policy interface {
	Name() string
	Check(ctx context.Context, finder Finder, mobile string, now time.Time) error
}

// New resolves a configured policy name.
func New(name string, loc *time.Location) (Policy, error) {
	switch name {
	case NameStrict, "":
		return Strict{}, nil
	case NamePerDay:
		if loc == nil {
			loc = time.Local
		}
		return PerDay{Location: loc}, nil
	case NameUnrestricted:
		return Unrestricted{}, nil
	default:
		return nil, fmt.Errorf("unknown duplicate policy %q", name)
	}
}

// Strict allows one registration per mobile number, ever.
type Strict struct{}

func (Strict) Name() string { return NameStrict }

func (Strict) Check(ctx context.Context, finder Finder, mobile string, _ time.Time) error {
	return checkWindow(ctx, finder, mobile, time.Time{}, time.Time{})
}

// PerDay allows one registration per mobile number per calendar day in Location.
type PerDay struct {
	Location *time.Location
}

func (PerDay) Name() string { return NamePerDay }

func (p PerDay) Check(ctx context.Context, finder Finder, mobile string, now time.Time) error {
	from, to := DayBounds(now, p.Location)
	return checkWindow(ctx, finder, mobile, from, to)
}

// Unrestricted never reports a duplicate.
type Unrestricted struct{}

func (Unrestricted) Name() string { return NameUnrestricted }

func (Unrestricted) Check(context.Context, Finder, string, time.Time) error { return nil }

func checkWindow(ctx context.Context, finder Finder, mobile string, from, to time.Time) error {
	existing, err := finder.FindEarliestByMobile(ctx, mobile, from, to)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("find registration by mobile: %w", err)
	}
	return &models.DuplicateRegistrationError{Existing: existing}
}

// DayBounds returns the first and last instant of t's calendar day in loc.
// Both bounds are inclusive; DST days are 23 or 25 hours long.
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.Local
	}
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	next := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
	return start, next.Add(-time.Nanosecond)
}

// ParseDay parses YYYY-MM-DD in loc and returns its inclusive bounds.
func ParseDay(day string, loc *time.Location) (time.Time, time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	d, err := time.ParseInLocation(time.DateOnly, day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	from, to := DayBounds(d, loc)
	return from, to, nil
}
