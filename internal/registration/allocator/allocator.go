// Package allocator issues registration codes of the form PREFIX-YEAR-NNNN.
//
// Uniqueness never depends on reading the current maximum: every code comes
// from an atomic increment-and-return on a per-tag counter, and the store's
// unique constraint on the code is the final arbiter. Counters only move
// forward, so a deleted registration never frees its code.
package allocator

import (
	"context"
	"fmt"
	"strconv"

	id "checkin/pkg/domain"
)

// SequenceSource hands out strictly increasing positive sequence numbers per tag.
type SequenceSource interface {
	Next(ctx context.Context, tag string) (int64, error)
}

// Seeder is implemented by sources that keep their counter outside the
// registration store and must be raised to the store's high-water mark.
type Seeder interface {
	Seed(ctx context.Context, tag string, floor int64) error
}

// HighWaterMarker reports the highest sequence already used for a tag.
type HighWaterMarker interface {
	HighWaterMark(ctx context.Context, tag string) (int64, error)
}

// SequenceRecorder persists the highest sequence handed out by an external
// source, so HighWaterMark still covers codes whose records were deleted.
type SequenceRecorder interface {
	RaiseSequence(ctx context.Context, tag string, floor int64) error
}

// Allocator formats codes for one event prefix.
type Allocator struct {
	prefix   string
	source   SequenceSource
	marks    HighWaterMarker
	recorder SequenceRecorder
}

// New builds an Allocator. marks may be nil when source is the store itself.
// When source is external and marks also implements SequenceRecorder, every
// issued sequence is recorded there before the code is returned.
func New(prefix string, source SequenceSource, marks HighWaterMarker) *Allocator {
	a := &Allocator{prefix: prefix, source: source, marks: marks}
	if _, external := source.(Seeder); external {
		if rec, ok := marks.(SequenceRecorder); ok {
			a.recorder = rec
		}
	}
	return a
}

// Tag is the counter scope for year.
func (a *Allocator) Tag(year int) string {
	return a.prefix + "-" + strconv.Itoa(year)
}

// Next returns a fresh code for year.
func (a *Allocator) Next(ctx context.Context, year int) (id.RegistrationCode, error) {
	seq, err := a.source.Next(ctx, a.Tag(year))
	if err != nil {
		return "", fmt.Errorf("next sequence: %w", err)
	}
	if seq <= 0 {
		return "", fmt.Errorf("sequence source returned non-positive value %d", seq)
	}
	if a.recorder != nil {
		if err := a.recorder.RaiseSequence(ctx, a.Tag(year), seq); err != nil {
			return "", fmt.Errorf("record sequence: %w", err)
		}
	}
	return id.FormatRegistrationCode(a.prefix, strconv.Itoa(year), seq), nil
}

// Recover raises an external counter to the store's high-water mark after a
// code collision. It is a no-op for store-backed sources.
func (a *Allocator) Recover(ctx context.Context, year int) error {
	seeder, ok := a.source.(Seeder)
	if !ok || a.marks == nil {
		return nil
	}
	tag := a.Tag(year)
	mark, err := a.marks.HighWaterMark(ctx, tag)
	if err != nil {
		return fmt.Errorf("read high-water mark: %w", err)
	}
	return seeder.Seed(ctx, tag, mark)
}

// SequenceFunc adapts a store's counter method to SequenceSource.
type SequenceFunc func(ctx context.Context, tag string) (int64, error)

func (f SequenceFunc) Next(ctx context.Context, tag string) (int64, error) {
	return f(ctx, tag)
}
