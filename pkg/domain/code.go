package domain

import (
	"fmt"
	"strconv"
	"strings"

	dErrors "checkin/pkg/domain-errors"
)

// SequenceWidth is the minimum number of digits of the sequence segment.
// Sequences beyond 9999 widen the segment instead of truncating it.
const SequenceWidth = 4

const maxCodeLength = 64

// RegistrationCode is the human-readable code handed to attendees,
// formatted PREFIX-YEAR-NNNN.
type RegistrationCode string

func (c RegistrationCode) String() string { return string(c) }

// CodeParts is a parsed registration code.
type CodeParts struct {
	Prefix   string
	Year     string
	Sequence int64
}

// Tag is the allocation scope of the code: every (prefix, year) pair has its
// own sequence.
func (p CodeParts) Tag() string {
	return p.Prefix + "-" + p.Year
}

// FormatRegistrationCode renders a code. seq must be positive.
func FormatRegistrationCode(prefix, year string, seq int64) RegistrationCode {
	return RegistrationCode(fmt.Sprintf("%s-%s-%0*d", prefix, year, SequenceWidth, seq))
}

// NormalizeCode trims and upper-cases manually entered codes.
func NormalizeCode(s string) RegistrationCode {
	return RegistrationCode(strings.ToUpper(strings.TrimSpace(s)))
}

// ParseRegistrationCode validates and splits a code. Manual entry is tolerated:
// surrounding whitespace and lower case are normalized first.
func ParseRegistrationCode(s string) (CodeParts, error) {
	code := string(NormalizeCode(s))
	if code == "" {
		return CodeParts{}, dErrors.New(dErrors.CodeInvalidInput, "registration code is required")
	}
	if len(code) > maxCodeLength {
		return CodeParts{}, dErrors.New(dErrors.CodeInvalidInput, "registration code is too long")
	}
	parts := strings.Split(code, "-")
	if len(parts) != 3 {
		return CodeParts{}, dErrors.New(dErrors.CodeInvalidInput, "registration code must look like PREFIX-YEAR-NNNN")
	}
	prefix, year, seqPart := parts[0], parts[1], parts[2]
	if prefix == "" || !isAlnum(prefix) {
		return CodeParts{}, dErrors.New(dErrors.CodeInvalidInput, "invalid registration code prefix")
	}
	if len(year) != 4 || !isDigits(year) {
		return CodeParts{}, dErrors.New(dErrors.CodeInvalidInput, "invalid registration code year")
	}
	if len(seqPart) < SequenceWidth || !isDigits(seqPart) {
		return CodeParts{}, dErrors.New(dErrors.CodeInvalidInput, "invalid registration code sequence")
	}
	seq, err := strconv.ParseInt(seqPart, 10, 64)
	if err != nil || seq <= 0 {
		return CodeParts{}, dErrors.New(dErrors.CodeInvalidInput, "invalid registration code sequence")
	}
	return CodeParts{Prefix: prefix, Year: year, Sequence: seq}, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func isAlnum(s string) bool {
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
