package domain

import (
	"fmt"
	"strings"
	"time"
)

// CodeStatus is the tri-state verdict of a promo code.
type CodeStatus string

const (
	CodeStatusPending CodeStatus = "pending"
	CodeStatusValid   CodeStatus = "valid"
	CodeStatusInvalid CodeStatus = "invalid"
)

func (s CodeStatus) String() string { return string(s) }

func (s CodeStatus) IsValid() bool {
	switch s {
	case CodeStatusPending, CodeStatusValid, CodeStatusInvalid:
		return true
	}
	return false
}

// IsFinal reports whether the automated flow is done with a code in this status.
func (s CodeStatus) IsFinal() bool {
	return s == CodeStatusValid || s == CodeStatusInvalid
}

func ParseCodeStatusFromString(s string) (CodeStatus, error) {
	st := CodeStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid code status %q", ErrValidation, s)
	}
	return st, nil
}

// MaxCodeLength bounds a single promo code accepted for creation.
const MaxCodeLength = 255

// CodeRecord is a promo code tracked inside a batch.
type CodeRecord struct {
	ID        string
	BatchID   string
	Code      string
	Status    CodeStatus
	Message   string
	Timestamp time.Time
}

func (c *CodeRecord) Validate() error {
	if c.BatchID == "" {
		return fmt.Errorf("%w: batch id is required", ErrValidation)
	}
	if strings.TrimSpace(c.Code) == "" {
		return fmt.Errorf("%w: code is required", ErrValidation)
	}
	if n := len([]rune(c.Code)); n > MaxCodeLength {
		return fmt.Errorf("%w: code exceeds %d characters (got %d)", ErrValidation, MaxCodeLength, n)
	}
	if !c.Status.IsValid() {
		return fmt.Errorf("%w: invalid code status %q", ErrValidation, c.Status)
	}
	return nil
}

// Verdict is the outcome of validating one code.
type Verdict struct {
	Status  CodeStatus
	Message string
}

// NormalizeCodes trims codes, drops blanks and removes repeats while keeping
// first-seen order.
func NormalizeCodes(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, code := range raw {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return out
}
