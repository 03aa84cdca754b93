package domain

import (
	"fmt"
	"strings"
	"time"
)

// Batch groups promo codes submitted together.
type Batch struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

func (b *Batch) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return fmt.Errorf("%w: batch name is required", ErrValidation)
	}
	return nil
}

// Summary counts codes per status.
type Summary struct {
	Total   int `json:"total"`
	Valid   int `json:"valid"`
	Invalid int `json:"invalid"`
	Pending int `json:"pending"`
}

func (s *Summary) Add(status CodeStatus) {
	s.Total++
	switch status {
	case CodeStatusValid:
		s.Valid++
	case CodeStatusInvalid:
		s.Invalid++
	default:
		s.Pending++
	}
}

// SummaryFromCounts builds a Summary from per-status counts.
func SummaryFromCounts(counts map[CodeStatus]int) Summary {
	var s Summary
	for status, n := range counts {
		s.Total += n
		switch status {
		case CodeStatusValid:
			s.Valid += n
		case CodeStatusInvalid:
			s.Invalid += n
		default:
			s.Pending += n
		}
	}
	return s
}
