package queue

import (
	"fmt"
	"strings"
)

// ValidationMessage is the broker payload for an asynchronous batch run.
type ValidationMessage struct {
	BatchID       string `json:"batchId"`
	CorrelationID string `json:"correlationId,omitempty"`
}

func (m ValidationMessage) Validate() error {
	if strings.TrimSpace(m.BatchID) == "" {
		return fmt.Errorf("batchId is required")
	}
	return nil
}
