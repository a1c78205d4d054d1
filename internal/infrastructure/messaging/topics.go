package messaging

import (
	"fmt"

	"github.com/google/uuid"
)

type Topic string

const (
	BatchRequested Topic = "batch.requested"
)

// BatchRequestedMessage announces a PENDING batch job.
type BatchRequestedMessage struct {
	JobID uuid.UUID `json:"job_id"`
}

func getName(prefix string, topic Topic) string {
	if prefix == "" {
		return string(topic)
	}
	return fmt.Sprintf("%s_%s", prefix, topic)
}
