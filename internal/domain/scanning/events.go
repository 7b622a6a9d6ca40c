package scanning

import "time"

// DomainEvent raised by the aggregate, published after the aggregate is saved.
type DomainEvent interface {
	EventName() string
}

// ScanFinishedEvent is raised once per aggregate when the last scan step completes.
type ScanFinishedEvent struct {
	ScanID     ScanID    `json:"scanId"`
	OccurredAt time.Time `json:"occurredAt"`
}

func (ScanFinishedEvent) EventName() string { return "scan.finished" }
