package amqp

import (
	"encoding/json"
	"time"

	"finrep/internal/core"
)

// Routing keys for the pipeline's direct exchange.
const (
	RoutingKeyQuarantineAlert = "quarantine_alerts"
	RoutingKeyIngestCompleted = "ingest_completed"
)

// QuarantineAlertMessage notifies downstream consumers that an ingestion run
// held records back. It carries counts per rule, not the records themselves;
// consumers fetch details from the quarantine table.
type QuarantineAlertMessage struct {
	Source      string            `json:"source"`
	Quarantined int               `json:"quarantined"`
	Rules       map[core.Rule]int `json:"rules"`
	Timestamp   time.Time         `json:"timestamp"`
}

func NewQuarantineAlertMessage(source string, recs []core.QuarantineRecord) *QuarantineAlertMessage {
	rules := make(map[core.Rule]int)
	for _, q := range recs {
		for _, d := range q.Diagnostics {
			rules[d.Rule]++
		}
	}
	return &QuarantineAlertMessage{
		Source:      source,
		Quarantined: len(recs),
		Rules:       rules,
		Timestamp:   time.Now().UTC(),
	}
}

func (m *QuarantineAlertMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func QuarantineAlertMessageFromJSON(data []byte) (*QuarantineAlertMessage, error) {
	var msg QuarantineAlertMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// IngestCompletedMessage summarizes a finished ingestion run for one source.
type IngestCompletedMessage struct {
	Source      string    `json:"source"`
	Accepted    int       `json:"accepted"`
	Duplicates  int       `json:"duplicates"`
	Quarantined int       `json:"quarantined"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewIngestCompletedMessage(source string, accepted, duplicates, quarantined int) *IngestCompletedMessage {
	return &IngestCompletedMessage{
		Source:      source,
		Accepted:    accepted,
		Duplicates:  duplicates,
		Quarantined: quarantined,
		Timestamp:   time.Now().UTC(),
	}
}

func (m *IngestCompletedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func IngestCompletedMessageFromJSON(data []byte) (*IngestCompletedMessage, error) {
	var msg IngestCompletedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
