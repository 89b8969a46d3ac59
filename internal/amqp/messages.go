package amqp

import (
	"encoding/json"
	"time"
)

// FetchRequestMessage asks a worker to run a fetch for one sender.
type FetchRequestMessage struct {
	Sender      string    `json:"sender"`
	SkipCached  bool      `json:"skip_cached,omitempty"`
	RetryFailed bool      `json:"retry_failed,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewFetchRequestMessage(sender string) *FetchRequestMessage {
	return &FetchRequestMessage{
		Sender:    sender,
		Timestamp: time.Now(),
	}
}

func (m *FetchRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func FetchRequestMessageFromJSON(data []byte) (*FetchRequestMessage, error) {
	var msg FetchRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// FetchCompletedMessage announces that the cache of a sender was rewritten.
type FetchCompletedMessage struct {
	RunID          string    `json:"run_id"`
	Sender         string    `json:"sender"`
	Receipts       int       `json:"receipts"`
	DetailsFetched int       `json:"details_fetched"`
	Failures       int       `json:"failures"`
	Timestamp      time.Time `json:"timestamp"`
}

func NewFetchCompletedMessage(runID, sender string, receipts, detailsFetched, failures int) *FetchCompletedMessage {
	return &FetchCompletedMessage{
		RunID:          runID,
		Sender:         sender,
		Receipts:       receipts,
		DetailsFetched: detailsFetched,
		Failures:       failures,
		Timestamp:      time.Now(),
	}
}

func (m *FetchCompletedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func FetchCompletedMessageFromJSON(data []byte) (*FetchCompletedMessage, error) {
	var msg FetchCompletedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
