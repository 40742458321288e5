package kafka

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// DLQPayload is the envelope written to a dead letter topic for a message
// that can never be processed. The original bytes are carried base64-encoded
// so a malformed value survives JSON re-encoding intact.
type DLQPayload struct {
	Topic       string    `json:"topic"`
	Partition   int32     `json:"partition"`
	Offset      int64     `json:"offset"`
	Timestamp   time.Time `json:"timestamp"`
	KeyBase64   string    `json:"key_base64,omitempty"`
	ValueBase64 string    `json:"value_base64"`
	Reason      string    `json:"reason"`
	Consumer    string    `json:"consumer"`
	FailedAt    time.Time `json:"failed_at"`
}

// EncodeDLQMessage wraps a rejected message in a DLQPayload. The err may be
// nil when the payload decoded but failed validation.
func EncodeDLQMessage(msg Message, err error, consumer string) ([]byte, error) {
	reason := "unprocessable payload"
	if err != nil {
		reason = err.Error()
	}

	payload := DLQPayload{
		Topic:       msg.Topic,
		Partition:   msg.Partition,
		Offset:      msg.Offset,
		Timestamp:   msg.Timestamp,
		ValueBase64: base64.StdEncoding.EncodeToString(msg.Value),
		Reason:      reason,
		Consumer:    consumer,
		FailedAt:    time.Now().UTC(),
	}
	if len(msg.Key) > 0 {
		payload.KeyBase64 = base64.StdEncoding.EncodeToString(msg.Key)
	}

	b, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		return nil, fmt.Errorf("marshal dlq payload: %w", marshalErr)
	}
	return b, nil
}
