package kafka

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ReplayMessage — сообщение из DLQ, подготовленное к повторной публикации.
type ReplayMessage struct {
	Topic string
	Key   string
	Value []byte
}

// outboxDeadLetter совпадает по формату с записью, которую outbox worker
// кладёт в payload конверта при исчерпании попыток.
type outboxDeadLetter struct {
	OutboxID      string          `json:"outboxId"`
	AggregateType string          `json:"aggregateType"`
	SaleID        string          `json:"saleId"`
	EventType     string          `json:"eventType"`
	Payload       json.RawMessage `json:"payload"`
}

// ExtractReplay восстанавливает исходное сообщение из записи DLQ. Поддерживаются
// два формата: ConsumerDeadLetter (сообщение возвращается как было, в исходный
// topic) и конверт outbox с outboxDeadLetter внутри (собирается новый Envelope
// для defaultTopic). ok=false означает, что запись не похожа ни на один формат.
func ExtractReplay(value []byte, defaultTopic string, now time.Time) (ReplayMessage, bool, error) {
	var consumed ConsumerDeadLetter
	if err := json.Unmarshal(value, &consumed); err == nil && consumed.OriginalValue != "" {
		topic := strings.TrimSpace(consumed.OriginalTopic)
		if topic == "" {
			topic = defaultTopic
		}
		return ReplayMessage{Topic: topic, Key: consumed.OriginalKey, Value: []byte(consumed.OriginalValue)}, true, nil
	}

	var env Envelope
	if err := json.Unmarshal(value, &env); err != nil || len(env.Payload) == 0 {
		return ReplayMessage{}, false, nil
	}

	var dead outboxDeadLetter
	if err := json.Unmarshal(env.Payload, &dead); err != nil {
		return ReplayMessage{}, false, fmt.Errorf("decode outbox dead letter: %w", err)
	}
	if len(dead.Payload) == 0 || string(dead.Payload) == "null" {
		return ReplayMessage{}, false, fmt.Errorf("outbox dead letter does not contain the original event")
	}

	replay := Envelope{
		ID:            firstNonEmpty(dead.OutboxID, env.ID),
		AggregateType: firstNonEmpty(dead.AggregateType, env.AggregateType),
		SaleID:        firstNonEmpty(dead.SaleID, env.SaleID),
		EventType:     firstNonEmpty(dead.EventType, env.EventType),
		Payload:       dead.Payload,
		PublishedAt:   now.UTC(),
	}
	encoded, err := json.Marshal(replay)
	if err != nil {
		return ReplayMessage{}, false, fmt.Errorf("encode replay envelope: %w", err)
	}
	return ReplayMessage{Topic: defaultTopic, Key: replay.Key(), Value: encoded}, true, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
