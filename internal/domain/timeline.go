package domain

import "time"

// TimelineEvent — запись журнала продажи.
type TimelineEvent struct {
	SaleID   string
	Type     EventType
	Detail   string
	Occurred time.Time
}
