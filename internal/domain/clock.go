package domain

import "time"

// Clock отдаёт текущее время; в тестах подменяется фиксированным.
type Clock interface {
	Now() time.Time
}

// SystemClock возвращает время в UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock всегда возвращает одно и то же значение.
type FixedClock struct {
	At time.Time
}

func (c FixedClock) Now() time.Time { return c.At }
