package memory

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/sales/internal/domain"
)

var errTimelineSaleIDRequired = errors.New("timeline event without sale id")

// saleTimeline держит журнал каждой продажи отдельным срезом, упорядоченным по Occurred.
type saleTimeline struct {
	mu     sync.RWMutex
	bySale map[string][]domain.TimelineEvent
	clock  domain.Clock
}

func NewTimelineRepository() domain.TimelineRepository {
	return NewTimelineRepositoryWithClock(domain.SystemClock{})
}

// NewTimelineRepositoryWithClock проставляет Occurred событиям без времени по clock.
func NewTimelineRepositoryWithClock(clock domain.Clock) domain.TimelineRepository {
	return &saleTimeline{bySale: make(map[string][]domain.TimelineEvent), clock: clock}
}

// Append вставляет событие после всех событий продажи с тем же или более ранним временем.
func (t *saleTimeline) Append(_ context.Context, event domain.TimelineEvent) error {
	if event.SaleID == "" {
		return errTimelineSaleIDRequired
	}
	if event.Occurred.IsZero() {
		event.Occurred = t.clock.Now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	history := t.bySale[event.SaleID]
	at, _ := slices.BinarySearchFunc(history, event.Occurred, func(e domain.TimelineEvent, occurred time.Time) int {
		if e.Occurred.After(occurred) {
			return 1
		}
		return -1
	})
	t.bySale[event.SaleID] = slices.Insert(history, at, event)
	return nil
}

func (t *saleTimeline) List(_ context.Context, saleID string) ([]domain.TimelineEvent, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	history := t.bySale[saleID]
	if len(history) == 0 {
		return []domain.TimelineEvent{}, nil
	}
	return slices.Clone(history), nil
}

var _ domain.TimelineRepository = (*saleTimeline)(nil)
