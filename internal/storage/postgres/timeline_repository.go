package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/sales/internal/domain"
)

var errTimelineSaleIDRequired = errors.New("timeline event without sale id")

// saleTimelineRepository пишет журнал продаж в timeline_events.
// Порядок внутри одного момента времени задаёт BIGSERIAL id.
type saleTimelineRepository struct {
	db    *sql.DB
	clock domain.Clock
}

func NewTimelineRepository(store *Store) domain.TimelineRepository {
	return &saleTimelineRepository{db: store.DB(), clock: domain.SystemClock{}}
}

func (r *saleTimelineRepository) Append(ctx context.Context, event domain.TimelineEvent) error {
	if event.SaleID == "" {
		return errTimelineSaleIDRequired
	}
	if event.Occurred.IsZero() {
		event.Occurred = r.clock.Now()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO timeline_events (sale_id, type, detail, occurred) VALUES ($1, $2, $3, $4)`,
		event.SaleID, string(event.Type), event.Detail, event.Occurred)
	if err != nil {
		return fmt.Errorf("append %s to timeline of sale %s: %w", event.Type, event.SaleID, err)
	}
	return nil
}

// List отдаёт журнал продажи от старых событий к новым; для неизвестной продажи пустой срез.
func (r *saleTimelineRepository) List(ctx context.Context, saleID string) ([]domain.TimelineEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT type, detail, occurred
		FROM timeline_events
		WHERE sale_id = $1
		ORDER BY occurred, id
	`, saleID)
	if err != nil {
		return nil, fmt.Errorf("read timeline of sale %s: %w", saleID, err)
	}
	defer rows.Close()

	history := []domain.TimelineEvent{}
	for rows.Next() {
		event := domain.TimelineEvent{SaleID: saleID}
		var eventType string
		if err := rows.Scan(&eventType, &event.Detail, &event.Occurred); err != nil {
			return nil, fmt.Errorf("scan timeline of sale %s: %w", saleID, err)
		}
		event.Type = domain.EventType(eventType)
		event.Occurred = event.Occurred.UTC()
		history = append(history, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read timeline of sale %s: %w", saleID, err)
	}
	return history, nil
}

var _ domain.TimelineRepository = (*saleTimelineRepository)(nil)
