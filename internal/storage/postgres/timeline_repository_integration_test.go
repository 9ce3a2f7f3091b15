package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/sales/internal/domain"
)

func TestTimelineRepository_PostgresAppendAndList(t *testing.T) {
	store := openSalesStore(t)
	timelineRepo := NewTimelineRepository(store)
	ctx := context.Background()

	createdAt := time.Now().UTC().Add(-time.Minute).Round(time.Microsecond)

	// Время без значения проставляется репозиторием.
	if err := timelineRepo.Append(ctx, domain.TimelineEvent{
		SaleID: "timeline-sale",
		Type:   domain.EventSaleCreated,
		Detail: "created",
	}); err != nil {
		t.Fatalf("append timeline event with zero occurred: %v", err)
	}

	if err := timelineRepo.Append(ctx, domain.TimelineEvent{
		SaleID:   "timeline-sale",
		Type:     domain.EventSaleModified,
		Detail:   "modified",
		Occurred: createdAt,
	}); err != nil {
		t.Fatalf("append timeline event with explicit occurred: %v", err)
	}

	events, err := timelineRepo.List(ctx, "timeline-sale")
	if err != nil {
		t.Fatalf("list timeline events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type != domain.EventSaleModified || events[1].Type != domain.EventSaleCreated {
		t.Fatalf("unexpected order: %+v", events)
	}
	if events[1].Occurred.IsZero() {
		t.Fatal("expected occurred to be filled automatically")
	}

	empty, err := timelineRepo.List(ctx, "unknown-sale")
	if err != nil {
		t.Fatalf("list empty timeline: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil timeline, got %#v", empty)
	}

	if err := timelineRepo.Append(ctx, domain.TimelineEvent{Type: domain.EventSaleCreated}); err == nil {
		t.Fatal("event without sale id must be rejected")
	}
}
