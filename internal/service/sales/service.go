// Package sales оркестрирует операции над продажами: валидация, загрузка
// агрегата, изменение, сохранение и публикация доменных событий.
package sales

import (
	"context"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sales/internal/domain"
	"github.com/vladislavdragonenkov/sales/internal/metrics"
)

const (
	opCreate     = "create_sale"
	opGet        = "get_sale"
	opList       = "list_sales"
	opUpdate     = "update_sale"
	opDelete     = "delete_sale"
	opCancel     = "cancel_sale"
	opCancelItem = "cancel_item"
	opTimeline   = "sale_timeline"
)

// Service реализует сценарии работы с продажами поверх портов domain.
type Service struct {
	repo     domain.SaleRepository
	timeline domain.TimelineRepository
	events   domain.EventSink
	clock    domain.Clock
	metrics  *metrics.SalesMetrics
	logger   *log.Entry
}

// Option настраивает Service.
type Option func(*Service)

// WithEventSink задаёт приёмник доменных событий.
func WithEventSink(sink domain.EventSink) Option {
	return func(s *Service) {
		if sink != nil {
			s.events = sink
		}
	}
}

// WithTimeline подключает журнал для чтения истории продажи.
func WithTimeline(repo domain.TimelineRepository) Option {
	return func(s *Service) {
		s.timeline = repo
	}
}

func WithClock(clock domain.Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func WithMetrics(m *metrics.SalesMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService собирает сервис. Без WithEventSink события отбрасываются.
func NewService(repo domain.SaleRepository, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		events: discardSink{},
		clock:  domain.SystemClock{},
		logger: log.NewEntry(log.StandardLogger()),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithField("component", "sales-service")
	return s
}

type discardSink struct{}

func (discardSink) Publish(context.Context, domain.SaleEvent) error { return nil }

// Create валидирует запрос, считает скидки и суммы и сохраняет продажу.
func (s *Service) Create(ctx context.Context, cmd CreateSaleCommand) (created domain.Sale, err error) {
	defer s.observe(opCreate, time.Now(), &err)

	if err = validateCreate(cmd); err != nil {
		s.logger.WithError(err).Warn("create sale rejected by validation")
		return domain.Sale{}, err
	}

	now := s.clock.Now()
	sale := domain.Sale{
		SaleNumber: strings.TrimSpace(cmd.SaleNumber),
		Date:       cmd.Date.UTC(),
		Customer:   strings.TrimSpace(cmd.Customer),
		Branch:     strings.TrimSpace(cmd.Branch),
		Items:      make([]domain.SaleItem, 0, len(cmd.Items)),
		CreatedAt:  now,
	}
	for _, item := range cmd.Items {
		sale.Items = append(sale.Items, domain.SaleItem{
			ProductID:   strings.TrimSpace(item.ProductID),
			ProductName: strings.TrimSpace(item.ProductName),
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}
	sale.ApplyDiscounts(now)

	created, err = s.repo.Create(ctx, sale)
	if err != nil {
		s.logger.WithError(err).WithField("sale_number", sale.SaleNumber).Error("failed to persist sale")
		return domain.Sale{}, err
	}

	s.publish(ctx, domain.NewSaleCreated(created, now))
	s.metrics.RecordCreated(created.TotalAmount.InexactFloat64())
	s.logger.WithFields(log.Fields{
		"sale_id":      created.ID,
		"sale_number":  created.SaleNumber,
		"total_amount": created.TotalAmount.StringFixed(domain.CurrencyPrecision),
	}).Info("sale created")
	return created, nil
}

// Get возвращает продажу по идентификатору.
func (s *Service) Get(ctx context.Context, id string) (sale domain.Sale, err error) {
	defer s.observe(opGet, time.Now(), &err)

	if err = validateSaleID(id); err != nil {
		return domain.Sale{}, err
	}
	return s.repo.Get(ctx, id)
}

// List возвращает страницу продаж по фильтру.
func (s *Service) List(ctx context.Context, filter domain.ListFilter) (page domain.Page, err error) {
	defer s.observe(opList, time.Now(), &err)

	if err = ValidateListFilter(filter); err != nil {
		return domain.Page{}, err
	}

	sales, total, err := s.repo.List(ctx, filter)
	if err != nil {
		s.logger.WithError(err).Error("failed to list sales")
		return domain.Page{}, err
	}
	return domain.Page{
		Items:      sales,
		TotalCount: total,
		Page:       filter.Page,
		TotalPages: domain.TotalPages(total, filter.PageSize),
	}, nil
}

// Update целиком заменяет клиента, филиал и позиции продажи.
// Скидки и итоговая сумма продажи при этом не пересчитываются.
func (s *Service) Update(ctx context.Context, cmd UpdateSaleCommand) (updated domain.Sale, err error) {
	defer s.observe(opUpdate, time.Now(), &err)

	if err = validateUpdate(cmd); err != nil {
		s.logger.WithError(err).WithField("sale_id", cmd.ID).Warn("update sale rejected by validation")
		return domain.Sale{}, err
	}

	sale, err := s.repo.Get(ctx, cmd.ID)
	if err != nil {
		return domain.Sale{}, err
	}

	items := make([]domain.SaleItem, 0, len(cmd.Items))
	for _, item := range cmd.Items {
		items = append(items, domain.SaleItem{
			ID:          strings.TrimSpace(item.ID),
			ProductID:   strings.TrimSpace(item.ProductID),
			ProductName: strings.TrimSpace(item.ProductName),
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Discount:    item.Discount,
			TotalAmount: item.TotalAmount,
		})
	}

	now := s.clock.Now()
	if err = sale.ReplaceDetails(strings.TrimSpace(cmd.Customer), strings.TrimSpace(cmd.Branch), items, now); err != nil {
		s.logger.WithField("sale_id", sale.ID).Warn("attempted to update cancelled sale")
		return domain.Sale{}, err
	}

	updated, err = s.repo.Update(ctx, sale)
	if err != nil {
		s.logger.WithError(err).WithField("sale_id", sale.ID).Error("failed to save updated sale")
		return domain.Sale{}, err
	}

	s.publish(ctx, domain.NewSaleModified(updated, now))
	s.logger.WithField("sale_id", updated.ID).Info("sale updated")
	return updated, nil
}

// Delete физически удаляет продажу.
func (s *Service) Delete(ctx context.Context, id string) (res OperationResult, err error) {
	defer s.observe(opDelete, time.Now(), &err)

	if err = validateSaleID(id); err != nil {
		return OperationResult{}, err
	}

	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		s.logger.WithError(err).WithField("sale_id", id).Error("failed to delete sale")
		return OperationResult{}, err
	}
	if !deleted {
		err = domain.SaleNotFound(id)
		return OperationResult{Message: domain.Message(err)}, err
	}

	s.metrics.RecordDeleted()
	s.logger.WithField("sale_id", id).Info("sale deleted")
	return OperationResult{Success: true, Message: MsgSaleDeleted}, nil
}

// Cancel переводит продажу в состояние Cancelled с указанной причиной.
func (s *Service) Cancel(ctx context.Context, cmd CancelSaleCommand) (res OperationResult, err error) {
	defer s.observe(opCancel, time.Now(), &err)

	if err = validateCancel(cmd); err != nil {
		return OperationResult{}, err
	}

	sale, err := s.repo.Get(ctx, cmd.ID)
	if err != nil {
		return OperationResult{Message: domain.Message(err)}, err
	}

	reason := strings.TrimSpace(cmd.Reason)
	now := s.clock.Now()
	if err = sale.Cancel(reason, now); err != nil {
		s.logger.WithField("sale_id", sale.ID).Warn("sale is already cancelled")
		return OperationResult{Message: domain.Message(err)}, err
	}

	saved, err := s.repo.Update(ctx, sale)
	if err != nil {
		s.logger.WithError(err).WithField("sale_id", sale.ID).Error("failed to save cancelled sale")
		return OperationResult{Message: domain.Message(err)}, err
	}

	s.publish(ctx, domain.NewSaleCancelled(saved, reason, now))
	s.metrics.RecordCancelled()
	s.logger.WithFields(log.Fields{"sale_id": saved.ID, "reason": reason}).Info("sale cancelled")
	return OperationResult{Success: true, Message: MsgSaleCancelled}, nil
}

// CancelItem отменяет одну позицию. Сначала проверяется наличие продажи,
// затем её состояние, наличие позиции и состояние позиции.
func (s *Service) CancelItem(ctx context.Context, cmd CancelItemCommand) (res OperationResult, err error) {
	defer s.observe(opCancelItem, time.Now(), &err)

	if err = validateCancelItem(cmd); err != nil {
		return OperationResult{}, err
	}

	sale, err := s.repo.Get(ctx, cmd.SaleID)
	if err != nil {
		return OperationResult{Message: domain.Message(err)}, err
	}

	now := s.clock.Now()
	item, err := sale.CancelItem(cmd.ItemID, now)
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"sale_id": sale.ID,
			"item_id": cmd.ItemID,
		}).Warn("item cancellation rejected")
		return OperationResult{Message: domain.Message(err)}, err
	}

	saved, err := s.repo.Update(ctx, sale)
	if err != nil {
		s.logger.WithError(err).WithField("sale_id", sale.ID).Error("failed to save sale after item cancellation")
		return OperationResult{Message: domain.Message(err)}, err
	}

	s.publish(ctx, domain.NewItemCancelled(saved, item, now))
	s.metrics.RecordItemCancelled()
	s.logger.WithFields(log.Fields{"sale_id": saved.ID, "item_id": item.ID}).Info("item cancelled")
	return OperationResult{Success: true, Message: MsgItemCancelled}, nil
}

// Timeline возвращает журнал событий существующей продажи.
func (s *Service) Timeline(ctx context.Context, saleID string) (events []domain.TimelineEvent, err error) {
	defer s.observe(opTimeline, time.Now(), &err)

	if err = validateSaleID(saleID); err != nil {
		return nil, err
	}
	if _, err = s.repo.Get(ctx, saleID); err != nil {
		return nil, err
	}
	if s.timeline == nil {
		return []domain.TimelineEvent{}, nil
	}
	return s.timeline.List(ctx, saleID)
}

// publish отправляет событие; сбой приёмника не влияет на результат операции.
func (s *Service) publish(ctx context.Context, event domain.SaleEvent) {
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"event_type": event.Type,
			"sale_id":    event.SaleID,
		}).Warn("failed to publish sale event")
	}
}

func (s *Service) observe(operation string, started time.Time, errp *error) {
	s.metrics.ObserveOperation(operation, time.Since(started))
	if errp != nil && *errp != nil {
		s.metrics.RecordRejection(operation, string(domain.KindOf(*errp)))
	}
}
