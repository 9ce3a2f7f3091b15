package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sales/internal/domain"
)

const (
	keyPrefix  = "sales:sale:"
	DefaultTTL = 5 * time.Minute

	// tombstoneVersion больше любой реальной версии и точно представим в Lua number.
	tombstoneVersion = int64(1)<<53 - 1
)

// storeIfNotOlder пишет запись, только если в кэше нет записи с большей версией.
// KEYS[1] ключ продажи, ARGV: запись, её версия, TTL в миллисекундах.
// Нечитаемое содержимое ключа перезаписывается.
var storeIfNotOlder = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current then
  local ok, doc = pcall(cjson.decode, current)
  if ok and type(doc) == 'table' then
    local cached = tonumber(doc['v'])
    if cached and cached > tonumber(ARGV[2]) then
      return 0
    end
  end
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

var errMalformedEntry = errors.New("cache entry holds neither sale nor tombstone")

// redisClient — подмножество команд go-redis, которое использует кэш.
type redisClient interface {
	redis.Scripter
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// cachedSale — запись в Redis. Deleted без Sale означает удалённую продажу:
// такая запись не даёт запоздавшему чтению вернуть продажу в кэш.
type cachedSale struct {
	Version int64        `json:"v"`
	Deleted bool         `json:"deleted,omitempty"`
	Sale    *domain.Sale `json:"sale,omitempty"`
}

// Options описывает подключение к Redis.
type Options struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// Connect создаёт клиента Redis и проверяет соединение через PING.
func Connect(ctx context.Context, opts Options) (*redis.Client, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis addr is empty")
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = 10
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: opts.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// SaleRepository кэширует чтение продажи по ID поверх основного хранилища.
// Запись в кэш идёт через storeIfNotOlder, поэтому копия, прочитанная до
// параллельного Update или Delete, не перетирает более новую. Ошибки Redis не
// прерывают операцию: запрос уходит в основное хранилище.
type SaleRepository struct {
	next   domain.SaleRepository
	client redisClient
	ttl    time.Duration
	logger *log.Entry
}

var _ domain.SaleRepository = (*SaleRepository)(nil)

// NewSaleRepository оборачивает репозиторий read-through кэшем.
func NewSaleRepository(next domain.SaleRepository, client redisClient, ttl time.Duration, logger *log.Entry) *SaleRepository {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &SaleRepository{
		next:   next,
		client: client,
		ttl:    ttl,
		logger: logger.WithField("component", "sale-cache"),
	}
}

func saleKey(id string) string {
	return keyPrefix + id
}

func (r *SaleRepository) Get(ctx context.Context, id string) (domain.Sale, error) {
	if sale, ok := r.lookup(ctx, id); ok {
		return sale, nil
	}

	sale, err := r.next.Get(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	r.store(ctx, sale)
	return sale, nil
}

// lookup возвращает продажу из кэша. Промах, удалённая продажа, битая запись
// и ошибка Redis одинаково отправляют чтение в основное хранилище.
func (r *SaleRepository) lookup(ctx context.Context, id string) (domain.Sale, bool) {
	raw, err := r.client.Get(ctx, saleKey(id)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return domain.Sale{}, false
	case err != nil:
		r.logger.WithError(err).WithField("sale_id", id).Warn("cache read failed")
		return domain.Sale{}, false
	}

	var entry cachedSale
	decodeErr := json.Unmarshal(raw, &entry)
	if decodeErr == nil && entry.Sale == nil && !entry.Deleted {
		decodeErr = errMalformedEntry
	}
	if decodeErr != nil {
		// Следующая запись через storeIfNotOlder перезапишет битое значение.
		r.logger.WithError(decodeErr).WithField("sale_id", id).Warn("ignore corrupted cache entry")
		return domain.Sale{}, false
	}
	if entry.Deleted {
		return domain.Sale{}, false
	}
	return *entry.Sale, true
}

func (r *SaleRepository) Create(ctx context.Context, sale domain.Sale) (domain.Sale, error) {
	created, err := r.next.Create(ctx, sale)
	if err != nil {
		return domain.Sale{}, err
	}
	r.store(ctx, created)
	return created, nil
}

func (r *SaleRepository) Update(ctx context.Context, sale domain.Sale) (domain.Sale, error) {
	updated, err := r.next.Update(ctx, sale)
	if err != nil {
		// При конфликте версий кэш мог отдать устаревшую копию: подтягиваем актуальную.
		if domain.IsVersionConflict(err) {
			r.refresh(ctx, sale.ID)
		}
		return domain.Sale{}, err
	}
	r.store(ctx, updated)
	return updated, nil
}

func (r *SaleRepository) Delete(ctx context.Context, id string) (bool, error) {
	deleted, err := r.next.Delete(ctx, id)
	if err != nil || !deleted {
		r.invalidate(ctx, id)
		return deleted, err
	}
	r.write(ctx, id, cachedSale{Version: tombstoneVersion, Deleted: true})
	return true, nil
}

// List не кэшируется: выборки зависят от фильтра и быстро устаревают.
func (r *SaleRepository) List(ctx context.Context, filter domain.ListFilter) ([]domain.Sale, int, error) {
	return r.next.List(ctx, filter)
}

func (r *SaleRepository) refresh(ctx context.Context, id string) {
	fresh, err := r.next.Get(ctx, id)
	if err != nil {
		r.invalidate(ctx, id)
		return
	}
	r.store(ctx, fresh)
}

func (r *SaleRepository) store(ctx context.Context, sale domain.Sale) {
	r.write(ctx, sale.ID, cachedSale{Version: sale.Version, Sale: &sale})
}

// write кладёт запись через storeIfNotOlder. Если Redis не принял запись,
// ключ сбрасывается, чтобы не оставить в кэше предыдущую версию.
func (r *SaleRepository) write(ctx context.Context, id string, entry cachedSale) {
	logger := r.logger.WithField("sale_id", id)
	payload, err := json.Marshal(entry)
	if err != nil {
		logger.WithError(err).Warn("encode sale for cache")
		r.invalidate(ctx, id)
		return
	}

	stored, err := storeIfNotOlder.Run(ctx, r.client, []string{saleKey(id)},
		payload, entry.Version, r.ttl.Milliseconds()).Int()
	switch {
	case err != nil:
		logger.WithError(err).Warn("cache write failed")
		r.invalidate(ctx, id)
	case stored == 0:
		logger.WithField("version", entry.Version).Debug("cache already holds a newer sale version")
	}
}

func (r *SaleRepository) invalidate(ctx context.Context, id string) {
	if err := r.client.Del(ctx, saleKey(id)).Err(); err != nil {
		r.logger.WithError(err).WithField("sale_id", id).Warn("cache invalidation failed")
	}
}
