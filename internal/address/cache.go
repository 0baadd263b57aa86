package address

//go:generate mockgen -source=cache.go -destination=mocks/mock_cache.go -package=mocks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shenikar/outage_reports/internal/models"
	"github.com/shenikar/outage_reports/internal/observability"
	"github.com/sirupsen/logrus"
)

// Lookup - источник адресов, который оборачивает кэш
type Lookup interface {
	Lookup(ctx context.Context, zipCode string) (models.Address, error)
}

// Cache - хранилище найденных адресов. Срок жизни записей задает реализация,
// в проде это repository.RedisKV. Get возвращает nil, nil при промахе.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// CachedLookup - декоратор над Lookup, который запоминает найденные адреса.
// Ошибки кэша не ломают поиск: они логируются, и запрос уходит во внешний сервис.
type CachedLookup struct {
	inner   Lookup
	cache   Cache
	logger  *logrus.Logger
	metrics *observability.Metrics
}

func NewCachedLookup(inner Lookup, cache Cache, logger *logrus.Logger, metrics *observability.Metrics) *CachedLookup {
	return &CachedLookup{
		inner:   inner,
		cache:   cache,
		logger:  logger,
		metrics: metrics,
	}
}

func (c *CachedLookup) Lookup(ctx context.Context, zipCode string) (models.Address, error) {
	zip, err := NormalizeZipCode(zipCode)
	if err != nil {
		return models.Address{}, err
	}
	key := cacheKey(zip)
	log := c.logger.WithField("zip_code", zip)

	val, err := c.cache.Get(ctx, key)
	if err != nil {
		log.WithError(err).Warn("Failed to read address cache")
	} else if val != nil {
		var cached models.Address
		if err := json.Unmarshal(val, &cached); err == nil {
			c.metrics.AddressLookups.WithLabelValues("hit").Inc()
			log.Debug("Address found in cache")
			return cached, nil
		}
		log.Warn("Cached address is malformed, ignoring it")
	}

	address, err := c.inner.Lookup(ctx, zip)
	if err != nil {
		return address, err
	}

	// Кэшируем только найденные адреса, чтобы "не найдено" можно было перепроверить позже
	payload, err := json.Marshal(address)
	if err != nil {
		log.WithError(err).Warn("Failed to marshal address for cache")
		return address, nil
	}
	if err := c.cache.Set(ctx, key, payload); err != nil {
		log.WithError(err).Warn("Failed to write address cache")
	}
	return address, nil
}

func cacheKey(zip string) string {
	return fmt.Sprintf("address:%s", zip)
}
