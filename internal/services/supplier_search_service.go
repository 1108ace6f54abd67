package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"stockdash/server/internal/models"
	"stockdash/server/internal/utils"
)

// SupplierSearcher источник кандидатов для выбора поставщика
type SupplierSearcher interface {
	SuppliersForItem(ctx context.Context, itemID, search string) ([]models.Supplier, error)
}

// SupplierSearchService поиск поставщиков товара через бэкенд с кэшем в Redis
type SupplierSearchService struct {
	backend *BackendClient
	cache   *utils.RedisClient
	ttl     time.Duration
}

// NewSupplierSearchService создает новый экземпляр SupplierSearchService
func NewSupplierSearchService(backend *BackendClient) *SupplierSearchService {
	return &SupplierSearchService{
		backend: backend,
		ttl:     60 * time.Second,
	}
}

// SetCache включает кэширование результатов поиска
func (s *SupplierSearchService) SetCache(cache *utils.RedisClient, ttl time.Duration) {
	s.cache = cache
	if ttl > 0 {
		s.ttl = ttl
	}
}

func supplierCacheKey(itemID, search string) string {
	return fmt.Sprintf("suppliers:item:%s:q:%s", itemID, strings.ToLower(strings.TrimSpace(search)))
}

// SuppliersForItem возвращает поставщиков товара, отфильтрованных по строке поиска
func (s *SupplierSearchService) SuppliersForItem(ctx context.Context, itemID, search string) ([]models.Supplier, error) {
	if itemID == "" {
		return []models.Supplier{}, nil
	}

	key := supplierCacheKey(itemID, search)
	if s.cache != nil {
		var cached []models.Supplier
		err := s.cache.GetJSON(ctx, key, &cached)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, utils.ErrCacheMiss) {
			log.Printf("⚠️ Redis недоступен для кэша поставщиков, идем в бэкенд: %v", err)
		}
	}

	items, err := s.backend.GetSuppliersForItem(ctx, itemID, search)
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска поставщиков для %s: %w", itemID, err)
	}
	suppliers := models.UnwrapSuppliers(items)

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, suppliers, s.ttl); err != nil {
			log.Printf("⚠️ Не удалось закэшировать поставщиков %s: %v", key, err)
		}
	}
	return suppliers, nil
}
