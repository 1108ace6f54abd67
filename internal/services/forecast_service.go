package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"stockdash/server/internal/models"
	"stockdash/server/internal/utils"
)

// ForecastService прогноз продаж из бэкенда с кэшем по филиалу и набору рецептов
type ForecastService struct {
	backend *BackendClient
	cache   *utils.RedisClient
	ttl     time.Duration
}

// NewForecastService создает новый экземпляр ForecastService
func NewForecastService(backend *BackendClient) *ForecastService {
	return &ForecastService{
		backend: backend,
		ttl:     5 * time.Minute,
	}
}

// SetCache включает кэширование прогнозов
func (s *ForecastService) SetCache(cache *utils.RedisClient, ttl time.Duration) {
	s.cache = cache
	if ttl > 0 {
		s.ttl = ttl
	}
}

func forecastCacheKey(branchID string, recipeCodes []string) string {
	codes := append([]string(nil), recipeCodes...)
	sort.Strings(codes)
	return fmt.Sprintf("forecast:%s:%s", branchID, strings.Join(codes, ";"))
}

// Forecast возвращает обработанный прогноз (из кэша, если он есть)
func (s *ForecastService) Forecast(ctx context.Context, branchID string, recipeCodes []string) (*models.ForecastResponse, error) {
	key := forecastCacheKey(branchID, recipeCodes)
	if s.cache != nil {
		var cached models.ForecastResponse
		err := s.cache.GetJSON(ctx, key, &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, utils.ErrCacheMiss) {
			log.Printf("⚠️ Redis недоступен для кэша прогноза: %v", err)
		}
	}

	resp, err := s.backend.GetProcessedForecast(ctx, branchID, recipeCodes)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения прогноза для филиала %s: %w", branchID, err)
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, resp, s.ttl); err != nil {
			log.Printf("⚠️ Не удалось закэшировать прогноз %s: %v", key, err)
		}
	}
	return resp, nil
}

// Refresh сбрасывает кэш и заново запрашивает прогноз
func (s *ForecastService) Refresh(ctx context.Context, branchID string, recipeCodes []string) (*models.ForecastResponse, error) {
	if s.cache != nil {
		if err := s.cache.Delete(ctx, forecastCacheKey(branchID, recipeCodes)); err != nil {
			log.Printf("⚠️ Не удалось сбросить кэш прогноза: %v", err)
		}
	}
	return s.Forecast(ctx, branchID, recipeCodes)
}

// Summary прогноз вместе со сводной таблицей
func (s *ForecastService) Summary(ctx context.Context, branchID string, recipeCodes []string, refresh bool) (*models.ForecastResponse, ForecastSummary, error) {
	fetch := s.Forecast
	if refresh {
		fetch = s.Refresh
	}
	resp, err := fetch(ctx, branchID, recipeCodes)
	if err != nil {
		return nil, ForecastSummary{}, err
	}
	return resp, BuildForecastSummary(resp.Data), nil
}

// Cell находит ячейку прогноза для открытия диалога поставщиков
func (s *ForecastService) Cell(ctx context.Context, branchID string, recipeCodes []string, date, recipeCode string) (*models.ForecastItem, error) {
	resp, err := s.Forecast(ctx, branchID, recipeCodes)
	if err != nil {
		return nil, err
	}
	return FindCell(resp.Data, date, recipeCode)
}

// MenuRecipes рецепты готовых блюд для выбора на странице прогноза
func (s *ForecastService) MenuRecipes(ctx context.Context, branchID string) ([]models.Recipe, error) {
	recipes, err := s.backend.GetRecipes(ctx, branchID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения рецептов: %w", err)
	}
	menu := make([]models.Recipe, 0, len(recipes))
	for _, recipe := range recipes {
		if recipe.Type == models.NodeTypeFinished {
			menu = append(menu, recipe)
		}
	}
	return menu, nil
}

// SendAlert просит бэкенд разослать уведомление об отсутствующем сырье
func (s *ForecastService) SendAlert(ctx context.Context, branchID string, channel AlertChannel) (string, error) {
	return s.backend.SendOutOfStockAlert(ctx, branchID, channel)
}
