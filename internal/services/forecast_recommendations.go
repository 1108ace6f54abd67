package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"stockdash/server/internal/models"
	"stockdash/server/internal/utils"
)

func recommendationsCacheKey(branchID string, recipeCodes []string) string {
	return "recommendations:" + strings.TrimPrefix(forecastCacheKey(branchID, recipeCodes), "forecast:")
}

// Recommendations рекомендации закупки ингредиентов по прогнозу выбранных рецептов.
// refresh сбрасывает кэш прогноза и рекомендаций.
func (s *ForecastService) Recommendations(ctx context.Context, branchID string, recipeCodes []string, refresh bool) (*models.PurchaseRecommendation, string, error) {
	fetch := s.Forecast
	if refresh {
		fetch = s.Refresh
		if s.cache != nil {
			if err := s.cache.Delete(ctx, recommendationsCacheKey(branchID, recipeCodes)); err != nil {
				log.Printf("⚠️ Не удалось сбросить кэш рекомендаций: %v", err)
			}
		}
	}
	forecast, err := fetch(ctx, branchID, recipeCodes)
	if err != nil {
		return nil, "", err
	}
	return s.RecommendFor(ctx, branchID, recipeCodes, forecast.Data)
}

// RecommendFor рекомендации по уже полученному прогнозу
func (s *ForecastService) RecommendFor(ctx context.Context, branchID string, recipeCodes []string, forecast []models.ForecastData) (*models.PurchaseRecommendation, string, error) {
	key := recommendationsCacheKey(branchID, recipeCodes)
	if s.cache != nil {
		var cached models.PurchaseRecommendation
		err := s.cache.GetJSON(ctx, key, &cached)
		if err == nil {
			return &cached, "", nil
		}
		if !errors.Is(err, utils.ErrCacheMiss) {
			log.Printf("⚠️ Redis недоступен для кэша рекомендаций: %v", err)
		}
	}

	rec, message, err := s.backend.GetIngredientRecommendations(ctx, forecast, recipeCodes)
	if err != nil {
		return nil, "", fmt.Errorf("ошибка получения рекомендаций для филиала %s: %w", branchID, err)
	}
	NormalizeRecommendations(rec)
	log.Printf("🤖 Рекомендации закупки: %d ингредиентов (%d срочных) для филиала %s",
		len(rec.Ingredients), rec.UrgentItemsCount, branchID)

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, rec, s.ttl); err != nil {
			log.Printf("⚠️ Не удалось закэшировать рекомендации %s: %v", key, err)
		}
	}
	return rec, message, nil
}

// NormalizeRecommendations сортирует ингредиенты по срочности и
// досчитывает итоги, если бэкенд их не прислал
func NormalizeRecommendations(rec *models.PurchaseRecommendation) {
	if rec.Ingredients == nil {
		rec.Ingredients = []models.IngredientRecommendation{}
	}
	sort.SliceStable(rec.Ingredients, func(i, j int) bool {
		return rec.Ingredients[i].UrgencyLevel.Rank() < rec.Ingredients[j].UrgencyLevel.Rank()
	})

	urgent := 0
	total := decimal.Zero
	for _, ingredient := range rec.Ingredients {
		if ingredient.UrgencyLevel.Urgent() {
			urgent++
		}
		total = total.Add(ingredient.EstimatedCost)
	}
	if rec.UrgentItemsCount == 0 {
		rec.UrgentItemsCount = urgent
	}
	if rec.TotalEstimatedCost.IsZero() {
		rec.TotalEstimatedCost = total
	}
}
