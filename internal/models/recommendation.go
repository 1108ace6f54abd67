package models

import "github.com/shopspring/decimal"

// UrgencyLevel срочность закупки ингредиента
type UrgencyLevel string

const (
	UrgencyLow      UrgencyLevel = "low"
	UrgencyMedium   UrgencyLevel = "medium"
	UrgencyHigh     UrgencyLevel = "high"
	UrgencyCritical UrgencyLevel = "critical"
)

// Rank порядок для сортировки: critical первым, неизвестные последними
func (u UrgencyLevel) Rank() int {
	switch u {
	case UrgencyCritical:
		return 0
	case UrgencyHigh:
		return 1
	case UrgencyMedium:
		return 2
	case UrgencyLow:
		return 3
	}
	return 4
}

// Urgent high и critical
func (u UrgencyLevel) Urgent() bool {
	return u == UrgencyHigh || u == UrgencyCritical
}

// SupplierRecommendation предложенный поставщик ингредиента
type SupplierRecommendation struct {
	SupplierName     string          `json:"supplier_name"`
	Contact          string          `json:"contact"`
	PricePerUnit     decimal.Decimal `json:"price_per_unit"`
	MinimumOrder     decimal.Decimal `json:"minimum_order"`
	DeliveryTime     string          `json:"delivery_time"`
	QualityRating    float64         `json:"quality_rating"`
	ReliabilityScore float64         `json:"reliability_score"`
}

// IngredientRecommendation рекомендация закупки одного ингредиента
type IngredientRecommendation struct {
	IngredientCode          string                   `json:"ingredient_code"`
	IngredientName          string                   `json:"ingredient_name"`
	RequiredQuantity        decimal.Decimal          `json:"required_quantity"`
	Unit                    string                   `json:"unit"`
	UrgencyLevel            UrgencyLevel             `json:"urgency_level"`
	EstimatedCost           decimal.Decimal          `json:"estimated_cost"`
	SupplierRecommendations []SupplierRecommendation `json:"supplier_recommendations"`
	Reasons                 []string                 `json:"reasons"`
	AffectedRecipes         []string                 `json:"affected_recipes"`
}

// RecommendationSummary сводка анализа
type RecommendationSummary struct {
	TotalRecipesAnalyzed int      `json:"total_recipes_analyzed"`
	ForecastPeriod       string   `json:"forecast_period"`
	ConfidenceScore      float64  `json:"confidence_score"`
	Notes                []string `json:"notes"`
}

// PurchaseRecommendation ответ POST recommendations/ingredients
type PurchaseRecommendation struct {
	TotalEstimatedCost decimal.Decimal            `json:"total_estimated_cost"`
	UrgentItemsCount   int                        `json:"urgent_items_count"`
	RecommendationDate string                     `json:"recommendation_date"`
	ValidityPeriod     string                     `json:"validity_period"`
	Ingredients        []IngredientRecommendation `json:"ingredients"`
	Summary            RecommendationSummary      `json:"summary"`
}

// RecommendationRequest тело запроса рекомендаций
type RecommendationRequest struct {
	ForecastData       []ForecastData `json:"forecast_data"`
	RecipeCodes        []string       `json:"recipe_codes"`
	RecommendationType string         `json:"recommendation_type"`
}
