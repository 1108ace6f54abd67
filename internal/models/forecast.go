package models

import "github.com/shopspring/decimal"

// ForecastKind тип значения: фактические продажи или прогноз
type ForecastKind string

const (
	ForecastKindReal     ForecastKind = "real"
	ForecastKindForecast ForecastKind = "forecast"
)

// ForecastItem значение по одному рецепту на одну дату
type ForecastItem struct {
	RecipeCode          string          `json:"recipe_code"`
	RecipeName          string          `json:"recipe_name"`
	Type                ForecastKind    `json:"type"`
	Value               decimal.Decimal `json:"value"`
	IsIngredientsEnough bool            `json:"is_ingredients_enough"`
	NotEnoughItems      []ShortageNode  `json:"not_enough_items"`
}

// ForecastData прогноз на одну дату
type ForecastData struct {
	Date  string          `json:"date"`
	Total decimal.Decimal `json:"total"`
	Type  string          `json:"type"`
	Items []ForecastItem  `json:"items"`
}

// ForecastResponse ответ бэкенда GET v1/forecast/processed
type ForecastResponse struct {
	Code        int            `json:"code"`
	Status      string         `json:"status"`
	Message     string         `json:"message"`
	Data        []ForecastData `json:"data"`
	RetrievedAt string         `json:"retrieved_at"`
}

// Recipe рецепт из бэкенда (для выбора позиций меню на странице прогноза)
type Recipe struct {
	ID   string   `json:"id"`
	Code string   `json:"code"`
	Name string   `json:"name"`
	Type NodeType `json:"type"`
}
