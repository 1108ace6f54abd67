package services

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"stockdash/server/internal/models"
)

// ErrNotClickable ячейка таблицы не открывает диалог поставщиков
var ErrNotClickable = errors.New("для этой ячейки нет нехватки ингредиентов")

// SummaryDate колонка таблицы (дата прогноза)
type SummaryDate struct {
	Date    string `json:"date"`
	Label   string `json:"label"`   // "Jan 2"
	Weekday string `json:"weekday"` // "Mon"
}

// SummaryRecipe строка таблицы (рецепт)
type SummaryRecipe struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// SummaryCell значение рецепта на дату
type SummaryCell struct {
	Date       string              `json:"date"`
	RecipeCode string              `json:"recipe_code"`
	RecipeName string              `json:"recipe_name"`
	Total      decimal.Decimal     `json:"total"`
	Display    string              `json:"display"` // Total или "-" если Total <= 0
	Type       models.ForecastKind `json:"type"`
	Enough     bool                `json:"enough"`
	Clickable  bool                `json:"clickable"` // Прогноз с нехваткой ингредиентов
	Tooltip    []string            `json:"tooltip"`   // "name (-quantity unit)" по каждой нехватке
}

// SummaryRow рецепт со всеми датами
type SummaryRow struct {
	Recipe SummaryRecipe `json:"recipe"`
	Cells  []SummaryCell `json:"cells"`
}

// ForecastStats агрегаты над ответом прогноза
type ForecastStats struct {
	TotalRealSales     decimal.Decimal `json:"total_real_sales"`
	TotalForecastSales decimal.Decimal `json:"total_forecast_sales"`
	DataPoints         int             `json:"data_points"`
	RealItems          int             `json:"real_items"`
	ForecastItems      int             `json:"forecast_items"`
}

// ForecastSummary таблица "рецепт x дата"
type ForecastSummary struct {
	Dates []SummaryDate `json:"dates"`
	Rows  []SummaryRow  `json:"rows"`
	Stats ForecastStats `json:"stats"`
}

func parseForecastDate(s string) (time.Time, bool) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// SortForecastData возвращает копию, отсортированную по дате по возрастанию.
// Непарсящиеся даты остаются в конце в исходном порядке.
func SortForecastData(data []models.ForecastData) []models.ForecastData {
	sorted := make([]models.ForecastData, len(data))
	copy(sorted, data)
	sort.SliceStable(sorted, func(i, j int) bool {
		ti, okI := parseForecastDate(sorted[i].Date)
		tj, okJ := parseForecastDate(sorted[j].Date)
		if okI && okJ {
			return ti.Before(tj)
		}
		return okI && !okJ
	})
	return sorted
}

// BuildForecastSummary строит сводную таблицу по ответу прогноза
func BuildForecastSummary(data []models.ForecastData) ForecastSummary {
	sorted := SortForecastData(data)
	summary := ForecastSummary{
		Dates: make([]SummaryDate, 0, len(sorted)),
		Stats: computeForecastStats(sorted),
	}

	var recipes []SummaryRecipe
	seen := make(map[string]bool)
	for _, day := range sorted {
		column := SummaryDate{Date: day.Date, Label: day.Date}
		if t, ok := parseForecastDate(day.Date); ok {
			column.Label = t.Format("Jan 2")
			column.Weekday = t.Format("Mon")
		}
		summary.Dates = append(summary.Dates, column)

		for _, item := range day.Items {
			if seen[item.RecipeCode] {
				continue
			}
			seen[item.RecipeCode] = true
			recipes = append(recipes, SummaryRecipe{Code: item.RecipeCode, Name: item.RecipeName})
		}
	}

	summary.Rows = make([]SummaryRow, 0, len(recipes))
	for _, recipe := range recipes {
		row := SummaryRow{Recipe: recipe, Cells: make([]SummaryCell, 0, len(sorted))}
		for _, day := range sorted {
			row.Cells = append(row.Cells, buildSummaryCell(recipe, day))
		}
		summary.Rows = append(summary.Rows, row)
	}
	return summary
}

func buildSummaryCell(recipe SummaryRecipe, day models.ForecastData) SummaryCell {
	cell := SummaryCell{
		Date:       day.Date,
		RecipeCode: recipe.Code,
		RecipeName: recipe.Name,
		Total:      decimal.Zero,
	}

	var first *models.ForecastItem
	for i := range day.Items {
		item := &day.Items[i]
		if item.RecipeCode != recipe.Code {
			continue
		}
		cell.Total = cell.Total.Add(item.Value)
		if first == nil {
			first = item
		}
	}

	if cell.Total.Sign() > 0 {
		cell.Display = cell.Total.String()
	} else {
		cell.Display = "-"
	}

	if first == nil {
		return cell
	}
	cell.Type = first.Type
	cell.Enough = first.IsIngredientsEnough
	if first.Type == models.ForecastKindForecast && !first.IsIngredientsEnough {
		cell.Clickable = true
		for _, node := range first.NotEnoughItems {
			cell.Tooltip = append(cell.Tooltip, fmt.Sprintf("%s (-%s %s)", node.Name, node.Quantity.String(), node.Unit))
		}
	}
	return cell
}

func computeForecastStats(data []models.ForecastData) ForecastStats {
	stats := ForecastStats{
		TotalRealSales:     decimal.Zero,
		TotalForecastSales: decimal.Zero,
		DataPoints:         len(data),
	}
	for _, day := range data {
		for _, item := range day.Items {
			switch item.Type {
			case models.ForecastKindReal:
				stats.TotalRealSales = stats.TotalRealSales.Add(item.Value)
				stats.RealItems++
			case models.ForecastKindForecast:
				stats.TotalForecastSales = stats.TotalForecastSales.Add(item.Value)
				stats.ForecastItems++
			}
		}
	}
	return stats
}

// FindCell находит позицию прогноза для открытия диалога поставщиков.
// Диалог открывается только при нехватке с непустым деревом.
func FindCell(data []models.ForecastData, date, recipeCode string) (*models.ForecastItem, error) {
	for _, day := range data {
		if day.Date != date {
			continue
		}
		for i := range day.Items {
			item := day.Items[i]
			if item.RecipeCode != recipeCode {
				continue
			}
			if item.IsIngredientsEnough || len(item.NotEnoughItems) == 0 {
				return nil, ErrNotClickable
			}
			return &item, nil
		}
	}
	return nil, fmt.Errorf("рецепт %s на дату %s: %w", recipeCode, date, ErrNotFound)
}
