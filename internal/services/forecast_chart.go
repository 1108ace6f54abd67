package services

import (
	"github.com/shopspring/decimal"

	"stockdash/server/internal/models"
)

// ChartPoint столбики фактических продаж и прогноза на одну дату
type ChartPoint struct {
	Date          string          `json:"date"`
	Label         string          `json:"label"` // "Jun 2, 2025"
	Real          decimal.Decimal `json:"real"`
	Forecast      decimal.Decimal `json:"forecast"`
	RealItems     int             `json:"real_items"`
	ForecastItems int             `json:"forecast_items"`
	RealPct       int             `json:"real_pct"`     // Высота столбика относительно максимума
	ForecastPct   int             `json:"forecast_pct"` // 0..100
}

// ForecastChart серии "Real Sales" / "Forecast Sales" по датам
type ForecastChart struct {
	Points        []ChartPoint    `json:"points"`
	TotalReal     decimal.Decimal `json:"total_real"`
	TotalForecast decimal.Decimal `json:"total_forecast"`
}

// BuildForecastChart группирует ответ прогноза по дате.
// Значение серии берется из total записи соответствующего типа.
func BuildForecastChart(data []models.ForecastData) ForecastChart {
	chart := ForecastChart{
		Points:        []ChartPoint{},
		TotalReal:     decimal.Zero,
		TotalForecast: decimal.Zero,
	}
	index := make(map[string]int)

	for _, day := range SortForecastData(data) {
		i, ok := index[day.Date]
		if !ok {
			point := ChartPoint{Date: day.Date, Label: day.Date, Real: decimal.Zero, Forecast: decimal.Zero}
			if t, ok := parseForecastDate(day.Date); ok {
				point.Label = t.Format("Jan 2, 2006")
			}
			chart.Points = append(chart.Points, point)
			i = len(chart.Points) - 1
			index[day.Date] = i
		}
		point := &chart.Points[i]

		switch models.ForecastKind(day.Type) {
		case models.ForecastKindReal:
			point.Real = day.Total
			point.RealItems = countItems(day.Items, models.ForecastKindReal)
			chart.TotalReal = chart.TotalReal.Add(day.Total)
		case models.ForecastKindForecast:
			point.Forecast = day.Total
			point.ForecastItems = countItems(day.Items, models.ForecastKindForecast)
			chart.TotalForecast = chart.TotalForecast.Add(day.Total)
		}
	}

	peak := decimal.Zero
	for _, point := range chart.Points {
		peak = decimal.Max(peak, point.Real, point.Forecast)
	}
	if peak.Sign() > 0 {
		hundred := decimal.NewFromInt(100)
		for i := range chart.Points {
			chart.Points[i].RealPct = int(chart.Points[i].Real.Mul(hundred).Div(peak).Round(0).IntPart())
			chart.Points[i].ForecastPct = int(chart.Points[i].Forecast.Mul(hundred).Div(peak).Round(0).IntPart())
		}
	}
	return chart
}

func countItems(items []models.ForecastItem, kind models.ForecastKind) int {
	n := 0
	for _, item := range items {
		if item.Type == kind {
			n++
		}
	}
	return n
}
