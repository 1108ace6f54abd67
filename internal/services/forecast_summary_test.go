package services

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"stockdash/server/internal/models"
)

func forecastItem(code, name string, kind models.ForecastKind, value int64, enough bool, missing ...models.ShortageNode) models.ForecastItem {
	return models.ForecastItem{
		RecipeCode:          code,
		RecipeName:          name,
		Type:                kind,
		Value:               decimal.NewFromInt(value),
		IsIngredientsEnough: enough,
		NotEnoughItems:      missing,
	}
}

func sampleForecast() []models.ForecastData {
	return []models.ForecastData{
		{Date: "2025-06-03", Items: []models.ForecastItem{
			forecastItem("SOTO", "Soto Ayam", models.ForecastKindForecast, 12, true),
			forecastItem("GDG", "Gudeg", models.ForecastKindForecast, 8, false, gudegTree()...),
		}},
		{Date: "2025-06-01", Items: []models.ForecastItem{
			forecastItem("GDG", "Gudeg", models.ForecastKindReal, 10, true),
			forecastItem("GDG", "Gudeg", models.ForecastKindReal, 5, true),
		}},
		{Date: "2025-06-02", Items: []models.ForecastItem{
			forecastItem("GDG", "Gudeg", models.ForecastKindForecast, 0, false),
		}},
	}
}

func TestBuildForecastSummary(t *testing.T) {
	summary := BuildForecastSummary(sampleForecast())

	wantDates := []string{"2025-06-01", "2025-06-02", "2025-06-03"}
	for i, d := range summary.Dates {
		if d.Date != wantDates[i] {
			t.Errorf("date %d = %s, want %s", i, d.Date, wantDates[i])
		}
	}
	if summary.Dates[0].Label != "Jun 1" || summary.Dates[0].Weekday != "Sun" {
		t.Errorf("header = %+v", summary.Dates[0])
	}

	if len(summary.Rows) != 2 || summary.Rows[0].Recipe.Code != "GDG" || summary.Rows[1].Recipe.Code != "SOTO" {
		t.Fatalf("recipes must be unique in first-seen order, got %+v", summary.Rows)
	}

	gudeg := summary.Rows[0].Cells
	if gudeg[0].Display != "15" || gudeg[0].Type != models.ForecastKindReal || gudeg[0].Clickable {
		t.Errorf("real cell = %+v", gudeg[0])
	}
	if gudeg[1].Display != "-" || !gudeg[1].Clickable {
		t.Errorf("zero forecast cell = %+v", gudeg[1])
	}
	if !gudeg[2].Clickable || len(gudeg[2].Tooltip) != 2 || gudeg[2].Tooltip[0] != "Gudeg (-5 kg)" {
		t.Errorf("insufficient cell = %+v", gudeg[2])
	}

	soto := summary.Rows[1].Cells
	if soto[0].Display != "-" || soto[0].Type != "" {
		t.Errorf("missing cell = %+v", soto[0])
	}
	if soto[2].Clickable || soto[2].Display != "12" {
		t.Errorf("enough forecast cell = %+v", soto[2])
	}

	stats := summary.Stats
	if !stats.TotalRealSales.Equal(decimal.NewFromInt(15)) || !stats.TotalForecastSales.Equal(decimal.NewFromInt(20)) {
		t.Errorf("totals = %s / %s", stats.TotalRealSales, stats.TotalForecastSales)
	}
	if stats.DataPoints != 3 || stats.RealItems != 2 || stats.ForecastItems != 3 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestSortForecastDataKeepsUnparsableLast(t *testing.T) {
	data := []models.ForecastData{{Date: "soon"}, {Date: "2025-06-02"}, {Date: "later"}, {Date: "2025-06-01T00:00:00Z"}}
	sorted := SortForecastData(data)
	want := []string{"2025-06-01T00:00:00Z", "2025-06-02", "soon", "later"}
	for i, d := range sorted {
		if d.Date != want[i] {
			t.Errorf("position %d = %s, want %s", i, d.Date, want[i])
		}
	}
	if data[0].Date != "soon" {
		t.Error("input must not be reordered in place")
	}
}

func TestFindCell(t *testing.T) {
	data := sampleForecast()

	item, err := FindCell(data, "2025-06-03", "GDG")
	if err != nil {
		t.Fatalf("FindCell: %v", err)
	}
	if len(item.NotEnoughItems) != 2 {
		t.Errorf("unexpected tree %+v", item.NotEnoughItems)
	}

	// Нехватка без дерева не открывает диалог
	if _, err := FindCell(data, "2025-06-02", "GDG"); !errors.Is(err, ErrNotClickable) {
		t.Errorf("expected ErrNotClickable, got %v", err)
	}
	if _, err := FindCell(data, "2025-06-03", "SOTO"); !errors.Is(err, ErrNotClickable) {
		t.Errorf("expected ErrNotClickable, got %v", err)
	}
	if _, err := FindCell(data, "2025-07-01", "GDG"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
