package services

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"stockdash/server/internal/models"
)

const shortageSheet = "Shortage"

var shortageExportHeaders = []string{"Item", "Code", "Type", "Required", "In stock", "Unit", "Status", "Supplier", "WhatsApp"}

// ExportShortageWorkbook выгружает дерево нехватки диалога вместе с выбранными поставщиками в XLSX
func ExportShortageWorkbook(dialog *ShortageDialog) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if _, err := f.NewSheet(shortageSheet); err != nil {
		return nil, fmt.Errorf("ошибка создания листа: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D3D3D3"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка создания стиля заголовка: %w", err)
	}
	toneStyles := make(map[models.ShortageTone]int, 3)
	for tone, color := range map[models.ShortageTone]string{
		models.ToneShortage:   "#DC2626",
		models.ToneSufficient: "#6B7280",
		models.ToneSurplus:    "#16A34A",
	} {
		style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Color: color}})
		if err != nil {
			return nil, fmt.Errorf("ошибка создания стиля %s: %w", tone, err)
		}
		toneStyles[tone] = style
	}

	title := fmt.Sprintf("%s (%s) - %s", dialog.RecipeName, dialog.RecipeCode, dialog.ForecastDate)
	if err := f.SetCellValue(shortageSheet, "A1", title); err != nil {
		return nil, err
	}

	for i, header := range shortageExportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 3)
		f.SetCellValue(shortageSheet, cell, header)
		f.SetCellStyle(shortageSheet, cell, cell, headerStyle)
	}

	selections := dialog.Selections()
	view := dialog.View()
	for i, row := range view.Rows {
		rowNum := i + 4
		values := exportRowValues(row, selections[row.ItemID])
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, rowNum)
			f.SetCellValue(shortageSheet, cell, value)
		}

		if row.Level > 0 {
			indentStyle, err := f.NewStyle(&excelize.Style{Alignment: &excelize.Alignment{Indent: row.Level}})
			if err == nil {
				cell, _ := excelize.CoordinatesToCellName(1, rowNum)
				f.SetCellStyle(shortageSheet, cell, cell, indentStyle)
			}
		}
		if style, ok := toneStyles[row.Tone]; ok && !row.Truncated {
			cell, _ := excelize.CoordinatesToCellName(7, rowNum)
			f.SetCellStyle(shortageSheet, cell, cell, style)
		}
	}

	f.SetColWidth(shortageSheet, "A", "A", 30)
	f.SetColWidth(shortageSheet, "B", "G", 15)
	f.SetColWidth(shortageSheet, "H", "I", 22)

	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("ошибка удаления листа по умолчанию: %w", err)
	}
	if index, err := f.GetSheetIndex(shortageSheet); err == nil {
		f.SetActiveSheet(index)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("ошибка записи XLSX: %w", err)
	}
	return buf.Bytes(), nil
}

func exportRowValues(row ShortageRow, supplier *models.Supplier) []interface{} {
	if row.Truncated {
		return []interface{}{row.Label}
	}
	values := []interface{}{
		row.Name,
		row.Code,
		string(row.Type),
		row.Quantity.InexactFloat64(),
		row.Stock.InexactFloat64(),
		row.Unit,
		row.Label,
		"",
		"",
	}
	if supplier != nil {
		values[7] = supplier.Name
		values[8] = SanitizePhone(supplier.WhatsappNumber)
	}
	return values
}

// ShortageExportFilename имя файла выгрузки
func ShortageExportFilename(dialog *ShortageDialog) string {
	name := strings.ToLower(strings.ReplaceAll(dialog.RecipeCode, " ", "-"))
	if name == "" {
		name = "shortage"
	}
	if dialog.ForecastDate != "" {
		name += "-" + dialog.ForecastDate
	}
	return name + ".xlsx"
}
