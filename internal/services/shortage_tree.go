package services

import (
	"log"

	"github.com/shopspring/decimal"

	"stockdash/server/internal/models"
)

// MaxShortageDepth ограничение глубины обхода дерева нехватки.
// Бэкенд не документирует глубину техкарт, поэтому обход обрезается.
const MaxShortageDepth = 32

// IndentPerLevelPx отступ строки на один уровень вложенности
const IndentPerLevelPx = 10

// ShortageRow одна строка отрисованного дерева (в порядке pre-order)
type ShortageRow struct {
	Level           int                 `json:"level"`
	IndentPx        int                 `json:"indent_px"`
	ItemID          string              `json:"item_id,omitempty"`
	Name            string              `json:"name"`
	Code            string              `json:"code"`
	Unit            string              `json:"unit"`
	Type            models.NodeType     `json:"type"`
	Quantity        decimal.Decimal     `json:"quantity"`
	Stock           decimal.Decimal     `json:"stock"`
	Shortage        decimal.Decimal     `json:"shortage"`
	Label           string              `json:"label"`
	Tone            models.ShortageTone `json:"tone"`
	HasChildren     bool                `json:"has_children"`     // Ниже идут строки ингредиентов уровня Level+1
	SupplierControl bool                `json:"supplier_control"` // Показывать выбор поставщика
	Truncated       bool                `json:"truncated"`        // Синтетическая строка: поддерево глубже MaxShortageDepth
}

// ShortageView результат отрисовки дерева для диалога
type ShortageView struct {
	TopLevelCount int           `json:"top_level_count"`
	Rows          []ShortageRow `json:"rows"`
	Truncated     bool          `json:"truncated"`
}

// RenderShortageTree обходит дерево в глубину (pre-order) и строит строки для отображения.
// Порядок узлов сохраняется как во входных данных.
func RenderShortageTree(nodes []models.ShortageNode) ShortageView {
	view := ShortageView{TopLevelCount: len(nodes)}
	renderLevel(nodes, 0, &view)
	return view
}

func renderLevel(nodes []models.ShortageNode, level int, view *ShortageView) {
	if len(nodes) == 0 {
		return
	}
	if level >= MaxShortageDepth {
		log.Printf("⚠️ Дерево нехватки глубже %d уровней, поддерево из %d узлов обрезано", MaxShortageDepth, len(nodes))
		view.Truncated = true
		view.Rows = append(view.Rows, ShortageRow{
			Level:     level,
			IndentPx:  level * IndentPerLevelPx,
			Label:     "Nested ingredients omitted",
			Truncated: true,
		})
		return
	}

	for _, node := range nodes {
		hasChildren := node.IsComposite() && len(node.NotEnoughItems) > 0
		view.Rows = append(view.Rows, ShortageRow{
			Level:           level,
			IndentPx:        level * IndentPerLevelPx,
			ItemID:          node.ItemID(),
			Name:            node.Name,
			Code:            node.Code,
			Unit:            node.Unit,
			Type:            node.Type,
			Quantity:        node.Quantity,
			Stock:           node.Stock,
			Shortage:        node.Shortage(),
			Label:           node.ShortageLabel(),
			Tone:            node.Tone(),
			HasChildren:     hasChildren,
			SupplierControl: node.AcceptsSupplier(),
		})

		if hasChildren {
			renderLevel(node.NotEnoughItems, level+1, view)
		}
	}
}

// CollectLeaves возвращает все листья inventory_purchased с ID в порядке обхода в глубину.
// Используется для инициализации выбора поставщиков при открытии диалога.
func CollectLeaves(nodes []models.ShortageNode) []models.ShortageNode {
	var leaves []models.ShortageNode
	collectLeaves(nodes, 0, &leaves)
	return leaves
}

func collectLeaves(nodes []models.ShortageNode, level int, leaves *[]models.ShortageNode) {
	if level >= MaxShortageDepth {
		return
	}
	for _, node := range nodes {
		if node.AcceptsSupplier() {
			*leaves = append(*leaves, node)
		}
		if len(node.NotEnoughItems) > 0 {
			collectLeaves(node.NotEnoughItems, level+1, leaves)
		}
	}
}
