package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// NodeType тип узла дерева нехватки (тип позиции в техкарте)
type NodeType string

const (
	NodeTypeFinished           NodeType = "finished"            // Готовое блюдо
	NodeTypeHalfFinished       NodeType = "half_finished"       // Полуфабрикат
	NodeTypeInventoryPurchased NodeType = "inventory_purchased" // Закупаемое сырье (лист)
)

// ShortageTone вариант отображения строки нехватки
type ShortageTone string

const (
	ToneShortage   ShortageTone = "shortage"
	ToneSufficient ShortageTone = "sufficient"
	ToneSurplus    ShortageTone = "surplus"
)

// ShortageNode узел дерева нехватки ингредиентов, посчитанного бэкендом.
// Поставщик может быть назначен только листу типа inventory_purchased с ID.
type ShortageNode struct {
	ID             *string         `json:"id,omitempty"`
	Name           string          `json:"name"`
	Code           string          `json:"code"`
	Unit           string          `json:"unit"`
	Type           NodeType        `json:"type"`
	Quantity       decimal.Decimal `json:"quantity"` // Требуется по сценарию прогноза
	Stock          decimal.Decimal `json:"stock"`    // Доступно на складе
	NotEnoughItems []ShortageNode  `json:"not_enough_items,omitempty"`
}

// Shortage возвращает quantity - stock (положительное значение = нехватка)
func (n ShortageNode) Shortage() decimal.Decimal {
	return n.Quantity.Sub(n.Stock)
}

// Tone определяет вариант отображения по знаку нехватки
func (n ShortageNode) Tone() ShortageTone {
	switch n.Shortage().Sign() {
	case 1:
		return ToneShortage
	case 0:
		return ToneSufficient
	default:
		return ToneSurplus
	}
}

// ShortageLabel возвращает подпись: "Shortage: N unit", "Sufficient stock" или "Surplus: N unit"
func (n ShortageNode) ShortageLabel() string {
	shortage := n.Shortage()
	switch n.Tone() {
	case ToneShortage:
		return fmt.Sprintf("Shortage: %s %s", shortage.String(), n.Unit)
	case ToneSufficient:
		return "Sufficient stock"
	default:
		return fmt.Sprintf("Surplus: %s %s", shortage.Abs().String(), n.Unit)
	}
}

// IsComposite true для готовых блюд и полуфабрикатов (могут иметь дочерние узлы)
func (n ShortageNode) IsComposite() bool {
	return n.Type == NodeTypeFinished || n.Type == NodeTypeHalfFinished
}

// IsLeaf true для закупаемого сырья
func (n ShortageNode) IsLeaf() bool {
	return n.Type == NodeTypeInventoryPurchased
}

// ItemID возвращает ID или пустую строку
func (n ShortageNode) ItemID() string {
	if n.ID == nil {
		return ""
	}
	return *n.ID
}

// AcceptsSupplier true только для листа inventory_purchased с заполненным ID
func (n ShortageNode) AcceptsSupplier() bool {
	return n.IsLeaf() && n.ItemID() != ""
}
