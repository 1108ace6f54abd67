package models

import "github.com/shopspring/decimal"

// Supplier поставщик (данные принадлежат бэкенду, здесь только чтение)
type Supplier struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Slug           string `json:"slug,omitempty"`
	Address        string `json:"address"`
	WhatsappNumber string `json:"whatsapp_number"`
	PhoneNumber    string `json:"phone_number"`
}

// SupplierItem связь поставщик-товар (MOQ и цена), как ее отдает бэкенд
type SupplierItem struct {
	SupplierID string          `json:"supplier_id"`
	ItemID     string          `json:"item_id"`
	MOQ        decimal.Decimal `json:"moq"`
	Price      decimal.Decimal `json:"price"`
	Supplier   *Supplier       `json:"supplier,omitempty"`
}

// UnwrapSuppliers разворачивает связи в список поставщиков, сохраняя порядок.
// Записи без вложенного поставщика пропускаются.
func UnwrapSuppliers(items []SupplierItem) []Supplier {
	suppliers := make([]Supplier, 0, len(items))
	for _, item := range items {
		if item.Supplier == nil {
			continue
		}
		suppliers = append(suppliers, *item.Supplier)
	}
	return suppliers
}
