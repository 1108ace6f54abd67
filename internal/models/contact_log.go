package models

import (
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ContactLog журнал отправленных ссылок на WhatsApp поставщикам.
// Это локальный аудит дашборда: выбор поставщика в бэкенд не записывается.
type ContactLog struct {
	ID             string    `json:"id" gorm:"type:uuid;primaryKey"`
	DialogID       string    `json:"dialog_id" gorm:"type:varchar(64);index"`
	ItemID         string    `json:"item_id" gorm:"type:varchar(64);not null;index"`
	ItemName       string    `json:"item_name" gorm:"type:varchar(255)"`
	SupplierID     string    `json:"supplier_id" gorm:"type:varchar(64);not null;index"`
	SupplierName   string    `json:"supplier_name" gorm:"type:varchar(255)"`
	WhatsappNumber string    `json:"whatsapp_number" gorm:"type:varchar(50)"` // Только цифры
	RecipeCode     string    `json:"recipe_code" gorm:"type:varchar(50);index"`
	ForecastDate   string    `json:"forecast_date" gorm:"type:varchar(32)"`
	Locale         string    `json:"locale" gorm:"type:varchar(10)"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime;index"`
}

// TableName указывает имя таблицы
func (ContactLog) TableName() string {
	return "supplier_contact_logs"
}

// BeforeCreate генерирует UUID
func (c *ContactLog) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// AutoMigrate выполняет миграции таблиц дашборда
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&ContactLog{}); err != nil {
		log.Printf("❌ AutoMigrate для ContactLog failed: %v", err)
		return err
	}
	log.Println("✅ ContactLog table migrated successfully")
	return nil
}
