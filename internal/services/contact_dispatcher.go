package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"gorm.io/gorm"

	"stockdash/server/internal/models"
)

const whatsappBaseURL = "https://wa.me/"

var (
	// ErrNoWhatsappNumber у поставщика нет ни одной цифры в номере WhatsApp
	ErrNoWhatsappNumber = errors.New("у поставщика не указан номер WhatsApp")
	// ErrNotPurchasable поставщика можно связать только с закупаемым сырьем
	ErrNotPurchasable = errors.New("позиция не является закупаемым сырьем")
)

// SanitizePhone оставляет только цифры 0-9 в исходном порядке
func SanitizePhone(phone string) string {
	var b strings.Builder
	b.Grow(len(phone))
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// encodeURIComponent кодирует значение query целиком (пробел -> %20, * -> %2A)
func encodeURIComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// BuildContactURI собирает ссылку https://wa.me/<цифры>?text=<сообщение>
func BuildContactURI(phone, message string) (string, error) {
	digits := SanitizePhone(phone)
	if digits == "" {
		return "", ErrNoWhatsappNumber
	}
	return whatsappBaseURL + digits + "?text=" + encodeURIComponent(message), nil
}

// ContactEvent событие отправки ссылки поставщику (для внешних потребителей)
type ContactEvent struct {
	DialogID     string
	ItemID       string
	ItemName     string
	SupplierID   string
	SupplierName string
	Phone        string
	RecipeCode   string
	ForecastDate string
	Locale       string
	OccurredAt   time.Time
}

// ContactEventPublisher публикует события контактов (Kafka)
type ContactEventPublisher interface {
	PublishContact(ctx context.Context, event ContactEvent) error
}

// ContactRequest запрос на связь с поставщиком по листу дерева нехватки
type ContactRequest struct {
	DialogID     string
	RecipeCode   string
	ForecastDate string
	Locale       string
	Supplier     models.Supplier
	Item         models.ShortageNode
}

// ContactResult итог диспетчеризации
type ContactResult struct {
	URI     string `json:"uri"`
	Message string `json:"message"`
	Phone   string `json:"phone"`
	Locale  string `json:"locale"`
}

// ContactDispatcher строит ссылку на WhatsApp и сопровождает ее уведомлением,
// событием и записью аудита. Сам диспетчер в сеть не ходит.
type ContactDispatcher struct {
	templates *ContactTemplates
	business  string
	db        *gorm.DB
	publisher ContactEventPublisher
	now       func() time.Time
}

// NewContactDispatcher создает новый экземпляр ContactDispatcher
func NewContactDispatcher(templates *ContactTemplates, business string) *ContactDispatcher {
	return &ContactDispatcher{
		templates: templates,
		business:  business,
		now:       time.Now,
	}
}

// SetDB включает журнал контактов в PostgreSQL
func (d *ContactDispatcher) SetDB(db *gorm.DB) {
	d.db = db
}

// SetPublisher включает публикацию событий
func (d *ContactDispatcher) SetPublisher(publisher ContactEventPublisher) {
	d.publisher = publisher
}

// Templates возвращает шаблоны сообщений (для подбора локали)
func (d *ContactDispatcher) Templates() *ContactTemplates {
	return d.templates
}

// BuildMessage возвращает текст сообщения поставщику
func (d *ContactDispatcher) BuildMessage(locale string, supplier models.Supplier, item models.ShortageNode) string {
	return d.templates.Render(locale, supplier.Name, item.Name, d.business)
}

// Dispatch собирает ссылку и уведомляет пользователя.
// Ошибки публикации события и записи аудита только логируются.
func (d *ContactDispatcher) Dispatch(ctx context.Context, req ContactRequest, notifier Notifier) (*ContactResult, error) {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	if !req.Item.AcceptsSupplier() {
		return nil, ErrNotPurchasable
	}

	locale := req.Locale
	if locale == "" {
		locale = d.templates.DefaultLocale()
	}
	message := d.BuildMessage(locale, req.Supplier, req.Item)

	uri, err := BuildContactURI(req.Supplier.WhatsappNumber, message)
	if err != nil {
		notifier.Notify(NotificationError, fmt.Sprintf("%s has no WhatsApp number", req.Supplier.Name))
		return nil, err
	}

	phone := SanitizePhone(req.Supplier.WhatsappNumber)
	notifier.Notify(NotificationSuccess, fmt.Sprintf("Opening WhatsApp chat with %s for %s", req.Supplier.Name, req.Item.Name))

	event := ContactEvent{
		DialogID:     req.DialogID,
		ItemID:       req.Item.ItemID(),
		ItemName:     req.Item.Name,
		SupplierID:   req.Supplier.ID,
		SupplierName: req.Supplier.Name,
		Phone:        phone,
		RecipeCode:   req.RecipeCode,
		ForecastDate: req.ForecastDate,
		Locale:       locale,
		OccurredAt:   d.now().UTC(),
	}
	d.record(ctx, event)

	return &ContactResult{URI: uri, Message: message, Phone: phone, Locale: locale}, nil
}

func (d *ContactDispatcher) record(ctx context.Context, event ContactEvent) {
	if d.publisher != nil {
		if err := d.publisher.PublishContact(ctx, event); err != nil {
			log.Printf("⚠️ Не удалось опубликовать событие контакта %s/%s: %v", event.ItemID, event.SupplierID, err)
		}
	}

	if d.db != nil {
		entry := models.ContactLog{
			DialogID:       event.DialogID,
			ItemID:         event.ItemID,
			ItemName:       event.ItemName,
			SupplierID:     event.SupplierID,
			SupplierName:   event.SupplierName,
			WhatsappNumber: event.Phone,
			RecipeCode:     event.RecipeCode,
			ForecastDate:   event.ForecastDate,
			Locale:         event.Locale,
		}
		if err := d.db.WithContext(ctx).Create(&entry).Error; err != nil {
			log.Printf("⚠️ Не удалось записать журнал контакта: %v", err)
		}
	}
}

// RecentContacts возвращает последние записи журнала контактов по позиции
func (d *ContactDispatcher) RecentContacts(ctx context.Context, itemID string, limit int) ([]models.ContactLog, error) {
	if d.db == nil {
		return []models.ContactLog{}, nil
	}
	if limit <= 0 {
		limit = 20
	}
	var logs []models.ContactLog
	query := d.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if itemID != "" {
		query = query.Where("item_id = ?", itemID)
	}
	if err := query.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("ошибка получения журнала контактов: %w", err)
	}
	return logs, nil
}
