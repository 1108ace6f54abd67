package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"stockdash/server/internal/models"
)

// ErrNotFound бэкенд ответил 404 (нет данных для филиала/рецептов)
var ErrNotFound = errors.New("данные не найдены")

// BackendError ответ бэкенда со статусом вне 2xx
type BackendError struct {
	Status  int
	Message string
}

func (e *BackendError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("бэкенд вернул статус %d", e.Status)
	}
	return fmt.Sprintf("бэкенд вернул статус %d: %s", e.Status, e.Message)
}

// Unwrap позволяет проверять 404 через errors.Is(err, ErrNotFound)
func (e *BackendError) Unwrap() error {
	if e.Status == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

// AlertChannel канал рассылки уведомления об отсутствии сырья
type AlertChannel string

const (
	AlertChannelEmail    AlertChannel = "email"
	AlertChannelWhatsapp AlertChannel = "whatsapp"
)

// ParseAlertChannel проверяет название канала
func ParseAlertChannel(s string) (AlertChannel, error) {
	switch AlertChannel(strings.ToLower(s)) {
	case AlertChannelEmail:
		return AlertChannelEmail, nil
	case AlertChannelWhatsapp:
		return AlertChannelWhatsapp, nil
	}
	return "", fmt.Errorf("неизвестный канал уведомления %q (ожидается email или whatsapp)", s)
}

// BackendClient клиент сервиса инвентаризации (прогнозы, поставщики, рецепты)
type BackendClient struct {
	baseURL  string
	username string
	password string
	client   *http.Client
}

// NewBackendClient создает клиент. baseURL нормализуется к виду с завершающим "/".
func NewBackendClient(baseURL, username, password string, timeout time.Duration) *BackendClient {
	if baseURL == "" {
		log.Printf("⚠️ Backend: BACKEND_SERVICE_URL не задан, запросы к бэкенду будут падать")
	} else if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &BackendClient{
		baseURL:  baseURL,
		username: username,
		password: password,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// backendEnvelope общие поля ответов бэкенда
type backendEnvelope struct {
	Message string `json:"message"`
}

func (c *BackendClient) get(ctx context.Context, path string, query url.Values, dest interface{}) error {
	return c.do(ctx, http.MethodGet, path, query, nil, dest)
}

func (c *BackendClient) post(ctx context.Context, path string, payload, dest interface{}) error {
	return c.do(ctx, http.MethodPost, path, nil, payload, dest)
}

func (c *BackendClient) do(ctx context.Context, method, path string, query url.Values, payload, dest interface{}) error {
	endpoint := c.baseURL + path
	if encoded := encodeBackendQuery(query); encoded != "" {
		endpoint += "?" + encoded
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("ошибка сериализации запроса %s: %w", path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("ошибка создания запроса %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.username != "" || c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("ошибка запроса к бэкенду %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("ошибка чтения ответа %s: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var envelope backendEnvelope
		_ = json.Unmarshal(respBody, &envelope)
		if resp.StatusCode != http.StatusNotFound {
			log.Printf("❌ Backend: %s вернул статус %d: %s", path, resp.StatusCode, truncateBody(respBody))
		}
		return &BackendError{Status: resp.StatusCode, Message: envelope.Message}
	}

	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, dest); err != nil {
		return fmt.Errorf("ошибка парсинга ответа %s: %w", path, err)
	}
	return nil
}

// encodeBackendQuery кодирует параметры, оставляя ";" в списке кодов рецептов как есть
func encodeBackendQuery(query url.Values) string {
	if len(query) == 0 {
		return ""
	}
	return strings.ReplaceAll(query.Encode(), "%3B", ";")
}

func truncateBody(body []byte) string {
	const limit = 300
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}

// GetProcessedForecast GET v1/forecast/processed?recipe_codes=a;b&branch_id=
func (c *BackendClient) GetProcessedForecast(ctx context.Context, branchID string, recipeCodes []string) (*models.ForecastResponse, error) {
	query := url.Values{}
	if codes := joinRecipeCodes(recipeCodes); codes != "" {
		query.Set("recipe_codes", codes)
	}
	if branchID != "" {
		query.Set("branch_id", branchID)
	}

	var resp models.ForecastResponse
	if err := c.get(ctx, "v1/forecast/processed", query, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		resp.Data = []models.ForecastData{}
	}
	return &resp, nil
}

// GetSuppliersForItem GET v1/suppliers/items/{itemID}?search=
func (c *BackendClient) GetSuppliersForItem(ctx context.Context, itemID, search string) ([]models.SupplierItem, error) {
	query := url.Values{}
	if search != "" {
		query.Set("search", search)
	}

	var resp struct {
		SupplierItems []models.SupplierItem `json:"supplier_items"`
	}
	if err := c.get(ctx, "v1/suppliers/items/"+url.PathEscape(itemID), query, &resp); err != nil {
		return nil, err
	}
	if resp.SupplierItems == nil {
		return []models.SupplierItem{}, nil
	}
	return resp.SupplierItems, nil
}

// GetRecipes GET v1/recipes (одна большая страница для выбора рецептов)
func (c *BackendClient) GetRecipes(ctx context.Context, branchID string) ([]models.Recipe, error) {
	query := url.Values{}
	query.Set("page", "1")
	query.Set("limit", "1000")
	if branchID != "" {
		query.Set("branch_id", branchID)
	}

	var resp struct {
		Results []models.Recipe `json:"results"`
	}
	if err := c.get(ctx, "v1/recipes", query, &resp); err != nil {
		return nil, err
	}
	if resp.Results == nil {
		return []models.Recipe{}, nil
	}
	return resp.Results, nil
}

// SendOutOfStockAlert GET v1/forecast/out-of-stock-{email|whatsapp}?branch_id=
// Возвращает сообщение бэкенда.
func (c *BackendClient) SendOutOfStockAlert(ctx context.Context, branchID string, channel AlertChannel) (string, error) {
	if _, err := ParseAlertChannel(string(channel)); err != nil {
		return "", err
	}
	query := url.Values{}
	if branchID != "" {
		query.Set("branch_id", branchID)
	}

	var resp backendEnvelope
	if err := c.get(ctx, "v1/forecast/out-of-stock-"+string(channel), query, &resp); err != nil {
		return "", err
	}
	log.Printf("📡 Backend: уведомление out-of-stock (%s) отправлено для филиала %s", channel, branchID)
	return resp.Message, nil
}

// GetIngredientRecommendations POST recommendations/ingredients
// Бэкенд подбирает закупки ингредиентов по прогнозу выбранных рецептов.
func (c *BackendClient) GetIngredientRecommendations(ctx context.Context, forecast []models.ForecastData, recipeCodes []string) (*models.PurchaseRecommendation, string, error) {
	if forecast == nil {
		forecast = []models.ForecastData{}
	}
	payload := models.RecommendationRequest{
		ForecastData:       forecast,
		RecipeCodes:        recipeCodes,
		RecommendationType: "ingredient_purchase",
	}

	var resp struct {
		Data    *models.PurchaseRecommendation `json:"data"`
		Message string                         `json:"message"`
	}
	if err := c.post(ctx, "recommendations/ingredients", payload, &resp); err != nil {
		return nil, "", err
	}
	if resp.Data == nil {
		return nil, resp.Message, fmt.Errorf("пустой ответ рекомендаций: %w", ErrNotFound)
	}
	return resp.Data, resp.Message, nil
}

// joinRecipeCodes склеивает коды через ";", пропуская пустые
func joinRecipeCodes(codes []string) string {
	cleaned := make([]string, 0, len(codes))
	for _, code := range codes {
		if code = strings.TrimSpace(code); code != "" {
			cleaned = append(cleaned, code)
		}
	}
	return strings.Join(cleaned, ";")
}

// SplitRecipeCodes разбирает параметр recipe_codes=a;b
func SplitRecipeCodes(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ";")
	codes := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			codes = append(codes, part)
		}
	}
	return codes
}
