package api

import (
	"bytes"
	"encoding/json"
	"mime"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"stockdash/server/internal/models"
	"stockdash/server/internal/services"
)

const testForecastJSON = `{
  "code": 200,
  "status": "OK",
  "retrieved_at": "2025-06-01T08:00:00Z",
  "data": [
    {"date": "2025-06-02", "total": 12, "type": "forecast", "items": [
      {"recipe_code": "GDG", "recipe_name": "Gudeg", "type": "forecast", "value": 8,
       "is_ingredients_enough": false,
       "not_enough_items": [
         {"name": "Gudeg", "code": "GDG", "unit": "portion", "type": "finished", "quantity": 8, "stock": 2,
          "not_enough_items": [
            {"id": "i1", "name": "Nangka", "code": "NGK", "unit": "kg", "type": "inventory_purchased", "quantity": 4.5, "stock": 1.25}
          ]}
       ]},
      {"recipe_code": "SOTO", "recipe_name": "Soto Ayam", "type": "forecast", "value": 4,
       "is_ingredients_enough": true, "not_enough_items": []}
    ]}
  ]
}`

const testSuppliersJSON = `{"supplier_items": [
  {"supplier_id": "s1", "item_id": "i1", "moq": 1, "price": 12000,
   "supplier": {"id": "s1", "name": "Toko Segar", "whatsapp_number": "+62 812-3456", "address": "Jl. Malioboro"}},
  {"supplier_id": "s2", "item_id": "i1", "moq": 5, "price": 11000,
   "supplier": {"id": "s2", "name": "Pasar Beringharjo", "whatsapp_number": ""}}
]}`

const testRecommendationsJSON = `{"message": "Recommendations generated", "data": {
  "total_estimated_cost": 0,
  "urgent_items_count": 0,
  "recommendation_date": "2025-06-01T08:00:00Z",
  "validity_period": "Valid for next 7 days",
  "ingredients": [
    {"ingredient_code": "GLA", "ingredient_name": "Gula Jawa", "required_quantity": 2, "unit": "kg",
     "urgency_level": "low", "estimated_cost": 30000, "supplier_recommendations": [], "reasons": [], "affected_recipes": ["GDG - Gudeg"]},
    {"ingredient_code": "NGK", "ingredient_name": "Nangka", "required_quantity": 3.25, "unit": "kg",
     "urgency_level": "critical", "estimated_cost": 39000,
     "supplier_recommendations": [{"supplier_name": "Toko Segar", "contact": "+62 812-3456", "price_per_unit": 12000,
       "minimum_order": 1, "delivery_time": "1 day", "quality_rating": 4.5, "reliability_score": 95}],
     "reasons": ["Stock covers less than one day"], "affected_recipes": ["GDG - Gudeg"]}
  ],
  "summary": {"total_recipes_analyzed": 2, "forecast_period": "1 days", "confidence_score": 87, "notes": []}
}}`

// testBackend фейковый сервис инвентаризации, запоминает сырые запросы прогноза
type testBackend struct {
	*httptest.Server
	mu              sync.Mutex
	forecastQueries []string
	recommendations []models.RecommendationRequest
}

func (b *testBackend) lastForecastQuery() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.forecastQueries) == 0 {
		return ""
	}
	return b.forecastQueries[len(b.forecastQueries)-1]
}

func newTestBackend(t *testing.T) *testBackend {
	t.Helper()
	backend := &testBackend{}
	backend.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "dashboard" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/v1/forecast/processed":
			backend.mu.Lock()
			backend.forecastQueries = append(backend.forecastQueries, r.URL.RawQuery)
			backend.mu.Unlock()
			_, _ = w.Write([]byte(testForecastJSON))
		case r.URL.Path == "/recommendations/ingredients" && r.Method == http.MethodPost:
			var req models.RecommendationRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			backend.mu.Lock()
			backend.recommendations = append(backend.recommendations, req)
			backend.mu.Unlock()
			_, _ = w.Write([]byte(testRecommendationsJSON))
		case strings.HasPrefix(r.URL.Path, "/v1/suppliers/items/"):
			_, _ = w.Write([]byte(testSuppliersJSON))
		case r.URL.Path == "/v1/recipes":
			_, _ = w.Write([]byte(`{"results": [
				{"id": "r1", "code": "GDG", "name": "Gudeg", "type": "finished"},
				{"id": "r2", "code": "BMB", "name": "Bumbu", "type": "half_finished"}
			]}`))
		case r.URL.Path == "/v1/forecast/out-of-stock-email":
			_, _ = w.Write([]byte(`{"message": "Email sent"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message": "not found"}`))
		}
	}))
	t.Cleanup(backend.Close)
	return backend
}

type testApp struct {
	router  *gin.Engine
	store   *services.DialogStore
	hub     *Hub
	backend *testBackend
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fake := newTestBackend(t)
	backend := services.NewBackendClient(fake.URL, "dashboard", "secret", 2*time.Second)
	templates, err := services.LoadContactTemplates("", "en")
	if err != nil {
		t.Fatalf("LoadContactTemplates: %v", err)
	}

	store := services.NewDialogStore()
	hub := NewHub()
	go hub.Run()

	router, err := SetupRouter(RouterDeps{
		Forecasts:       services.NewForecastService(backend),
		Suppliers:       services.NewSupplierSearchService(backend),
		Dialogs:         store,
		Dispatcher:      services.NewContactDispatcher(templates, "Rao He"),
		Hub:             hub,
		DefaultBranchID: "b1",
		SearchDebounce:  10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("SetupRouter: %v", err)
	}
	return &testApp{router: router, store: store, hub: hub, backend: fake}
}

func (a *testApp) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testApp) openDialog(t *testing.T) services.DialogSnapshot {
	t.Helper()
	w := a.do(http.MethodPost, "/api/v1/dialogs", gin.H{
		"branch_id":    "b1",
		"recipe_codes": "GDG;SOTO",
		"date":         "2025-06-02",
		"recipe_code":  "GDG",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("open dialog: %d %s", w.Code, w.Body.String())
	}
	var snap services.DialogSnapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	return snap
}

func TestHealth(t *testing.T) {
	app := newTestApp(t)
	w := app.do(http.MethodGet, "/api/v1/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health: %d", w.Code)
	}
	var body map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body["status"] != "ok" || body["open_dialogs"].(float64) != 0 {
		t.Errorf("health body = %v", body)
	}
}

func TestGetForecastSummary(t *testing.T) {
	app := newTestApp(t)
	w := app.do(http.MethodGet, "/api/v1/forecast?branch_id=b1&recipe_codes=GDG;SOTO", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("forecast: %d %s", w.Code, w.Body.String())
	}
	var body struct {
		Summary services.ForecastSummary `json:"summary"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Summary.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(body.Summary.Rows))
	}
	gudeg := body.Summary.Rows[0].Cells[0]
	if !gudeg.Clickable || len(gudeg.Tooltip) != 1 || gudeg.Tooltip[0] != "Gudeg (-8 portion)" {
		t.Errorf("gudeg cell = %+v", gudeg)
	}
	if body.Summary.Rows[1].Cells[0].Clickable {
		t.Error("sufficient forecast must not be clickable")
	}
}

func TestRecipesAndSuppliersProxy(t *testing.T) {
	app := newTestApp(t)

	w := app.do(http.MethodGet, "/api/v1/recipes", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"GDG"`) || strings.Contains(w.Body.String(), `"BMB"`) {
		t.Errorf("recipes: %d %s", w.Code, w.Body.String())
	}

	w = app.do(http.MethodGet, "/api/v1/suppliers/items/i1?search=toko", nil)
	var body struct {
		Suppliers []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"suppliers"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || len(body.Suppliers) != 2 {
		t.Fatalf("suppliers: %d %s", w.Code, w.Body.String())
	}
	if body.Suppliers[0].Name != "Toko Segar" {
		t.Errorf("first supplier = %+v", body.Suppliers[0])
	}
}

func TestSendAlert(t *testing.T) {
	app := newTestApp(t)

	w := app.do(http.MethodPost, "/api/v1/forecast/alerts/email", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Email sent") {
		t.Errorf("email alert: %d %s", w.Code, w.Body.String())
	}
	w = app.do(http.MethodPost, "/api/v1/forecast/alerts/pigeon", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown channel: %d", w.Code)
	}
}

func TestDialogLifecycle(t *testing.T) {
	app := newTestApp(t)
	snap := app.openDialog(t)

	if snap.TopLevelCount != 1 || len(snap.Rows) != 2 {
		t.Fatalf("snapshot tree = %d top-level, %d rows", snap.TopLevelCount, len(snap.Rows))
	}
	if sel, ok := snap.Selections["i1"]; !ok || sel != nil {
		t.Fatalf("selections must start empty with leaf keys, got %v", snap.Selections)
	}

	base := "/api/v1/dialogs/" + snap.ID

	if w := app.do(http.MethodPost, base+"/items/i1/contact", nil); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("contact without supplier: %d %s", w.Code, w.Body.String())
	}

	supplier := gin.H{"id": "s1", "name": "Toko Segar", "whatsapp_number": "+62 812-3456"}
	if w := app.do(http.MethodPut, base+"/items/i1/supplier", gin.H{"supplier": supplier}); w.Code != http.StatusOK {
		t.Fatalf("set supplier: %d %s", w.Code, w.Body.String())
	}
	if w := app.do(http.MethodPut, base+"/items/nope/supplier", gin.H{"supplier": supplier}); w.Code != http.StatusNotFound {
		t.Errorf("unknown leaf: %d", w.Code)
	}

	w := app.do(http.MethodPost, base+"/items/i1/contact", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("contact: %d %s", w.Code, w.Body.String())
	}
	var result services.ContactResult
	_ = json.Unmarshal(w.Body.Bytes(), &result)
	if !strings.HasPrefix(result.URI, "https://wa.me/628123456?text=") {
		t.Errorf("uri = %s", result.URI)
	}
	if !strings.Contains(result.URI, "Toko%20Segar") || !strings.Contains(result.URI, "%2ANangka%2A") {
		t.Errorf("message not encoded as expected: %s", result.URI)
	}

	if w := app.do(http.MethodGet, base, nil); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"s1"`) {
		t.Errorf("get dialog: %d %s", w.Code, w.Body.String())
	}

	// Без PostgreSQL журнал контактов пуст
	if w := app.do(http.MethodGet, "/api/v1/contacts?item_id=i1", nil); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"contacts":[]`) {
		t.Errorf("contacts: %d %s", w.Code, w.Body.String())
	}

	if w := app.do(http.MethodDelete, base, nil); w.Code != http.StatusNoContent {
		t.Errorf("close: %d", w.Code)
	}
	if w := app.do(http.MethodGet, base, nil); w.Code != http.StatusNotFound {
		t.Errorf("closed dialog: %d", w.Code)
	}
}

func TestOpenDialogRejectsSufficientCell(t *testing.T) {
	app := newTestApp(t)
	w := app.do(http.MethodPost, "/api/v1/dialogs", gin.H{
		"recipe_codes": "GDG;SOTO",
		"date":         "2025-06-02",
		"recipe_code":  "SOTO",
	})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("sufficient cell: %d %s", w.Code, w.Body.String())
	}

	w = app.do(http.MethodPost, "/api/v1/dialogs", gin.H{"date": "2025-06-02"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing recipe_code: %d", w.Code)
	}
}

func TestContactWithoutWhatsappNumber(t *testing.T) {
	app := newTestApp(t)
	snap := app.openDialog(t)
	base := "/api/v1/dialogs/" + snap.ID

	app.do(http.MethodPut, base+"/items/i1/supplier", gin.H{"supplier": gin.H{"id": "s2", "name": "Pasar Beringharjo"}})
	if w := app.do(http.MethodPost, base+"/items/i1/contact", nil); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("no whatsapp number: %d %s", w.Code, w.Body.String())
	}

	// Страница диалога возвращает пользователя с сообщением об ошибке
	w := app.do(http.MethodPost, "/dashboard/dialogs/"+snap.ID+"/items/i1/contact", nil)
	if w.Code != http.StatusSeeOther || !strings.Contains(w.Header().Get("Location"), "error=") {
		t.Errorf("redirect = %d %s", w.Code, w.Header().Get("Location"))
	}
}

func TestDashboardPages(t *testing.T) {
	app := newTestApp(t)

	w := app.do(http.MethodGet, "/dashboard/forecast?recipe_codes=GDG;SOTO", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Soto Ayam") {
		t.Fatalf("forecast page: %d", w.Code)
	}
	page := w.Body.String()
	for _, want := range []string{"2 of 1 selected", "Menu Forecast Analysis", "AI Purchase Recommendations", "Nangka", "Toko Segar"} {
		if !strings.Contains(page, want) {
			t.Errorf("forecast page misses %q", want)
		}
	}

	form := url.Values{}
	form.Set("branch_id", "b1")
	form.Set("recipe_codes", "GDG;SOTO")
	form.Set("date", "2025-06-02")
	form.Set("recipe_code", "GDG")
	req := httptest.NewRequest(http.MethodPost, "/dashboard/forecast/dialogs", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = httptest.NewRecorder()
	app.router.ServeHTTP(w, req)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("open form: %d %s", w.Code, w.Body.String())
	}
	location := w.Header().Get("Location")
	if !strings.HasPrefix(location, "/dashboard/dialogs/") {
		t.Fatalf("location = %s", location)
	}
	dialogID := strings.TrimPrefix(location, "/dashboard/dialogs/")

	w = app.do(http.MethodGet, location, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Insufficient Ingredients (1)") {
		t.Fatalf("dialog page: %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `target="_blank"`) {
		t.Error("contact form must open in a new tab")
	}
	if !strings.Contains(w.Body.String(), `<form method="post" action="/dashboard/dialogs/`+dialogID+`/items/i1/contact"`) {
		t.Error("contact must be a POST form")
	}

	dialog, _ := app.store.Get(dialogID)
	_ = dialog.Select("i1", nil)
	w = app.do(http.MethodPut, "/api/v1/dialogs/"+dialogID+"/items/i1/supplier",
		gin.H{"supplier": gin.H{"id": "s1", "name": "Toko Segar", "whatsapp_number": "0812 3456"}})
	if w.Code != http.StatusOK {
		t.Fatal(w.Body.String())
	}
	// GET (предзагрузка ссылки) не пишет журнал и не открывает чат
	if w = app.do(http.MethodGet, "/dashboard/dialogs/"+dialogID+"/items/i1/contact", nil); w.Code != http.StatusNotFound {
		t.Errorf("contact via GET = %d", w.Code)
	}
	w = app.do(http.MethodPost, "/dashboard/dialogs/"+dialogID+"/items/i1/contact", nil)
	if w.Code != http.StatusSeeOther || !strings.HasPrefix(w.Header().Get("Location"), "https://wa.me/08123456?text=") {
		t.Errorf("contact redirect = %d %s", w.Code, w.Header().Get("Location"))
	}

	w = app.do(http.MethodGet, "/dashboard/dialogs/"+dialogID+"/export.xlsx", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Header().Get("Content-Disposition"), ".xlsx") {
		t.Errorf("export = %d %v", w.Code, w.Header())
	}

	w = app.do(http.MethodPost, "/dashboard/dialogs/"+dialogID+"/close", nil)
	if w.Code != http.StatusSeeOther || app.store.Len() != 0 {
		t.Errorf("close form = %d, open dialogs %d", w.Code, app.store.Len())
	}

	w = app.do(http.MethodGet, "/dashboard/dialogs/"+dialogID, nil)
	if w.Code != http.StatusSeeOther {
		t.Errorf("closed dialog page = %d", w.Code)
	}
}

func TestGetForecastForwardsRecipeCodes(t *testing.T) {
	app := newTestApp(t)

	for _, query := range []string{"recipe_codes=GDG;SOTO", "recipe_codes=GDG%3BSOTO", "recipe_codes=GDG&recipe_codes=SOTO"} {
		w := app.do(http.MethodGet, "/api/v1/forecast?branch_id=b1&"+query, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: %d %s", query, w.Code, w.Body.String())
		}
		if got := app.backend.lastForecastQuery(); got != "branch_id=b1&recipe_codes=GDG;SOTO" {
			t.Errorf("%s: backend query = %q", query, got)
		}
	}

	w := app.do(http.MethodGet, "/api/v1/forecast?branch_id=b1&recipe_codes=GDG;SOTO", nil)
	var body struct {
		Chart services.ForecastChart `json:"chart"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Chart.Points) != 1 || !body.Chart.Points[0].Forecast.Equal(body.Chart.TotalForecast) || body.Chart.Points[0].ForecastPct != 100 {
		t.Errorf("chart = %+v", body.Chart)
	}
}

func TestGetRecommendations(t *testing.T) {
	app := newTestApp(t)

	w := app.do(http.MethodGet, "/api/v1/forecast/recommendations?branch_id=b1&recipe_codes=GDG;SOTO", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("recommendations: %d %s", w.Code, w.Body.String())
	}
	var body struct {
		Data    models.PurchaseRecommendation `json:"data"`
		Message string                        `json:"message"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Message != "Recommendations generated" {
		t.Errorf("message = %q", body.Message)
	}
	if len(body.Data.Ingredients) != 2 || body.Data.Ingredients[0].IngredientCode != "NGK" {
		t.Fatalf("critical ingredient must come first: %+v", body.Data.Ingredients)
	}
	if body.Data.UrgentItemsCount != 1 || body.Data.TotalEstimatedCost.String() != "69000" {
		t.Errorf("totals = %d urgent, cost %s", body.Data.UrgentItemsCount, body.Data.TotalEstimatedCost)
	}

	app.backend.mu.Lock()
	sent := app.backend.recommendations[len(app.backend.recommendations)-1]
	app.backend.mu.Unlock()
	if strings.Join(sent.RecipeCodes, ";") != "GDG;SOTO" || len(sent.ForecastData) != 1 || sent.RecommendationType != "ingredient_purchase" {
		t.Errorf("backend payload = %+v", sent)
	}

	if w := app.do(http.MethodGet, "/api/v1/forecast/recommendations?branch_id=b1", nil); w.Code != http.StatusBadRequest {
		t.Errorf("without recipe_codes: %d", w.Code)
	}
}

func TestRecipeCodesParam(t *testing.T) {
	cases := map[string]string{
		"":                                  "",
		"branch_id=b1":                      "",
		"recipe_codes=GDG;SOTO":             "GDG|SOTO",
		"recipe_codes=GDG%3B+SOTO":          "GDG|SOTO",
		"recipe%5Fcodes=A;B&search=x":       "A|B",
		"recipe_codes=A&recipe=B&other=a;b": "A",
		"recipe_codes=%zz;A":                "",
	}
	for raw, want := range cases {
		ctx, _ := gin.CreateTestContext(httptest.NewRecorder())
		ctx.Request = httptest.NewRequest(http.MethodGet, "/?"+raw, nil)
		if got := strings.Join(recipeCodesParam(ctx), "|"); got != want {
			t.Errorf("recipeCodesParam(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestDialogPageRendersDuplicateLeaves(t *testing.T) {
	app := newTestApp(t)
	id := "i1"
	leaf := models.ShortageNode{ID: &id, Name: "Nangka", Code: "NGK", Unit: "kg", Type: models.NodeTypeInventoryPurchased}
	dialog := app.store.Open(services.DialogCell{
		BranchID:     "b1",
		RecipeCode:   `Nasi "Goreng"`,
		RecipeName:   "Nasi Goreng",
		ForecastDate: "2025-06-02",
		Items: []models.ShortageNode{
			leaf,
			{Name: "Bumbu", Code: "BMB", Unit: "kg", Type: models.NodeTypeHalfFinished, NotEnoughItems: []models.ShortageNode{leaf}},
		},
	})

	w := app.do(http.MethodGet, "/dashboard/dialogs/"+dialog.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("dialog page: %d", w.Code)
	}
	page := w.Body.String()
	if n := strings.Count(page, `class="combobox" data-item-id="i1"`); n != 2 {
		t.Errorf("comboboxes for i1 = %d, want 2", n)
	}
	if n := strings.Count(page, `class="contact" data-item-id="i1" disabled`); n != 2 {
		t.Errorf("disabled contact buttons for i1 = %d, want 2", n)
	}

	w = app.do(http.MethodGet, "/dashboard/dialogs/"+dialog.ID+"/export.xlsx", nil)
	_, params, err := mime.ParseMediaType(w.Header().Get("Content-Disposition"))
	if err != nil {
		t.Fatalf("Content-Disposition %q: %v", w.Header().Get("Content-Disposition"), err)
	}
	if params["filename"] != services.ShortageExportFilename(dialog) {
		t.Errorf("filename = %q, want %q", params["filename"], services.ShortageExportFilename(dialog))
	}
}
