package api

import (
	"embed"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"stockdash/server/internal/services"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static/*
var staticFS embed.FS

// RouterDeps зависимости HTTP слоя
type RouterDeps struct {
	Forecasts       *services.ForecastService
	Suppliers       services.SupplierSearcher
	Dialogs         *services.DialogStore
	Dispatcher      *services.ContactDispatcher
	Hub             *Hub
	Producer        *ContactEventProducer
	DefaultBranchID string
	SearchDebounce  time.Duration
}

var templateFuncs = template.FuncMap{
	"join": strings.Join,
}

// loadTemplates парсит встроенные шаблоны страниц
func loadTemplates() (*template.Template, error) {
	return template.New("").Funcs(templateFuncs).ParseFS(templatesFS, "templates/*.html")
}

// requestLogger логирование всех запросов
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		log.Printf("🌐 %s %s - Status: %d - Latency: %v", method, path, status, latency)
	}
}

// cors для внешнего фронтенда JSON API
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// SetupRouter собирает gin движок со всеми маршрутами
func SetupRouter(deps RouterDeps) (*gin.Engine, error) {
	r := gin.New()
	r.Use(gin.Recovery())

	tmpl, err := loadTemplates()
	if err != nil {
		return nil, err
	}
	r.SetHTMLTemplate(tmpl)

	// Health check endpoint (до логирования, чтобы не засорять лог пробами)
	r.GET("/api/v1/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":       "ok",
			"service":      "Shortage Dashboard",
			"version":      "1.0.0",
			"ws_clients":   deps.Hub.GetClientsCount(),
			"open_dialogs": deps.Dialogs.Len(),
			"events_sent":  deps.Producer.SentCount(),
		})
	})

	r.Use(requestLogger())
	r.Use(cors())

	forecastController := NewForecastController(deps.Forecasts, deps.DefaultBranchID)
	supplierController := NewSupplierController(deps.Suppliers)
	dialogController := NewDialogController(deps.Dialogs, deps.Forecasts, deps.Dispatcher, deps.Hub, deps.DefaultBranchID)
	dialogWSController := NewDialogWSController(dialogController, deps.Suppliers, deps.SearchDebounce)

	r.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/dashboard/forecast")
	})

	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, err
	}
	r.StaticFS("/static", http.FS(static))

	// Страницы
	pages := r.Group("/dashboard", gzip.Gzip(gzip.DefaultCompression))
	{
		pages.GET("/forecast", forecastController.ForecastPage)
		pages.POST("/forecast/alerts/:channel", forecastController.SendAlertForm)
		pages.POST("/forecast/dialogs", dialogController.OpenDialogForm)
		pages.GET("/dialogs/:id", dialogController.DialogPage)
		pages.POST("/dialogs/:id/close", dialogController.CloseDialogForm)
		pages.POST("/dialogs/:id/items/:item_id/contact", dialogController.ContactRedirect)
		pages.GET("/dialogs/:id/export.xlsx", dialogController.Export)
	}

	// API routes
	apiGroup := r.Group("/api/v1")
	{
		apiGroup.GET("/forecast", forecastController.GetForecast)
		apiGroup.GET("/forecast/recommendations", forecastController.GetRecommendations)
		apiGroup.POST("/forecast/alerts/:channel", forecastController.SendAlert)
		apiGroup.GET("/recipes", forecastController.GetRecipes)
		apiGroup.GET("/suppliers/items/:item_id", supplierController.GetSuppliersForItem)

		dialogs := apiGroup.Group("/dialogs")
		{
			dialogs.POST("", dialogController.OpenDialog)
			dialogs.GET("/:id", dialogController.GetDialog)
			dialogs.DELETE("/:id", dialogController.CloseDialog)
			dialogs.PUT("/:id/items/:item_id/supplier", dialogController.SetSupplier)
			dialogs.POST("/:id/items/:item_id/contact", dialogController.Contact)
		}
		apiGroup.GET("/contacts", dialogController.ListContacts)
	}

	// WebSocket окна диалога
	r.GET("/ws/dialogs/:id", dialogWSController.ServeDialogWS)

	return r, nil
}
