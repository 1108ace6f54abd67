package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"stockdash/server/internal/api"
	"stockdash/server/internal/config"
	"stockdash/server/internal/database"
	"stockdash/server/internal/models"
	"stockdash/server/internal/services"
	"stockdash/server/internal/utils"
)

func main() {
	// Загружаем переменные окружения из .env файла (если существует)
	if err := godotenv.Load(); err != nil {
		log.Printf("ℹ️ .env файл не найден, используем переменные окружения системы")
	} else {
		log.Printf("✅ Переменные окружения загружены из .env файла")
	}

	cfg := config.Load()

	if cfg.BackendServiceURL == "" {
		log.Fatalf("❌ BACKEND_SERVICE_URL не установлен")
	}
	log.Printf("📋 BACKEND_SERVICE_URL: %s (пользователь %s)", cfg.BackendServiceURL, cfg.ServiceUsername)

	// PostgreSQL нужен только для журнала контактов
	db, err := database.ConnectPostgres(database.PostgresOptions{
		URL:             cfg.DatabaseURL,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnectAttempts: cfg.DBConnectAttempts,
	})
	if err != nil {
		if errors.Is(err, database.ErrPostgresDisabled) {
			log.Printf("⚠️ DATABASE_URL не установлен, журнал контактов отключен")
		} else {
			log.Printf("❌ PostgreSQL connection failed: %v", err)
			log.Printf("⚠️ Продолжаем без БД (журнал контактов отключен)")
		}
		db = nil
	} else {
		log.Printf("📋 DATABASE_URL установлен: %s", maskURL(cfg.DatabaseURL))
		defer database.ClosePostgres(db)

		if err := models.AutoMigrate(db); err != nil {
			log.Printf("❌ Migration failed: %v", err)
			log.Printf("⚠️ Continuing with limited functionality")
			db = nil
		} else {
			log.Println("✅ Database migrations completed")
		}
	}

	// Подключение к Redis (с поддержкой Sentinel)
	redisClient, err := database.ConnectRedis(cfg.RedisURL, cfg.RedisSentinelAddrs, cfg.RedisMasterName)
	var redisUtil *utils.RedisClient
	if err != nil {
		log.Printf("⚠️ Redis недоступен: %v (продолжаем без кэша)", err)
		redisClient = nil
	} else {
		redisUtil = utils.NewRedisClient(redisClient)
	}
	defer database.CloseRedis(redisClient)

	backend := services.NewBackendClient(cfg.BackendServiceURL, cfg.ServiceUsername, cfg.ServicePassword, cfg.BackendTimeout)

	forecastService := services.NewForecastService(backend)
	supplierSearch := services.NewSupplierSearchService(backend)
	if redisUtil != nil {
		forecastService.SetCache(redisUtil, cfg.ForecastCacheTTL)
		supplierSearch.SetCache(redisUtil, cfg.SupplierCacheTTL)
		log.Println("✅ Redis кэш прогнозов и поставщиков включен")
	}

	templates, err := services.LoadContactTemplates(cfg.ContactTemplatesFile, cfg.ContactLocale)
	if err != nil {
		log.Fatalf("❌ Не удалось загрузить шаблоны сообщений: %v", err)
	}
	log.Printf("✅ Шаблоны сообщений загружены (локаль по умолчанию: %s)", templates.DefaultLocale())

	dispatcher := services.NewContactDispatcher(templates, cfg.BusinessName)
	if db != nil {
		dispatcher.SetDB(db)
	}

	producer := api.NewContactEventProducer(cfg.KafkaBrokers, cfg.KafkaContactTopic, cfg.KafkaUsername, cfg.KafkaPassword, cfg.KafkaCACert)
	if producer != nil {
		dispatcher.SetPublisher(producer)
		defer producer.Close()
	}

	dialogs := services.NewDialogStore()

	hub := api.NewHub()
	go hub.Run()

	// Закрываем диалоги, которые никто не открывал дольше DIALOG_IDLE_TTL
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			for _, id := range dialogs.Sweep(cfg.DialogIdleTTL) {
				hub.CloseRoom(id)
			}
		}
	}()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r, err := api.SetupRouter(api.RouterDeps{
		Forecasts:       forecastService,
		Suppliers:       supplierSearch,
		Dialogs:         dialogs,
		Dispatcher:      dispatcher,
		Hub:             hub,
		Producer:        producer,
		DefaultBranchID: cfg.DefaultBranchID,
		SearchDebounce:  cfg.SupplierSearchDebounce,
	})
	if err != nil {
		log.Fatalf("❌ Failed to set up router: %v", err)
	}

	healthServer := api.NewHealthServer()
	go func() {
		if err := healthServer.Serve(cfg.GRPCPort); err != nil {
			log.Printf("⚠️ gRPC health сервер остановлен: %v", err)
		}
	}()

	// Периодическое логирование статистики памяти
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			logMemoryStats()
		}
	}()

	srv := &http.Server{
		Addr:    "0.0.0.0:" + cfg.ServerPort,
		Handler: r,
	}

	log.Printf("🚀 Server starting on port %s", cfg.ServerPort)
	if err := serveHTTP(srv, healthServer); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	log.Printf("📡 Dashboard доступен на http://0.0.0.0:%s/dashboard/forecast", cfg.ServerPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🔒 Остановка сервера...")
	healthServer.SetServing(false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("⚠️ Server forced to shutdown: %v", err)
	}
	healthServer.Shutdown()
	log.Println("✅ Server exited")
}

// serveHTTP занимает порт и только после этого переводит gRPC health в SERVING
func serveHTTP(srv *http.Server, health *api.HealthServer) error {
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen %s: %w", srv.Addr, err)
	}
	health.SetServing(true)

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			health.SetServing(false)
			log.Fatalf("Failed to serve HTTP: %v", err)
		}
	}()
	return nil
}

// maskURL скрывает логин и пароль в строке подключения
func maskURL(raw string) string {
	idx := strings.Index(raw, "@")
	schemeIdx := strings.Index(raw, "://")
	if idx > 0 && schemeIdx > 0 && schemeIdx < idx {
		return raw[:schemeIdx+3] + "***@" + raw[idx+1:]
	}
	return raw
}

// logMemoryStats логирует текущую статистику использования памяти
func logMemoryStats() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	heapAllocMB := float64(m.HeapAlloc) / 1024 / 1024
	sysMB := float64(m.Sys) / 1024 / 1024
	numGoroutines := runtime.NumGoroutine()

	log.Printf("💾 Memory Stats: HeapAlloc=%.2f MB, Sys=%.2f MB, GC=%d, Goroutines=%d",
		heapAllocMB, sysMB, m.NumGC, numGoroutines)

	if numGoroutines > 1000 {
		log.Printf("⚠️ WARNING: High number of goroutines detected: %d (possible goroutine leak)", numGoroutines)
	}
}
