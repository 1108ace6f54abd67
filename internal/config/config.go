package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ServerPort  string
	GRPCPort    string
	Environment string

	// Сервис инвентаризации, из которого берутся прогнозы, рецепты и поставщики
	BackendServiceURL string
	ServiceUsername   string
	ServicePassword   string
	BackendTimeout    time.Duration
	DefaultBranchID   string

	DatabaseURL        string // Пусто = журнал контактов выключен
	DBMaxOpenConns     int
	DBConnectAttempts  int
	RedisURL           string   // Пусто = без кэша
	RedisSentinelAddrs []string // Адреса Sentinel (через запятую)
	RedisMasterName    string   // Имя мастера в Sentinel

	KafkaBrokers      string // Пусто = события контактов не публикуются
	KafkaUsername     string
	KafkaPassword     string
	KafkaCACert       string
	KafkaContactTopic string

	BusinessName         string // Подставляется в сообщение поставщику
	ContactLocale        string // Локаль шаблона по умолчанию (пусто = из файла шаблонов)
	ContactTemplatesFile string // YAML с шаблонами (пусто = встроенные)

	SupplierSearchDebounce time.Duration
	SupplierCacheTTL       time.Duration
	ForecastCacheTTL       time.Duration
	DialogIdleTTL          time.Duration
}

func Load() *Config {
	// Railway может использовать разные имена переменных для PostgreSQL
	databaseURL := getEnv("DATABASE_URL", "")
	if databaseURL == "" {
		databaseURL = getEnv("POSTGRES_URL", "")
	}
	// Если нет полного URL, пытаемся собрать из отдельных переменных
	if databaseURL == "" {
		pgHost := getEnv("PGHOST", "")
		pgPort := getEnv("PGPORT", "5432")
		pgUser := getEnv("PGUSER", "postgres")
		pgPassword := getEnv("PGPASSWORD", "")
		pgDatabase := getEnv("PGDATABASE", "stockdash")

		if pgHost != "" {
			if pgPassword != "" {
				databaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
					pgUser, pgPassword, pgHost, pgPort, pgDatabase)
			} else {
				databaseURL = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=disable",
					pgUser, pgHost, pgPort, pgDatabase)
			}
		}
	}

	redisURL := getEnv("REDIS_URL", "")
	if redisURL == "" {
		redisURL = getEnv("REDISCLOUD_URL", "")
	}
	if redisURL == "" {
		redisHost := getEnv("REDISHOST", "")
		redisPort := getEnv("REDISPORT", "6379")
		redisPassword := getEnv("REDISPASSWORD", "")
		redisDB := getEnv("REDISDB", "0")

		if redisHost != "" {
			if redisPassword != "" {
				redisURL = fmt.Sprintf("redis://:%s@%s:%s/%s", redisPassword, redisHost, redisPort, redisDB)
			} else {
				redisURL = fmt.Sprintf("redis://%s:%s/%s", redisHost, redisPort, redisDB)
			}
		}
	}

	return &Config{
		ServerPort:  getEnv("PORT", "8080"),
		GRPCPort:    getEnv("GRPC_PORT", "9090"),
		Environment: getEnv("ENV", "development"),

		BackendServiceURL: getEnv("BACKEND_SERVICE_URL", ""),
		ServiceUsername:   getEnv("SERVICE_USERNAME", "dashboard"),
		ServicePassword:   getEnv("SERVICE_PASSWORD", ""),
		BackendTimeout:    getEnvDuration("BACKEND_TIMEOUT", 15*time.Second),
		DefaultBranchID:   getEnv("DEFAULT_BRANCH_ID", ""),

		DatabaseURL:        databaseURL,
		DBMaxOpenConns:     getEnvInt("DB_MAX_OPEN_CONNS", 10),
		DBConnectAttempts:  getEnvInt("DB_CONNECT_ATTEMPTS", 3),
		RedisURL:           redisURL,
		RedisSentinelAddrs: splitList(getEnv("REDIS_SENTINEL_ADDRS", "")),
		RedisMasterName:    getEnv("REDIS_MASTER_NAME", "mymaster"),

		KafkaBrokers:      getEnv("KAFKA_BROKERS", ""),
		KafkaUsername:     getEnv("KAFKA_USERNAME", ""),
		KafkaPassword:     getEnv("KAFKA_PASSWORD", ""),
		KafkaCACert:       getEnv("KAFKA_CA_CERT", ""),
		KafkaContactTopic: getEnv("KAFKA_CONTACT_TOPIC", "supplier-contacts"),

		BusinessName:         getEnv("BUSINESS_NAME", "Rao He Restaurant"),
		ContactLocale:        getEnv("CONTACT_LOCALE", ""),
		ContactTemplatesFile: getEnv("CONTACT_TEMPLATES_FILE", ""),

		SupplierSearchDebounce: getEnvDuration("SUPPLIER_SEARCH_DEBOUNCE", 300*time.Millisecond),
		SupplierCacheTTL:       getEnvDuration("SUPPLIER_CACHE_TTL", 60*time.Second),
		ForecastCacheTTL:       getEnvDuration("FORECAST_CACHE_TTL", 5*time.Minute),
		DialogIdleTTL:          getEnvDuration("DIALOG_IDLE_TTL", 30*time.Minute),
	}
}

// IsProduction true для ENV=production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration принимает "300ms", "1m" или целое число миллисекунд
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if ms := getEnvInt(key, -1); ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}

func splitList(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
