package config

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	BackendSQLite   = "sqlite"
	BackendNeo4j    = "neo4j"
	BackendDynamoDB = "dynamodb"
)

type ClientConfig struct {
	BaseURL     string
	Timeout     time.Duration
	Limit       int
	Burst       int
	MaxRetries  int
	BaseBackoff time.Duration
}

type DBConfig struct {
	Backend string

	// sqlite
	Path string

	// neo4j
	URI  string
	User string
	Pass string

	// dynamodb
	Table string
}

type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
	CORSOrigin      string
	RateLimitPerSec float64
	RateBurst       int
	RateLimitIdle   time.Duration
}

type TelemetryConfig struct {
	ServiceName   string
	TraceExporter string
	OTLPEndpoint  string
}

type UIConfig struct {
	SessionTTL   time.Duration
	SecureCookie bool
}

type ImporterConfig struct {
	QueueURL    string
	WaitSeconds int
}

type Config struct {
	Client    ClientConfig
	DB        DBConfig
	Server    ServerConfig
	Telemetry TelemetryConfig
	UI        UIConfig
	Importer  ImporterConfig
}

func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		log.Printf("warning: could not load .env: %v", err)
	}

	cfg := Config{}

	port, err := getEnvStringDefault("PORT", "8080")
	if err != nil {
		return nil, fmt.Errorf("invalid port: %w", err)
	}
	cfg.Server.Addr = ":" + port

	// The web frontend talks to the REST API over HTTP; by default that is
	// this same process.
	baseURL, err := getEnvStringDefault("BACKEND_URL", "http://127.0.0.1:"+port)
	if err != nil {
		return nil, fmt.Errorf("invalid backend url: %w", err)
	}
	cfg.Client.BaseURL = strings.TrimRight(baseURL, "/")

	duration, err := getEnvTimeDefault("HTTP_CLIENT_TIMEOUT", "30s")
	if err != nil {
		return nil, fmt.Errorf("invalid timeout: %w", err)
	}
	cfg.Client.Timeout = duration

	limit, err := getEnvIntDefault("CLIENT_RATE_LIMIT", "50")
	if err != nil {
		return nil, fmt.Errorf("invalid rate limit: %w", err)
	}
	if limit <= 0 {
		return nil, fmt.Errorf("invalid rate limit: CLIENT_RATE_LIMIT must be positive, got %d", limit)
	}
	cfg.Client.Limit = limit

	burst, err := getEnvIntDefault("CLIENT_BURST_AMOUNT", "50")
	if err != nil {
		return nil, fmt.Errorf("invalid burst amount: %w", err)
	}
	cfg.Client.Burst = burst

	maxRetries, err := getEnvIntDefault("CLIENT_MAX_RETRIES", "3")
	if err != nil {
		return nil, fmt.Errorf("invalid max retries: %w", err)
	}
	cfg.Client.MaxRetries = maxRetries

	baseBackoff, err := getEnvTimeDefault("CLIENT_BASE_BACKOFF", "250ms")
	if err != nil {
		return nil, fmt.Errorf("invalid base backoff: %w", err)
	}
	cfg.Client.BaseBackoff = baseBackoff

	if err := loadDB(&cfg.DB); err != nil {
		return nil, err
	}

	readTimeout, err := getEnvTimeDefault("SERVER_READ_TIMEOUT", "5s")
	if err != nil {
		return nil, fmt.Errorf("invalid read timeout: %w", err)
	}
	cfg.Server.ReadTimeout = readTimeout

	writeTimeout, err := getEnvTimeDefault("SERVER_WRITE_TIMEOUT", "10s")
	if err != nil {
		return nil, fmt.Errorf("invalid write timeout: %w", err)
	}
	cfg.Server.WriteTimeout = writeTimeout

	idleTimeout, err := getEnvTimeDefault("SERVER_IDLE_TIMEOUT", "120s")
	if err != nil {
		return nil, fmt.Errorf("invalid idle timeout: %w", err)
	}
	cfg.Server.IdleTimeout = idleTimeout

	shutdownTimeout, err := getEnvTimeDefault("SERVER_SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, fmt.Errorf("invalid shutdown timeout: %w", err)
	}
	cfg.Server.ShutdownTimeout = shutdownTimeout

	requestTimeout, err := getEnvTimeDefault("REQUEST_TIMEOUT", "10s")
	if err != nil {
		return nil, fmt.Errorf("invalid request timeout: %w", err)
	}
	cfg.Server.RequestTimeout = requestTimeout

	corsOrigin, err := getEnvStringDefault("CORS_ALLOWED_ORIGIN", "*")
	if err != nil {
		return nil, fmt.Errorf("invalid cors origin: %w", err)
	}
	cfg.Server.CORSOrigin = corsOrigin

	// Every page action costs a browser request plus one or two loopback
	// requests from the frontend to the API, all billed to that browser.
	rateLimitPerSec, err := getEnvFloatDefault("RATE_LIMIT_PER_SEC", "20")
	if err != nil {
		return nil, fmt.Errorf("invalid rate limit: %w", err)
	}
	cfg.Server.RateLimitPerSec = rateLimitPerSec

	rateBurst, err := getEnvIntDefault("RATE_BURST", "40")
	if err != nil {
		return nil, fmt.Errorf("invalid rate burst: %w", err)
	}
	cfg.Server.RateBurst = rateBurst

	rateLimitIdle, err := getEnvTimeDefault("RATE_LIMIT_IDLE", "10m")
	if err != nil {
		return nil, fmt.Errorf("invalid rate limit idle window: %w", err)
	}
	cfg.Server.RateLimitIdle = rateLimitIdle

	serviceName, err := getEnvStringDefault("OTEL_SERVICE_NAME", "movie-catalog")
	if err != nil {
		return nil, fmt.Errorf("invalid service name: %w", err)
	}
	cfg.Telemetry.ServiceName = serviceName

	exporter, err := getEnvStringDefault("OTEL_TRACES_EXPORTER", "none")
	if err != nil {
		return nil, fmt.Errorf("invalid traces exporter: %w", err)
	}
	switch exporter {
	case "none", "stdout", "otlp":
	default:
		return nil, fmt.Errorf("invalid traces exporter: %q (want none, stdout or otlp)", exporter)
	}
	cfg.Telemetry.TraceExporter = exporter
	cfg.Telemetry.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")

	sessionTTL, err := getEnvTimeDefault("UI_SESSION_TTL", "30m")
	if err != nil {
		return nil, fmt.Errorf("invalid session ttl: %w", err)
	}
	cfg.UI.SessionTTL = sessionTTL

	secureCookie, err := getEnvBoolDefault("UI_SECURE_COOKIE", "false")
	if err != nil {
		return nil, fmt.Errorf("invalid secure cookie flag: %w", err)
	}
	cfg.UI.SecureCookie = secureCookie

	cfg.Importer.QueueURL = os.Getenv("IMPORT_QUEUE_URL")

	waitSeconds, err := getEnvIntDefault("IMPORT_WAIT_SECONDS", "20")
	if err != nil {
		return nil, fmt.Errorf("invalid import wait: %w", err)
	}
	cfg.Importer.WaitSeconds = waitSeconds

	return &cfg, nil
}

func loadDB(db *DBConfig) error {
	backend, err := getEnvStringDefault("STORE_BACKEND", BackendSQLite)
	if err != nil {
		return fmt.Errorf("invalid store backend: %w", err)
	}
	db.Backend = backend

	switch backend {
	case BackendSQLite:
		path, err := getEnvStringDefault("SQLITE_PATH", "movies.db")
		if err != nil {
			return fmt.Errorf("invalid sqlite path: %w", err)
		}
		db.Path = path
	case BackendNeo4j:
		uri, err := getEnvString("NEO4J_URI")
		if err != nil {
			return fmt.Errorf("missing env: %w", err)
		}
		db.URI = uri

		user, err := getEnvString("NEO4J_USER")
		if err != nil {
			return fmt.Errorf("missing env: %w", err)
		}
		db.User = user

		pass, err := getEnvString("NEO4J_PASSWORD")
		if err != nil {
			return fmt.Errorf("missing env: %w", err)
		}
		db.Pass = pass
	case BackendDynamoDB:
		table, err := getEnvString("DYNAMODB_TABLE")
		if err != nil {
			return fmt.Errorf("missing env: %w", err)
		}
		db.Table = table
	default:
		return fmt.Errorf("invalid store backend: %q", backend)
	}
	return nil
}

// loadDotEnv reads a .env file and sets any variable not already present in
// the environment. It silently does nothing if the file doesn't exist.
func loadDotEnv(path string) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
	return scanner.Err()
}

func getEnvString(key string) (string, error) {
	result := os.Getenv(key)
	if result == "" {
		return "", fmt.Errorf("%s not defined", key)
	}
	return result, nil
}

func getEnvStringDefault(key, defaultValue string) (string, error) {
	result := os.Getenv(key)
	if result == "" {
		result = defaultValue
	}
	return result, nil
}

func getEnvTimeDefault(key, defaultValue string) (time.Duration, error) {
	result := os.Getenv(key)
	if result == "" {
		result = defaultValue
	}

	duration, err := time.ParseDuration(result)
	if err != nil {
		return 0, fmt.Errorf("error parsing duration: %w", err)
	}
	return duration, nil
}

func getEnvIntDefault(key, defaultValue string) (int, error) {
	result := os.Getenv(key)
	if result == "" {
		result = defaultValue
	}
	value, err := strconv.Atoi(result)
	if err != nil {
		return 0, fmt.Errorf("error parsing env: %w", err)
	}
	return value, nil
}

func getEnvFloatDefault(key, defaultValue string) (float64, error) {
	result := os.Getenv(key)
	if result == "" {
		result = defaultValue
	}
	value, err := strconv.ParseFloat(result, 64)
	if err != nil {
		return 0, fmt.Errorf("error parsing env: %w", err)
	}
	return value, nil
}

func getEnvBoolDefault(key, defaultValue string) (bool, error) {
	result := os.Getenv(key)
	if result == "" {
		result = defaultValue
	}
	value, err := strconv.ParseBool(result)
	if err != nil {
		return false, fmt.Errorf("error parsing env: %w", err)
	}
	return value, nil
}
