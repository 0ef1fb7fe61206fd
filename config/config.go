// Package config loads fern settings from defaults, an optional config file,
// a .env file and the environment, in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	AppName            string     `mapstructure:"app_name"`
	Version            string     `mapstructure:"version"`
	Port               int        `mapstructure:"port"`
	LogLevel           string     `mapstructure:"log_level"`
	PrettyLogs         bool       `mapstructure:"pretty_logs"`
	StartupMaxAttempts int        `mapstructure:"startup_max_attempts"`
	HTTPServer         HTTPServer `mapstructure:"http_server"`

	Database      Database      `mapstructure:"db"`
	Redis         Redis         `mapstructure:"redis"`
	GraphDB       GraphDB       `mapstructure:"graph_db"`
	Kafka         Kafka         `mapstructure:"kafka"`
	Tracing       Tracing       `mapstructure:"otel"`
	Import        Import        `mapstructure:"import"`
	Undo          Undo          `mapstructure:"undo"`
	Matching      Matching      `mapstructure:"matching"`
	Normalization Normalization `mapstructure:"normalization"`
}

type HTTPServer struct {
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	MaxHeaderBytes    int           `mapstructure:"max_header_bytes"`
	BodyLimit         string        `mapstructure:"body_limit"`
}

type Database struct {
	Host                  string        `mapstructure:"host"`
	Port                  int           `mapstructure:"port"`
	UserName              string        `mapstructure:"user_name"`
	Password              string        `mapstructure:"password"`
	Name                  string        `mapstructure:"name"`
	SSLMode               string        `mapstructure:"ssl_mode"`
	MaxOpenConns          int           `mapstructure:"max_open_conns"`
	MaxIdleConns          int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime       time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationFolderPath   string        `mapstructure:"migration_folder_path"`
	MigrationVersion      int           `mapstructure:"migration_version"`
	MigrationForce        int           `mapstructure:"migration_force"`
	MigrationAutoRollback bool          `mapstructure:"migration_auto_rollback"`
}

type Redis struct {
	Enabled    bool   `mapstructure:"enabled"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	LockPrefix string `mapstructure:"lock_prefix"`
	DLQStream  string `mapstructure:"dlq_stream"`
}

type GraphDB struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

type Kafka struct {
	Brokers         []string      `mapstructure:"brokers"`
	ProducerEnabled bool          `mapstructure:"producer_enabled"`
	EventsTopic     string        `mapstructure:"events_topic"`
	BatchSize       int           `mapstructure:"batch_size"`
	BatchTimeout    time.Duration `mapstructure:"batch_timeout"`
	RequiredAcks    int           `mapstructure:"required_acks"`
	Compression     string        `mapstructure:"compression"`
	ConsumerEnabled bool          `mapstructure:"consumer_enabled"`
	MapsImportTopic string        `mapstructure:"maps_import_topic"`
	ConsumerGroup   string        `mapstructure:"consumer_group"`
}

type Tracing struct {
	Exporter    string        `mapstructure:"exporter"`
	Endpoint    string        `mapstructure:"endpoint"`
	Protocol    string        `mapstructure:"protocol"`
	Insecure    bool          `mapstructure:"insecure"`
	Timeout     time.Duration `mapstructure:"timeout"`
	SampleRatio float64       `mapstructure:"sample_ratio"`
}

type Import struct {
	BatchSize            int           `mapstructure:"batch_size"`
	Parallelism          int           `mapstructure:"parallelism"`
	LockTTL              time.Duration `mapstructure:"lock_ttl"`
	LedgerCreateAttempts int           `mapstructure:"ledger_create_attempts"`
	LedgerRetryDelay     time.Duration `mapstructure:"ledger_retry_delay"`
}

type Undo struct {
	Window                time.Duration `mapstructure:"window"`
	ModificationTolerance time.Duration `mapstructure:"modification_tolerance"`
	PageSize              int           `mapstructure:"page_size"`
	DeleteBatchSize       int           `mapstructure:"delete_batch_size"`
	LockTTL               time.Duration `mapstructure:"lock_ttl"`
}

type Matching struct {
	FuzzyThreshold float64 `mapstructure:"fuzzy_threshold"`
	EnableFuzzy    bool    `mapstructure:"enable_fuzzy"`
}

type Normalization struct {
	PageSize int `mapstructure:"page_size"`
}

var defaults = map[string]any{
	"app_name":             "fern",
	"version":              "dev",
	"port":                 3010,
	"log_level":            "info",
	"pretty_logs":          false,
	"startup_max_attempts": 5,

	"http_server.read_timeout":        "30s",
	"http_server.write_timeout":       "120s",
	"http_server.idle_timeout":        "60s",
	"http_server.read_header_timeout": "10s",
	"http_server.max_header_bytes":    64000,
	"http_server.body_limit":          "20M",

	"db.host":                    "localhost",
	"db.port":                    5432,
	"db.user_name":               "",
	"db.password":                "",
	"db.name":                    "fern",
	"db.ssl_mode":                "disable",
	"db.max_open_conns":          25,
	"db.max_idle_conns":          10,
	"db.conn_max_lifetime":       "10m",
	"db.migration_folder_path":   "db/pg",
	"db.migration_version":       0,
	"db.migration_force":         0,
	"db.migration_auto_rollback": true,

	"redis.enabled":     true,
	"redis.host":        "localhost",
	"redis.port":        6379,
	"redis.password":    "",
	"redis.db":          0,
	"redis.lock_prefix": "fern:lock:",
	"redis.dlq_stream":  "fern:dlq:maps-import",

	"graph_db.enabled":  false,
	"graph_db.host":     "localhost",
	"graph_db.port":     7687,
	"graph_db.user":     "",
	"graph_db.password": "",

	"kafka.brokers":           "localhost:9092",
	"kafka.producer_enabled":  false,
	"kafka.events_topic":      "fern-events",
	"kafka.batch_size":        100,
	"kafka.batch_timeout":     "100ms",
	"kafka.required_acks":     1,
	"kafka.compression":       "snappy",
	"kafka.consumer_enabled":  false,
	"kafka.maps_import_topic": "maps-import",
	"kafka.consumer_group":    "fern-maps-import",

	"otel.exporter":     "none",
	"otel.endpoint":     "localhost:4317",
	"otel.protocol":     "grpc",
	"otel.insecure":     true,
	"otel.timeout":      "10s",
	"otel.sample_ratio": 1.0,

	"import.batch_size":             100,
	"import.parallelism":            8,
	"import.lock_ttl":               "10m",
	"import.ledger_create_attempts": 3,
	"import.ledger_retry_delay":     "200ms",

	"undo.window":                 "5m",
	"undo.modification_tolerance": "2s",
	"undo.page_size":              500,
	"undo.delete_batch_size":      100,
	"undo.lock_ttl":               "5m",

	"matching.fuzzy_threshold": 0.6,
	"matching.enable_fuzzy":    true,

	"normalization.page_size": 500,
}

// Load reads configuration. Keys map to upper-case env vars with dots replaced by
// underscores, so db.host is DB_HOST. FERN_CONFIG names an optional yaml file and
// FERN_ENV_FILE an optional dotenv file (default .env).
func Load() (*Config, error) {
	envFile := os.Getenv("FERN_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if path := os.Getenv("FERN_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &c, nil
}
