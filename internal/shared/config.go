package shared

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	AppEnv      string
	LogLevel    string
	HTTPAddr    string
	MetricsAddr string
	MySQLDSN    string
	RedisAddr   string
	RedisDB     int
	RedisPass   string
	CacheTTL    time.Duration
	RegistryTTL time.Duration
	JWTSecret   string

	// logical clock: height = (now - ClockGenesis) / ClockInterval
	ClockGenesis  time.Time
	ClockInterval time.Duration

	DirectoryBase string
	DirectoryKey  string
	DirectoryRPS  int
	Workers       int
	LocationIDs   []uint64
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_env", "prod")
	v.SetDefault("log_level", "info")
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("mysql_dsn", "root:root@tcp(localhost:3306)/ledger?parseTime=true&multiStatements=true&charset=utf8mb4,utf8&loc=UTC")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("cache_ttl_seconds", 900)
	v.SetDefault("registry_cache_ttl_seconds", 60)
	v.SetDefault("jwt_secret", "")
	v.SetDefault("clock_genesis", "2024-01-01T00:00:00Z")
	v.SetDefault("clock_interval_seconds", 600)
	v.SetDefault("directory_base_url", "http://localhost:9090/v1")
	v.SetDefault("directory_api_key", "")
	v.SetDefault("directory_rps", 5)
	v.SetDefault("sync_workers", 8)
	v.SetDefault("sync_location_ids", "")
}

// Load reads defaults, an optional ledger.yaml (./ or /etc/review-ledger/),
// then environment variables, which win.
func Load() Config {
	v := viper.New()
	setDefaults(v)
	v.SetConfigName("ledger")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/review-ledger")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			log.Warn().Err(err).Msg("config file ignored")
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) Config {
	genesis, err := time.Parse(time.RFC3339, v.GetString("clock_genesis"))
	if err != nil {
		log.Warn().Err(err).Str("value", v.GetString("clock_genesis")).Msg("CLOCK_GENESIS invalid, using 2024-01-01")
		genesis = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	c := Config{
		AppEnv:        v.GetString("app_env"),
		LogLevel:      v.GetString("log_level"),
		HTTPAddr:      v.GetString("http_addr"),
		MetricsAddr:   v.GetString("metrics_addr"),
		MySQLDSN:      v.GetString("mysql_dsn"),
		RedisAddr:     v.GetString("redis_addr"),
		RedisPass:     v.GetString("redis_password"),
		RedisDB:       v.GetInt("redis_db"),
		CacheTTL:      time.Duration(v.GetInt("cache_ttl_seconds")) * time.Second,
		RegistryTTL:   time.Duration(v.GetInt("registry_cache_ttl_seconds")) * time.Second,
		JWTSecret:     v.GetString("jwt_secret"),
		ClockGenesis:  genesis,
		ClockInterval: time.Duration(v.GetInt("clock_interval_seconds")) * time.Second,
		DirectoryBase: v.GetString("directory_base_url"),
		DirectoryKey:  v.GetString("directory_api_key"),
		DirectoryRPS:  v.GetInt("directory_rps"),
		Workers:       v.GetInt("sync_workers"),
		LocationIDs:   parseIDs(v.GetString("sync_location_ids")),
	}
	if c.ClockInterval <= 0 {
		c.ClockInterval = 10 * time.Minute
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.JWTSecret == "" {
		log.Warn().Msg("JWT_SECRET is empty")
	}
	return c
}

// parseIDs accepts "1,2, 3" and skips anything that is not a positive integer.
func parseIDs(s string) []uint64 {
	var out []uint64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.ParseUint(part, 10, 64)
		if err != nil || n == 0 {
			log.Warn().Str("value", part).Msg("SYNC_LOCATION_IDS entry skipped")
			continue
		}
		out = append(out, n)
	}
	return out
}
