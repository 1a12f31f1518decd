package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/xraph/pullpay/types"
)

// errNoMover is returned when the daemon would start with nothing able to
// fund wallets. It only ships the in-memory token ledger.
var errNoMover = errors.New("pullpayd settles through an in-memory token ledger with no way to fund it; " +
	"set DEV_MODE=true to enable the /dev faucet, or embed the engine with a real token mover")

// config is the daemon's environment-driven configuration.
type config struct {
	HTTPAddr         string
	LogLevel         slog.Level
	Escrow           string
	EvictAfter       int
	MaxChargesPerRun int
	Concurrency      int
	ProcessSchedule  string
	ProcessTimeout   time.Duration
	RedisAddr        string
	IPFSGateway      string
	MetadataS3Region string
	MetadataS3URL    string
	MetadataHTTP     bool
	MetadataPrivate  bool
	DevMode          bool
	DevSeedToken     string
	DevSeedAccounts  []string
	DevSeedAmount    types.Amount
	MetricsEnabled   bool
	AuditLog         bool
	ShutdownTimeout  time.Duration
}

// loadConfig reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func loadConfig() (*config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &config{
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		Escrow:           getEnv("ESCROW_ADDRESS", "escrow"),
		ProcessSchedule:  getEnv("PROCESS_SCHEDULE", "0 * * * * *"),
		RedisAddr:        getEnv("REDIS_ADDR", ""),
		IPFSGateway:      getEnv("IPFS_GATEWAY", ""),
		MetadataS3Region: getEnv("METADATA_S3", ""),
		MetadataS3URL:    getEnv("METADATA_S3_ENDPOINT", ""),
		DevSeedToken:     getEnv("DEV_SEED_TOKEN", ""),
		DevSeedAccounts:  getList("DEV_SEED_ACCOUNTS"),
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	collect(cfg.LogLevel.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))))

	var err error
	cfg.EvictAfter, err = getInt("EVICT_AFTER", 1)
	collect(err)
	cfg.MaxChargesPerRun, err = getInt("MAX_CHARGES_PER_RUN", 1)
	collect(err)
	cfg.Concurrency, err = getInt("CONCURRENCY", 4)
	collect(err)
	cfg.ProcessTimeout, err = getDuration("PROCESS_TIMEOUT", 5*time.Minute)
	collect(err)
	cfg.ShutdownTimeout, err = getDuration("SHUTDOWN_TIMEOUT", 15*time.Second)
	collect(err)
	cfg.MetricsEnabled, err = getBool("METRICS_ENABLED", true)
	collect(err)
	cfg.AuditLog, err = getBool("AUDIT_LOG", false)
	collect(err)
	cfg.MetadataHTTP, err = getBool("METADATA_ALLOW_HTTP", false)
	collect(err)
	cfg.MetadataPrivate, err = getBool("METADATA_ALLOW_PRIVATE", false)
	collect(err)
	cfg.DevMode, err = getBool("DEV_MODE", false)
	collect(err)
	cfg.DevSeedAmount, err = types.ParseAmount(getEnv("DEV_SEED_AMOUNT", "1000"))
	if err != nil {
		collect(fmt.Errorf("DEV_SEED_AMOUNT: %w", err))
	}

	switch {
	case !cfg.DevMode:
		collect(errNoMover)
	case len(cfg.DevSeedAccounts) > 0 && cfg.DevSeedToken == "":
		collect(errors.New("DEV_SEED_ACCOUNTS requires DEV_SEED_TOKEN"))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := getEnv(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := getEnv(key, "")
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getBool(key string, def bool) (bool, error) {
	v := getEnv(key, "")
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getList(key string) []string {
	var out []string
	for _, v := range strings.Split(getEnv(key, ""), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
