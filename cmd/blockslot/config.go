package main

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"blockslot/admission/application"

	"github.com/spf13/pflag"
)

type config struct {
	listenAddr string

	blockInterval    time.Duration
	capacity         int
	reservationDelay int
	reserveCost      int
	startingTokens   int
	sendBuffer       int

	rateEnabled   bool
	rateRPS       float64
	rateBurst     int
	rateKeyHeader string
	trustXFF      bool
	retryAfter    time.Duration
	addHeaders    bool

	sessionsMax     int
	sessionsTimeout time.Duration

	statsRedisAddr     string
	statsRedisPassword string
	statsRedisDB       int
	statsPrefix        string
	statsTTL           time.Duration
	statsTrackClients  bool
	statsTimeout       time.Duration

	logLevel string
	logJSON  bool

	// invalid guarda variáveis de ambiente que não puderam ser lidas.
	invalid []string
}

// readConfig lê as variáveis de ambiente; as flags do cobra usam estes valores
// como default e podem sobrescrevê-los.
func readConfig() config {
	cfg := config{}
	cfg.listenAddr = getenvDefault("LISTEN_ADDR", ":5000")

	cfg.blockInterval = cfg.durationEnv("BLOCK_INTERVAL", 8*time.Second)
	cfg.capacity = getenvIntDefault("CAPACITY", 6)
	cfg.reservationDelay = getenvIntDefault("RESERVATION_DELAY", 2)
	cfg.reserveCost = getenvIntDefault("RESERVE_COST", 2)
	cfg.startingTokens = getenvIntDefault("STARTING_TOKENS", 10)
	cfg.sendBuffer = getenvIntDefault("SEND_BUFFER", 64)

	cfg.rateEnabled = getenvBoolDefault("RATE_ENABLED", true)
	cfg.rateRPS = getenvFloatDefault("RATE_RPS", 5)
	// Com RPS < 1 um burst alto esconde o limite nas primeiras conexões.
	if burst, ok := getenvInt("RATE_BURST"); ok {
		cfg.rateBurst = burst
	} else {
		cfg.rateBurst = 10
		if getenvIsSet("RATE_RPS") && cfg.rateRPS > 0 && cfg.rateRPS < 1 {
			cfg.rateBurst = 1
		}
	}
	cfg.rateKeyHeader = os.Getenv("RATE_KEY_HEADER")
	cfg.trustXFF = getenvBoolDefault("TRUST_XFF", false)
	cfg.retryAfter = cfg.durationEnv("RETRY_AFTER", time.Second)
	cfg.addHeaders = getenvBoolDefault("ADD_RATELIMIT_HEADERS", false)

	cfg.sessionsMax = getenvIntDefault("SESSIONS_MAX", 1000)
	cfg.sessionsTimeout = cfg.durationEnv("SESSIONS_TIMEOUT", 0)

	cfg.statsRedisAddr = getenvDefault("STATS_REDIS_ADDR", "")
	cfg.statsRedisPassword = os.Getenv("STATS_REDIS_PASSWORD")
	cfg.statsRedisDB = getenvIntDefault("STATS_REDIS_DB", 0)
	cfg.statsPrefix = getenvDefault("STATS_PREFIX", "blockslot:stats")
	cfg.statsTTL = cfg.durationEnv("STATS_TTL", 24*time.Hour)
	cfg.statsTrackClients = getenvBoolDefault("STATS_TRACK_CLIENTS", false)
	cfg.statsTimeout = cfg.durationEnv("STATS_TIMEOUT", 250*time.Millisecond)

	cfg.logLevel = getenvDefault("LOG_LEVEL", "info")
	cfg.logJSON = getenvBoolDefault("LOG_JSON", false)
	return cfg
}

func (c *config) bindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.listenAddr, "listen", c.listenAddr, "HTTP listen address")
	fs.DurationVar(&c.blockInterval, "block-interval", c.blockInterval, "time between blocks")
	fs.IntVar(&c.capacity, "capacity", c.capacity, "transactions admitted per block")
	fs.IntVar(&c.reservationDelay, "reservation-delay", c.reservationDelay, "blocks between a reservation and its target")
	fs.IntVar(&c.reserveCost, "reserve-cost", c.reserveCost, "default tokens charged per reservation")
	fs.IntVar(&c.startingTokens, "starting-tokens", c.startingTokens, "tokens granted to a new client")
	fs.IntVar(&c.sendBuffer, "send-buffer", c.sendBuffer, "outbound queue size per session")

	fs.BoolVar(&c.rateEnabled, "rate-enabled", c.rateEnabled, "throttle /ws and /api per client")
	fs.Float64Var(&c.rateRPS, "rate-rps", c.rateRPS, "requests per second per client")
	fs.IntVar(&c.rateBurst, "rate-burst", c.rateBurst, "burst per client")
	fs.BoolVar(&c.trustXFF, "trust-xff", c.trustXFF, "use X-Forwarded-For as client key")
	fs.DurationVar(&c.retryAfter, "retry-after", c.retryAfter, "Retry-After sent when throttled")

	fs.StringVar(&c.logLevel, "log-level", c.logLevel, "log level (debug, info, warn, error)")
	fs.BoolVar(&c.logJSON, "log-json", c.logJSON, "log as JSON")
}

func (c config) admission() application.Config {
	return application.Config{
		BlockInterval:    c.blockInterval,
		Capacity:         c.capacity,
		ReservationDelay: c.reservationDelay,
		DefaultCost:      c.reserveCost,
		StartingTokens:   c.startingTokens,
	}
}

func (c config) statsEnabled() bool { return strings.TrimSpace(c.statsRedisAddr) != "" }

// validate devolve a primeira violação.
func (c config) validate() error {
	if len(c.invalid) > 0 {
		return errors.New(strings.Join(c.invalid, "; "))
	}
	if err := c.admission().Validate(); err != nil {
		return err
	}
	if c.sendBuffer <= 0 {
		return errors.New("SEND_BUFFER must be > 0")
	}
	if c.rateEnabled {
		if c.rateRPS <= 0 {
			return errors.New("RATE_RPS must be > 0")
		}
		if c.rateBurst <= 0 {
			return errors.New("RATE_BURST must be > 0")
		}
	}
	if c.statsTimeout <= 0 {
		return errors.New("STATS_TIMEOUT must be > 0")
	}
	if c.sessionsMax < 0 {
		return errors.New("SESSIONS_MAX must be >= 0")
	}
	return nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	if i, ok := getenvInt(k); ok {
		return i
	}
	return def
}

func getenvInt(k string) (int, bool) {
	v, ok := os.LookupEnv(k)
	if !ok || v == "" {
		return 0, false
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return i, true
}

func getenvIsSet(k string) bool {
	v, ok := os.LookupEnv(k)
	return ok && v != ""
}

func getenvFloatDefault(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// durationEnv lê uma duração do ambiente. Valor inválido não cai em silêncio
// no default: fica registrado e validate() recusa a config.
func (c *config) durationEnv(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := parseDuration(v)
	if err != nil {
		c.invalid = append(c.invalid, fmt.Sprintf("%s=%q: %v", k, v, err))
		return def
	}
	return d
}

// parseDuration aceita "8s", "250ms" ou segundos sem unidade ("8", "0.5").
func parseDuration(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		if math.IsNaN(secs) || math.IsInf(secs, 0) {
			return 0, errors.New("not a finite number of seconds")
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(v)
}
