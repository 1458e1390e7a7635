package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port           string
	AllowedOrigins []string
	FrontendURL    string

	// Peer transport (client side)
	SignalURL             string
	PeerTransport         string
	NatsURL               string
	TransportReadyTimeout time.Duration

	// Relay (server side)
	PeerTokenSecret    string
	PeerTokenTTL       time.Duration
	PeerReservationTTL time.Duration
	CleanupInterval    time.Duration

	DatabaseURL          string
	DBMaxOpenConns       int
	DBMaxIdleConns       int
	DBConnMaxLifetimeMin int

	RedisURL            string
	RedisPassword       string
	LeaderboardCacheTTL time.Duration

	LedgerBackend    string
	LedgerRPCURL     string
	LedgerContract   string
	LedgerPrivateKey string
	LedgerTimeout    time.Duration
	PlayerAddress    string

	MaxHealth int
}

const (
	TransportWebsocket = "websocket"
	TransportNats      = "nats"

	LedgerNone     = "none"
	LedgerEVM      = "evm"
	LedgerPostgres = "postgres"
)

// LoadConfig reads the environment. Callers pass the result down explicitly.
func LoadConfig() *Config {
	port := GetEnv("PORT", "8080")

	// Frontend & CORS
	frontendURL := GetEnv("FRONTEND_URL", "http://localhost:5173")
	allowedOriginsStr := GetEnv("ALLOWED_ORIGINS", "")

	// Build allowed origins list (Frontend URL + Localhost + CSV values)
	allowedOrigins := []string{
		frontendURL,
		"http://localhost:5173",
	}
	if allowedOriginsStr != "" {
		for _, origin := range strings.Split(allowedOriginsStr, ",") {
			trimmed := strings.TrimSpace(origin)
			if trimmed != "" {
				allowedOrigins = append(allowedOrigins, trimmed)
			}
		}
	}

	return &Config{
		Port:           port,
		AllowedOrigins: allowedOrigins,
		FrontendURL:    frontendURL,

		SignalURL:             GetEnv("SIGNAL_URL", "ws://localhost:"+port+"/peer"),
		PeerTransport:         strings.ToLower(GetEnv("PEER_TRANSPORT", TransportWebsocket)),
		NatsURL:               GetEnv("NATS_URL", "nats://127.0.0.1:4222"),
		TransportReadyTimeout: GetEnvAsDuration("TRANSPORT_READY_TIMEOUT_SECONDS", 10, time.Second),

		PeerTokenSecret:    GetEnv("PEER_TOKEN_SECRET", "change-this-peer-token-secret"),
		PeerTokenTTL:       GetEnvAsDuration("PEER_TOKEN_TTL_MINUTES", 60, time.Minute),
		PeerReservationTTL: GetEnvAsDuration("PEER_RESERVATION_SECONDS", 30, time.Second),
		CleanupInterval:    GetEnvAsDuration("CLEANUP_INTERVAL_SECONDS", 60, time.Second),

		DatabaseURL:          GetEnv("DATABASE_URL", GetEnv("DATABASE_URI", "")),
		DBMaxOpenConns:       GetEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:       GetEnvAsInt("DB_MAX_IDLE_CONNS", 25),
		DBConnMaxLifetimeMin: GetEnvAsInt("DB_CONN_MAX_LIFETIME_MINUTES", 5),

		RedisURL:            GetEnv("REDIS_URL", "localhost:6379"),
		RedisPassword:       GetEnv("REDIS_PASSWORD", ""),
		LeaderboardCacheTTL: GetEnvAsDuration("LEADERBOARD_CACHE_SECONDS", 30, time.Second),

		LedgerBackend:    strings.ToLower(GetEnv("LEDGER_BACKEND", LedgerNone)),
		LedgerRPCURL:     GetEnv("LEDGER_RPC_URL", ""),
		LedgerContract:   GetEnv("LEDGER_CONTRACT", ""),
		LedgerPrivateKey: GetEnv("LEDGER_PRIVATE_KEY", ""),
		LedgerTimeout:    GetEnvAsDuration("LEDGER_TIMEOUT_SECONDS", 60, time.Second),
		PlayerAddress:    GetEnv("PLAYER_ADDRESS", ""),

		MaxHealth: GetEnvAsInt("MAX_HEALTH", 10),
	}
}

func GetEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func GetEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s: %s, using default: %d", key, valueStr, defaultValue)
		return defaultValue
	}
	return value
}

// GetEnvAsDuration reads an integer count of unit from the environment.
func GetEnvAsDuration(key string, defaultValue int, unit time.Duration) time.Duration {
	return time.Duration(GetEnvAsInt(key, defaultValue)) * unit
}
