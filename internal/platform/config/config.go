package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is centralized process configuration. Keep infra values here and
// pass typed config into builders.
type Config struct {
	ServiceName  string
	HTTPPort     string
	PostgresDSN  string
	KafkaBrokers []string

	Administrator       string
	GracePeriod         time.Duration
	InitialPolicy       string
	PolicyForbiddenFrom uint64
	PolicyForbiddenTo   uint64
}

func Load() (Config, error) {
	service := os.Getenv("SERVICE_NAME")
	if service == "" {
		service = "vaultd"
	}

	port := os.Getenv("HTTP_PORT")
	if port == "" {
		port = "8080"
	}

	var brokers []string
	for _, value := range strings.Split(os.Getenv("KAFKA_BROKERS"), ",") {
		value = strings.TrimSpace(value)
		if value != "" {
			brokers = append(brokers, value)
		}
	}
	if len(brokers) == 0 {
		brokers = []string{"localhost:9092"}
	}

	administrator := strings.TrimSpace(os.Getenv("VAULT_ADMINISTRATOR"))
	if administrator == "" {
		administrator = "vault-admin"
	}

	initialPolicy := strings.TrimSpace(strings.ToLower(os.Getenv("INITIAL_POLICY")))
	if initialPolicy == "" {
		initialPolicy = "allow"
	}

	return Config{
		ServiceName:  service,
		HTTPPort:     port,
		PostgresDSN:  os.Getenv("POSTGRES_DSN"),
		KafkaBrokers: brokers,

		Administrator:       administrator,
		GracePeriod:         time.Duration(envUint("GRACE_PERIOD_SECONDS", 3*24*60*60)) * time.Second,
		InitialPolicy:       initialPolicy,
		PolicyForbiddenFrom: envUint("POLICY_FORBIDDEN_FROM", 0),
		PolicyForbiddenTo:   envUint("POLICY_FORBIDDEN_TO", 0),
	}, nil
}

func envUint(name string, fallback uint64) uint64 {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return value
}
