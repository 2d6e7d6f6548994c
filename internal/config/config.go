// Package config loads process-wide configuration from the environment,
// grounded on LittleSquirrel00-uniedit-server's
// internal/infra/config.Load, adapted from a YAML-plus-env loader to a
// pure-environment one since spec.md §6 specifies env vars only.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config is the full set of settings recognised by this service.
type Config struct {
	AppName        string
	AppEnvironment string

	DatabaseDSN string

	ReconcileEnabled        bool
	ReconcileIntervalSecs   int
	ReconcileAttemptOffsets []int
	ReconcileBatchSize      int
	ReconcilePollingProviders []string
	AbandonedTimeoutMinutes int

	CRMEnabled            bool
	CRMBaseURL            string
	CRMPagarPath          string
	CRMAuthBearer         string
	CRMTimeoutSeconds     int
	CRMRetryBackoff       []int
	CRMBreakerFailureThreshold uint32
	CRMBreakerOpenSeconds      int

	HeartbeatIntervalSecs int

	HealthAddr  string
	MetricsAddr string

	KafkaBrokers          []string
	KafkaTransitionsTopic string

	StripeAPIKey string

	WalletAppID      string
	WalletPrivateKey string
	WalletPublicKey  string
	WalletIsProd     bool

	LocalPSPAccessToken string
}

// Load reads configuration from the process environment. It never reads a
// config file: every key in spec.md §6 is bound directly via
// viper.BindEnv so the deployment contract stays exactly what spec.md
// documents.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	bind(v,
		"APP_NAME", "APP_ENVIRONMENT", "DATABASE_DSN",
		"RECONCILE_ENABLED", "RECONCILE_INTERVAL_SECONDS", "RECONCILE_ATTEMPT_OFFSETS",
		"RECONCILE_BATCH_SIZE", "RECONCILE_POLLING_PROVIDERS", "ABANDONED_TIMEOUT_MINUTES",
		"CRM_ENABLED", "CRM_BASE_URL", "CRM_PAGAR_PATH", "CRM_AUTH_BEARER",
		"CRM_TIMEOUT_SECONDS", "CRM_RETRY_BACKOFF",
		"CRM_BREAKER_FAILURE_THRESHOLD", "CRM_BREAKER_OPEN_SECONDS",
		"HEARTBEAT_INTERVAL_SECONDS", "HEALTH_ADDR", "METRICS_ADDR",
		"KAFKA_BROKERS", "KAFKA_TRANSITIONS_TOPIC",
		"STRIPE_API_KEY",
		"WALLET_APP_ID", "WALLET_PRIVATE_KEY", "WALLET_PUBLIC_KEY", "WALLET_IS_PROD",
		"LOCALPSP_ACCESS_TOKEN",
	)

	setDefaults(v)

	offsets, err := csvInts(v.GetString("RECONCILE_ATTEMPT_OFFSETS"), []int{60, 180, 900, 1800})
	if err != nil {
		return nil, fmt.Errorf("parse RECONCILE_ATTEMPT_OFFSETS: %w", err)
	}
	backoff, err := csvInts(v.GetString("CRM_RETRY_BACKOFF"), []int{60, 300, 1800})
	if err != nil {
		return nil, fmt.Errorf("parse CRM_RETRY_BACKOFF: %w", err)
	}

	cfg := &Config{
		AppName:        v.GetString("APP_NAME"),
		AppEnvironment: v.GetString("APP_ENVIRONMENT"),
		DatabaseDSN:    v.GetString("DATABASE_DSN"),

		ReconcileEnabled:          v.GetBool("RECONCILE_ENABLED"),
		ReconcileIntervalSecs:     v.GetInt("RECONCILE_INTERVAL_SECONDS"),
		ReconcileAttemptOffsets:   offsets,
		ReconcileBatchSize:        v.GetInt("RECONCILE_BATCH_SIZE"),
		ReconcilePollingProviders: csvStrings(v.GetString("RECONCILE_POLLING_PROVIDERS"), []string{"local-redirect-psp", "card-psp", "wallet-psp"}),
		AbandonedTimeoutMinutes:   v.GetInt("ABANDONED_TIMEOUT_MINUTES"),

		CRMEnabled:                 v.GetBool("CRM_ENABLED"),
		CRMBaseURL:                 v.GetString("CRM_BASE_URL"),
		CRMPagarPath:               v.GetString("CRM_PAGAR_PATH"),
		CRMAuthBearer:              v.GetString("CRM_AUTH_BEARER"),
		CRMTimeoutSeconds:          v.GetInt("CRM_TIMEOUT_SECONDS"),
		CRMRetryBackoff:            backoff,
		CRMBreakerFailureThreshold: uint32(v.GetInt("CRM_BREAKER_FAILURE_THRESHOLD")),
		CRMBreakerOpenSeconds:      v.GetInt("CRM_BREAKER_OPEN_SECONDS"),

		HeartbeatIntervalSecs: v.GetInt("HEARTBEAT_INTERVAL_SECONDS"),
		HealthAddr:            v.GetString("HEALTH_ADDR"),
		MetricsAddr:           v.GetString("METRICS_ADDR"),

		KafkaBrokers:          csvStrings(v.GetString("KAFKA_BROKERS"), nil),
		KafkaTransitionsTopic: v.GetString("KAFKA_TRANSITIONS_TOPIC"),

		StripeAPIKey: v.GetString("STRIPE_API_KEY"),

		WalletAppID:      v.GetString("WALLET_APP_ID"),
		WalletPrivateKey: v.GetString("WALLET_PRIVATE_KEY"),
		WalletPublicKey:  v.GetString("WALLET_PUBLIC_KEY"),
		WalletIsProd:     v.GetBool("WALLET_IS_PROD"),

		LocalPSPAccessToken: v.GetString("LOCALPSP_ACCESS_TOKEN"),
	}

	if cfg.DatabaseDSN == "" {
		return nil, fmt.Errorf("DATABASE_DSN is required")
	}

	return cfg, nil
}

func bind(v *viper.Viper, keys ...string) {
	for _, k := range keys {
		_ = v.BindEnv(k)
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_NAME", "ninja-payments-reconciler")
	v.SetDefault("APP_ENVIRONMENT", "local")

	v.SetDefault("RECONCILE_ENABLED", true)
	v.SetDefault("RECONCILE_INTERVAL_SECONDS", 15)
	v.SetDefault("RECONCILE_BATCH_SIZE", 100)
	v.SetDefault("ABANDONED_TIMEOUT_MINUTES", 60)

	v.SetDefault("CRM_ENABLED", true)
	v.SetDefault("CRM_PAGAR_PATH", "/pagar")
	v.SetDefault("CRM_TIMEOUT_SECONDS", 10)
	v.SetDefault("CRM_BREAKER_FAILURE_THRESHOLD", 5)
	v.SetDefault("CRM_BREAKER_OPEN_SECONDS", 30)

	v.SetDefault("HEARTBEAT_INTERVAL_SECONDS", 60)
	v.SetDefault("HEALTH_ADDR", ":8080")
	v.SetDefault("METRICS_ADDR", ":9090")

	v.SetDefault("WALLET_IS_PROD", false)
}

func csvInts(raw string, fallback []int) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return append([]int(nil), fallback...), nil
	}
	parts := strings.Split(raw, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return append([]int(nil), fallback...), nil
	}
	return out, nil
}

func csvStrings(raw string, fallback []string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return append([]string(nil), fallback...)
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), fallback...)
	}
	return out
}
