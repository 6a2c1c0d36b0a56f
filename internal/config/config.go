package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"

	defaultPort             = 3000
	defaultEnv              = "development"
	defaultRedisURL         = "redis://localhost:6379/0"
	defaultCoreTable        = "questline-core"
	defaultGuildTable       = "questline-guilds"
	defaultRegion           = "us-east-1"
	defaultIssuer           = "questline"
	defaultAudience         = "questline-api"
	defaultCacheTTLSeconds  = 300
	defaultRequestsPerHour  = 1000
	defaultInvitesPerHour   = 20
	defaultCommentsPerHour  = 30
	defaultChatPerMinute    = 30
	defaultIPRequestsPer5m  = 2000
	defaultAvatarMaxSizeMB  = 5
	defaultArgonMemoryKiB   = 64 * 1024
	defaultArgonIterations  = 3
	defaultArgonParallelism = 2
)

// AppConfig holds runtime startup configuration loaded from YAML, with
// environment overrides for every deployment contract name.
type AppConfig struct {
	Port            int      `yaml:"port"`
	Env             string   `yaml:"env"` // "development" | "production"
	RedisURL        string   `yaml:"redis_url"`
	FrontendBaseURL string   `yaml:"frontend_base_url"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
	APIKeys         []string `yaml:"api_keys"`

	AWS     AWSConfig     `yaml:"aws"`
	Tables  TablesConfig  `yaml:"tables"`
	JWT     JWTConfig     `yaml:"jwt"`
	Limits  LimitsConfig  `yaml:"limits"`
	Avatar  AvatarConfig  `yaml:"avatar"`
	Cache   CacheConfig   `yaml:"cache"`
	Argon   ArgonConfig   `yaml:"argon"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// AWSConfig selects region and optional static credentials / endpoint
// override (local DynamoDB, MinIO).
type AWSConfig struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	AvatarBucket    string `yaml:"avatar_bucket"`
}

type TablesConfig struct {
	Core  string `yaml:"core"`
	Guild string `yaml:"guild"`
}

// JWTConfig carries token verification parameters. Secret is the dev-mode
// inline secret; SecretParam names the SSM parameter that holds it in
// production and wins when both are set. JWKSURL serves RS256 federated
// verification.
type JWTConfig struct {
	Issuer      string `yaml:"issuer"`
	Audience    string `yaml:"audience"`
	Secret      string `yaml:"secret"`
	SecretParam string `yaml:"secret_param"`
	JWKSURL     string `yaml:"jwks_url"`

	// Federated login provider (Google by default).
	FederatedIssuer   string `yaml:"federated_issuer"`
	FederatedAudience string `yaml:"federated_audience"`
	FederatedJWKSURL  string `yaml:"federated_jwks_url"`
}

type LimitsConfig struct {
	RequestsPerHour        int `yaml:"requests_per_hour"`
	InvitesPerUserPerHour  int `yaml:"invites_per_user_per_hour"`
	CommentsPerUserPerHour int `yaml:"comments_per_user_per_hour"`
	ChatMessagesPerMinute  int `yaml:"chat_messages_per_minute"`
	IPRequestsPer5Min      int `yaml:"ip_requests_per_5min"`
}

type AvatarConfig struct {
	MaxSizeMB    int      `yaml:"max_size_mb"`
	AllowedTypes []string `yaml:"allowed_types"`
}

type CacheConfig struct {
	TTLSeconds int  `yaml:"ttl_seconds"`
	Disable    bool `yaml:"disable"`
}

// ArgonConfig tunes the password KDF. Values are passed to argon2id verbatim.
type ArgonConfig struct {
	MemoryKiB   int `yaml:"memory_kib"`
	Iterations  int `yaml:"iterations"`
	Parallelism int `yaml:"parallelism"`
}

type WebhookConfig struct {
	SubscriptionSecret string `yaml:"subscription_secret"`
}

// Load reads the YAML file at configPath, applies environment overrides and
// validates the result. A missing file is not an error when every required
// value is supplied by environment.
func Load(configPath string) (*AppConfig, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = DefaultConfigPath
	}

	cfg := defaultAppConfig()

	content, err := os.ReadFile(path)
	switch {
	case err == nil:
		decoder := yaml.NewDecoder(bytes.NewReader(content))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse config file %q: %w", path, err)
		}
	case os.IsNotExist(err) && configPath == "":
	case os.IsNotExist(err) && path == DefaultConfigPath:
	default:
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}

	applyEnvOverrides(&cfg)
	normalize(&cfg)

	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d, expected 1-65535", cfg.Port)
	}
	if cfg.Tables.Core == "" || cfg.Tables.Guild == "" {
		return nil, fmt.Errorf("table names must not be empty")
	}
	if cfg.Cache.TTLSeconds < 0 {
		return nil, fmt.Errorf("invalid cache.ttl_seconds %d, expected >= 0", cfg.Cache.TTLSeconds)
	}
	if cfg.Argon.MemoryKiB < 8*1024 {
		return nil, fmt.Errorf("argon.memory_kib %d too small, expected >= 8192", cfg.Argon.MemoryKiB)
	}

	return &cfg, nil
}

func defaultAppConfig() AppConfig {
	return AppConfig{
		Port:     defaultPort,
		Env:      defaultEnv,
		RedisURL: defaultRedisURL,
		AWS: AWSConfig{
			Region: defaultRegion,
		},
		Tables: TablesConfig{
			Core:  defaultCoreTable,
			Guild: defaultGuildTable,
		},
		JWT: JWTConfig{
			Issuer:           defaultIssuer,
			Audience:         defaultAudience,
			FederatedIssuer:  "https://accounts.google.com",
			FederatedJWKSURL: "https://www.googleapis.com/oauth2/v3/certs",
		},
		Limits: LimitsConfig{
			RequestsPerHour:        defaultRequestsPerHour,
			InvitesPerUserPerHour:  defaultInvitesPerHour,
			CommentsPerUserPerHour: defaultCommentsPerHour,
			ChatMessagesPerMinute:  defaultChatPerMinute,
			IPRequestsPer5Min:      defaultIPRequestsPer5m,
		},
		Avatar: AvatarConfig{
			MaxSizeMB:    defaultAvatarMaxSizeMB,
			AllowedTypes: []string{"image/jpeg", "image/png", "image/webp"},
		},
		Cache: CacheConfig{
			TTLSeconds: defaultCacheTTLSeconds,
		},
		Argon: ArgonConfig{
			MemoryKiB:   defaultArgonMemoryKiB,
			Iterations:  defaultArgonIterations,
			Parallelism: defaultArgonParallelism,
		},
	}
}

// applyEnvOverrides maps the deployment contract names onto the config.
// Environment always wins over the file.
func applyEnvOverrides(cfg *AppConfig) {
	setString(&cfg.Tables.Core, "CORE_TABLE")
	setString(&cfg.Tables.Guild, "GUILD_TABLE")
	setString(&cfg.JWT.Issuer, "JWT_ISSUER")
	setString(&cfg.JWT.Audience, "JWT_AUDIENCE")
	setString(&cfg.JWT.SecretParam, "JWT_SECRET_PARAM")
	setString(&cfg.JWT.Secret, "JWT_SECRET")
	setString(&cfg.JWT.JWKSURL, "JWT_JWKS_URL")
	setString(&cfg.JWT.FederatedIssuer, "FEDERATED_ISSUER")
	setString(&cfg.JWT.FederatedAudience, "FEDERATED_AUDIENCE")
	setString(&cfg.JWT.FederatedJWKSURL, "FEDERATED_JWKS_URL")
	setString(&cfg.FrontendBaseURL, "FRONTEND_BASE_URL")
	setStringList(&cfg.AllowedOrigins, "ALLOWED_ORIGINS")
	setStringList(&cfg.APIKeys, "API_KEYS")
	setInt(&cfg.Limits.RequestsPerHour, "RATE_LIMIT_REQUESTS_PER_HOUR")
	setInt(&cfg.Limits.InvitesPerUserPerHour, "MAX_INVITES_PER_USER_PER_HOUR")
	setInt(&cfg.Limits.CommentsPerUserPerHour, "MAX_COMMENTS_PER_USER_PER_HOUR")
	setInt(&cfg.Avatar.MaxSizeMB, "AVATAR_MAX_SIZE_MB")
	setStringList(&cfg.Avatar.AllowedTypes, "AVATAR_ALLOWED_TYPES")
	setInt(&cfg.Cache.TTLSeconds, "CACHE_TTL_SECONDS")
	setString(&cfg.RedisURL, "REDIS_URL")
	setString(&cfg.AWS.Region, "AWS_REGION")
	setString(&cfg.AWS.Endpoint, "AWS_ENDPOINT_URL")
	setString(&cfg.AWS.AvatarBucket, "AVATAR_BUCKET")
	setString(&cfg.Webhook.SubscriptionSecret, "SUBSCRIPTION_WEBHOOK_SECRET")
	setString(&cfg.Env, "APP_ENV")
	setInt(&cfg.Port, "PORT")
}

func normalize(cfg *AppConfig) {
	cfg.Env = strings.ToLower(strings.TrimSpace(cfg.Env))
	if cfg.Env == "" {
		cfg.Env = defaultEnv
	}
	cfg.RedisURL = normalizeRedisURL(cfg.RedisURL)
	cfg.FrontendBaseURL = strings.TrimRight(strings.TrimSpace(cfg.FrontendBaseURL), "/")
	cfg.AllowedOrigins = trimList(cfg.AllowedOrigins)
	cfg.APIKeys = trimList(cfg.APIKeys)
	cfg.Avatar.AllowedTypes = lowerList(trimList(cfg.Avatar.AllowedTypes))
	cfg.Tables.Core = strings.TrimSpace(cfg.Tables.Core)
	cfg.Tables.Guild = strings.TrimSpace(cfg.Tables.Guild)
	cfg.JWT.Issuer = strings.TrimSpace(cfg.JWT.Issuer)
	cfg.JWT.Audience = strings.TrimSpace(cfg.JWT.Audience)
	cfg.JWT.SecretParam = strings.TrimSpace(cfg.JWT.SecretParam)
	cfg.JWT.JWKSURL = strings.TrimSpace(cfg.JWT.JWKSURL)

	if cfg.Limits.InvitesPerUserPerHour <= 0 {
		cfg.Limits.InvitesPerUserPerHour = defaultInvitesPerHour
	}
	if cfg.Limits.CommentsPerUserPerHour <= 0 {
		cfg.Limits.CommentsPerUserPerHour = defaultCommentsPerHour
	}
	if cfg.Limits.ChatMessagesPerMinute <= 0 {
		cfg.Limits.ChatMessagesPerMinute = defaultChatPerMinute
	}
	if cfg.Limits.IPRequestsPer5Min <= 0 {
		cfg.Limits.IPRequestsPer5Min = defaultIPRequestsPer5m
	}
	if cfg.Limits.RequestsPerHour <= 0 {
		cfg.Limits.RequestsPerHour = defaultRequestsPerHour
	}
	if cfg.Avatar.MaxSizeMB <= 0 {
		cfg.Avatar.MaxSizeMB = defaultAvatarMaxSizeMB
	}
	if cfg.Cache.TTLSeconds == 0 {
		cfg.Cache.TTLSeconds = defaultCacheTTLSeconds
	}
	if cfg.Argon.MemoryKiB <= 0 {
		cfg.Argon.MemoryKiB = defaultArgonMemoryKiB
	}
	if cfg.Argon.Iterations <= 0 {
		cfg.Argon.Iterations = defaultArgonIterations
	}
	if cfg.Argon.Parallelism <= 0 {
		cfg.Argon.Parallelism = defaultArgonParallelism
	}
}

func normalizeRedisURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return defaultRedisURL
	}
	if strings.HasPrefix(trimmed, "redis://") || strings.HasPrefix(trimmed, "rediss://") {
		return trimmed
	}
	return "redis://" + trimmed
}

func trimList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if v := strings.TrimSpace(item); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func lowerList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, strings.ToLower(item))
	}
	return out
}

func setString(dst *string, name string) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		*dst = v
	}
}

func setStringList(dst *[]string, name string) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return
	}
	*dst = trimList(strings.Split(raw, ","))
}

func setInt(dst *int, name string) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return
	}
	if v, err := strconv.Atoi(raw); err == nil {
		*dst = v
	}
}

func (c *AppConfig) IsDev() bool {
	return strings.EqualFold(c.Env, defaultEnv)
}
