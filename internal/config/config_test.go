package config

import (
	"os"
	"path/filepath"
	"testing"

	assert "github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "port: 3000\n"))
	assert.NoError(t, err)
	assert.Equal(t, 3000, cfg.Port)
	assert.True(t, cfg.IsDev())
	assert.Equal(t, "questline-core", cfg.Tables.Core)
	assert.Equal(t, "questline-guilds", cfg.Tables.Guild)
	assert.Equal(t, 300, cfg.Cache.TTLSeconds)
	assert.Equal(t, 20, cfg.Limits.InvitesPerUserPerHour)
	assert.Equal(t, 30, cfg.Limits.ChatMessagesPerMinute)
	assert.Contains(t, cfg.Avatar.AllowedTypes, "image/png")
}

func TestLoadYAMLValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
port: 8080
env: production
redis_url: redis.internal:6380
allowed_origins: [" https://app.questline.dev ", ""]
tables:
  core: ql-core
  guild: ql-guilds
jwt:
  issuer: questline-prod
  audience: questline-prod-api
  secret: local-secret
limits:
  invites_per_user_per_hour: 5
`))
	assert.NoError(t, err)
	assert.False(t, cfg.IsDev())
	assert.Equal(t, "redis://redis.internal:6380", cfg.RedisURL)
	assert.Equal(t, []string{"https://app.questline.dev"}, cfg.AllowedOrigins)
	assert.Equal(t, "ql-core", cfg.Tables.Core)
	assert.Equal(t, "questline-prod", cfg.JWT.Issuer)
	assert.Equal(t, 5, cfg.Limits.InvitesPerUserPerHour)
}

func TestEnvOverridesWin(t *testing.T) {
	t.Setenv("CORE_TABLE", "env-core")
	t.Setenv("GUILD_TABLE", "env-guilds")
	t.Setenv("JWT_ISSUER", "env-issuer")
	t.Setenv("JWT_AUDIENCE", "env-aud")
	t.Setenv("JWT_SECRET_PARAM", "/questline/prod/jwt-secret")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("RATE_LIMIT_REQUESTS_PER_HOUR", "250")
	t.Setenv("MAX_INVITES_PER_USER_PER_HOUR", "7")
	t.Setenv("MAX_COMMENTS_PER_USER_PER_HOUR", "11")
	t.Setenv("AVATAR_MAX_SIZE_MB", "2")
	t.Setenv("AVATAR_ALLOWED_TYPES", "image/png")
	t.Setenv("CACHE_TTL_SECONDS", "60")
	t.Setenv("FRONTEND_BASE_URL", "https://app.example/")

	cfg, err := Load(writeConfig(t, "tables:\n  core: file-core\n"))
	assert.NoError(t, err)
	assert.Equal(t, "env-core", cfg.Tables.Core)
	assert.Equal(t, "env-guilds", cfg.Tables.Guild)
	assert.Equal(t, "env-issuer", cfg.JWT.Issuer)
	assert.Equal(t, "env-aud", cfg.JWT.Audience)
	assert.Equal(t, "/questline/prod/jwt-secret", cfg.JWT.SecretParam)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 250, cfg.Limits.RequestsPerHour)
	assert.Equal(t, 7, cfg.Limits.InvitesPerUserPerHour)
	assert.Equal(t, 11, cfg.Limits.CommentsPerUserPerHour)
	assert.Equal(t, 2, cfg.Avatar.MaxSizeMB)
	assert.Equal(t, []string{"image/png"}, cfg.Avatar.AllowedTypes)
	assert.Equal(t, 60, cfg.Cache.TTLSeconds)
	assert.Equal(t, "https://app.example", cfg.FrontendBaseURL)
}

func TestLoadRejectsBadPort(t *testing.T) {
	_, err := Load(writeConfig(t, "port: 99999\n"))
	assert.Error(t, err)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := Load(writeConfig(t, "prot: 8080\n"))
	assert.Error(t, err)
}

func TestMissingDefaultFileFallsBackToEnv(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	assert.NoError(t, err)
	assert.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load("")
	assert.NoError(t, err)
	assert.Equal(t, defaultPort, cfg.Port)
}
