// Package config loads service settings from .env, an optional config.yaml and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"qalink/internal/qa"
)

// 配置键
const (
	KeyServerPort    = "server.port"
	KeySessionSecret = "server.session_secret"
	KeyDatabaseURL   = "database.url"
	KeyRedisAddr     = "redis.addr"
	KeyRedisPassword = "redis.password"
	KeyRedisDB       = "redis.db"
	KeySiteURL       = "server.site_url"
	KeyLogLevel      = "log.level"
	KeyLogFormat     = "log.format"

	KeyStoreTimeout  = "store.timeout"
	KeyNotifyTimeout = "notify.timeout"

	KeyRateLimitPerMinute = "ratelimit.votes_per_minute"
	KeyRateLimitBurst     = "ratelimit.burst"

	KeyAdminUsername = "admin.username"
	KeyAdminEmail    = "admin.email"
	KeyAdminPassword = "admin.password"

	KeyGoogleClientID     = "google.client_id"
	KeyGoogleClientSecret = "google.client_secret"

	KeyTopicCacheSize = "cache.topic_size"
	KeyTopicCacheTTL  = "cache.topic_ttl"

	KeyQAEnabled              = "qa.enabled"
	KeyQATags                 = "qa.tags"
	KeyQABlacklistTags        = "qa.blacklist_tags"
	KeyQAUndoWindow           = "qa.undo_vote_action_window"
	KeyQATrustLevelVoteLimits = "qa.trust_level_vote_limits"
	KeyQACommentLimitPerPost  = "qa.comment_limit_per_post"
	KeyQACommentMinRawLength  = "qa.comment_min_raw_length"
	KeyQACommentMaxRawLength  = "qa.comment_max_raw_length"
	KeyQAVotersLimit          = "qa.voters_limit"
	KeyQARankingCron          = "qa.ranking_cron"
)

const fallbackDSN = "host=localhost user=postgres password=postgres dbname=qalink port=5432 sslmode=disable"

// Config wraps a viper instance; all getters read through it.
type Config struct {
	vp *viper.Viper
}

// Load reads .env (if present), config.yaml (if present) and environment overrides.
// Environment variables use the key with dots replaced by underscores, e.g. QA_UNDO_VOTE_ACTION_WINDOW.
func Load(paths ...string) (*Config, error) {
	// .env 不存在时直接使用系统环境变量
	_ = godotenv.Load()

	vp := viper.New()
	setDefaults(vp)

	vp.SetConfigName("config")
	vp.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{"."}
	}
	for _, p := range paths {
		vp.AddConfigPath(p)
	}
	if err := vp.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()
	// 兼容旧的环境变量名
	_ = vp.BindEnv(KeyServerPort, "PORT")
	_ = vp.BindEnv(KeySessionSecret, "SESSION_SECRET")
	_ = vp.BindEnv(KeyDatabaseURL, "DATABASE_URL")
	_ = vp.BindEnv(KeySiteURL, "SITE_URL")
	_ = vp.BindEnv(KeyGoogleClientID, "GOOGLE_CLIENT_ID")
	_ = vp.BindEnv(KeyGoogleClientSecret, "GOOGLE_CLIENT_SECRET")

	return &Config{vp: vp}, nil
}

// New wraps an existing viper instance, used by tests.
func New(vp *viper.Viper) *Config {
	setDefaults(vp)
	return &Config{vp: vp}
}

func setDefaults(vp *viper.Viper) {
	vp.SetDefault(KeyServerPort, "8080")
	vp.SetDefault(KeySessionSecret, "secret_key_change_me")
	vp.SetDefault(KeyDatabaseURL, fallbackDSN)
	vp.SetDefault(KeySiteURL, "http://localhost:8080")
	vp.SetDefault(KeyRedisDB, 0)
	vp.SetDefault(KeyLogLevel, "info")
	vp.SetDefault(KeyLogFormat, "json")
	vp.SetDefault(KeyStoreTimeout, 5*time.Second)
	vp.SetDefault(KeyNotifyTimeout, 2*time.Second)
	vp.SetDefault(KeyRateLimitPerMinute, 60)
	vp.SetDefault(KeyRateLimitBurst, 10)
	vp.SetDefault(KeyTopicCacheSize, 1000)
	vp.SetDefault(KeyTopicCacheTTL, time.Minute)

	vp.SetDefault(KeyQAEnabled, true)
	vp.SetDefault(KeyQATags, []string{})
	vp.SetDefault(KeyQABlacklistTags, []string{})
	vp.SetDefault(KeyQAUndoWindow, 10)
	vp.SetDefault(KeyQATrustLevelVoteLimits, false)
	for tl, limit := range []int{1, 10, 10, 10, 10} {
		vp.SetDefault(voteLimitKey(tl), limit)
	}
	vp.SetDefault(KeyQACommentLimitPerPost, 20)
	vp.SetDefault(KeyQACommentMinRawLength, 5)
	vp.SetDefault(KeyQACommentMaxRawLength, 600)
	vp.SetDefault(KeyQAVotersLimit, 20)
	vp.SetDefault(KeyQARankingCron, "0 3 * * *")
}

func voteLimitKey(tl int) string {
	return fmt.Sprintf("qa.tl%d_vote_limit", tl)
}

func (c *Config) GetString(key string) string          { return c.vp.GetString(key) }
func (c *Config) GetInt(key string) int                { return c.vp.GetInt(key) }
func (c *Config) GetBool(key string) bool              { return c.vp.GetBool(key) }
func (c *Config) GetDuration(key string) time.Duration { return c.vp.GetDuration(key) }

// GetList reads a list setting. A single string value is split on "|" or ",".
func (c *Config) GetList(key string) []string {
	raw := c.vp.GetStringSlice(key)
	var out []string
	for _, item := range raw {
		for _, part := range strings.FieldsFunc(item, func(r rune) bool { return r == '|' || r == ',' }) {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// QAPolicy builds the voting policy consumed by the qa package.
func (c *Config) QAPolicy() qa.Policy {
	p := qa.Policy{
		Enabled:              c.GetBool(KeyQAEnabled),
		Tags:                 c.GetList(KeyQATags),
		BlacklistTags:        c.GetList(KeyQABlacklistTags),
		UndoWindowMinutes:    c.GetInt(KeyQAUndoWindow),
		TrustLevelVoteLimits: c.GetBool(KeyQATrustLevelVoteLimits),
		VotersLimit:          c.GetInt(KeyQAVotersLimit),
	}
	for tl := range p.VoteLimits {
		p.VoteLimits[tl] = c.GetInt(voteLimitKey(tl))
	}
	return p
}

// CommentRules returns the raw length bounds and the per-post comment limit.
func (c *Config) CommentRules() qa.CommentRules {
	return qa.CommentRules{
		MinRawLength: c.GetInt(KeyQACommentMinRawLength),
		MaxRawLength: c.GetInt(KeyQACommentMaxRawLength),
		LimitPerPost: c.GetInt(KeyQACommentLimitPerPost),
	}
}
