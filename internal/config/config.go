package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/yeenbean/pauljac3-mastodon-bot/internal/integrations/paramstore"
)

type (
	AppCfg struct {
		Env string `mapstructure:"env"`
	}
	ServerCfg struct {
		Enabled      bool          `mapstructure:"enabled"`
		Port         int           `mapstructure:"port"`
		ReadTimeout  time.Duration `mapstructure:"read_timeout"`
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
		IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	}
	SchedulerCfg struct {
		Enabled          bool          `mapstructure:"enabled"`
		Period           time.Duration `mapstructure:"period"`
		PostEveryMinutes int           `mapstructure:"post_every_minutes"`
		PostOnStart      bool          `mapstructure:"post_on_start"`
		StopTimeout      time.Duration `mapstructure:"stop_timeout"`
	}
	ContentCfg struct {
		Canonical string `mapstructure:"canonical"`
		Mastodon  string `mapstructure:"mastodon"`
		Bluesky   string `mapstructure:"bluesky"`
		Twitter   string `mapstructure:"twitter"`
		Replies   string `mapstructure:"replies"`
	}
	StorageCfg struct {
		Driver           string `mapstructure:"driver"`
		FilePath         string `mapstructure:"file_path"`
		PostgresURL      string `mapstructure:"postgres_url"`
		PostgresMaxConns int    `mapstructure:"postgres_max_conns"`
		DynamoDBTable    string `mapstructure:"dynamodb_table"`
	}
	RedisCfg struct {
		Addr     string        `mapstructure:"addr"`
		DB       int           `mapstructure:"db"`
		ReplyTTL time.Duration `mapstructure:"reply_ttl"`
	}
	PlatformCfg struct {
		CallTimeout time.Duration `mapstructure:"call_timeout"`
	}
	MastodonCfg struct {
		Enabled      bool     `mapstructure:"enabled"`
		URL          string   `mapstructure:"url"`
		ClientKey    string   `mapstructure:"client_key"`
		ClientSecret string   `mapstructure:"client_secret"`
		AccessToken  string   `mapstructure:"access_token"`
		ReplyMode    string   `mapstructure:"reply_mode"`
		ReplyKinds   []string `mapstructure:"reply_kinds"`
	}
	BlueskyCfg struct {
		Enabled    bool          `mapstructure:"enabled"`
		URL        string        `mapstructure:"url"`
		Identifier string        `mapstructure:"identifier"`
		Password   string        `mapstructure:"password"`
		SessionTTL time.Duration `mapstructure:"session_ttl"`
		ReplyMode  string        `mapstructure:"reply_mode"`
		ReplyKinds []string      `mapstructure:"reply_kinds"`
	}
	TwitterCfg struct {
		Enabled           bool   `mapstructure:"enabled"`
		URL               string `mapstructure:"url"`
		APIKey            string `mapstructure:"api_key"`
		APISecret         string `mapstructure:"api_secret"`
		AccessToken       string `mapstructure:"access_token"`
		AccessTokenSecret string `mapstructure:"access_token_secret"`
		BearerToken       string `mapstructure:"bearer_token"`
	}
	SecretsCfg struct {
		SSMPrefix string `mapstructure:"ssm_prefix"`
	}
	Config struct {
		App       AppCfg       `mapstructure:"app"`
		Debug     string       `mapstructure:"debug"`
		Server    ServerCfg    `mapstructure:"server"`
		Scheduler SchedulerCfg `mapstructure:"scheduler"`
		Content   ContentCfg   `mapstructure:"content"`
		Storage   StorageCfg   `mapstructure:"storage"`
		Redis     RedisCfg     `mapstructure:"redis"`
		Platform  PlatformCfg  `mapstructure:"platform"`
		Mastodon  MastodonCfg  `mapstructure:"mastodon"`
		Bluesky   BlueskyCfg   `mapstructure:"bluesky"`
		Twitter   TwitterCfg   `mapstructure:"twitter"`
		Secrets   SecretsCfg   `mapstructure:"secrets"`
	}
)

// MissingKeyError is returned when a required key has no value
type MissingKeyError struct {
	Key string
}

func (e *MissingKeyError) Error() string {
	return e.Key + " was not configured"
}

// envFiles are loaded in order; variables already set are never replaced
var envFiles = []string{".env.local", ".env"}

// secret binds a config key to its bare environment variable name
type secret struct {
	key      string
	env      string
	field    func(*Config) *string
	required func(*Config) bool
}

func always(*Config) bool       { return true }
func never(*Config) bool        { return false }
func mastodonOn(c *Config) bool { return c.Mastodon.Enabled }
func blueskyOn(c *Config) bool  { return c.Bluesky.Enabled }
func twitterOn(c *Config) bool  { return c.Twitter.Enabled }

var secrets = []secret{
	{"debug", "DEBUG", func(c *Config) *string { return &c.Debug }, always},
	{"mastodon.client_key", "CLIENT_KEY", func(c *Config) *string { return &c.Mastodon.ClientKey }, never},
	{"mastodon.client_secret", "CLIENT_SECRET", func(c *Config) *string { return &c.Mastodon.ClientSecret }, never},
	{"mastodon.access_token", "ACCESS_TOKEN", func(c *Config) *string { return &c.Mastodon.AccessToken }, mastodonOn},
	{"bluesky.identifier", "BSKY_ID", func(c *Config) *string { return &c.Bluesky.Identifier }, blueskyOn},
	{"bluesky.password", "BSKY_PW", func(c *Config) *string { return &c.Bluesky.Password }, blueskyOn},
	{"bluesky.url", "BSKY_URL", func(c *Config) *string { return &c.Bluesky.URL }, blueskyOn},
	{"twitter.api_key", "TWITTER_API_KEY", func(c *Config) *string { return &c.Twitter.APIKey }, twitterOn},
	{"twitter.api_secret", "TWITTER_API_SECRET", func(c *Config) *string { return &c.Twitter.APISecret }, twitterOn},
	{"twitter.access_token", "TWITTER_ACCESS_TOKEN", func(c *Config) *string { return &c.Twitter.AccessToken }, twitterOn},
	{"twitter.access_token_secret", "TWITTER_ACCESS_TOKEN_SECRET", func(c *Config) *string { return &c.Twitter.AccessTokenSecret }, twitterOn},
	{"twitter.bearer_token", "TWITTER_BEARER_TOKEN", func(c *Config) *string { return &c.Twitter.BearerToken }, never},
}

// Load reads .env files, config.yaml and the environment. It does not
// validate; call ResolveSecrets and Validate afterwards.
func Load() (*Config, error) {
	if err := loadEnvFiles(envFiles); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	explicit := os.Getenv("APP_CONFIG_PATH")
	if explicit != "" {
		v.SetConfigFile(explicit)
	}

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, s := range secrets {
		if err := v.BindEnv(s.key, "APP_"+strings.ToUpper(strings.ReplaceAll(s.key, ".", "_")), s.env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", s.env, err)
		}
	}

	// Defaults
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "5s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.period", "1m")
	v.SetDefault("scheduler.post_every_minutes", 30)
	v.SetDefault("scheduler.post_on_start", false)
	v.SetDefault("scheduler.stop_timeout", "45s")
	v.SetDefault("content.canonical", "./tweet_file.txt")
	v.SetDefault("content.mastodon", "./tweet_file_fedi.txt")
	v.SetDefault("content.bluesky", "./tweet_file_bsky.txt")
	v.SetDefault("content.twitter", "")
	v.SetDefault("content.replies", "./reply_random.txt")
	v.SetDefault("storage.driver", "file")
	v.SetDefault("storage.file_path", "./db.json")
	v.SetDefault("storage.postgres_url", "")
	v.SetDefault("storage.postgres_max_conns", 2)
	v.SetDefault("storage.dynamodb_table", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.reply_ttl", "72h")
	v.SetDefault("platform.call_timeout", "30s")
	v.SetDefault("mastodon.enabled", true)
	v.SetDefault("mastodon.url", "https://botsin.space")
	v.SetDefault("mastodon.reply_mode", "contiguous-prefix")
	v.SetDefault("mastodon.reply_kinds", []string{"mention"})
	v.SetDefault("bluesky.enabled", true)
	v.SetDefault("bluesky.session_ttl", "90m")
	v.SetDefault("bluesky.reply_mode", "filter-all")
	v.SetDefault("bluesky.reply_kinds", []string{"reply", "mention"})
	v.SetDefault("twitter.enabled", true)
	v.SetDefault("twitter.url", "https://api.twitter.com")
	v.SetDefault("secrets.ssm_prefix", "")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// no config.yaml, continue with env/defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadEnvFiles(files []string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// DebugEnabled reports whether debug logging was asked for
func (c *Config) DebugEnabled() bool {
	on, _ := strconv.ParseBool(strings.TrimSpace(c.Debug))
	return on
}

// Validate fails with a MissingKeyError naming the first required key
// without a value
func (c *Config) Validate() error {
	for _, s := range secrets {
		if s.required(c) && strings.TrimSpace(*s.field(c)) == "" {
			return &MissingKeyError{Key: s.env}
		}
	}
	switch c.Storage.Driver {
	case "file":
	case "postgres":
		if c.Storage.PostgresURL == "" {
			return &MissingKeyError{Key: "storage.postgres_url"}
		}
	case "dynamodb":
		if c.Storage.DynamoDBTable == "" {
			return &MissingKeyError{Key: "storage.dynamodb_table"}
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Content.Canonical == "" {
		return &MissingKeyError{Key: "content.canonical"}
	}
	if c.Content.Replies == "" {
		return &MissingKeyError{Key: "content.replies"}
	}
	if !c.Mastodon.Enabled && !c.Bluesky.Enabled && !c.Twitter.Enabled {
		return fmt.Errorf("no platform enabled")
	}
	return nil
}

// ResolveSecrets fills credentials that are still empty from the parameter
// store under Secrets.SSMPrefix. It does nothing when no prefix is set.
func (c *Config) ResolveSecrets(ctx context.Context, g paramstore.Getter) error {
	if c.Secrets.SSMPrefix == "" || g == nil {
		return nil
	}
	var missing []string
	for _, s := range secrets {
		if *s.field(c) == "" {
			missing = append(missing, s.env)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	found, err := paramstore.Resolve(ctx, g, c.Secrets.SSMPrefix, missing)
	if err != nil {
		return fmt.Errorf("resolve secrets: %w", err)
	}
	for _, s := range secrets {
		if val, ok := found[s.env]; ok {
			*s.field(c) = val
		}
	}
	return nil
}
