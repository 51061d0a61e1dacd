package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Target    TargetConfig    `yaml:"target" mapstructure:"target"`
	Browser   BrowserConfig   `yaml:"browser" mapstructure:"browser"`
	Matcher   MatcherConfig   `yaml:"matcher" mapstructure:"matcher"`
	RateLimit RateLimitConfig `yaml:"ratelimit" mapstructure:"ratelimit"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	RunLog    RunLogConfig    `yaml:"runlog" mapstructure:"runlog"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// TargetConfig identifies the GC web application.
type TargetConfig struct {
	URL       string `yaml:"url" mapstructure:"url"`
	LoginPath string `yaml:"login_path" mapstructure:"login_path"`
	Host      string `yaml:"host" mapstructure:"host"`
	SSOHost   string `yaml:"sso_host" mapstructure:"sso_host"`
}

// BrowserConfig configures the rod-backed browser driver.
type BrowserConfig struct {
	Headless        bool     `yaml:"headless" mapstructure:"headless"`
	WebTimeoutSecs  int      `yaml:"web_timeout_secs" mapstructure:"web_timeout_secs"`
	IdleTimeoutMs   int      `yaml:"idle_timeout_ms" mapstructure:"idle_timeout_ms"`
	BlockResources  bool     `yaml:"block_resources" mapstructure:"block_resources"`
	BlockedDomains  []string `yaml:"blocked_domains" mapstructure:"blocked_domains"`
	CredentialsFile string   `yaml:"credentials_file" mapstructure:"credentials_file"`
}

// MatcherConfig exposes the fuzzy-match tuning constants. The scoring
// formula is fixed; the thresholds are configuration rather than code so
// boundary behavior can be tuned per deployment.
type MatcherConfig struct {
	Threshold      float64  `yaml:"threshold" mapstructure:"threshold"`
	Margin         float64  `yaml:"margin" mapstructure:"margin"`
	SubstringBonus float64  `yaml:"substring_bonus" mapstructure:"substring_bonus"`
	AddressBonus   float64  `yaml:"address_bonus" mapstructure:"address_bonus"`
	AddressOverlap float64  `yaml:"address_overlap" mapstructure:"address_overlap"`
	MinTokenLen    int      `yaml:"min_token_len" mapstructure:"min_token_len"`
	StopWords      []string `yaml:"stop_words" mapstructure:"stop_words"`
}

// RateLimitConfig selects the submission pacing profile.
type RateLimitConfig struct {
	Profile      string `yaml:"profile" mapstructure:"profile"`
	ProfilesFile string `yaml:"profiles_file" mapstructure:"profiles_file"`
}

// StoreConfig configures the local run-history database.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// RunLogConfig configures run-log output.
type RunLogConfig struct {
	Dir             string `yaml:"dir" mapstructure:"dir"`
	CheckpointEvery int    `yaml:"checkpoint_every" mapstructure:"checkpoint_every"`
}

// ServerConfig configures the progress server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GROUNDCHECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("target.url", "https://matchapro.web.bps.go.id/dirgc")
	v.SetDefault("target.login_path", "/login")
	v.SetDefault("target.host", "matchapro.web.bps.go.id")
	v.SetDefault("target.sso_host", "sso.bps.go.id")
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.web_timeout_secs", 30)
	v.SetDefault("browser.idle_timeout_ms", 300000)
	v.SetDefault("browser.block_resources", true)
	v.SetDefault("browser.blocked_domains", []string{"fonts.googleapis.com", "fonts.gstatic.com"})
	v.SetDefault("browser.credentials_file", "")
	v.SetDefault("matcher.threshold", 0.60)
	v.SetDefault("matcher.margin", 0.05)
	v.SetDefault("matcher.substring_bonus", 0.25)
	v.SetDefault("matcher.address_bonus", 0.10)
	v.SetDefault("matcher.address_overlap", 0.50)
	v.SetDefault("matcher.min_token_len", 2)
	v.SetDefault("matcher.stop_words", []string{"pt", "cv", "ud", "pd", "pb", "toko", "warung", "usaha", "dagang"})
	v.SetDefault("ratelimit.profile", "safe")
	v.SetDefault("store.path", "groundcheck.db")
	v.SetDefault("runlog.dir", "logs")
	v.SetDefault("runlog.checkpoint_every", 50)
	v.SetDefault("server.port", 8090)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
