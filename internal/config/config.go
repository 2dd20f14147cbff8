package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Census    CensusConfig    `yaml:"census" mapstructure:"census"`
	Overpass  OverpassConfig  `yaml:"overpass" mapstructure:"overpass"`
	Crime     CrimeConfig     `yaml:"crime" mapstructure:"crime"`
	Assistant AssistantConfig `yaml:"assistant" mapstructure:"assistant"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// CensusConfig configures the Census Geocoder and Census Reporter clients.
type CensusConfig struct {
	GeocoderURL     string  `yaml:"geocoder_url" mapstructure:"geocoder_url"`
	ReporterBaseURL string  `yaml:"reporter_base_url" mapstructure:"reporter_base_url"`
	TigerwebURL     string  `yaml:"tigerweb_url" mapstructure:"tigerweb_url"`
	ACS             string  `yaml:"acs" mapstructure:"acs"`
	TimeoutSecs     float64 `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Retries         int     `yaml:"retries" mapstructure:"retries"`
	UserAgent       string  `yaml:"user_agent" mapstructure:"user_agent"`
	RatePerSec      float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// Timeout returns the per-attempt request timeout as a duration.
func (c CensusConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs * float64(time.Second))
}

// OverpassConfig configures the POI fetch module.
type OverpassConfig struct {
	Endpoints     []string `yaml:"endpoints" mapstructure:"endpoints"`
	TimeoutSecs   float64  `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	CacheTTLSecs  int      `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
	TotalPointCap int      `yaml:"total_point_cap" mapstructure:"total_point_cap"`
}

// CrimeConfig configures the Chicago crime module.
type CrimeConfig struct {
	DatasetURL   string `yaml:"dataset_url" mapstructure:"dataset_url"`
	CacheTTLSecs int    `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
	FetchLimit   int    `yaml:"fetch_limit" mapstructure:"fetch_limit"`
	MaxHotspots  int    `yaml:"max_hotspots" mapstructure:"max_hotspots"`
}

// AssistantConfig configures the chat/ranking/TTS assistant.
type AssistantConfig struct {
	AnthropicKey    string `yaml:"anthropic_key" mapstructure:"anthropic_key"`
	Model           string `yaml:"model" mapstructure:"model"`
	MaxHistoryTurns int    `yaml:"max_history_turns" mapstructure:"max_history_turns"`
	TTSKey          string `yaml:"tts_key" mapstructure:"tts_key"`
	TTSVoice        string `yaml:"tts_voice" mapstructure:"tts_voice"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port            int      `yaml:"port" mapstructure:"port"`
	CORSOrigins     []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	RequestDeadline int      `yaml:"request_deadline_secs" mapstructure:"request_deadline_secs"`
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
	v.SetEnvPrefix("GROUNDTRUTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("census.geocoder_url", "https://geocoding.geo.census.gov/geocoder/geographies/coordinates")
	v.SetDefault("census.reporter_base_url", "https://api.censusreporter.org")
	v.SetDefault("census.tigerweb_url", "https://tigerweb.geo.census.gov/arcgis/rest/services/TIGERweb/Tracts_Blocks/MapServer/0/query")
	v.SetDefault("census.acs", "latest")
	v.SetDefault("census.timeout_secs", 20.0)
	v.SetDefault("census.retries", 3)
	v.SetDefault("census.user_agent", "groundtruth-census-tools/0.2")
	v.SetDefault("census.rate_per_sec", 10.0)
	v.SetDefault("overpass.endpoints", []string{
		"https://overpass-api.de/api/interpreter",
		"https://overpass.kumi.systems/api/interpreter",
		"https://overpass.nchc.org.tw/api/interpreter",
	})
	v.SetDefault("overpass.timeout_secs", 25.0)
	v.SetDefault("overpass.cache_ttl_secs", 3600)
	v.SetDefault("overpass.total_point_cap", 150)
	v.SetDefault("crime.dataset_url", "https://data.cityofchicago.org/resource/ijzp-q8t2.json")
	v.SetDefault("crime.cache_ttl_secs", 1800)
	v.SetDefault("crime.fetch_limit", 1200)
	v.SetDefault("crime.max_hotspots", 80)
	v.SetDefault("assistant.model", "claude-haiku-4-5-20251001")
	v.SetDefault("assistant.max_history_turns", 10)
	v.SetDefault("assistant.tts_voice", "en-US-Chirp3-HD-Enceladus")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.request_deadline_secs", 120)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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
