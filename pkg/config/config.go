package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	DB       DBConfig       `yaml:"db"`
	Request  RequestConfig  `yaml:"request"`
	LLM      LLMConfig      `yaml:"llm"`
	TTS      TTSConfig      `yaml:"tts"`
	Guide    GuideConfig    `yaml:"guide"`
	Route    RouteConfig    `yaml:"route"`
	Routing  RoutingConfig  `yaml:"routing"`
	Sampler  SamplerConfig  `yaml:"sampler"`
	Geocode  GeocodeConfig  `yaml:"geocode"`
	Quota    QuotaConfig    `yaml:"quota"`
	Language string         `yaml:"language"` // BCP-ish app language, e.g. "en", "ko"
	Regions  []RegionConfig `yaml:"restricted_regions"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr string `yaml:"addr"` // e.g. ":8421"
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server LogFileConfig `yaml:"server"`
	Events LogFileConfig `yaml:"events"`
}

// LogFileConfig holds settings for a single log output.
type LogFileConfig struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"` // debug, info, warn, error
}

// DBConfig holds database settings.
type DBConfig struct {
	Path string `yaml:"path"`
}

// RequestConfig holds HTTP request settings.
type RequestConfig struct {
	Retries int           `yaml:"retries"`
	Timeout Duration      `yaml:"timeout"`
	Backoff BackoffConfig `yaml:"backoff"`
}

// BackoffConfig holds exponential backoff settings.
type BackoffConfig struct {
	BaseDelay Duration `yaml:"base_delay"`
	MaxDelay  Duration `yaml:"max_delay"`
}

// LLMConfig holds settings for the generative model provider.
type LLMConfig struct {
	Provider string   `yaml:"provider"` // "gemini", "mock"
	Model    string   `yaml:"model"`    // e.g. "gemini-2.0-flash"
	Key      string   `yaml:"key"`      // API key; WALKTALE_GEMINI_KEY overrides
	Timeout  Duration `yaml:"timeout"`  // per-generation timeout
}

// TTSConfig holds text-to-speech settings.
type TTSConfig struct {
	Engine string   `yaml:"engine"` // "google", "none"
	Key    string   `yaml:"key"`    // API key; WALKTALE_TTS_KEY overrides
	Mode   string   `yaml:"mode"`   // "standard" or "neural"
	TmpDir string   `yaml:"tmp_dir"`
	Timeout Duration `yaml:"timeout"`
}

// GuideConfig holds the narration trigger tunables.
// These are the core scheduling constants; they are configuration, not
// literals, so field tests can shrink them.
type GuideConfig struct {
	Heartbeat          Duration `yaml:"heartbeat"`            // tick period
	TriggerDistanceM   float64  `yaml:"trigger_distance_m"`   // anchor distance gate
	Cooldown           Duration `yaml:"cooldown"`             // min silence after success
	HardLock           Duration `yaml:"hard_lock"`            // floor beneath cooldown
	FailureCooldown    Duration `yaml:"failure_cooldown"`     // punitive cooldown
	GenerationTimeout  Duration `yaml:"generation_timeout"`   // zombie watchdog
	LandmarkRadiusM    float64  `yaml:"landmark_radius_m"`    // first search radius
	LandmarkRadiusWideM float64 `yaml:"landmark_radius_wide_m"`
	AccuracyLimitM     float64  `yaml:"accuracy_limit_m"`     // fixes worse than this are ignored
	SignificantMoveM   float64  `yaml:"significant_move_m"`   // idle detection floor
	IdleTimeout        Duration `yaml:"idle_timeout"`         // stop tour after no movement
}

// RouteConfig holds route tracking tunables.
type RouteConfig struct {
	DeviationThresholdM float64 `yaml:"deviation_threshold_m"`
	ArrivalThresholdM   float64 `yaml:"arrival_threshold_m"`
	WalkSpeedMS         float64 `yaml:"walk_speed_ms"` // for duration estimates
}

// RoutingConfig holds routing provider settings.
type RoutingConfig struct {
	GoogleKey string `yaml:"google_key"` // WALKTALE_MAPS_KEY overrides
	OSRMBase  string `yaml:"osrm_base"`  // e.g. https://router.project-osrm.org
}

// SamplerConfig holds position source settings.
type SamplerConfig struct {
	Source string `yaml:"source"` // "ws", "remote", "mock"
	// FeedURL is the websocket endpoint for the "remote" source.
	FeedURL string `yaml:"feed_url"`
	// Start coordinates for the "mock" walker.
	StartLat float64 `yaml:"start_lat"`
	StartLon float64 `yaml:"start_lon"`
}

// GeocodeConfig holds reverse geocoding settings.
type GeocodeConfig struct {
	CacheResolution int      `yaml:"cache_resolution"` // H3 resolution for cache cells
	CacheTTL        Duration `yaml:"cache_ttl"`
}

// QuotaConfig holds daily API budget settings.
type QuotaConfig struct {
	DailyPlacesLimit int      `yaml:"daily_places_limit"`
	ResetWindow      Duration `yaml:"reset_window"`
}

// RegionConfig is a lat/lng bounding box where the primary routing provider
// must be skipped.
type RegionConfig struct {
	Name   string  `yaml:"name"`
	MinLat float64 `yaml:"min_lat"`
	MaxLat float64 `yaml:"max_lat"`
	MinLon float64 `yaml:"min_lon"`
	MaxLon float64 `yaml:"max_lon"`
}

// Default returns a Config populated with production defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8421"},
		Log: LogConfig{
			Server: LogFileConfig{Path: "logs/server.log", Level: "info"},
			Events: LogFileConfig{Path: "logs/events.log", Level: "info"},
		},
		DB: DBConfig{Path: "data/walktale.db"},
		Request: RequestConfig{
			Retries: 3,
			Timeout: Duration(15 * time.Second),
			Backoff: BackoffConfig{
				BaseDelay: Duration(500 * time.Millisecond),
				MaxDelay:  Duration(8 * time.Second),
			},
		},
		LLM: LLMConfig{
			Provider: "gemini",
			Model:    "gemini-2.0-flash",
			Timeout:  Duration(15 * time.Second),
		},
		TTS: TTSConfig{
			Engine:  "google",
			Mode:    "standard",
			TmpDir:  "data/audio",
			Timeout: Duration(20 * time.Second),
		},
		Guide: GuideConfig{
			Heartbeat:           Duration(5 * time.Second),
			TriggerDistanceM:    120,
			Cooldown:            Duration(30 * time.Second),
			HardLock:            Duration(15 * time.Second),
			FailureCooldown:     Duration(10 * time.Second),
			GenerationTimeout:   Duration(45 * time.Second),
			LandmarkRadiusM:     500,
			LandmarkRadiusWideM: 1000,
			AccuracyLimitM:      100,
			SignificantMoveM:    5,
			IdleTimeout:         Duration(15 * time.Minute),
		},
		Route: RouteConfig{
			DeviationThresholdM: 50,
			ArrivalThresholdM:   50,
			WalkSpeedMS:         1.4,
		},
		Routing: RoutingConfig{
			OSRMBase: "https://router.project-osrm.org",
		},
		Sampler: SamplerConfig{Source: "ws", StartLat: 40.4169, StartLon: -3.7035},
		Geocode: GeocodeConfig{
			CacheResolution: 9,
			CacheTTL:        Duration(2 * time.Hour),
		},
		Quota: QuotaConfig{
			DailyPlacesLimit: 10,
			ResetWindow:      Duration(Day),
		},
		Language: "en",
		Regions: []RegionConfig{
			{Name: "korea", MinLat: 33, MaxLat: 39, MinLon: 124, MaxLon: 132},
			{Name: "china-mainland", MinLat: 18, MaxLat: 54, MinLon: 73, MaxLon: 123},
			{Name: "china-northeast", MinLat: 40, MaxLat: 54, MinLon: 123, MaxLon: 135},
		},
	}
}

// Load reads and parses the YAML config at path, applying defaults for
// missing sections and environment overrides for secrets.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("WALKTALE_GEMINI_KEY"); v != "" {
		c.LLM.Key = v
	}
	if v := os.Getenv("WALKTALE_TTS_KEY"); v != "" {
		c.TTS.Key = v
	}
	if v := os.Getenv("WALKTALE_MAPS_KEY"); v != "" {
		c.Routing.GoogleKey = v
	}
}

// Validate checks invariants between related settings.
func (c *Config) Validate() error {
	if c.Guide.Heartbeat <= 0 {
		return fmt.Errorf("guide.heartbeat must be positive")
	}
	if c.Guide.HardLock > c.Guide.Cooldown {
		return fmt.Errorf("guide.hard_lock (%s) must not exceed guide.cooldown (%s)",
			time.Duration(c.Guide.HardLock), time.Duration(c.Guide.Cooldown))
	}
	if c.Guide.LandmarkRadiusWideM < c.Guide.LandmarkRadiusM {
		return fmt.Errorf("guide.landmark_radius_wide_m must be >= guide.landmark_radius_m")
	}
	if c.Route.WalkSpeedMS <= 0 {
		return fmt.Errorf("route.walk_speed_ms must be positive")
	}
	return nil
}

// GenerateDefault writes the default config to path, creating directories as
// needed. Fails if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
