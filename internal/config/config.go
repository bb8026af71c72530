package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/e7canasta/latent-explorer/internal/imageservice"
	"github.com/e7canasta/latent-explorer/internal/mapper2d"
	"github.com/e7canasta/latent-explorer/internal/scene3d"
)

// Config represents the complete latentd configuration
type Config struct {
	InstanceID       string             `yaml:"instance_id"`
	ShutdownTimeoutS int                `yaml:"shutdown_timeout_s"` // Graceful shutdown timeout in seconds (default: 5)
	Server           ServerConfig       `yaml:"server"`
	Input            InputConfig        `yaml:"input"`
	View2D           View2DConfig       `yaml:"view2d"`
	View3D           View3DConfig       `yaml:"view3d"`
	Pipeline         PipelineConfig     `yaml:"pipeline"`
	ImageService     ImageServiceConfig `yaml:"image_service"`
	MQTT             MQTTConfig         `yaml:"mqtt"`
}

// ServerConfig contains HTTP/WebSocket listener settings
type ServerConfig struct {
	Addr           string   `yaml:"addr"`            // default :8080
	AllowedOrigins []string `yaml:"allowed_origins"` // empty = same origin only
}

// InputConfig contains enablement gate settings
type InputConfig struct {
	EnabledOnStart *bool `yaml:"enabled_on_start"` // default true
}

// View2DConfig contains pan/zoom tuning for the 2D view
type View2DConfig struct {
	ZoomMin          float64 `yaml:"zoom_min"`
	ZoomMax          float64 `yaml:"zoom_max"`
	WheelSensitivity float64 `yaml:"wheel_sensitivity"` // zoom *= 1 - deltaY*k
	ZoomStep         float64 `yaml:"zoom_step"`         // factor for zoom buttons
}

// View3DConfig contains camera and render tuning for the 3D view
type View3DConfig struct {
	DistanceMin     float64 `yaml:"distance_min"`
	DistanceMax     float64 `yaml:"distance_max"`
	DefaultDistance float64 `yaml:"default_distance"`
	RotateSpeed     float64 `yaml:"rotate_speed"` // radians per pixel
	WheelSpeed      float64 `yaml:"wheel_speed"`
	ZoomStep        float64 `yaml:"zoom_step"`
	FovDeg          float64 `yaml:"fov_deg"`
	RenderFPS       int     `yaml:"render_fps"`
	SurfaceWidth    int     `yaml:"surface_width"`
	SurfaceHeight   int     `yaml:"surface_height"`
}

// PipelineConfig contains render request pipeline settings
type PipelineConfig struct {
	DebounceMS  int `yaml:"debounce_ms"` // default 150
	ImageWidth  int `yaml:"image_width"`
	ImageHeight int `yaml:"image_height"`
}

// ImageServiceConfig selects the image generation backend
type ImageServiceConfig struct {
	Kind         string  `yaml:"kind"` // placeholder, remote
	BaseURL      string  `yaml:"base_url"`
	MinLatencyMS int     `yaml:"min_latency_ms"`
	MaxLatencyMS int     `yaml:"max_latency_ms"`
	FailureRate  float64 `yaml:"failure_rate"`
	Endpoint     string  `yaml:"endpoint"`
	TimeoutMS    int     `yaml:"timeout_ms"`
	CacheSize    int     `yaml:"cache_size"` // 0 disables the LRU
}

// MQTTConfig contains MQTT broker settings. MQTT is disabled when Broker
// is empty.
type MQTTConfig struct {
	Broker string          `yaml:"broker"`
	Topics MQTTTopics      `yaml:"topics"`
	QoS    map[string]byte `yaml:"qos"`
}

// MQTTTopics contains topic templates
type MQTTTopics struct {
	Control string `yaml:"control"`
	Results string `yaml:"results"` // prefix; session id is appended
	Health  string `yaml:"health"`
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML configuration
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// ShutdownTimeout returns the graceful shutdown budget
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutS) * time.Second
}

// Debounce returns the pipeline quiet period
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Pipeline.DebounceMS) * time.Millisecond
}

// InputEnabledOnStart reports the initial gate state
func (c *Config) InputEnabledOnStart() bool {
	return c.Input.EnabledOnStart == nil || *c.Input.EnabledOnStart
}

// MQTTEnabled reports whether a broker is configured
func (c *Config) MQTTEnabled() bool {
	return c.MQTT.Broker != ""
}

// MapperOptions converts the 2D section
func (c *Config) MapperOptions() mapper2d.Options {
	return mapper2d.Options{
		ZoomMin:          c.View2D.ZoomMin,
		ZoomMax:          c.View2D.ZoomMax,
		WheelSensitivity: c.View2D.WheelSensitivity,
		ZoomStep:         c.View2D.ZoomStep,
	}
}

// SceneConfig converts the 3D section
func (c *Config) SceneConfig() scene3d.SceneConfig {
	v := c.View3D
	return scene3d.SceneConfig{
		Controller: scene3d.Options{
			DistanceMin:     v.DistanceMin,
			DistanceMax:     v.DistanceMax,
			DefaultDistance: v.DefaultDistance,
			RotateSpeed:     v.RotateSpeed,
			WheelSpeed:      v.WheelSpeed,
			ZoomStep:        v.ZoomStep,
			FovDeg:          v.FovDeg,
		},
		Width:  v.SurfaceWidth,
		Height: v.SurfaceHeight,
		FPS:    v.RenderFPS,
	}
}

// ImageServiceOptions converts the image service section
func (c *Config) ImageServiceOptions() imageservice.Options {
	s := c.ImageService
	return imageservice.Options{
		Kind:        s.Kind,
		BaseURL:     s.BaseURL,
		MinLatency:  time.Duration(s.MinLatencyMS) * time.Millisecond,
		MaxLatency:  time.Duration(s.MaxLatencyMS) * time.Millisecond,
		FailureRate: s.FailureRate,
		Endpoint:    s.Endpoint,
		Timeout:     time.Duration(s.TimeoutMS) * time.Millisecond,
		CacheSize:   s.CacheSize,
	}
}
