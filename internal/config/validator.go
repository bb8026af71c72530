package config

import (
	"fmt"
	"regexp"

	"github.com/e7canasta/latent-explorer/internal/imageservice"
	"github.com/e7canasta/latent-explorer/internal/mapper2d"
	"github.com/e7canasta/latent-explorer/internal/scene3d"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Validate checks if the configuration is valid and fills defaults
func Validate(cfg *Config) error {
	// Validate instance_id
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}

	if cfg.ShutdownTimeoutS <= 0 {
		cfg.ShutdownTimeoutS = 5
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}

	if err := validateView2D(&cfg.View2D); err != nil {
		return fmt.Errorf("view2d: %w", err)
	}
	if err := validateView3D(&cfg.View3D); err != nil {
		return fmt.Errorf("view3d: %w", err)
	}
	if err := validatePipeline(&cfg.Pipeline); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	if err := validateImageService(&cfg.ImageService); err != nil {
		return fmt.Errorf("image_service: %w", err)
	}

	// MQTT is optional; topics only matter with a broker
	if cfg.MQTT.Broker != "" {
		if cfg.MQTT.Topics.Control == "" {
			cfg.MQTT.Topics.Control = fmt.Sprintf("latent/control/%s", cfg.InstanceID)
		}
		if cfg.MQTT.Topics.Results == "" {
			cfg.MQTT.Topics.Results = fmt.Sprintf("latent/results/%s", cfg.InstanceID)
		}
		if cfg.MQTT.Topics.Health == "" {
			cfg.MQTT.Topics.Health = fmt.Sprintf("latent/health/%s", cfg.InstanceID)
		}
		if cfg.MQTT.QoS == nil {
			cfg.MQTT.QoS = map[string]byte{
				"control": 1,
				"results": 0,
				"health":  0,
			}
		}
		for topic, qos := range cfg.MQTT.QoS {
			if qos > 2 {
				return fmt.Errorf("mqtt.qos.%s must be 0, 1 or 2, got %d", topic, qos)
			}
		}
	}

	return nil
}

func validateView2D(v *View2DConfig) error {
	if v.ZoomMin == 0 {
		v.ZoomMin = mapper2d.DefaultZoomMin
	}
	if v.ZoomMax == 0 {
		v.ZoomMax = mapper2d.DefaultZoomMax
	}
	if v.WheelSensitivity == 0 {
		v.WheelSensitivity = mapper2d.DefaultWheelSensitivity
	}
	if v.ZoomStep == 0 {
		v.ZoomStep = mapper2d.DefaultZoomStep
	}

	if v.ZoomMin <= 0 || v.ZoomMin >= v.ZoomMax {
		return fmt.Errorf("zoom bounds must satisfy 0 < zoom_min < zoom_max, got [%v, %v]", v.ZoomMin, v.ZoomMax)
	}
	if v.ZoomStep <= 1 {
		return fmt.Errorf("zoom_step must be > 1, got %v", v.ZoomStep)
	}
	return nil
}

func validateView3D(v *View3DConfig) error {
	if v.DistanceMin == 0 {
		v.DistanceMin = scene3d.DefaultDistanceMin
	}
	if v.DistanceMax == 0 {
		v.DistanceMax = scene3d.DefaultDistanceMax
	}
	if v.DefaultDistance == 0 {
		v.DefaultDistance = scene3d.DefaultDistance
	}
	if v.RotateSpeed == 0 {
		v.RotateSpeed = scene3d.DefaultRotateSpeed
	}
	if v.WheelSpeed == 0 {
		v.WheelSpeed = scene3d.DefaultWheelSpeed
	}
	if v.ZoomStep == 0 {
		v.ZoomStep = scene3d.DefaultZoomStep
	}
	if v.FovDeg == 0 {
		v.FovDeg = scene3d.DefaultFovDeg
	}
	if v.RenderFPS <= 0 {
		v.RenderFPS = 30
	}
	if v.SurfaceWidth <= 0 {
		v.SurfaceWidth = 400
	}
	if v.SurfaceHeight <= 0 {
		v.SurfaceHeight = 400
	}

	// The camera must stay outside the volume (half extent 1)
	if v.DistanceMin <= 1 || v.DistanceMin >= v.DistanceMax {
		return fmt.Errorf("distance bounds must satisfy 1 < distance_min < distance_max, got [%v, %v]", v.DistanceMin, v.DistanceMax)
	}
	if v.DefaultDistance < v.DistanceMin || v.DefaultDistance > v.DistanceMax {
		return fmt.Errorf("default_distance %v outside [%v, %v]", v.DefaultDistance, v.DistanceMin, v.DistanceMax)
	}
	if v.FovDeg <= 0 || v.FovDeg >= 180 {
		return fmt.Errorf("fov_deg must be in (0, 180), got %v", v.FovDeg)
	}
	return nil
}

func validatePipeline(p *PipelineConfig) error {
	if p.DebounceMS == 0 {
		p.DebounceMS = 150
	}
	if p.DebounceMS < 0 {
		return fmt.Errorf("debounce_ms must be >= 0, got %d", p.DebounceMS)
	}
	if p.ImageWidth <= 0 {
		p.ImageWidth = 300
	}
	if p.ImageHeight <= 0 {
		p.ImageHeight = 300
	}
	return nil
}

func validateImageService(s *ImageServiceConfig) error {
	if s.Kind == "" {
		s.Kind = imageservice.KindPlaceholder
	}

	switch s.Kind {
	case imageservice.KindPlaceholder:
		if s.BaseURL == "" {
			s.BaseURL = imageservice.DefaultPlaceholderURL
		}
		if s.MinLatencyMS == 0 && s.MaxLatencyMS == 0 {
			s.MinLatencyMS, s.MaxLatencyMS = 30, 200
		}
		if s.MinLatencyMS < 0 || s.MaxLatencyMS < s.MinLatencyMS {
			return fmt.Errorf("latency bounds must satisfy 0 <= min <= max, got [%d, %d]", s.MinLatencyMS, s.MaxLatencyMS)
		}
		if s.FailureRate < 0 || s.FailureRate > 1 {
			return fmt.Errorf("failure_rate must be in [0, 1], got %v", s.FailureRate)
		}
	case imageservice.KindRemote:
		if s.Endpoint == "" {
			return fmt.Errorf("endpoint is required for kind %q", s.Kind)
		}
		if s.TimeoutMS <= 0 {
			s.TimeoutMS = 5000
		}
	default:
		return fmt.Errorf("unknown kind %q (must be %q or %q)", s.Kind, imageservice.KindPlaceholder, imageservice.KindRemote)
	}

	if s.CacheSize < 0 {
		return fmt.Errorf("cache_size must be >= 0, got %d", s.CacheSize)
	}
	return nil
}
