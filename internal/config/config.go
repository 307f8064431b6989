package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the system-wide settings coordinator, kept separate from
// business logic.
type Config struct {
	HTTP      *HTTPConfig      `yaml:"http"`
	WebSocket *WebSocketConfig `yaml:"websocket"`
	Engine    *EngineConfig    `yaml:"engine"`
}

type HTTPConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type WebSocketConfig struct {
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	SendBuffer    int           `yaml:"send_buffer"`
	MaxFrameBytes int           `yaml:"max_frame_bytes"`
}

// EngineConfig tunes the simulation scheduler.
type EngineConfig struct {
	TickInterval     time.Duration `yaml:"tick_interval"`
	MaxSteps         int           `yaml:"max_steps"`
	ProgressPerStep  int           `yaml:"progress_per_step"`
	AnalysisCooldown time.Duration `yaml:"analysis_cooldown"`
	SuccessRate      float64       `yaml:"success_rate"`
	ScoreFloor       int           `yaml:"score_floor"`
	ScoreRange       int           `yaml:"score_range"`
	ProgressWeight   int           `yaml:"progress_weight"`
}

// DefaultConfig returns production defaults. The progress weight of 80
// reserves the final stretch of the percentage range for the analysis
// phase.
func DefaultConfig() *Config {
	return &Config{
		HTTP: &HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			WriteTimeout:  5 * time.Second,
			SendBuffer:    64,
			MaxFrameBytes: 1 << 20,
		},
		Engine: &EngineConfig{
			TickInterval:     time.Second,
			MaxSteps:         12,
			ProgressPerStep:  10,
			AnalysisCooldown: 3 * time.Second,
			SuccessRate:      0.8,
			ScoreFloor:       60,
			ScoreRange:       35,
			ProgressWeight:   80,
		},
	}
}

// Validate catches invalid configurations before any component starts.
func (c *Config) Validate() error {
	if c.HTTP == nil {
		return fmt.Errorf("http configuration is required")
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http port must be between 0 and 65535")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("http host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("http timeouts must be positive")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("websocket configuration is required")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("websocket write timeout must be positive")
	}
	if c.WebSocket.SendBuffer <= 0 {
		return fmt.Errorf("websocket send buffer must be positive")
	}
	if c.WebSocket.MaxFrameBytes <= 0 {
		return fmt.Errorf("websocket max frame bytes must be positive")
	}

	if c.Engine == nil {
		return fmt.Errorf("engine configuration is required")
	}
	if c.Engine.TickInterval <= 0 {
		return fmt.Errorf("engine tick interval must be positive")
	}
	if c.Engine.MaxSteps <= 0 {
		return fmt.Errorf("engine max steps must be positive")
	}
	if c.Engine.ProgressPerStep <= 0 {
		return fmt.Errorf("engine progress per step must be positive")
	}
	if c.Engine.AnalysisCooldown < 0 {
		return fmt.Errorf("engine analysis cooldown cannot be negative")
	}
	if c.Engine.SuccessRate < 0 || c.Engine.SuccessRate > 1 {
		return fmt.Errorf("engine success rate must be between 0 and 1")
	}
	if c.Engine.ScoreFloor < 0 || c.Engine.ScoreRange <= 0 {
		return fmt.Errorf("engine score bounds must be positive")
	}
	if c.Engine.ScoreFloor+c.Engine.ScoreRange > 100 {
		return fmt.Errorf("engine score ceiling cannot exceed 100")
	}
	if c.Engine.ProgressWeight <= 0 || c.Engine.ProgressWeight > 100 {
		return fmt.Errorf("engine progress weight must be between 1 and 100")
	}

	return nil
}

// LoadFromEnv applies USERSIM_* environment overrides on top of defaults.
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if host := os.Getenv("USERSIM_HTTP_HOST"); host != "" {
		config.HTTP.Host = host
	}
	if port := os.Getenv("USERSIM_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.HTTP.Port = p
		}
	}
	if timeout := os.Getenv("USERSIM_HTTP_READ_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.HTTP.ReadTimeout = d
		}
	}
	if timeout := os.Getenv("USERSIM_HTTP_WRITE_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.HTTP.WriteTimeout = d
		}
	}
	if timeout := os.Getenv("USERSIM_WEBSOCKET_WRITE_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.WebSocket.WriteTimeout = d
		}
	}
	if buffer := os.Getenv("USERSIM_WEBSOCKET_SEND_BUFFER"); buffer != "" {
		if n, err := strconv.Atoi(buffer); err == nil {
			config.WebSocket.SendBuffer = n
		}
	}
	if maxFrame := os.Getenv("USERSIM_WEBSOCKET_MAX_FRAME_BYTES"); maxFrame != "" {
		if n, err := strconv.Atoi(maxFrame); err == nil {
			config.WebSocket.MaxFrameBytes = n
		}
	}
	if interval := os.Getenv("USERSIM_ENGINE_TICK_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			config.Engine.TickInterval = d
		}
	}
	if steps := os.Getenv("USERSIM_ENGINE_MAX_STEPS"); steps != "" {
		if n, err := strconv.Atoi(steps); err == nil {
			config.Engine.MaxSteps = n
		}
	}
	if cooldown := os.Getenv("USERSIM_ENGINE_ANALYSIS_COOLDOWN"); cooldown != "" {
		if d, err := time.ParseDuration(cooldown); err == nil {
			config.Engine.AnalysisCooldown = d
		}
	}
	if rate := os.Getenv("USERSIM_ENGINE_SUCCESS_RATE"); rate != "" {
		if f, err := strconv.ParseFloat(rate, 64); err == nil {
			config.Engine.SuccessRate = f
		}
	}

	return config
}

// configFile mirrors Config with string durations so YAML stays readable
// ("500ms", "3s") instead of raw nanosecond integers.
type configFile struct {
	HTTP *struct {
		Host         string `yaml:"host"`
		Port         *int   `yaml:"port"`
		ReadTimeout  string `yaml:"read_timeout"`
		WriteTimeout string `yaml:"write_timeout"`
	} `yaml:"http"`
	WebSocket *struct {
		WriteTimeout  string `yaml:"write_timeout"`
		SendBuffer    *int   `yaml:"send_buffer"`
		MaxFrameBytes *int   `yaml:"max_frame_bytes"`
	} `yaml:"websocket"`
	Engine *struct {
		TickInterval     string   `yaml:"tick_interval"`
		MaxSteps         *int     `yaml:"max_steps"`
		ProgressPerStep  *int     `yaml:"progress_per_step"`
		AnalysisCooldown string   `yaml:"analysis_cooldown"`
		SuccessRate      *float64 `yaml:"success_rate"`
		ScoreFloor       *int     `yaml:"score_floor"`
		ScoreRange       *int     `yaml:"score_range"`
		ProgressWeight   *int     `yaml:"progress_weight"`
	} `yaml:"engine"`
}

// LoadFromFile reads a YAML config file over the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file configFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config := DefaultConfig()

	if file.HTTP != nil {
		if file.HTTP.Host != "" {
			config.HTTP.Host = file.HTTP.Host
		}
		if file.HTTP.Port != nil {
			config.HTTP.Port = *file.HTTP.Port
		}
		if d, err := time.ParseDuration(file.HTTP.ReadTimeout); err == nil && file.HTTP.ReadTimeout != "" {
			config.HTTP.ReadTimeout = d
		}
		if d, err := time.ParseDuration(file.HTTP.WriteTimeout); err == nil && file.HTTP.WriteTimeout != "" {
			config.HTTP.WriteTimeout = d
		}
	}

	if file.WebSocket != nil {
		if d, err := time.ParseDuration(file.WebSocket.WriteTimeout); err == nil && file.WebSocket.WriteTimeout != "" {
			config.WebSocket.WriteTimeout = d
		}
		if file.WebSocket.SendBuffer != nil {
			config.WebSocket.SendBuffer = *file.WebSocket.SendBuffer
		}
		if file.WebSocket.MaxFrameBytes != nil {
			config.WebSocket.MaxFrameBytes = *file.WebSocket.MaxFrameBytes
		}
	}

	if file.Engine != nil {
		if d, err := time.ParseDuration(file.Engine.TickInterval); err == nil && file.Engine.TickInterval != "" {
			config.Engine.TickInterval = d
		}
		if file.Engine.MaxSteps != nil {
			config.Engine.MaxSteps = *file.Engine.MaxSteps
		}
		if file.Engine.ProgressPerStep != nil {
			config.Engine.ProgressPerStep = *file.Engine.ProgressPerStep
		}
		if d, err := time.ParseDuration(file.Engine.AnalysisCooldown); err == nil && file.Engine.AnalysisCooldown != "" {
			config.Engine.AnalysisCooldown = d
		}
		if file.Engine.SuccessRate != nil {
			config.Engine.SuccessRate = *file.Engine.SuccessRate
		}
		if file.Engine.ScoreFloor != nil {
			config.Engine.ScoreFloor = *file.Engine.ScoreFloor
		}
		if file.Engine.ScoreRange != nil {
			config.Engine.ScoreRange = *file.Engine.ScoreRange
		}
		if file.Engine.ProgressWeight != nil {
			config.Engine.ProgressWeight = *file.Engine.ProgressWeight
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}

	return config, nil
}

// LoadConfigWithPrecedence resolves configuration as file > env > defaults.
func LoadConfigWithPrecedence(path string) *Config {
	config := LoadFromEnv()

	if path != "" {
		if fileConfig, err := LoadFromFile(path); err == nil {
			config = fileConfig
		}
		// File errors fall through silently; env/defaults still work.
	}

	return config
}
