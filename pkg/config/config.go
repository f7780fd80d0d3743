package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`

	Server struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		SlowRequest     time.Duration `yaml:"slow_request" default:"1s"`
		CORS            bool          `yaml:"cors" default:"true"`
	} `yaml:"server"`

	Logging struct {
		Level        string        `yaml:"level" default:"info"`
		Format       string        `yaml:"format" default:"json"`
		Output       string        `yaml:"output" default:"stdout"`
		CollectTopic string        `yaml:"collect_topic"`
		CollectEvery time.Duration `yaml:"collect_every" default:"30s"`
	} `yaml:"logging"`

	Coordinator struct {
		ConsensusThreshold float64       `yaml:"consensus_threshold" default:"0.65"`
		MinAgents          int           `yaml:"min_agents" default:"3"`
		ScoreDecay         float64       `yaml:"score_decay" default:"0.95"`
		ConflictTimeout    time.Duration `yaml:"conflict_timeout" default:"500ms"`
		ConfidenceFloor    float64       `yaml:"confidence_floor" default:"0.7"`
		BufferCapacity     int           `yaml:"buffer_capacity" default:"100"`
		DecisionWindow     int           `yaml:"decision_window" default:"50"`
		ReturnsWindow      int           `yaml:"returns_window" default:"50"`
		CycleInterval      time.Duration `yaml:"cycle_interval" default:"1s"`
		PublishTimeout     time.Duration `yaml:"publish_timeout" default:"2s"`
		Topic              string        `yaml:"topic" default:"final_decision"`
	} `yaml:"coordinator"`

	Intake struct {
		AgentRate  float64 `yaml:"agent_rate" default:"10"`
		AgentBurst int     `yaml:"agent_burst" default:"20"`
	} `yaml:"intake"`

	Kafka struct {
		Enabled       bool     `yaml:"enabled"`
		Brokers       []string `yaml:"brokers"`
		SignalsTopic  string   `yaml:"signals_topic" default:"agent_signals"`
		OutcomesTopic string   `yaml:"outcomes_topic" default:"trade_outcomes"`
		RequiredAcks  int      `yaml:"required_acks" default:"-1"`
		Compression   string   `yaml:"compression" default:"snappy"`
		Producer      struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"20ms"`
			BatchSize    int           `yaml:"batch_size" default:"50"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"5s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"5s"`
			Async        bool          `yaml:"async"`
			AutoCreate   bool          `yaml:"auto_create_topics"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID     string        `yaml:"group_id" default:"signalcoord"`
			StartOffset string        `yaml:"start_offset" default:"latest"`
			Workers     int           `yaml:"workers" default:"4"`
			BufferSize  int           `yaml:"buffer_size" default:"256"`
			RetryMax    int           `yaml:"retry_max" default:"2"`
			BackoffMin  time.Duration `yaml:"backoff_min" default:"50ms"`
			BackoffMax  time.Duration `yaml:"backoff_max" default:"1s"`
			DLQTopic    string        `yaml:"dlq_topic"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`

	Redis struct {
		Enabled     bool          `yaml:"enabled"`
		Addr        string        `yaml:"addr" default:"localhost:6379"`
		Password    string        `yaml:"password"`
		DB          int           `yaml:"db"`
		Prefix      string        `yaml:"prefix" default:"signalcoord"`
		PoolSize    int           `yaml:"pool_size" default:"10"`
		SnapshotTTL time.Duration `yaml:"snapshot_ttl"`
	} `yaml:"redis"`

	Arbiter struct {
		URL             string        `yaml:"url"`
		APIKey          string        `yaml:"api_key"`
		Model           string        `yaml:"model" default:"gpt-4o-mini"`
		Temperature     float64       `yaml:"temperature" default:"0.2"`
		HTTPTimeout     time.Duration `yaml:"http_timeout" default:"2s"`
		BreakerFailures int           `yaml:"breaker_failures" default:"5"`
		BreakerCooldown time.Duration `yaml:"breaker_cooldown" default:"30s"`
	} `yaml:"arbiter"`

	WebSocket struct {
		Enabled      bool          `yaml:"enabled" default:"true"`
		SendBuffer   int           `yaml:"send_buffer" default:"32"`
		PingInterval time.Duration `yaml:"ping_interval" default:"30s"`
	} `yaml:"websocket"`
}

// Default returns a config populated only from defaults tags.
func Default() *Config {
	var c Config
	_ = defaults.Set(&c)
	return &c
}

// Load reads path over the defaults and validates. A missing file is not an
// error: the service can run on defaults and environment alone.
func Load(path string) (*Config, error) {
	c, err := readFile(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func readFile(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return c, nil
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads the YAML file, applies environment overrides and
// validates the result.
func LoadWithEnv(path string) (*Config, error) {
	c, err := readFile(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("env override: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	float := func(key string, dst *float64) {
		if v, ok := lookup(key); ok && v != "" {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	float("CONSENSUS_THRESHOLD", &c.Coordinator.ConsensusThreshold)
	float("AGENT_SCORE_DECAY", &c.Coordinator.ScoreDecay)
	float("DECISION_CONFIDENCE_MIN", &c.Coordinator.ConfidenceFloor)
	integer("MIN_AGENTS_FOR_DECISION", &c.Coordinator.MinAgents)
	var ms int
	integer("CONFLICT_RESOLUTION_TIMEOUT_MS", &ms)
	if ms > 0 {
		c.Coordinator.ConflictTimeout = time.Duration(ms) * time.Millisecond
	}

	if v, ok := lookup("KAFKA_BROKERS"); ok && v != "" {
		c.Kafka.Brokers = splitList(v)
		c.Kafka.Enabled = len(c.Kafka.Brokers) > 0
	}
	if v, ok := lookup("REDIS_ADDR"); ok && v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	str("ARBITER_URL", &c.Arbiter.URL)
	str("ARBITER_API_KEY", &c.Arbiter.APIKey)
	str("LOG_LEVEL", &c.Logging.Level)
	integer("PORT", &c.Server.Port)

	return errors.Join(errs...)
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	co := c.Coordinator
	if co.ConsensusThreshold <= 0 || co.ConsensusThreshold > 1 {
		return fmt.Errorf("coordinator.consensus_threshold must be in (0,1], got %v", co.ConsensusThreshold)
	}
	if co.ScoreDecay <= 0 || co.ScoreDecay >= 1 {
		return fmt.Errorf("coordinator.score_decay must be in (0,1), got %v", co.ScoreDecay)
	}
	if co.MinAgents < 1 {
		return fmt.Errorf("coordinator.min_agents must be >= 1, got %d", co.MinAgents)
	}
	if co.ConflictTimeout <= 0 {
		return fmt.Errorf("coordinator.conflict_timeout must be positive")
	}
	if co.ConfidenceFloor < 0 || co.ConfidenceFloor > 1 {
		return fmt.Errorf("coordinator.confidence_floor must be in [0,1], got %v", co.ConfidenceFloor)
	}
	if co.BufferCapacity < 1 {
		return fmt.Errorf("coordinator.buffer_capacity must be >= 1")
	}
	if co.CycleInterval < 0 {
		return fmt.Errorf("coordinator.cycle_interval must not be negative")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be 'json' or 'console', got '%s'", c.Logging.Format)
	}
	return nil
}
