package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"RiskGraph/pkg/util"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Log         struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error fatal panic"`
		Format string `yaml:"format" default:"console" validate:"oneof=json console"`
		Output string `yaml:"output" default:"stdout" validate:"required"`
	} `yaml:"log"`
	Server struct {
		Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"60s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
		BodyLimit       string        `yaml:"body_limit" default:"1M"`
		CORSOrigins     []string      `yaml:"cors_origins" default:"[\"*\"]"`
		// Per client IP on the scenario endpoints.
		ScenarioRatePerSec float64 `yaml:"scenario_rate_per_sec" default:"2" validate:"gt=0"`
		ScenarioBurst      int     `yaml:"scenario_burst" default:"5" validate:"gte=1"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Graph struct {
		Backend   string `yaml:"backend" default:"memory" validate:"oneof=memory memgraph"`
		SeedFile  string `yaml:"seed_file"`
		WriteBack bool   `yaml:"write_back"`
		Memgraph  struct {
			URI                   string        `yaml:"uri" default:"bolt://localhost:7687"`
			User                  string        `yaml:"user"`
			Password              string        `yaml:"password"`
			Database              string        `yaml:"database"`
			MaxConnectionPoolSize int           `yaml:"max_connection_pool_size" default:"50"`
			ConnectTimeout        time.Duration `yaml:"connect_timeout" default:"10s"`
			BatchSize             int           `yaml:"batch_size" default:"2000" validate:"gte=1"`
		} `yaml:"memgraph"`
	} `yaml:"graph"`
	Risk struct {
		MaxIterations          int     `yaml:"max_iterations" default:"15" validate:"gte=1"`
		Epsilon                float64 `yaml:"epsilon" default:"0.0001" validate:"gt=0"`
		Workers                int     `yaml:"workers" default:"1" validate:"gte=1"`
		ParallelThreshold      int     `yaml:"parallel_threshold" default:"5000" validate:"gte=1"`
		ConcentrationThreshold float64 `yaml:"concentration_threshold" default:"0.3" validate:"gt=0,lte=1"`
		TopNCritical           int     `yaml:"top_n_critical" default:"10" validate:"gte=1"`
		NormalizeMaxScore      float64 `yaml:"normalize_max_score" default:"100" validate:"gt=0"`
		RecomputeOnStart       bool    `yaml:"recompute_on_start" default:"true"`
	} `yaml:"risk"`
	Scenario struct {
		OutputDir string        `yaml:"output_dir" default:"output" validate:"required"`
		LockKey   string        `yaml:"lock_key" default:"scenario:pipeline" validate:"required"`
		LockTTL   time.Duration `yaml:"lock_ttl" default:"5m"`
	} `yaml:"scenario"`
	Kafka struct {
		Enabled       bool     `yaml:"enabled"`
		Brokers       []string `yaml:"brokers"`
		ScenarioTopic string   `yaml:"scenario_topic" default:"riskgraph.scenarios"`
		OutcomeTopic  string   `yaml:"outcome_topic" default:"riskgraph.outcomes"`
		LogTopic      string   `yaml:"log_topic"`
		RequiredAcks  int      `yaml:"required_acks" default:"-1"`
		Compression   string   `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
		Producer      struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"riskgraph-scenarios"`
			Workers    int           `yaml:"workers" default:"1" validate:"gte=1"`
			BufferSize int           `yaml:"buffer_size" default:"16"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"500ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"10s"`
			DLQTopic   string        `yaml:"dlq_topic" default:"riskgraph.scenarios.dlq"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
		LogCollector struct {
			FlushInterval  time.Duration `yaml:"flush_interval" default:"30s"`
			CountThreshold int           `yaml:"count_threshold" default:"100"`
		} `yaml:"log_collector"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"riskgraph"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"riskgraph"`
		// Queue is a scenario intake on Redis lists, used alongside or instead of Kafka.
		Queue struct {
			Enabled    bool          `yaml:"enabled"`
			Prefix     string        `yaml:"prefix" default:"riskgraph:queue"`
			Workers    int           `yaml:"workers" default:"1" validate:"gte=1"`
			RetryLimit int           `yaml:"retry_limit" default:"3"`
			RetryDelay time.Duration `yaml:"retry_delay" default:"10s"`
		} `yaml:"queue"`
	} `yaml:"redis"`
	Cache struct {
		AnalyticsTTL time.Duration `yaml:"analytics_ttl" default:"5m"`
		// LocalTTL caps the in-process tier in front of Redis.
		LocalTTL time.Duration `yaml:"local_ttl" default:"30s"`
	} `yaml:"cache"`
}

var validate = validator.New()

// Default returns a configuration made only of struct defaults.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file. Unset fields take their
// struct defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	c, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads .env (if present), the YAML file, then applies
// environment overrides. An empty path means defaults plus environment.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var (
		c   *Config
		err error
	)
	if path == "" {
		c, err = Default()
	} else {
		c, err = Load(path)
	}
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("ENVIRONMENT"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	c.Server.Port = util.ParseIntDefault(os.Getenv("PORT"), c.Server.Port)
	c.Risk.Workers = util.ParseIntDefault(os.Getenv("RISK_WORKERS"), c.Risk.Workers)
	if v := os.Getenv("GRAPH_BACKEND"); v != "" {
		c.Graph.Backend = v
	}
	if v := os.Getenv("GRAPH_SEED_FILE"); v != "" {
		c.Graph.SeedFile = v
	}
	if v := os.Getenv("MEMGRAPH_URI"); v != "" {
		c.Graph.Memgraph.URI = v
	}
	if v := os.Getenv("MEMGRAPH_USER"); v != "" {
		c.Graph.Memgraph.User = v
	}
	if v := os.Getenv("MEMGRAPH_PASSWORD"); v != "" {
		c.Graph.Memgraph.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitList(v)
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
		c.ClickHouse.Enabled = true
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Graph.Backend == "memgraph" && c.Graph.Memgraph.URI == "" {
		return fmt.Errorf("graph.memgraph.uri is required for the memgraph backend")
	}
	if c.Redis.Queue.Enabled && !c.Redis.Enabled {
		return fmt.Errorf("redis.queue requires redis.enabled")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	return nil
}
