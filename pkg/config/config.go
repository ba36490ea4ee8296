package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/tunogya/augur/pkg/logger"
	"github.com/tunogya/augur/pkg/model"
	"github.com/tunogya/augur/pkg/nn"
	"github.com/tunogya/augur/pkg/queue/nats"
	"github.com/tunogya/augur/pkg/store/milvus"
	"github.com/tunogya/augur/pkg/train"
)

const dateLayout = "2006-01-02"

var validate = validator.New()

type Config struct {
	Environment string        `yaml:"environment" default:"dev" validate:"required"`
	Log         logger.Config `yaml:"log"`
	Data        DataConfig    `yaml:"data"`
	Tickers     []string      `yaml:"tickers" validate:"dive,required"`
	Model       ModelConfig   `yaml:"model"`
	Run         RunConfig     `yaml:"run"`
	Store       struct {
		DuckDBPath string `yaml:"duckdb_path"` // empty disables persistence
	} `yaml:"store"`
	NATS   nats.Config   `yaml:"nats"`
	Milvus milvus.Config `yaml:"milvus"`
	Server struct {
		Port            int           `yaml:"port" default:"8080" validate:"min=1,max=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30m"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
}

// DataConfig selects the bar source
type DataConfig struct {
	Source    string `yaml:"source" default:"csv" validate:"oneof=csv duckdb"`
	CSVDir    string `yaml:"csv_dir" default:"data"`
	StartDate string `yaml:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate   string `yaml:"end_date" validate:"omitempty,datetime=2006-01-02"`
}

// ModelConfig holds architecture and optimization settings
type ModelConfig struct {
	Types        []string `yaml:"types" default:"[\"LSTM\",\"GRU\"]" validate:"min=1,dive,oneof=LSTM GRU"`
	NSteps       int      `yaml:"n_steps" default:"30" validate:"min=1"`
	SplitRatio   float64  `yaml:"split_ratio" default:"0.8" validate:"gt=0,lt=1"`
	HiddenSize   int      `yaml:"hidden_size" default:"50" validate:"min=1"`
	NumLayers    int      `yaml:"num_layers" default:"2" validate:"min=1"`
	Dropout      float64  `yaml:"dropout" default:"0.2" validate:"gte=0,lt=1"`
	Epochs       int      `yaml:"epochs" default:"100" validate:"min=1"`
	BatchSize    int      `yaml:"batch_size" default:"64" validate:"min=1"`
	LearningRate float64  `yaml:"learning_rate" default:"0.001" validate:"gt=0"`
	LRStep       int      `yaml:"lr_step" default:"50" validate:"min=0"`
	LRGamma      float64  `yaml:"lr_gamma" default:"0.1" validate:"gt=0"`
	Seed         uint64   `yaml:"seed" default:"42"`
}

// RunConfig controls batch execution
type RunConfig struct {
	SaveDir       string        `yaml:"save_dir" default:"results" validate:"required"`
	Workers       int           `yaml:"workers" default:"1" validate:"min=1"`
	TickerTimeout time.Duration `yaml:"ticker_timeout" default:"30m"`
	Charts        bool          `yaml:"charts" default:"true"`
}

// Default returns a configuration with every default applied
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Load reads a YAML file over the defaults and validates the result
func Load(path string) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with AUGUR_* environment
// variables. An empty path starts from the defaults.
func LoadWithEnv(path string) (*Config, error) {
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
	if err := c.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// ApplyEnv overrides fields from the environment
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("AUGUR_ENV"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("AUGUR_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("AUGUR_TICKERS"); v != "" {
		c.Tickers = SplitList(v)
	}
	if v := os.Getenv("AUGUR_DATA_DIR"); v != "" {
		c.Data.CSVDir = v
	}
	if v := os.Getenv("AUGUR_SAVE_DIR"); v != "" {
		c.Run.SaveDir = v
	}
	if v := os.Getenv("AUGUR_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("AUGUR_WORKERS: %w", err)
		}
		c.Run.Workers = n
	}
	if v := os.Getenv("AUGUR_DUCKDB_PATH"); v != "" {
		c.Store.DuckDBPath = v
	}
	if v := os.Getenv("AUGUR_NATS_URL"); v != "" {
		c.NATS.URL = v
	}
	if v := os.Getenv("AUGUR_MILVUS_ADDRESS"); v != "" {
		c.Milvus.Address = v
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	start, end, err := c.Data.Range()
	if err != nil {
		return err
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return fmt.Errorf("data.end_date %s is before data.start_date %s", c.Data.EndDate, c.Data.StartDate)
	}
	return nil
}

// Range parses the configured date bounds; empty bounds are zero
func (d DataConfig) Range() (start, end time.Time, err error) {
	if d.StartDate != "" {
		if start, err = time.Parse(dateLayout, d.StartDate); err != nil {
			return start, end, fmt.Errorf("data.start_date: %w", err)
		}
	}
	if d.EndDate != "" {
		if end, err = time.Parse(dateLayout, d.EndDate); err != nil {
			return start, end, fmt.Errorf("data.end_date: %w", err)
		}
	}
	return start, end, nil
}

// ModelTypes parses the configured model types in order
func (m ModelConfig) ModelTypes() ([]model.ModelType, error) {
	out := make([]model.ModelType, 0, len(m.Types))
	for _, s := range m.Types {
		mt, err := model.ParseModelType(s)
		if err != nil {
			return nil, err
		}
		out = append(out, mt)
	}
	return out, nil
}

// Network returns the regressor architecture for a cell type
func (m ModelConfig) Network(inputSize int, cell model.ModelType) nn.Config {
	return nn.Config{
		InputSize:  inputSize,
		HiddenSize: m.HiddenSize,
		NumLayers:  m.NumLayers,
		Dropout:    m.Dropout,
		Cell:       cell,
	}
}

// Training returns the optimizer settings
func (m ModelConfig) Training() train.Config {
	return train.Config{
		Epochs:       m.Epochs,
		BatchSize:    m.BatchSize,
		LearningRate: m.LearningRate,
		StepSize:     m.LRStep,
		Gamma:        m.LRGamma,
	}
}

// SplitList splits a comma-separated list, dropping blanks
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, strings.ToUpper(p))
		}
	}
	return out
}
