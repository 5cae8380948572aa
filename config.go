package kernpool

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"

	"github.com/jirevwe/kernpool/journal"
	"github.com/jirevwe/kernpool/kernel"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// Workers is the number of pool workers. Defaults to the CPU count.
	Workers int `yaml:"workers"`

	// QueueDepth is the worker feed channel capacity.
	QueueDepth int `yaml:"queue_depth"`

	// JournalPath, when set, opens an sqlite dispatch journal at the path.
	JournalPath string `yaml:"journal_path"`

	// Parallel overrides the detected parallel capability. nil = detect.
	Parallel *bool `yaml:"parallel"`

	// ForkNotify marks that the embedding process delivers a fork
	// notification through ForkHandler. The lazy dispatch check stays
	// active either way.
	ForkNotify bool `yaml:"fork_notify"`

	// MetricsNamespace, when set, registers Prometheus pool metrics under
	// the namespace on the default registry.
	MetricsNamespace string `yaml:"metrics_namespace"`

	Logger  *slog.Logger    `yaml:"-"`
	Mux     *kernel.Mux     `yaml:"-"`
	Journal journal.Journal `yaml:"-"`
}

func DefaultConfig() *Config {
	return &Config{
		Workers:    runtime.NumCPU(),
		QueueDepth: 64,
	}
}

// LoadConfig reads a YAML config file and applies KERNPOOL_* environment
// overrides on top of it. A missing path loads defaults plus environment.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv("KERNPOOL_WORKERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("KERNPOOL_WORKERS: %w", err)
		}
		cfg.Workers = n
	}

	if v, ok := os.LookupEnv("KERNPOOL_QUEUE_DEPTH"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("KERNPOOL_QUEUE_DEPTH: %w", err)
		}
		cfg.QueueDepth = n
	}

	if v, ok := os.LookupEnv("KERNPOOL_JOURNAL_PATH"); ok {
		cfg.JournalPath = v
	}

	if v, ok := os.LookupEnv("KERNPOOL_PARALLEL"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("KERNPOOL_PARALLEL: %w", err)
		}
		cfg.Parallel = &b
	}

	if v, ok := os.LookupEnv("KERNPOOL_FORK_NOTIFY"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("KERNPOOL_FORK_NOTIFY: %w", err)
		}
		cfg.ForkNotify = b
	}

	if v, ok := os.LookupEnv("KERNPOOL_METRICS_NAMESPACE"); ok {
		cfg.MetricsNamespace = v
	}

	return nil
}
