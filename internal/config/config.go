package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "FCMSIM"

var ErrInvalid = errors.New("invalid configuration")

var validate = validator.New()

// RunConfig carries every knob of a what-if search. Zero values are filled
// from Defaults by Load.
type RunConfig struct {
	ModelDir    string             `mapstructure:"model_dir" yaml:"model_dir"`
	CasesDir    string             `mapstructure:"cases_dir" yaml:"cases_dir"`
	Case        string             `mapstructure:"case" yaml:"case"`
	Aggregator  string             `mapstructure:"aggregator" yaml:"aggregator"`
	Combiner    string             `mapstructure:"combiner" yaml:"combiner" validate:"omitempty,oneof=aggregator mean"`
	MeanWeights map[string]float64 `mapstructure:"mean_weights" yaml:"mean_weights" validate:"dive,gte=0"`
	Excluded    []string           `mapstructure:"excluded" yaml:"excluded"`
	ScaleFile   string             `mapstructure:"scale_file" yaml:"scale_file"`

	Target         string  `mapstructure:"target" yaml:"target" validate:"required"`
	PopulationSize int     `mapstructure:"population_size" yaml:"population_size" validate:"gte=1"`
	Generations    int     `mapstructure:"generations" yaml:"generations" validate:"gte=1"`
	Runs           int     `mapstructure:"runs" yaml:"runs" validate:"gte=1"`
	CrossoverProb  float64 `mapstructure:"crossover_prob" yaml:"crossover_prob" validate:"gte=0,lte=1"`
	Retain         int     `mapstructure:"retain" yaml:"retain" validate:"gte=0,lte=100"`
	Seed           int64   `mapstructure:"seed" yaml:"seed"`
	Workers        int     `mapstructure:"workers" yaml:"workers" validate:"gte=0"`
	Mutator        string  `mapstructure:"mutator" yaml:"mutator" validate:"oneof=scale decile"`

	MaxIterations int     `mapstructure:"max_iterations" yaml:"max_iterations" validate:"gte=1"`
	Threshold     float64 `mapstructure:"threshold" yaml:"threshold" validate:"gt=0"`

	Store     string `mapstructure:"store" yaml:"store" validate:"oneof=memory sqlite"`
	DBPath    string `mapstructure:"db_path" yaml:"db_path" validate:"required_if=Store sqlite"`
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir"`

	LogMode  string `mapstructure:"log_mode" yaml:"log_mode"`
	LogLevel string `mapstructure:"log_level" yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`

	Experiment ExperimentConfig `mapstructure:"experiment" yaml:"experiment"`
}

// ExperimentConfig is the parameter grid of a sweep.
type ExperimentConfig struct {
	CrossoverProbs []float64 `mapstructure:"crossover_probs" yaml:"crossover_probs" validate:"dive,gte=0,lte=1"`
	Retains        []int     `mapstructure:"retains" yaml:"retains" validate:"dive,gte=0,lte=100"`
	Cases          []string  `mapstructure:"cases" yaml:"cases"`
}

// Defaults mirrors the parameters the what-if analysis was tuned with.
func Defaults() RunConfig {
	return RunConfig{
		CasesDir:       "cases",
		Target:         "VH",
		PopulationSize: 50,
		Generations:    250,
		Runs:           2,
		CrossoverProb:  0.7,
		Retain:         15,
		Seed:           1,
		Mutator:        "scale",
		MaxIterations:  100,
		Threshold:      0.001,
		Store:          "memory",
		OutputDir:      "fcmsim_runs",
		LogMode:        "dev",
		LogLevel:       "info",
		Experiment: ExperimentConfig{
			CrossoverProbs: []float64{0.5, 0.7, 0.9},
			Retains:        []int{5, 15, 30},
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("model_dir", d.ModelDir)
	v.SetDefault("cases_dir", d.CasesDir)
	v.SetDefault("case", d.Case)
	v.SetDefault("aggregator", d.Aggregator)
	v.SetDefault("combiner", d.Combiner)
	v.SetDefault("mean_weights", map[string]float64{})
	v.SetDefault("excluded", []string{})
	v.SetDefault("scale_file", d.ScaleFile)
	v.SetDefault("target", d.Target)
	v.SetDefault("population_size", d.PopulationSize)
	v.SetDefault("generations", d.Generations)
	v.SetDefault("runs", d.Runs)
	v.SetDefault("crossover_prob", d.CrossoverProb)
	v.SetDefault("retain", d.Retain)
	v.SetDefault("seed", d.Seed)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("mutator", d.Mutator)
	v.SetDefault("max_iterations", d.MaxIterations)
	v.SetDefault("threshold", d.Threshold)
	v.SetDefault("store", d.Store)
	v.SetDefault("db_path", d.DBPath)
	v.SetDefault("output_dir", d.OutputDir)
	v.SetDefault("log_mode", d.LogMode)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("experiment.crossover_probs", d.Experiment.CrossoverProbs)
	v.SetDefault("experiment.retains", d.Experiment.Retains)
	v.SetDefault("experiment.cases", []string{})
}

// Load resolves a RunConfig from defaults, the optional YAML file at path,
// FCMSIM_* environment variables and the changed flags of fs, in rising
// precedence. Flag names use dashes for the underscores of config keys.
func Load(path string, fs *pflag.FlagSet) (RunConfig, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return RunConfig{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	if fs != nil {
		known := make(map[string]bool)
		for _, k := range v.AllKeys() {
			known[k] = true
		}
		var bindErr error
		fs.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if !f.Changed || bindErr != nil || !known[key] {
				return
			}
			bindErr = v.BindPFlag(key, f)
		})
		if bindErr != nil {
			return RunConfig{}, fmt.Errorf("bind flags: %w", bindErr)
		}
	}

	var cfg RunConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return RunConfig{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return RunConfig{}, err
	}
	return cfg, nil
}

func (c RunConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// RequireCase checks the fields a what-if run needs beyond Validate.
func (c RunConfig) RequireCase() error {
	if strings.TrimSpace(c.ModelDir) == "" {
		return fmt.Errorf("%w: model_dir is required", ErrInvalid)
	}
	if strings.TrimSpace(c.Case) == "" {
		return fmt.Errorf("%w: case is required", ErrInvalid)
	}
	return nil
}

// CaseDir is the directory holding the activation levels of name.
func (c RunConfig) CaseDir(name string) string {
	if filepath.IsAbs(name) || c.CasesDir == "" {
		return name
	}
	return filepath.Join(c.CasesDir, name)
}
