package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds the service and numerical settings loaded from the
// environment.
type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	}
	Logging struct {
		Level  string `env:"LOG_LEVEL" envDefault:"info"`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
	}
	Physics struct {
		Temperature float64 `env:"PV_TEMPERATURE" envDefault:"298.15"`
		Charge      float64 `env:"PV_CHARGE" envDefault:"1.602e-19"`
		Boltzmann   float64 `env:"PV_BOLTZMANN" envDefault:"1.381e-23"`
	}
	Solver struct {
		Method        string  `env:"SOLVER_METHOD" envDefault:"newton"`
		Fallback      string  `env:"SOLVER_FALLBACK" envDefault:"bisection"`
		Tolerance     float64 `env:"SOLVER_TOLERANCE" envDefault:"1e-10"`
		MaxIterations int     `env:"SOLVER_MAX_ITERATIONS" envDefault:"100"`
	}
	Optimization struct {
		Population    int   `env:"OPT_POPULATION" envDefault:"30"`
		MaxIterations int   `env:"OPT_MAX_ITERATIONS" envDefault:"100"`
		Seed          int64 `env:"OPT_SEED" envDefault:"0"`
		WorkerCount   int   `env:"OPT_WORKER_COUNT" envDefault:"1"`
	}
}

// Default returns the configuration built from envDefault tags only,
// ignoring the process environment.
func Default() *Config {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: map[string]string{}}); err != nil {
		panic(err)
	}
	return cfg
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if cfg.Environment == "development" && cfg.Logging.Level == "" {
		cfg.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks values that env tags cannot express.
func (c *Config) Validate() error {
	if c.Physics.Temperature <= 0 {
		return fmt.Errorf("PV_TEMPERATURE must be positive, got %v", c.Physics.Temperature)
	}
	if c.Physics.Charge <= 0 || c.Physics.Boltzmann <= 0 {
		return fmt.Errorf("PV_CHARGE and PV_BOLTZMANN must be positive")
	}
	if c.Solver.Tolerance <= 0 {
		return fmt.Errorf("SOLVER_TOLERANCE must be positive, got %v", c.Solver.Tolerance)
	}
	if c.Solver.MaxIterations < 1 {
		return fmt.Errorf("SOLVER_MAX_ITERATIONS must be at least 1, got %d", c.Solver.MaxIterations)
	}
	if c.Optimization.Population < 1 {
		return fmt.Errorf("OPT_POPULATION must be at least 1, got %d", c.Optimization.Population)
	}
	if c.Optimization.MaxIterations < 0 {
		return fmt.Errorf("OPT_MAX_ITERATIONS must not be negative, got %d", c.Optimization.MaxIterations)
	}
	if c.Optimization.WorkerCount < 1 {
		c.Optimization.WorkerCount = 1
	}
	return nil
}
