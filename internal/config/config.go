// Package config assembles runtime settings from defaults, an optional .env
// file, an optional YAML file and the process environment, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"ottoroute/internal/model"
)

// ErrInvalid marks an unparsable setting.
var ErrInvalid = errors.New("config: invalid value")

type Config struct {
	Vehicle      model.VehicleConfig `yaml:"vehicle" json:"vehicle"`
	Algorithm    string              `yaml:"algorithm" json:"algorithm"`
	SolveTimeout time.Duration       `yaml:"solveTimeout" json:"solveTimeout"`
	Workers      int                 `yaml:"workers" json:"workers"`

	Port               string  `yaml:"port" json:"port"`
	DatabaseURL        string  `yaml:"databaseUrl" json:"-"`
	RedisURL           string  `yaml:"redisUrl" json:"-"`
	RateRPS            float64 `yaml:"rateRps" json:"rateRps"`
	RateBurst          int     `yaml:"rateBurst" json:"rateBurst"`
	WebhookMaxAttempts int     `yaml:"webhookMaxAttempts" json:"webhookMaxAttempts"`
	SamplesDir         string  `yaml:"samplesDir" json:"samplesDir"`

	AuthMode   string `yaml:"authMode" json:"authMode"`
	AuthSecret string `yaml:"authSecret" json:"-"`
}

func Default() Config {
	return Config{
		Vehicle: model.VehicleConfig{
			Speed:    2.0,
			LoadTime: 10.0,
			Start:    model.Point{X: 0, Y: 0},
			Goal:     model.Point{X: 100, Y: 100},
		},
		Algorithm:          "dp",
		SolveTimeout:       30 * time.Second,
		Workers:            1,
		Port:               "8080",
		RateRPS:            10,
		RateBurst:          20,
		WebhookMaxAttempts: 10,
		SamplesDir:         "samples",
		AuthMode:           "off",
	}
}

// Load returns the effective configuration. A missing .env file is not an
// error; a missing YAML file is, when path is non-empty.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("config: .env ignored: %v", err)
	}
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var err error
	set := func(key string, fn func(string) error) {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" || err != nil {
			return
		}
		if e := fn(v); e != nil {
			err = fmt.Errorf("%w: %s=%q: %v", ErrInvalid, key, v, e)
		}
	}
	set("OTTO_SPEED", floatInto(&c.Vehicle.Speed))
	set("OTTO_LOAD_TIME", floatInto(&c.Vehicle.LoadTime))
	set("OTTO_START", pointInto(&c.Vehicle.Start))
	set("OTTO_GOAL", pointInto(&c.Vehicle.Goal))
	set("OTTO_ALGORITHM", func(s string) error { c.Algorithm = strings.ToLower(s); return nil })
	set("OTTO_SOLVE_TIMEOUT", func(s string) (e error) { c.SolveTimeout, e = time.ParseDuration(s); return })
	set("OTTO_WORKERS", intInto(&c.Workers))
	set("PORT", func(s string) error { c.Port = s; return nil })
	set("DATABASE_URL", func(s string) error { c.DatabaseURL = s; return nil })
	set("REDIS_URL", func(s string) error { c.RedisURL = s; return nil })
	set("RATE_RPS", floatInto(&c.RateRPS))
	set("RATE_BURST", intInto(&c.RateBurst))
	set("WEBHOOK_MAX_ATTEMPTS", intInto(&c.WebhookMaxAttempts))
	set("SAMPLES_DIR", func(s string) error { c.SamplesDir = s; return nil })
	set("AUTH_MODE", func(s string) error { c.AuthMode = strings.ToLower(s); return nil })
	set("AUTH_SECRET", func(s string) error { c.AuthSecret = s; return nil })
	return err
}

// Get returns the environment value for key or fallback when unset.
func Get(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func floatInto(dst *float64) func(string) error {
	return func(s string) error {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*dst = v
		return nil
	}
}

func intInto(dst *int) func(string) error {
	return func(s string) error {
		v, err := strconv.Atoi(s)
		if err != nil {
			return err
		}
		*dst = v
		return nil
	}
}

// pointInto parses "x,y".
func pointInto(dst *model.Point) func(string) error {
	return func(s string) error {
		parts := strings.Split(s, ",")
		if len(parts) != 2 {
			return errors.New(`want "x,y"`)
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return err
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return err
		}
		*dst = model.Point{X: x, Y: y}
		return nil
	}
}
