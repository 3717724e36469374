package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port" validate:"omitempty,numeric"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr" validate:"omitempty,hostname_port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db" validate:"gte=0"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url" validate:"omitempty,url"`
	} `yaml:"postgres"`
	Questions struct {
		TTL   string `yaml:"ttl"`
		Scope string `yaml:"scope"`
	} `yaml:"questions"`
	Battle struct {
		QuestionCount      int    `yaml:"questionCount" validate:"gte=0,lte=100"`
		TimeLimit          string `yaml:"timeLimit"`
		AutoStartDelay     string `yaml:"autoStartDelay"`
		MatchmakingTimeout string `yaml:"matchmakingTimeout"`
		CodeAttempts       int    `yaml:"codeAttempts" validate:"gte=0,lte=50"`
	} `yaml:"battle"`
	Retention struct {
		Finished string `yaml:"finished"`
		Idle     string `yaml:"idle"`
		Sweep    string `yaml:"sweep"`
	} `yaml:"retention"`
	Presence struct {
		TTL       string `yaml:"ttl"`
		Heartbeat string `yaml:"heartbeat"`
	} `yaml:"presence"`
	Log struct {
		Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
		Format string `yaml:"format" validate:"omitempty,oneof=json console"`
	} `yaml:"log"`
}

// Load reads YAML config from path and validates it.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks field constraints and that every duration string parses.
func Validate(cfg Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validate config: %w", err)
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
		}
		return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}

	durations := map[string]string{
		"questions.ttl":             cfg.Questions.TTL,
		"battle.timeLimit":          cfg.Battle.TimeLimit,
		"battle.autoStartDelay":     cfg.Battle.AutoStartDelay,
		"battle.matchmakingTimeout": cfg.Battle.MatchmakingTimeout,
		"retention.finished":        cfg.Retention.Finished,
		"retention.idle":            cfg.Retention.Idle,
		"retention.sweep":           cfg.Retention.Sweep,
		"presence.ttl":              cfg.Presence.TTL,
		"presence.heartbeat":        cfg.Presence.Heartbeat,
	}
	for name, raw := range durations {
		if raw == "" {
			continue
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid config: %s: %w", name, err)
		}
		if d < 0 {
			return fmt.Errorf("invalid config: %s must not be negative", name)
		}
	}
	return nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
