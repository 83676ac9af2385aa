package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port        string   `yaml:"port"`
		Lang        string   `yaml:"lang"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`
	Storage struct {
		// Driver is one of memory, sqlite, postgres.
		Driver string `yaml:"driver"`
		SQLite string `yaml:"sqlite"`
	} `yaml:"storage"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		Code    string `yaml:"code"`
		File    string `yaml:"file"`
		TTL     string `yaml:"ttl"`
		PassTTL string `yaml:"pass_ttl"`
		Reveal  *bool  `yaml:"reveal_answers"`
	} `yaml:"quiz"`
	Certificate struct {
		ScsCode     string `yaml:"scs_code"`
		TargetDate  string `yaml:"target_date"`
		MinJoinDate string `yaml:"min_join_date"`
		MaxJoinDate string `yaml:"max_join_date"`
	} `yaml:"certificate"`
	Admin struct {
		Username     string `yaml:"username"`
		Name         string `yaml:"name"`
		PasswordHash string `yaml:"password_hash"`
		JWTSecret    string `yaml:"jwt_secret"`
		TokenTTL     string `yaml:"token_ttl"`
	} `yaml:"admin"`
	Client struct {
		BaseURL       string `yaml:"base_url"`
		Timeout       string `yaml:"timeout"`
		ExportTimeout string `yaml:"export_timeout"`
		DemoFallback  bool   `yaml:"demo_fallback"`
	} `yaml:"client"`
}

// Default returns a configuration usable without a config file: in-memory
// storage, the built-in quiz and the current campaign window.
func Default() Config {
	cfg := Config{}
	cfg.Server.Port = "8080"
	cfg.Server.Lang = "zh"
	cfg.Storage.Driver = "memory"
	cfg.Storage.SQLite = "anniv.db"
	cfg.Quiz.Code = "ANNIV25QZ-0001"
	cfg.Quiz.TTL = "10m"
	cfg.Quiz.PassTTL = "24h"
	cfg.Certificate.ScsCode = "SCS01"
	cfg.Certificate.TargetDate = "2025-09-06"
	cfg.Certificate.MinJoinDate = "2017-09-06"
	cfg.Certificate.MaxJoinDate = "2025-09-05"
	cfg.Admin.Username = "admin"
	cfg.Admin.Name = "管理员"
	cfg.Admin.TokenTTL = "12h"
	cfg.Client.BaseURL = "http://localhost:8080"
	cfg.Client.Timeout = "15s"
	cfg.Client.ExportTimeout = "60s"
	return cfg
}

// Load reads YAML config from path on top of Default. A missing file yields
// the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// RevealAnswers reports whether quiz options should carry ifCorrect flags.
func (c Config) RevealAnswers() bool {
	return c.Quiz.Reveal == nil || *c.Quiz.Reveal
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
