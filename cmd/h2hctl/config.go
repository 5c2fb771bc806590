package main

import (
	"time"

	"github.com/BurntSushi/toml"
)

type config struct {
	Addr    string
	Type    string
	Timeout time.Duration
	Verbose bool
}

func defaultConfig() config {
	return config{
		Type:    "robot",
		Timeout: 10 * time.Second,
	}
}

func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	var raw struct {
		Addr    string `toml:"addr"`
		Type    string `toml:"type"`
		Timeout string `toml:"timeout"`
		Verbose bool   `toml:"verbose"`
	}
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return cfg, err
	}
	if raw.Addr != "" {
		cfg.Addr = raw.Addr
	}
	if raw.Type != "" {
		cfg.Type = raw.Type
	}
	if raw.Timeout != "" {
		d, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return cfg, err
		}
		cfg.Timeout = d
	}
	cfg.Verbose = raw.Verbose
	return cfg, nil
}
