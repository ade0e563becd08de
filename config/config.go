// Package config loads the process configuration.
package config

import (
	"flag"
	"os"
	"strconv"
)

// Config holds all application configuration.
type Config struct {
	Port             int
	Workers          int
	KeepAliveTimeout int
	Root             string
	Env              string
}

// New loads configuration from flags, with environment overrides.
func New() *Config {
	cfg := &Config{}

	flag.IntVar(&cfg.Port, "port", 8080, "TCP port to listen on")
	flag.IntVar(&cfg.Workers, "workers", 0, "Worker reactors (0 = one per CPU)")
	flag.IntVar(&cfg.KeepAliveTimeout, "keep-alive-timeout", 15, "Idle connection reap timeout (seconds)")
	flag.StringVar(&cfg.Root, "root", "./wwwroot", "Directory to serve files from")
	flag.StringVar(&cfg.Env, "env", "development", "Environment (development/production)")

	flag.Parse()

	if port := os.Getenv("PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil {
			cfg.Port = n
		}
	}

	return cfg
}
