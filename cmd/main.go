package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/inivation/caer-mainloop/internal/config"
	"github.com/inivation/caer-mainloop/internal/mainloop"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "", "Path to bootstrap configuration file")
	flag.Parse()

	if configFile == "" {
		if envConfigFile := os.Getenv("CAER_CONFIG_FILE"); envConfigFile != "" {
			configFile = envConfigFile
		} else {
			configFile = "/etc/caer/config.yaml"
		}
	}

	fmt.Printf("Using configuration file: %s\n", configFile)

	cfg, err := config.LoadConfig(configFile, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := config.ValidateConfig(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Config validation failed: %v\n", err)
		os.Exit(1)
	}

	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{})
	}

	m, err := mainloop.New(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create mainloop: %v\n", err)
		os.Exit(1)
	}

	if err := m.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Mainloop error: %v\n", err)
		os.Exit(1)
	}
}
