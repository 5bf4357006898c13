package main

import (
	"flag"

	"github.com/danmuck/hfpag/internal/config"
	"github.com/danmuck/hfpag/internal/gateway"
	"github.com/danmuck/hfpag/internal/logging"
	"github.com/danmuck/hfpag/internal/observability"
	"github.com/rs/zerolog/log"
)

func main() {
	logging.ConfigureRuntime()
	observability.InitLogger("agctl")

	configPath := flag.String("config", "", "gateway config (.toml or .yaml); defaults when empty")
	flag.Parse()

	cfg, err := loadServiceConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load gateway config")
	}

	svc, err := gateway.NewServiceWithConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build gateway")
	}
	log.Info().
		Str("name", cfg.Name).
		Str("tcp", cfg.TCPListenAddr).
		Str("admin", cfg.AdminListenAddr).
		Int("serial_devices", len(cfg.Serial.Devices)).
		Bool("bluez", cfg.BlueZ.Enabled).
		Msg("gateway started")
	if err := svc.Run(); err != nil {
		log.Fatal().Err(err).Msg("gateway stopped")
	}
}

func loadServiceConfig(path string) (gateway.ServiceConfig, error) {
	if path == "" {
		return gateway.DefaultServiceConfig(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return gateway.ServiceConfig{}, err
	}
	log.Info().Str("path", path).Msg("loaded gateway config")
	return cfg, nil
}
