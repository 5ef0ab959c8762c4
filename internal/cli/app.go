package cli

import (
	"github.com/colthorp/pumpcache-go/internal/cache"
	"github.com/colthorp/pumpcache-go/internal/core"
	"github.com/colthorp/pumpcache-go/internal/device"
	"github.com/colthorp/pumpcache-go/internal/pump"
	"github.com/rs/zerolog"
)

// newGateway builds the device gateway; tests replace it with an in-memory one.
var newGateway = func(cfg core.DeviceConfig, logger zerolog.Logger) device.Gateway {
	return device.NewCommandGateway(cfg, logger)
}

// app holds everything a command needs, built from config and global flags.
type app struct {
	cfg      *core.Config
	logger   zerolog.Logger
	registry *cache.Registry
	pump     *pump.Pump
}

func newApp() (*app, error) {
	cfg, err := core.LoadConfig(configPath, core.EnvPrefix)
	if err != nil {
		return nil, err
	}
	if timezone != "" {
		cfg.Timezone = timezone
		if err := core.Validate(cfg); err != nil {
			return nil, err
		}
	}
	switch {
	case verbose:
		cfg.Log.Level = "debug"
	case quiet:
		cfg.Log.Level = "warn"
	}

	logger := core.NewLogger(cfg.Log)
	registry := cache.NewRegistry()
	scatter := cache.NewScatter(cfg.Cache.ScatterSeconds)

	p, err := pump.New(newGateway(cfg.Device, logger), scatter, registry, pump.OptionsFromConfig(cfg), logger)
	if err != nil {
		return nil, err
	}

	logger.Debug().
		Str("device", cfg.Device.Command).
		Strs("device_args", cfg.Device.Args).
		Str("timezone", p.Location().String()).
		Msg("pump ready")

	return &app{cfg: cfg, logger: logger, registry: registry, pump: p}, nil
}
