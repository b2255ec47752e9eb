package bootstrap

import (
	"context"
	"fmt"

	"logiflow/internal/bus"
	"logiflow/internal/config"
	"logiflow/internal/logger"
)

type Base struct {
	Config *config.Config
	Logger logger.Logger
	Bus    bus.Bus
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{
		Config: cfg,
		Logger: log,
	}
}

func (b *Base) InitBus() error {
	eventBus, err := bus.New(b.Config.Bus, b.Logger)
	if err != nil {
		return fmt.Errorf("failed to create event bus: %w", err)
	}
	b.Bus = eventBus
	return nil
}

func (b *Base) ShutdownBus() []error {
	var errs []error

	if b.Bus != nil {
		if err := b.Bus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("bus close error: %w", err))
		}
	}

	return errs
}

func (b *Base) Shutdown(ctx context.Context, additionalShutdown func(ctx context.Context) []error) error {
	b.Logger.Info("Shutting down application...")

	var errs []error

	errs = append(errs, b.ShutdownBus()...)

	if additionalShutdown != nil {
		errs = append(errs, additionalShutdown(ctx)...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	b.Logger.Info("Application exited successfully")
	return nil
}
