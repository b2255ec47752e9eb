package bus

import (
	"fmt"

	"logiflow/internal/config"
	"logiflow/internal/logger"
)

// Bus groups the three capabilities every implementation provides.
type Bus interface {
	Publisher
	Subscriber
	Declarator
}

func New(cfg config.BusConfig, log logger.Logger) (Bus, error) {
	switch cfg.Type {
	case "rabbitmq":
		return NewAMQPBus(cfg.RabbitMQ, log)
	case "kafka":
		return NewKafkaBus(cfg.Kafka, log), nil
	case "memory":
		return NewMemoryBus(log), nil
	default:
		return nil, fmt.Errorf("unknown bus type: %s", cfg.Type)
	}
}
