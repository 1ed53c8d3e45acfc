package bus

import (
	"fmt"
	"strings"

	"github.com/ricesearch/fairrank/internal/config"
	"github.com/ricesearch/fairrank/internal/pkg/errors"
	"github.com/ricesearch/fairrank/internal/pkg/logger"
)

// NewBus creates a new Bus instance based on the configuration. When an event
// log path is configured, published events are also journaled to disk.
func NewBus(cfg config.BusConfig, log *logger.Logger) (Bus, error) {
	var inner Bus

	switch strings.ToLower(cfg.Type) {
	case "memory", "":
		inner = NewMemoryBus(log)

	case "kafka":
		brokers := ParseKafkaBrokers(cfg.KafkaBrokers)
		if len(brokers) == 0 {
			return nil, errors.New(errors.CodeValidation, "kafka brokers not configured")
		}

		consumerGroup := cfg.KafkaGroup
		if consumerGroup == "" {
			consumerGroup = "fairrank"
		}

		kb, err := NewKafkaBus(KafkaConfig{
			Brokers:       brokers,
			ConsumerGroup: consumerGroup,
			ClientID:      "fairrank-bus",
			Version:       cfg.KafkaVersion,
		}, log)
		if err != nil {
			return nil, err
		}
		inner = kb

	default:
		return nil, errors.New(errors.CodeValidation, fmt.Sprintf("unknown bus type: %s", cfg.Type))
	}

	if cfg.EventLog == "" {
		return inner, nil
	}

	journal, err := NewEventLogger(cfg.EventLog, true)
	if err != nil {
		inner.Close()
		return nil, err
	}
	return NewLoggedBus(inner, journal, log), nil
}
