package bus

import (
	"context"
	"fmt"
	"strings"

	"github.com/dishcovery/dishcovery/internal/config"
	"github.com/dishcovery/dishcovery/internal/pkg/errors"
	"github.com/dishcovery/dishcovery/internal/pkg/logger"
)

// NewBus creates a Bus instance based on the configuration.
func NewBus(cfg config.BusConfig, log *logger.Logger) (Bus, error) {
	switch strings.ToLower(cfg.Type) {
	case "memory", "":
		return NewMemoryBus(log), nil

	case "kafka":
		brokers := cfg.KafkaBrokerList()
		if len(brokers) == 0 {
			return nil, errors.New(errors.CodeValidation, "kafka brokers not configured")
		}

		consumerGroup := cfg.ConsumerGroup
		if consumerGroup == "" {
			consumerGroup = "dishcovery"
		}

		return NewKafkaBus(KafkaConfig{
			Brokers:       brokers,
			ConsumerGroup: consumerGroup,
			ClientID:      "dishcovery-bus",
		}, log)

	case "noop":
		return NoopBus{}, nil

	default:
		return nil, errors.New(errors.CodeValidation, fmt.Sprintf("unknown bus type: %s", cfg.Type))
	}
}

// NoopBus discards all events. Used when event emission is disabled.
type NoopBus struct{}

func (NoopBus) Publish(ctx context.Context, topic string, event Event) error { return nil }

func (NoopBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	return errors.New(errors.CodeInvalidRequest, "noop bus does not deliver events")
}

func (NoopBus) Close() error { return nil }
