package events

import (
	"fmt"
	"strings"

	"github.com/sparkq/sparkq/internal/common/config"
	"github.com/sparkq/sparkq/internal/common/logger"
	"github.com/sparkq/sparkq/internal/events/bus"
)

// Provide builds the configured event bus implementation: NATS when
// events.nats_url is set, the in-process bus otherwise. The returned cleanup
// closes the bus.
func Provide(cfg config.EventsConfig, log *logger.Logger) (bus.EventBus, func() error, error) {
	if strings.TrimSpace(cfg.NATSURL) != "" {
		natsBus, err := bus.NewNATSEventBus(cfg, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize NATS event bus: %w", err)
		}
		cleanup := func() error {
			natsBus.Close()
			return nil
		}
		return natsBus, cleanup, nil
	}

	memBus := bus.NewMemoryEventBus(log)
	cleanup := func() error {
		memBus.Close()
		return nil
	}
	return memBus, cleanup, nil
}
