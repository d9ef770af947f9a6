package events

import (
	"fmt"

	"github.com/noah-isme/lingo-tutor-api/pkg/config"
)

// NewPublisher connects the broker selected by EVENTS_DRIVER. The "none" driver
// returns a nil publisher so events only reach local handlers.
func NewPublisher(cfg config.EventsConfig) (Publisher, error) {
	switch cfg.Driver {
	case "", config.EventsDriverNone:
		return nil, nil
	case config.EventsDriverRabbitMQ:
		publisher, err := NewAMQPPublisher(cfg.URL, cfg.TopicPrefix)
		if err != nil {
			return nil, err
		}
		return publisher, nil
	case config.EventsDriverNATS:
		publisher, err := NewNATSPublisher(cfg.URL, cfg.TopicPrefix)
		if err != nil {
			return nil, err
		}
		return publisher, nil
	default:
		return nil, fmt.Errorf("unknown events driver %q", cfg.Driver)
	}
}
