package dispatcher

import (
	"fmt"

	"github.com/spf13/viper"
)

// Transport kinds a subscription can name
const (
	TransportWebhook = "webhook"
	TransportKafka   = "kafka"
)

// Subscription routes outbox events to one downstream consumer. Subscriptions
// are declarative configuration loaded at startup, not rows anything mutates.
type Subscription struct {
	Name       string   `mapstructure:"name"`
	Transport  string   `mapstructure:"transport"`
	URL        string   `mapstructure:"url"`
	Topic      string   `mapstructure:"topic"`
	EventTypes []string `mapstructure:"event_types"`
}

// Matches reports whether the subscription wants this event type. An empty
// event_types list subscribes to everything.
func (s *Subscription) Matches(eventType string) bool {
	if len(s.EventTypes) == 0 {
		return true
	}
	for _, t := range s.EventTypes {
		if t == eventType {
			return true
		}
	}
	return false
}

// Validate checks the subscription names a usable target for its transport
func (s *Subscription) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("subscription is missing a name")
	}
	switch s.Transport {
	case TransportWebhook:
		if s.URL == "" {
			return fmt.Errorf("webhook subscription %q is missing a url", s.Name)
		}
	case TransportKafka:
		if s.Topic == "" {
			return fmt.Errorf("kafka subscription %q is missing a topic", s.Name)
		}
	default:
		return fmt.Errorf("subscription %q has unknown transport %q", s.Name, s.Transport)
	}
	return nil
}

// LoadSubscriptions reads the subscription set from a YAML file
func LoadSubscriptions(path string) ([]Subscription, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read subscriptions file %s: %w", path, err)
	}

	var subs []Subscription
	if err := v.UnmarshalKey("subscriptions", &subs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal subscriptions: %w", err)
	}

	for i := range subs {
		if err := subs[i].Validate(); err != nil {
			return nil, err
		}
	}
	return subs, nil
}
