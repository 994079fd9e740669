package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/siohaza/warden/internal/event"
	"github.com/siohaza/warden/internal/notify"
)

type webhookEntry struct {
	URL      string   `yaml:"URL"`
	Mentions []string `yaml:"MENTIONS"`
	Servers  []string `yaml:"SERVERS"`
}

type subscriptionsFile struct {
	LogLineWebhooks map[string][]webhookEntry `yaml:"LOG_LINE_WEBHOOKS"`
}

// LoadSubscriptions reads the log-line webhook file. A missing path yields
// no subscriptions.
func LoadSubscriptions(path string) (notify.Subscriptions, error) {
	if path == "" {
		return notify.Subscriptions{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return notify.Subscriptions{}, nil
		}
		return nil, fmt.Errorf("failed to read subscriptions file: %w", err)
	}

	return ParseSubscriptions(data)
}

func ParseSubscriptions(data []byte) (notify.Subscriptions, error) {
	var file subscriptionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse subscriptions: %w", err)
	}

	subs := make(notify.Subscriptions, len(file.LogLineWebhooks))
	for rawType, entries := range file.LogLineWebhooks {
		t := event.Type(strings.ToUpper(strings.TrimSpace(rawType)))
		for i, entry := range entries {
			if entry.URL == "" {
				return nil, fmt.Errorf("subscription %s[%d] has no URL", t, i)
			}
			subs[t] = append(subs[t], notify.Destination{
				URL:      entry.URL,
				Mentions: entry.Mentions,
				Servers:  entry.Servers,
			})
		}
	}
	return subs, nil
}
