package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// MarketplacePolling configures the sale poller for one marketplace.
type MarketplacePolling struct {
	Enabled         bool `mapstructure:"enabled"`
	IntervalMinutes int  `mapstructure:"intervalMinutes"`
	MaxItemsPerPoll int  `mapstructure:"maxItemsPerPoll"`
	LookbackDays    int  `mapstructure:"lookbackDays"`
}

// PollingConfig maps marketplace tag -> polling settings.
type PollingConfig struct {
	Marketplaces map[string]MarketplacePolling `mapstructure:"marketplaces"`
}

// DefaultPollingConfig enables polling only for marketplaces without
// webhook support. eBay, Poshmark and Facebook push sale notifications.
func DefaultPollingConfig() PollingConfig {
	return PollingConfig{
		Marketplaces: map[string]MarketplacePolling{
			"ebay":                 {Enabled: false},
			"poshmark":             {Enabled: false},
			"facebook_marketplace": {Enabled: false},
			"mercari":              {Enabled: true, IntervalMinutes: 30, MaxItemsPerPoll: 50, LookbackDays: 7},
			"etsy":                 {Enabled: true, IntervalMinutes: 60, MaxItemsPerPoll: 50, LookbackDays: 7},
			"depop":                {Enabled: true, IntervalMinutes: 45, MaxItemsPerPoll: 25, LookbackDays: 7},
			"grailed":              {Enabled: true, IntervalMinutes: 60, MaxItemsPerPoll: 25, LookbackDays: 7},
		},
	}
}

// PollingConfigHolder serves the current polling table and hot-reloads it
// when the mounted config file changes.
type PollingConfigHolder struct {
	current atomic.Value // holds PollingConfig
}

func NewPollingConfigHolder() (*PollingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("polling")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/crosslist/config") // Volume-mounted config
	v.AddConfigPath("/etc/crosslist")            // System config
	v.AddConfigPath(".")                         // Current directory (dev mode)

	v.SetEnvPrefix("CROSSLIST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPollingConfig()
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		v.SetDefault("polling.marketplaces", defaults.Marketplaces)
	}

	var cfg PollingConfig
	if err := v.UnmarshalKey("polling", &cfg); err != nil {
		return nil, err
	}
	cfg = mergePollingDefaults(cfg, defaults)
	if err := validatePollingConfig(cfg); err != nil {
		return nil, err
	}

	holder := &PollingConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PollingConfig
		if err := v.UnmarshalKey("polling", &updated); err != nil {
			log.Printf("[polling-config] reload failed: %v", err)
			return
		}
		updated = mergePollingDefaults(updated, defaults)
		if err := validatePollingConfig(updated); err != nil {
			log.Printf("[polling-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[polling-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticPollingConfigHolder serves a fixed table with no file watch.
func NewStaticPollingConfigHolder(cfg PollingConfig) *PollingConfigHolder {
	holder := &PollingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *PollingConfigHolder) Get() PollingConfig {
	return h.current.Load().(PollingConfig)
}

func mergePollingDefaults(cfg, defaults PollingConfig) PollingConfig {
	if cfg.Marketplaces == nil {
		return defaults
	}
	for tag, def := range defaults.Marketplaces {
		entry, ok := cfg.Marketplaces[tag]
		if !ok {
			cfg.Marketplaces[tag] = def
			continue
		}
		if entry.IntervalMinutes <= 0 {
			entry.IntervalMinutes = def.IntervalMinutes
		}
		if entry.MaxItemsPerPoll <= 0 {
			entry.MaxItemsPerPoll = def.MaxItemsPerPoll
		}
		if entry.LookbackDays <= 0 {
			entry.LookbackDays = def.LookbackDays
		}
		cfg.Marketplaces[tag] = entry
	}
	return cfg
}

func validatePollingConfig(cfg PollingConfig) error {
	if len(cfg.Marketplaces) == 0 {
		return errors.New("polling.marketplaces cannot be empty")
	}
	for tag, entry := range cfg.Marketplaces {
		if !entry.Enabled {
			continue
		}
		if entry.IntervalMinutes <= 0 || entry.MaxItemsPerPoll <= 0 {
			return errors.New("polling.marketplaces." + tag + " is enabled but has no interval or batch size")
		}
	}
	return nil
}
