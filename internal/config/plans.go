package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Plan maps a plan-label substring to a credit policy. Recurring plans
// replace the balance each period; one-off packs add to it.
type Plan struct {
	Match     string `mapstructure:"match"`
	Credits   int    `mapstructure:"credits"`
	Recurring bool   `mapstructure:"recurring"`
}

type PlanConfig struct {
	Plans []Plan `mapstructure:"plans"`
}

func DefaultPlanConfig() PlanConfig {
	return PlanConfig{
		Plans: []Plan{
			{Match: "start", Credits: 75, Recurring: true},
			{Match: "active", Credits: 150, Recurring: true},
			{Match: "pro", Credits: 300, Recurring: true},
			{Match: "50", Credits: 50, Recurring: false},
			{Match: "100", Credits: 100, Recurring: false},
		},
	}
}

// ResolvePlan returns the first plan whose match substring occurs in the
// lowercased label, or false when no entry matches.
func (c PlanConfig) ResolvePlan(label string) (Plan, bool) {
	name := strings.ToLower(strings.TrimSpace(label))
	if name == "" {
		return Plan{}, false
	}
	for _, plan := range c.Plans {
		if strings.Contains(name, strings.ToLower(plan.Match)) {
			return plan, true
		}
	}
	return Plan{}, false
}

// PlanConfigHolder serves the current plan table and hot-reloads it when
// the backing plans.yml changes.
type PlanConfigHolder struct {
	current atomic.Value // holds PlanConfig
}

func NewPlanConfigHolder() (*PlanConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("plans")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/buddy/config")
	v.AddConfigPath("/etc/buddy")
	v.AddConfigPath(".")

	v.SetEnvPrefix("BUDDY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	cfg := DefaultPlanConfig()
	if fileFound {
		if err := v.Unmarshal(&cfg); err != nil {
			return nil, err
		}
		if err := validatePlanConfig(cfg); err != nil {
			return nil, err
		}
	}

	holder := &PlanConfigHolder{}
	holder.current.Store(cfg)

	if fileFound {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated PlanConfig
			if err := v.Unmarshal(&updated); err != nil {
				log.Printf("[plan-config] reload failed: %v", err)
				return
			}
			if err := validatePlanConfig(updated); err != nil {
				log.Printf("[plan-config] invalid config ignored: %v", err)
				return
			}
			holder.current.Store(updated)
			log.Printf("[plan-config] reloaded from %s", e.Name)
		})
	}

	return holder, nil
}

// NewStaticPlanConfigHolder wraps a fixed plan table, for tests and tools.
func NewStaticPlanConfigHolder(cfg PlanConfig) *PlanConfigHolder {
	holder := &PlanConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *PlanConfigHolder) Get() PlanConfig {
	return h.current.Load().(PlanConfig)
}

func validatePlanConfig(cfg PlanConfig) error {
	if len(cfg.Plans) == 0 {
		return errors.New("plans cannot be empty")
	}
	for _, plan := range cfg.Plans {
		if strings.TrimSpace(plan.Match) == "" {
			return errors.New("plan match cannot be empty")
		}
		if plan.Credits <= 0 {
			return errors.New("plan credits must be positive")
		}
	}
	return nil
}
