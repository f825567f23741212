package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	pricingdomain "github.com/smallbiznis/hourbill/internal/pricing/domain"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PricingFile mirrors pricing.yml.
type PricingFile struct {
	Pricing PricingSection `mapstructure:"pricing"`
}

type PricingSection struct {
	Rates struct {
		Regular   string `mapstructure:"regular"`
		SameDay   string `mapstructure:"sameDay"`
		Emergency string `mapstructure:"emergency"`
	} `mapstructure:"rates"`
	FreeCredits struct {
		PoolHours     string `mapstructure:"poolHours"`
		EffectiveDate string `mapstructure:"effectiveDate"`
	} `mapstructure:"freeCredits"`
	ExcludedCategories []string `mapstructure:"excludedCategories"`
}

type pricingSnapshot struct {
	policy   pricingdomain.Policy
	excluded []string
}

// PricingConfigHolder serves the current pricing policy and swaps it on file change.
type PricingConfigHolder struct {
	current atomic.Value // holds pricingSnapshot
}

var defaultExcludedCategories = []string{"Non-billable", "Migration"}

func NewPricingConfigHolder(cfg Config, log *zap.Logger) (*PricingConfigHolder, error) {
	log = log.Named("config.pricing")
	v := viper.New()

	if path := cfg.Billing.PricingConfigPath; path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("pricing")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/hourbill")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("HOURBILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := pricingdomain.DefaultPolicy()
	v.SetDefault("pricing.rates.regular", defaults.Rates.Regular.String())
	v.SetDefault("pricing.rates.sameDay", defaults.Rates.SameDay.String())
	v.SetDefault("pricing.rates.emergency", defaults.Rates.Emergency.String())
	v.SetDefault("pricing.freeCredits.poolHours", defaults.FreeCredits.PoolHours.String())
	v.SetDefault("pricing.freeCredits.effectiveDate", defaults.FreeCredits.EffectiveDate.Format(time.DateOnly))
	v.SetDefault("pricing.excludedCategories", defaultExcludedCategories)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileFound = false
		log.Info("pricing config file not found, using defaults")
	}

	snapshot, err := loadPricing(v)
	if err != nil {
		return nil, err
	}

	holder := &PricingConfigHolder{}
	holder.current.Store(snapshot)

	if fileFound {
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := loadPricing(v)
			if err != nil {
				log.Warn("invalid pricing config ignored", zap.String("file", e.Name), zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("pricing config reloaded", zap.String("file", e.Name))
		})
		v.WatchConfig()
	}

	return holder, nil
}

// NewStaticPricingHolder builds a holder that never reloads.
func NewStaticPricingHolder(policy pricingdomain.Policy, excluded []string) *PricingConfigHolder {
	holder := &PricingConfigHolder{}
	holder.current.Store(pricingSnapshot{policy: policy, excluded: excluded})
	return holder
}

func (h *PricingConfigHolder) Current() pricingdomain.Policy {
	return h.current.Load().(pricingSnapshot).policy
}

func (h *PricingConfigHolder) ExcludedCategories() []string {
	excluded := h.current.Load().(pricingSnapshot).excluded
	out := make([]string, len(excluded))
	copy(out, excluded)
	return out
}

func providePricingSource(h *PricingConfigHolder) pricingdomain.Source {
	return h
}

func loadPricing(v *viper.Viper) (pricingSnapshot, error) {
	var file PricingFile
	if err := v.Unmarshal(&file); err != nil {
		return pricingSnapshot{}, err
	}
	policy, err := file.Pricing.Policy()
	if err != nil {
		return pricingSnapshot{}, err
	}
	return pricingSnapshot{policy: policy, excluded: normalizeCategories(file.Pricing.ExcludedCategories)}, nil
}

// Policy converts the file section into a validated pricing policy.
func (s PricingSection) Policy() (pricingdomain.Policy, error) {
	regular, err := parseDecimal("pricing.rates.regular", s.Rates.Regular)
	if err != nil {
		return pricingdomain.Policy{}, err
	}
	sameDay, err := parseDecimal("pricing.rates.sameDay", s.Rates.SameDay)
	if err != nil {
		return pricingdomain.Policy{}, err
	}
	emergency, err := parseDecimal("pricing.rates.emergency", s.Rates.Emergency)
	if err != nil {
		return pricingdomain.Policy{}, err
	}
	pool, err := parseDecimal("pricing.freeCredits.poolHours", s.FreeCredits.PoolHours)
	if err != nil {
		return pricingdomain.Policy{}, err
	}
	effective, err := time.Parse(time.DateOnly, strings.TrimSpace(s.FreeCredits.EffectiveDate))
	if err != nil {
		return pricingdomain.Policy{}, fmt.Errorf("pricing.freeCredits.effectiveDate: %w", err)
	}

	policy := pricingdomain.Policy{
		Rates: pricingdomain.Rates{Regular: regular, SameDay: sameDay, Emergency: emergency},
		FreeCredits: pricingdomain.FreeCredits{
			PoolHours:     pool,
			EffectiveDate: effective.UTC(),
		},
	}
	if err := policy.Validate(); err != nil {
		return pricingdomain.Policy{}, err
	}
	return policy, nil
}

func parseDecimal(key, raw string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%s: %w", key, err)
	}
	return value, nil
}

func normalizeCategories(in []string) []string {
	out := make([]string, 0, len(in))
	for _, c := range in {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}
