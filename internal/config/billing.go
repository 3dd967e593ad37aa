package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// BillingPolicy holds operator-tunable billing behavior. It is loaded from a
// billing.yml file and hot-reloaded on change; invoice-run semantics never
// depend on values outside this struct.
type BillingPolicy struct {
	// DefaultTaxRateBps is the tax rate, in basis points, applied to customers
	// without an explicit tax definition.
	DefaultTaxRateBps int64 `mapstructure:"defaultTaxRateBps"`

	// InvoiceDueDays is the payment term applied to issued invoices.
	InvoiceDueDays int `mapstructure:"invoiceDueDays"`

	// AutoRunDayOfMonth is the day of month on which the scheduler starts the
	// invoice run for the previous billing month.
	AutoRunDayOfMonth int `mapstructure:"autoRunDayOfMonth"`

	// CreditExpirySweepHourUTC is the hour (UTC) of the daily credit expiry sweep.
	CreditExpirySweepHourUTC int `mapstructure:"creditExpirySweepHourUTC"`
}

func DefaultBillingPolicy() BillingPolicy {
	return BillingPolicy{
		DefaultTaxRateBps:        0,
		InvoiceDueDays:           30,
		AutoRunDayOfMonth:        3,
		CreditExpirySweepHourUTC: 2,
	}
}

// Validate rejects policies that would produce nonsensical runs.
func (p BillingPolicy) Validate() error {
	if p.DefaultTaxRateBps < 0 || p.DefaultTaxRateBps > 10_000 {
		return errors.New("defaultTaxRateBps out of range")
	}
	if p.InvoiceDueDays < 0 {
		return errors.New("invoiceDueDays must be non-negative")
	}
	if p.AutoRunDayOfMonth < 1 || p.AutoRunDayOfMonth > 28 {
		return errors.New("autoRunDayOfMonth must be within 1..28")
	}
	if p.CreditExpirySweepHourUTC < 0 || p.CreditExpirySweepHourUTC > 23 {
		return errors.New("creditExpirySweepHourUTC must be within 0..23")
	}
	return nil
}

// BillingPolicyHolder exposes the currently loaded policy.
type BillingPolicyHolder struct {
	current atomic.Value // holds BillingPolicy
}

// NewBillingPolicyHolder loads billing.yml and watches it for changes.
func NewBillingPolicyHolder() (*BillingPolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/cirrus/config") // volume-mounted config
	v.AddConfigPath("/etc/cirrus")            // system config
	v.AddConfigPath(".")                      // dev mode

	v.SetEnvPrefix("CIRRUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingPolicy()
	v.SetDefault("billing.defaultTaxRateBps", defaults.DefaultTaxRateBps)
	v.SetDefault("billing.invoiceDueDays", defaults.InvoiceDueDays)
	v.SetDefault("billing.autoRunDayOfMonth", defaults.AutoRunDayOfMonth)
	v.SetDefault("billing.creditExpirySweepHourUTC", defaults.CreditExpirySweepHourUTC)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	holder := &BillingPolicyHolder{}
	policy, err := unmarshalBillingPolicy(v)
	if err != nil {
		return nil, err
	}
	holder.current.Store(policy)

	v.OnConfigChange(func(_ fsnotify.Event) {
		reloaded, err := unmarshalBillingPolicy(v)
		if err != nil {
			log.Printf("billing policy reload rejected: %v", err)
			return
		}
		holder.current.Store(reloaded)
	})
	v.WatchConfig()

	return holder, nil
}

// Current returns the active billing policy.
func (h *BillingPolicyHolder) Current() BillingPolicy {
	if h == nil {
		return DefaultBillingPolicy()
	}
	if policy, ok := h.current.Load().(BillingPolicy); ok {
		return policy
	}
	return DefaultBillingPolicy()
}

func unmarshalBillingPolicy(v *viper.Viper) (BillingPolicy, error) {
	var policy BillingPolicy
	if err := v.UnmarshalKey("billing", &policy); err != nil {
		return BillingPolicy{}, err
	}
	if err := policy.Validate(); err != nil {
		return BillingPolicy{}, err
	}
	return policy, nil
}
