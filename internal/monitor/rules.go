package monitor

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	alertdomain "github.com/watchkeep/watchkeep/internal/alert/domain"
	"go.uber.org/zap"
)

// DefaultRules are the built-in thresholds. A rules file may override any
// of them by name or add new ones.
func DefaultRules() []alertdomain.ThresholdRule {
	cores := float64(runtime.NumCPU())
	return []alertdomain.ThresholdRule{
		{Name: "cpu_high", MetricType: "cpu_percent", Operator: alertdomain.OpGreater, Threshold: 80, Severity: alertdomain.SeverityNormal, CooldownSeconds: 300, Enabled: true},
		{Name: "cpu_critical", MetricType: "cpu_percent", Operator: alertdomain.OpGreater, Threshold: 95, Severity: alertdomain.SeverityCritical, CooldownSeconds: 120, Enabled: true},
		{Name: "memory_high", MetricType: "memory_percent", Operator: alertdomain.OpGreater, Threshold: 85, Severity: alertdomain.SeverityNormal, CooldownSeconds: 300, Enabled: true},
		{Name: "memory_critical", MetricType: "memory_percent", Operator: alertdomain.OpGreater, Threshold: 95, Severity: alertdomain.SeverityCritical, CooldownSeconds: 120, Enabled: true},
		{Name: "disk_low", MetricType: "disk_free_gb", Operator: alertdomain.OpLess, Threshold: 5, Severity: alertdomain.SeverityNormal, CooldownSeconds: 1800, Enabled: true},
		{Name: "disk_critical", MetricType: "disk_free_gb", Operator: alertdomain.OpLess, Threshold: 1, Severity: alertdomain.SeverityCritical, CooldownSeconds: 900, Enabled: true},
		{Name: "load_high", MetricType: "load_1", Operator: alertdomain.OpGreater, Threshold: 2 * cores, Severity: alertdomain.SeverityNormal, CooldownSeconds: 600, Enabled: true},
	}
}

// RuleOverride is the YAML shape of one rules-file entry.
type RuleOverride struct {
	Name            string   `mapstructure:"name"`
	MetricType      string   `mapstructure:"metric_type"`
	Operator        string   `mapstructure:"operator"`
	Threshold       *float64 `mapstructure:"threshold"`
	Severity        string   `mapstructure:"severity"`
	CooldownSeconds int      `mapstructure:"cooldown_seconds"`
	Enabled         *bool    `mapstructure:"enabled"`
}

// RulesHolder serves the current merged rule set and hot-reloads the rules
// file when it changes on disk.
type RulesHolder struct {
	current atomic.Value // holds []alertdomain.ThresholdRule
	version atomic.Int64
	log     *zap.Logger
}

func NewRulesHolder(path string, log *zap.Logger) (*RulesHolder, error) {
	holder := &RulesHolder{log: log.Named("monitor.rules")}
	holder.current.Store(DefaultRules())
	holder.version.Store(1)

	if path == "" {
		return holder, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read rules file: %w", err)
		}
		return holder, nil
	}

	merged, err := holder.parse(v)
	if err != nil {
		return nil, err
	}
	holder.store(merged)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := holder.parse(v)
		if err != nil {
			holder.log.Warn("rules reload rejected", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.store(updated)
		holder.log.Info("rules reloaded", zap.String("file", e.Name), zap.Int("rules", len(updated)))
	})

	return holder, nil
}

// Rules returns the current merged rule set.
func (h *RulesHolder) Rules() []alertdomain.ThresholdRule {
	return h.current.Load().([]alertdomain.ThresholdRule)
}

// Version increments on every successful (re)load; the monitor uses it to
// decide when the persisted rules need re-syncing.
func (h *RulesHolder) Version() int64 {
	return h.version.Load()
}

func (h *RulesHolder) store(rules []alertdomain.ThresholdRule) {
	h.current.Store(rules)
	h.version.Add(1)
}

func (h *RulesHolder) parse(v *viper.Viper) ([]alertdomain.ThresholdRule, error) {
	var overrides []RuleOverride
	if err := v.UnmarshalKey("rules", &overrides); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}
	return mergeRules(DefaultRules(), overrides)
}

func mergeRules(defaults []alertdomain.ThresholdRule, overrides []RuleOverride) ([]alertdomain.ThresholdRule, error) {
	byName := make(map[string]int, len(defaults))
	merged := make([]alertdomain.ThresholdRule, len(defaults))
	copy(merged, defaults)
	for i, r := range merged {
		byName[r.Name] = i
	}

	for _, o := range overrides {
		if o.Name == "" {
			return nil, fmt.Errorf("rule override missing name")
		}

		var rule alertdomain.ThresholdRule
		if idx, ok := byName[o.Name]; ok {
			rule = merged[idx]
		} else {
			rule = alertdomain.ThresholdRule{Name: o.Name, Enabled: true}
		}

		if o.MetricType != "" {
			rule.MetricType = o.MetricType
		}
		if o.Operator != "" {
			rule.Operator = alertdomain.Operator(o.Operator)
		}
		if o.Threshold != nil {
			rule.Threshold = *o.Threshold
		}
		if o.Severity != "" {
			rule.Severity = alertdomain.Severity(o.Severity)
		}
		if o.CooldownSeconds > 0 {
			rule.CooldownSeconds = o.CooldownSeconds
		}
		if o.Enabled != nil {
			rule.Enabled = *o.Enabled
		}

		if rule.MetricType == "" {
			return nil, fmt.Errorf("rule %q: metric_type is required", o.Name)
		}
		if !rule.Operator.Valid() {
			return nil, fmt.Errorf("rule %q: unknown operator %q", o.Name, rule.Operator)
		}
		if !rule.Severity.Valid() {
			return nil, fmt.Errorf("rule %q: unknown severity %q", o.Name, rule.Severity)
		}

		if idx, ok := byName[o.Name]; ok {
			merged[idx] = rule
		} else {
			byName[o.Name] = len(merged)
			merged = append(merged, rule)
		}
	}
	return merged, nil
}
