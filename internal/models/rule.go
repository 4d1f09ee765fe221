package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Rule severity levels
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// Condition types dispatched through the evaluator registry
const (
	ConditionResourceUsage = "resource_usage"
	ConditionNodeNotReady  = "node_not_ready"
	ConditionCrashLoop     = "crash_loop"
)

// Default thresholds applied when a rule condition leaves them unset
const (
	DefaultResourceUsageThreshold = 90 // percent
	DefaultCrashLoopThreshold     = 5  // restarts
)

// RuleCondition describes what a rule watches for. Empty cluster/namespace
// lists mean "all".
type RuleCondition struct {
	Type       string   `json:"type"`
	Threshold  float64  `json:"threshold,omitempty"`
	Clusters   []string `json:"clusters,omitempty"`
	Namespaces []string `json:"namespaces,omitempty"`
}

// MatchesCluster reports whether the condition's cluster scope includes the
// given cluster.
func (c *RuleCondition) MatchesCluster(cluster string) bool {
	if len(c.Clusters) == 0 {
		return true
	}
	for _, name := range c.Clusters {
		if name == cluster {
			return true
		}
	}
	return false
}

// MatchesNamespace reports whether the condition's namespace scope includes
// the given namespace.
func (c *RuleCondition) MatchesNamespace(namespace string) bool {
	if len(c.Namespaces) == 0 {
		return true
	}
	for _, name := range c.Namespaces {
		if name == namespace {
			return true
		}
	}
	return false
}

// AlertRule is a stored alerting rule
type AlertRule struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Severity  string    `gorm:"size:20;not null" json:"severity"` // critical, warning, info
	Enabled   bool      `gorm:"default:true" json:"enabled"`
	Condition string    `gorm:"type:text;not null" json:"condition"` // RuleCondition as JSON
	Preset    bool      `gorm:"default:false" json:"preset"`         // seeded built-in rule
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (AlertRule) TableName() string {
	return "alert_rules"
}

// ParseCondition decodes the JSON condition column
func (r *AlertRule) ParseCondition() (RuleCondition, error) {
	var cond RuleCondition
	if err := json.Unmarshal([]byte(r.Condition), &cond); err != nil {
		return RuleCondition{}, fmt.Errorf("rule %d has malformed condition: %w", r.ID, err)
	}
	return cond, nil
}

// SetCondition encodes the condition into the JSON column
func (r *AlertRule) SetCondition(cond RuleCondition) error {
	data, err := json.Marshal(cond)
	if err != nil {
		return err
	}
	r.Condition = string(data)
	return nil
}

// KVEntry backs the client-local key-value store used for alert state
type KVEntry struct {
	Key       string    `gorm:"primaryKey;size:255" json:"key"`
	Value     string    `gorm:"type:text" json:"value"` // JSON payload
	UpdatedAt time.Time `json:"updated_at"`
}

func (KVEntry) TableName() string {
	return "kv_entries"
}
