package alerting

import (
	"fmt"
	"time"
)

// Alert statuses. resolved is terminal: a re-detection creates a new alert.
const (
	StatusFiring   = "firing"
	StatusResolved = "resolved"
)

// Alert lifecycle events recorded to the event log and Elasticsearch
const (
	EventFired              = "fired"
	EventResolved           = "resolved"
	EventAcknowledged       = "acknowledged"
	EventDiagnosisRequested = "diagnosis_requested"
)

// AIDiagnosis holds the mission-backed analysis attached to an alert. The
// mission runner reports results out of band; until then only the mission id
// and a placeholder summary are set.
type AIDiagnosis struct {
	Summary     string    `json:"summary"`
	RootCause   string    `json:"root_cause,omitempty"`
	Suggestions []string  `json:"suggestions,omitempty"`
	MissionID   string    `json:"mission_id"`
	AnalyzedAt  time.Time `json:"analyzed_at"`
}

// Alert is one deduplicated instance of a rule condition holding for a
// specific cluster/resource
type Alert struct {
	ID             string                 `json:"id"`
	RuleID         uint                   `json:"rule_id"`
	RuleName       string                 `json:"rule_name"`
	Severity       string                 `json:"severity"`
	Status         string                 `json:"status"`
	Message        string                 `json:"message"`
	Details        map[string]interface{} `json:"details,omitempty"`
	Cluster        string                 `json:"cluster,omitempty"`
	Namespace      string                 `json:"namespace,omitempty"`
	Resource       string                 `json:"resource,omitempty"`
	ResourceKind   string                 `json:"resource_kind,omitempty"`
	FiredAt        time.Time              `json:"fired_at"`
	ResolvedAt     *time.Time             `json:"resolved_at,omitempty"`
	AcknowledgedAt *time.Time             `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string                 `json:"acknowledged_by,omitempty"`
	AIDiagnosis    *AIDiagnosis           `json:"ai_diagnosis,omitempty"`
}

// dedupKey identifies the firing-alert slot for a rule/cluster/resource
// combination. Namespace is deliberately not part of the key.
func dedupKey(ruleID uint, cluster, resource string) string {
	return fmt.Sprintf("%d|%s|%s", ruleID, cluster, resource)
}

func (a *Alert) key() string {
	return dedupKey(a.RuleID, a.Cluster, a.Resource)
}
