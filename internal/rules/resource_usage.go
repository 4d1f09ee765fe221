package rules

import (
	"fmt"

	"fleetwatch/internal/models"
	"fleetwatch/internal/snapshot"
)

func init() {
	Register(models.ConditionResourceUsage, &ResourceUsageEvaluator{})
}

// ResourceUsageEvaluator flags clusters whose allocated/capacity ratio
// exceeds the rule threshold. Clusters that report no capacity are skipped,
// not treated as errors.
type ResourceUsageEvaluator struct{}

func (e *ResourceUsageEvaluator) Evaluate(cond models.RuleCondition, snap *snapshot.Snapshot) []Finding {
	threshold := cond.Threshold
	if threshold <= 0 {
		threshold = models.DefaultResourceUsageThreshold
	}

	var findings []Finding
	for _, cluster := range snap.Clusters {
		if !cond.MatchesCluster(cluster.Name) {
			continue
		}
		if cluster.Capacity <= 0 {
			continue // no data for this cluster
		}

		percent := cluster.Allocated / cluster.Capacity * 100
		if percent <= threshold {
			continue
		}

		findings = append(findings, Finding{
			Message: fmt.Sprintf("Cluster %s resource usage at %.1f%% (threshold %.0f%%)",
				cluster.Name, percent, threshold),
			Details: map[string]interface{}{
				"allocated": cluster.Allocated,
				"capacity":  cluster.Capacity,
				"percent":   percent,
				"threshold": threshold,
			},
			Cluster:      cluster.Name,
			Resource:     cluster.Name,
			ResourceKind: "Cluster",
		})
	}

	return findings
}
