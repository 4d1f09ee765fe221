package rules

import (
	"fmt"

	"fleetwatch/internal/models"
	"fleetwatch/internal/snapshot"
)

func init() {
	Register(models.ConditionNodeNotReady, &NodeNotReadyEvaluator{})
}

// NodeNotReadyEvaluator flags clusters reported unhealthy at the summary
// level. The introspection API folds individual node readiness into the
// cluster health flag; refining this to per-node findings would not change
// the evaluator contract.
type NodeNotReadyEvaluator struct{}

func (e *NodeNotReadyEvaluator) Evaluate(cond models.RuleCondition, snap *snapshot.Snapshot) []Finding {
	var findings []Finding
	for _, cluster := range snap.Clusters {
		if !cond.MatchesCluster(cluster.Name) {
			continue
		}
		if cluster.Healthy {
			continue
		}

		message := fmt.Sprintf("Cluster %s has nodes not ready", cluster.Name)
		if cluster.Message != "" {
			message = fmt.Sprintf("Cluster %s has nodes not ready: %s", cluster.Name, cluster.Message)
		}

		findings = append(findings, Finding{
			Message: message,
			Details: map[string]interface{}{
				"node_count": cluster.NodeCount,
				"healthy":    cluster.Healthy,
			},
			Cluster:      cluster.Name,
			Resource:     cluster.Name,
			ResourceKind: "Cluster",
		})
	}

	return findings
}
