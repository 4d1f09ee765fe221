package rules

import (
	"fmt"

	"fleetwatch/internal/models"
	"fleetwatch/internal/snapshot"
)

func init() {
	Register(models.ConditionCrashLoop, &CrashLoopEvaluator{})
}

// CrashLoopEvaluator emits one finding per pod whose restart count reaches
// the rule threshold, scoped by the rule's cluster and namespace lists.
type CrashLoopEvaluator struct{}

func (e *CrashLoopEvaluator) Evaluate(cond models.RuleCondition, snap *snapshot.Snapshot) []Finding {
	threshold := int(cond.Threshold)
	if threshold <= 0 {
		threshold = models.DefaultCrashLoopThreshold
	}

	var findings []Finding
	for _, pod := range snap.PodIssues {
		if pod.Restarts < threshold {
			continue
		}
		if !cond.MatchesCluster(pod.Cluster) {
			continue
		}
		if !cond.MatchesNamespace(pod.Namespace) {
			continue
		}

		findings = append(findings, Finding{
			Message: fmt.Sprintf("Pod %s/%s restarted %d times (%s)",
				pod.Namespace, pod.Name, pod.Restarts, pod.Status),
			Details: map[string]interface{}{
				"restarts":  pod.Restarts,
				"status":    pod.Status,
				"reason":    pod.Reason,
				"namespace": pod.Namespace,
			},
			Cluster:      pod.Cluster,
			Namespace:    pod.Namespace,
			Resource:     pod.Name,
			ResourceKind: "Pod",
		})
	}

	return findings
}
