package rules

import (
	"testing"

	"fleetwatch/internal/models"
	"fleetwatch/internal/snapshot"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot() *snapshot.Snapshot {
	return &snapshot.Snapshot{
		Clusters: []snapshot.Cluster{
			{Name: "prod-east", Healthy: true, NodeCount: 5, Allocated: 95, Capacity: 100},
			{Name: "prod-west", Healthy: false, NodeCount: 3, Message: "2 of 3 nodes NotReady", Allocated: 40, Capacity: 100},
			{Name: "staging", Healthy: true, NodeCount: 2, Allocated: 10, Capacity: 100},
		},
		PodIssues: []snapshot.PodIssue{
			{Cluster: "prod-east", Namespace: "payments", Name: "api-7f9c", Restarts: 7, Status: "CrashLoopBackOff", Reason: "OOMKilled"},
			{Cluster: "prod-east", Namespace: "web", Name: "frontend-1", Restarts: 2, Status: "Running"},
			{Cluster: "staging", Namespace: "payments", Name: "api-0", Restarts: 12, Status: "CrashLoopBackOff"},
		},
	}
}

func TestRegistryDispatch(t *testing.T) {
	for _, condType := range []string{
		models.ConditionResourceUsage,
		models.ConditionNodeNotReady,
		models.ConditionCrashLoop,
	} {
		evaluator, err := ForCondition(condType)
		require.NoError(t, err)
		require.NotNil(t, evaluator)
	}

	_, err := ForCondition("unknown_condition")
	assert.Error(t, err)

	assert.Contains(t, RegisteredTypes(), models.ConditionCrashLoop)
}

func TestResourceUsageThreshold(t *testing.T) {
	evaluator, err := ForCondition(models.ConditionResourceUsage)
	require.NoError(t, err)

	// Default threshold of 90 catches prod-east at 95%
	findings := evaluator.Evaluate(models.RuleCondition{Type: models.ConditionResourceUsage}, testSnapshot())
	require.Len(t, findings, 1)
	assert.Equal(t, "prod-east", findings[0].Cluster)
	assert.Contains(t, findings[0].Message, "95.0%")
	assert.Equal(t, "Cluster", findings[0].ResourceKind)

	// Lower threshold catches more clusters
	findings = evaluator.Evaluate(models.RuleCondition{
		Type:      models.ConditionResourceUsage,
		Threshold: 30,
	}, testSnapshot())
	assert.Len(t, findings, 2)

	// Usage exactly at the threshold does not fire
	snap := &snapshot.Snapshot{
		Clusters: []snapshot.Cluster{{Name: "edge", Allocated: 90, Capacity: 100}},
	}
	findings = evaluator.Evaluate(models.RuleCondition{Type: models.ConditionResourceUsage}, snap)
	assert.Empty(t, findings)
}

func TestResourceUsageSkipsZeroCapacity(t *testing.T) {
	evaluator, err := ForCondition(models.ConditionResourceUsage)
	require.NoError(t, err)

	snap := &snapshot.Snapshot{
		Clusters: []snapshot.Cluster{
			{Name: "no-data", Allocated: 50, Capacity: 0},
		},
	}

	findings := evaluator.Evaluate(models.RuleCondition{Type: models.ConditionResourceUsage}, snap)
	assert.Empty(t, findings)
}

func TestResourceUsageClusterScope(t *testing.T) {
	evaluator, err := ForCondition(models.ConditionResourceUsage)
	require.NoError(t, err)

	findings := evaluator.Evaluate(models.RuleCondition{
		Type:     models.ConditionResourceUsage,
		Clusters: []string{"staging"},
	}, testSnapshot())
	assert.Empty(t, findings)
}

func TestNodeNotReady(t *testing.T) {
	evaluator, err := ForCondition(models.ConditionNodeNotReady)
	require.NoError(t, err)

	findings := evaluator.Evaluate(models.RuleCondition{Type: models.ConditionNodeNotReady}, testSnapshot())
	require.Len(t, findings, 1)
	assert.Equal(t, "prod-west", findings[0].Cluster)
	assert.Contains(t, findings[0].Message, "nodes not ready")
	assert.Contains(t, findings[0].Message, "2 of 3 nodes NotReady")
}

func TestCrashLoop(t *testing.T) {
	evaluator, err := ForCondition(models.ConditionCrashLoop)
	require.NoError(t, err)

	// Default threshold of 5 restarts
	findings := evaluator.Evaluate(models.RuleCondition{Type: models.ConditionCrashLoop}, testSnapshot())
	require.Len(t, findings, 2)

	var messages []string
	for _, f := range findings {
		messages = append(messages, f.Message)
		assert.Equal(t, "Pod", f.ResourceKind)
	}
	assert.Contains(t, messages[0]+messages[1], "restarted 7 times")

	// Restart count exactly at the threshold fires
	findings = evaluator.Evaluate(models.RuleCondition{
		Type:      models.ConditionCrashLoop,
		Threshold: 7,
	}, testSnapshot())
	require.Len(t, findings, 2)

	findings = evaluator.Evaluate(models.RuleCondition{
		Type:      models.ConditionCrashLoop,
		Threshold: 8,
	}, testSnapshot())
	require.Len(t, findings, 1)
	assert.Equal(t, "api-0", findings[0].Resource)
}

func TestCrashLoopScoping(t *testing.T) {
	evaluator, err := ForCondition(models.ConditionCrashLoop)
	require.NoError(t, err)

	findings := evaluator.Evaluate(models.RuleCondition{
		Type:     models.ConditionCrashLoop,
		Clusters: []string{"prod-east"},
	}, testSnapshot())
	require.Len(t, findings, 1)
	assert.Equal(t, "prod-east", findings[0].Cluster)

	findings = evaluator.Evaluate(models.RuleCondition{
		Type:       models.ConditionCrashLoop,
		Namespaces: []string{"web"},
	}, testSnapshot())
	assert.Empty(t, findings)
}

func TestEvaluatorsAreDeterministic(t *testing.T) {
	snap := testSnapshot()
	for _, condType := range RegisteredTypes() {
		evaluator, err := ForCondition(condType)
		require.NoError(t, err)

		cond := models.RuleCondition{Type: condType}
		first := evaluator.Evaluate(cond, snap)
		second := evaluator.Evaluate(cond, snap)
		assert.Equal(t, first, second, "evaluator %s is not deterministic", condType)
	}
}
