package alerting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fleetwatch/internal/kvstore"
	"fleetwatch/internal/mission"
	"fleetwatch/internal/models"
	"fleetwatch/internal/snapshot"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRuleSource struct {
	rules []models.AlertRule
}

func (f *fakeRuleSource) EnabledRules() ([]models.AlertRule, error) {
	var enabled []models.AlertRule
	for _, rule := range f.rules {
		if rule.Enabled {
			enabled = append(enabled, rule)
		}
	}
	return enabled, nil
}

type fakeProvider struct {
	snap *snapshot.Snapshot
	err  error
}

func (f *fakeProvider) Snapshot(ctx context.Context) (*snapshot.Snapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.snap, nil
}

type fakeDispatcher struct {
	startErr error
	started  []mission.Spec
	messages []string
}

func (f *fakeDispatcher) StartMission(ctx context.Context, spec mission.Spec) (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	f.started = append(f.started, spec)
	return "mission-123", nil
}

func (f *fakeDispatcher) SendMessage(ctx context.Context, missionID, text string) error {
	f.messages = append(f.messages, text)
	return nil
}

func crashLoopRule(t *testing.T, id uint) models.AlertRule {
	t.Helper()
	rule := models.AlertRule{
		ID:       id,
		Name:     "Pod crash looping",
		Severity: models.SeverityCritical,
		Enabled:  true,
	}
	require.NoError(t, rule.SetCondition(models.RuleCondition{Type: models.ConditionCrashLoop}))
	return rule
}

func crashingSnapshot() *snapshot.Snapshot {
	return &snapshot.Snapshot{
		Clusters: []snapshot.Cluster{
			{Name: "prod", Healthy: true, NodeCount: 3, Allocated: 20, Capacity: 100},
		},
		PodIssues: []snapshot.PodIssue{
			{Cluster: "prod", Namespace: "payments", Name: "api-7f9c", Restarts: 7, Status: "CrashLoopBackOff"},
		},
	}
}

func healthySnapshot() *snapshot.Snapshot {
	return &snapshot.Snapshot{
		Clusters: []snapshot.Cluster{
			{Name: "prod", Healthy: true, NodeCount: 3, Allocated: 20, Capacity: 100},
		},
	}
}

func newTestManager(t *testing.T, provider *fakeProvider, dispatcher *fakeDispatcher, store kvstore.Store) *Manager {
	t.Helper()
	if dispatcher == nil {
		dispatcher = &fakeDispatcher{}
	}
	return NewManager(Config{Interval: time.Hour}, Deps{
		Rules:      &fakeRuleSource{rules: []models.AlertRule{crashLoopRule(t, 1)}},
		Provider:   provider,
		Dispatcher: dispatcher,
		Store:      store,
	})
}

func TestEvaluateFiresOnce(t *testing.T) {
	provider := &fakeProvider{snap: crashingSnapshot()}
	m := newTestManager(t, provider, nil, nil)

	require.NoError(t, m.Evaluate(context.Background()))

	list := m.List()
	require.Len(t, list, 1)
	alert := list[0]
	assert.Equal(t, StatusFiring, alert.Status)
	assert.Equal(t, uint(1), alert.RuleID)
	assert.Equal(t, "prod", alert.Cluster)
	assert.Equal(t, "api-7f9c", alert.Resource)
	assert.Contains(t, alert.Message, "restarted 7 times")
	assert.False(t, alert.FiredAt.IsZero())

	// A second pass with the condition still holding reuses the alert
	require.NoError(t, m.Evaluate(context.Background()))
	list = m.List()
	require.Len(t, list, 1)
	assert.Equal(t, alert.ID, list[0].ID)
	assert.Equal(t, alert.FiredAt, list[0].FiredAt)
}

func TestAutoResolveAndRefire(t *testing.T) {
	provider := &fakeProvider{snap: crashingSnapshot()}
	m := newTestManager(t, provider, nil, nil)

	require.NoError(t, m.Evaluate(context.Background()))
	firstID := m.List()[0].ID

	// Condition clears: the alert resolves
	provider.snap = healthySnapshot()
	require.NoError(t, m.Evaluate(context.Background()))

	resolved, err := m.Get(firstID)
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)

	// Condition returns: a new alert fires, the old one stays resolved
	provider.snap = crashingSnapshot()
	require.NoError(t, m.Evaluate(context.Background()))

	list := m.List()
	require.Len(t, list, 2)

	old, err := m.Get(firstID)
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, old.Status)

	var fresh *Alert
	for _, alert := range list {
		if alert.ID != firstID {
			fresh = alert
		}
	}
	require.NotNil(t, fresh)
	assert.Equal(t, StatusFiring, fresh.Status)
}

func TestManualResolveIsIdempotent(t *testing.T) {
	provider := &fakeProvider{snap: crashingSnapshot()}
	m := newTestManager(t, provider, nil, nil)

	require.NoError(t, m.Evaluate(context.Background()))
	id := m.List()[0].ID

	require.NoError(t, m.Resolve(id))
	alert, err := m.Get(id)
	require.NoError(t, err)
	resolvedAt := alert.ResolvedAt
	require.NotNil(t, resolvedAt)

	require.NoError(t, m.Resolve(id))
	alert, err = m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, resolvedAt, alert.ResolvedAt)

	assert.ErrorIs(t, m.Resolve("no-such-alert"), ErrAlertNotFound)
}

func TestAcknowledge(t *testing.T) {
	provider := &fakeProvider{snap: crashingSnapshot()}
	m := newTestManager(t, provider, nil, nil)

	require.NoError(t, m.Evaluate(context.Background()))
	id := m.List()[0].ID

	require.NoError(t, m.Acknowledge(id, "oncall"))

	alert, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "oncall", alert.AcknowledgedBy)
	require.NotNil(t, alert.AcknowledgedAt)
	// Acknowledgement does not resolve
	assert.Equal(t, StatusFiring, alert.Status)

	assert.ErrorIs(t, m.Acknowledge("no-such-alert", "x"), ErrAlertNotFound)
}

func TestDelete(t *testing.T) {
	provider := &fakeProvider{snap: crashingSnapshot()}
	m := newTestManager(t, provider, nil, nil)

	require.NoError(t, m.Evaluate(context.Background()))
	id := m.List()[0].ID

	require.NoError(t, m.Delete(id))
	assert.Empty(t, m.List())
	assert.ErrorIs(t, m.Delete(id), ErrAlertNotFound)
}

func TestEvaluateSkipsWhileInFlight(t *testing.T) {
	provider := &fakeProvider{snap: crashingSnapshot()}
	m := newTestManager(t, provider, nil, nil)

	m.evaluating.Store(true)
	require.NoError(t, m.Evaluate(context.Background()))
	assert.Empty(t, m.List())
	m.evaluating.Store(false)

	require.NoError(t, m.Evaluate(context.Background()))
	assert.Len(t, m.List(), 1)
}

func TestEvaluateProviderError(t *testing.T) {
	provider := &fakeProvider{err: errors.New("introspection unreachable")}
	m := newTestManager(t, provider, nil, nil)

	err := m.Evaluate(context.Background())
	require.Error(t, err)
	assert.Empty(t, m.List())
}

func TestRunAIDiagnosis(t *testing.T) {
	provider := &fakeProvider{snap: crashingSnapshot()}
	dispatcher := &fakeDispatcher{}
	m := newTestManager(t, provider, dispatcher, nil)

	require.NoError(t, m.Evaluate(context.Background()))
	id := m.List()[0].ID

	missionID, err := m.RunAIDiagnosis(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "mission-123", missionID)
	require.Len(t, dispatcher.started, 1)
	assert.Equal(t, "diagnose", dispatcher.started[0].Type)
	assert.Contains(t, dispatcher.started[0].Prompt, "restarted 7 times")

	alert, err := m.Get(id)
	require.NoError(t, err)
	require.NotNil(t, alert.AIDiagnosis)
	assert.Equal(t, "mission-123", alert.AIDiagnosis.MissionID)
	assert.Equal(t, "AI analysis in progress", alert.AIDiagnosis.Summary)

	_, err = m.RunAIDiagnosis(context.Background(), "no-such-alert")
	assert.ErrorIs(t, err, ErrAlertNotFound)
}

func TestRunAIDiagnosisDispatchFailure(t *testing.T) {
	provider := &fakeProvider{snap: crashingSnapshot()}
	dispatcher := &fakeDispatcher{startErr: errors.New("runner unavailable")}
	m := newTestManager(t, provider, dispatcher, nil)

	require.NoError(t, m.Evaluate(context.Background()))
	id := m.List()[0].ID

	_, err := m.RunAIDiagnosis(context.Background(), id)
	require.Error(t, err)

	// The failure must be visible, not swallowed into a fake diagnosis
	alert, getErr := m.Get(id)
	require.NoError(t, getErr)
	assert.Nil(t, alert.AIDiagnosis)
}

func TestRecordDiagnosis(t *testing.T) {
	provider := &fakeProvider{snap: crashingSnapshot()}
	m := newTestManager(t, provider, nil, nil)

	require.NoError(t, m.Evaluate(context.Background()))
	id := m.List()[0].ID

	diagnosis := AIDiagnosis{
		Summary:     "OOMKilled due to memory limit",
		RootCause:   "Container memory limit below working set",
		Suggestions: []string{"Raise the memory limit", "Profile the allocation spike"},
		MissionID:   "mission-123",
	}
	require.NoError(t, m.RecordDiagnosis(id, diagnosis))

	alert, err := m.Get(id)
	require.NoError(t, err)
	require.NotNil(t, alert.AIDiagnosis)
	assert.Equal(t, "OOMKilled due to memory limit", alert.AIDiagnosis.Summary)
	assert.False(t, alert.AIDiagnosis.AnalyzedAt.IsZero())
}

func TestStatePersistsAcrossManagers(t *testing.T) {
	store := kvstore.NewMemoryStore()
	provider := &fakeProvider{snap: crashingSnapshot()}

	m1 := newTestManager(t, provider, nil, store)
	require.NoError(t, m1.Evaluate(context.Background()))
	id := m1.List()[0].ID

	m2 := newTestManager(t, provider, nil, store)
	list := m2.List()
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)
	assert.Equal(t, StatusFiring, list[0].Status)
}

// corruptStore simulates unreadable persisted state
type corruptStore struct{}

func (corruptStore) Load(key string, into interface{}) bool { return false }
func (corruptStore) Save(key string, value interface{})     {}

func TestCorruptStateStartsEmpty(t *testing.T) {
	provider := &fakeProvider{snap: healthySnapshot()}
	m := newTestManager(t, provider, nil, corruptStore{})
	assert.Empty(t, m.List())
}

func TestConcurrentEvaluateAndResolve(t *testing.T) {
	provider := &fakeProvider{snap: crashingSnapshot()}
	m := newTestManager(t, provider, nil, nil)

	// Resolved is terminal, so every resolve makes the next pass fire a
	// fresh alert; evaluation and resolution keep touching the same entries
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				_ = m.Evaluate(context.Background())
			}
		}
	}()

	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				for _, alert := range m.List() {
					if alert.Status == StatusFiring {
						_ = m.Resolve(alert.ID)
						_ = m.Acknowledge(alert.ID, "oncall")
					}
				}
			}
		}
	}()

	time.Sleep(100 * time.Millisecond)
	close(done)
	wg.Wait()
}

func TestListIsNewestFirst(t *testing.T) {
	provider := &fakeProvider{snap: crashingSnapshot()}
	m := newTestManager(t, provider, nil, nil)

	require.NoError(t, m.Evaluate(context.Background()))
	first := m.List()[0]

	require.NoError(t, m.Resolve(first.ID))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, m.Evaluate(context.Background()))

	list := m.List()
	require.Len(t, list, 2)
	assert.NotEqual(t, first.ID, list[0].ID)
	assert.True(t, list[0].FiredAt.After(list[1].FiredAt))
}
