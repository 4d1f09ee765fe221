package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"fleetwatch/internal/database"
	"fleetwatch/internal/elasticsearch"
	"fleetwatch/internal/kvstore"
	"fleetwatch/internal/logger"
	"fleetwatch/internal/mission"
	"fleetwatch/internal/models"
	"fleetwatch/internal/notify"
	"fleetwatch/internal/rules"
	"fleetwatch/internal/snapshot"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrAlertNotFound is returned when an operation targets a missing alert
var ErrAlertNotFound = errors.New("alert not found")

// alertsStateKey is the fixed key alert state is persisted under
const alertsStateKey = "fleetwatch.alerts"

// RuleSource supplies the enabled rule set for an evaluation pass
type RuleSource interface {
	EnabledRules() ([]models.AlertRule, error)
}

// DBRuleSource reads rules from the database
type DBRuleSource struct{}

func (DBRuleSource) EnabledRules() ([]models.AlertRule, error) {
	var ruleList []models.AlertRule
	if err := database.GetDB().Where("enabled = ?", true).Find(&ruleList).Error; err != nil {
		return nil, err
	}
	return ruleList, nil
}

// Config tunes the manager
type Config struct {
	Interval    time.Duration // evaluation cadence
	EventLogDir string        // empty disables the file event log
}

// Deps are the manager's collaborators. ES and Slack may be nil.
type Deps struct {
	Rules      RuleSource
	Provider   snapshot.Provider
	Dispatcher mission.Dispatcher
	Store      kvstore.Store
	ES         *elasticsearch.Client
	Slack      *notify.SlackNotifier
}

// Manager owns the alert collection. All mutation goes through its
// operations; readers get copies.
type Manager struct {
	mu     sync.RWMutex
	alerts map[string]*Alert // by alert id

	ruleSource RuleSource
	provider   snapshot.Provider
	dispatcher mission.Dispatcher
	store      kvstore.Store
	es         *elasticsearch.Client
	slack      *notify.SlackNotifier

	interval    time.Duration
	eventLogDir string

	// Serializes evaluation: a tick in progress suppresses overlapping ones
	evaluating atomic.Bool

	kick     chan struct{}
	esBuffer chan *elasticsearch.AlertEvent

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewManager(cfg Config, deps Deps) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}

	m := &Manager{
		alerts:      make(map[string]*Alert),
		ruleSource:  deps.Rules,
		provider:    deps.Provider,
		dispatcher:  deps.Dispatcher,
		store:       deps.Store,
		es:          deps.ES,
		slack:       deps.Slack,
		interval:    cfg.Interval,
		eventLogDir: cfg.EventLogDir,
		kick:        make(chan struct{}, 1),
		esBuffer:    make(chan *elasticsearch.AlertEvent, 500),
		ctx:         ctx,
		cancel:      cancel,
	}

	m.loadState()

	return m
}

// Start launches the evaluation loop and the async event writer
func (m *Manager) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run()
	}()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.eventWriter()
	}()
}

// Stop shuts the loops down
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
}

// RequestEvaluation schedules an evaluation pass soon, used after rule
// changes. Non-blocking; coalesces with a pending request.
func (m *Manager) RequestEvaluation() {
	select {
	case m.kick <- struct{}{}:
	default:
	}
}

func (m *Manager) run() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
		case <-m.kick:
		}

		if err := m.Evaluate(m.ctx); err != nil {
			logger.Warn("Alert evaluation failed", zap.Error(err))
		}
	}
}

// eventWriter drains the Elasticsearch buffer asynchronously
func (m *Manager) eventWriter() {
	for {
		select {
		case <-m.ctx.Done():
			// Flush what is already queued
			for {
				select {
				case event := <-m.esBuffer:
					if err := m.es.IndexAlertEvent(event); err != nil {
						logger.Error("Failed to index alert event", zap.Error(err))
					}
				default:
					return
				}
			}
		case event := <-m.esBuffer:
			if err := m.es.IndexAlertEvent(event); err != nil {
				logger.Error("Failed to index alert event", zap.Error(err))
			}
		}
	}
}

// Evaluate runs all enabled rules against the latest snapshot. Reentrant
// calls while a pass is in flight are no-ops.
func (m *Manager) Evaluate(ctx context.Context) error {
	if !m.evaluating.CompareAndSwap(false, true) {
		logger.Debug("Evaluation already in progress, skipping tick")
		return nil
	}
	defer m.evaluating.Store(false)

	snap, err := m.provider.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to get fleet snapshot: %w", err)
	}

	ruleList, err := m.ruleSource.EnabledRules()
	if err != nil {
		return fmt.Errorf("failed to load alert rules: %w", err)
	}

	seen := make(map[string]bool)
	var fired []*Alert

	m.mu.Lock()
	for _, rule := range ruleList {
		cond, err := rule.ParseCondition()
		if err != nil {
			logger.Warn("Skipping rule with malformed condition",
				zap.Uint("rule_id", rule.ID),
				zap.Error(err))
			continue
		}

		evaluator, err := rules.ForCondition(cond.Type)
		if err != nil {
			logger.Warn("Skipping rule with unknown condition type",
				zap.Uint("rule_id", rule.ID),
				zap.String("type", cond.Type))
			continue
		}

		for _, finding := range evaluator.Evaluate(cond, snap) {
			key := dedupKey(rule.ID, finding.Cluster, finding.Resource)
			seen[key] = true

			if alert, created := m.createOrReuseLocked(rule, finding); created {
				copied := *alert
				fired = append(fired, &copied)
			}
		}
	}

	// Resolve firing alerts whose condition no longer holds. Only copies
	// leave the lock; the live entries stay owned by m.mu.
	var autoResolved []*Alert
	now := time.Now()
	for _, alert := range m.alerts {
		if alert.Status != StatusFiring || seen[alert.key()] {
			continue
		}
		alert.Status = StatusResolved
		resolvedAt := now
		alert.ResolvedAt = &resolvedAt
		copied := *alert
		autoResolved = append(autoResolved, &copied)
	}

	m.saveStateLocked()
	m.mu.Unlock()

	for _, alert := range fired {
		m.recordEvent(EventFired, alert)
		m.notifySlack(alert, "Alert firing")
		logger.Warn("Alert fired",
			zap.String("alert_id", alert.ID),
			zap.String("rule", alert.RuleName),
			zap.String("severity", alert.Severity),
			zap.String("cluster", alert.Cluster),
			zap.String("resource", alert.Resource))
	}
	for _, alert := range autoResolved {
		m.recordEvent(EventResolved, alert)
		m.notifySlack(alert, "Alert resolved")
		logger.Info("Alert auto-resolved",
			zap.String("alert_id", alert.ID),
			zap.String("rule", alert.RuleName))
	}

	return nil
}

// createOrReuseLocked returns the existing firing alert for the dedup key,
// or stores a new one. The first detection's message and details stay as-is
// until the alert resolves. Caller holds m.mu.
func (m *Manager) createOrReuseLocked(rule models.AlertRule, finding rules.Finding) (*Alert, bool) {
	key := dedupKey(rule.ID, finding.Cluster, finding.Resource)
	for _, alert := range m.alerts {
		if alert.Status == StatusFiring && alert.key() == key {
			return alert, false
		}
	}

	alert := &Alert{
		ID:           uuid.NewString(),
		RuleID:       rule.ID,
		RuleName:     rule.Name,
		Severity:     rule.Severity,
		Status:       StatusFiring,
		Message:      finding.Message,
		Details:      finding.Details,
		Cluster:      finding.Cluster,
		Namespace:    finding.Namespace,
		Resource:     finding.Resource,
		ResourceKind: finding.ResourceKind,
		FiredAt:      time.Now(),
	}
	m.alerts[alert.ID] = alert

	return alert, true
}

// Get returns a copy of the alert
func (m *Manager) Get(id string) (*Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	alert, ok := m.alerts[id]
	if !ok {
		return nil, ErrAlertNotFound
	}
	copied := *alert
	return &copied, nil
}

// List returns all alerts, newest first
func (m *Manager) List() []*Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]*Alert, 0, len(m.alerts))
	for _, alert := range m.alerts {
		copied := *alert
		list = append(list, &copied)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].FiredAt.After(list[j].FiredAt)
	})
	return list
}

// Acknowledge marks the alert as seen by an operator. Acknowledgement does
// not prevent resolution.
func (m *Manager) Acknowledge(id, by string) error {
	m.mu.Lock()
	alert, ok := m.alerts[id]
	if !ok {
		m.mu.Unlock()
		return ErrAlertNotFound
	}

	now := time.Now()
	alert.AcknowledgedAt = &now
	alert.AcknowledgedBy = by
	m.saveStateLocked()
	copied := *alert
	m.mu.Unlock()

	m.recordEvent(EventAcknowledged, &copied)
	return nil
}

// Resolve forces the alert to resolved. Idempotent.
func (m *Manager) Resolve(id string) error {
	m.mu.Lock()
	alert, ok := m.alerts[id]
	if !ok {
		m.mu.Unlock()
		return ErrAlertNotFound
	}

	if alert.Status == StatusResolved {
		m.mu.Unlock()
		return nil
	}

	alert.Status = StatusResolved
	now := time.Now()
	alert.ResolvedAt = &now
	m.saveStateLocked()
	copied := *alert
	m.mu.Unlock()

	m.recordEvent(EventResolved, &copied)
	m.notifySlack(&copied, "Alert resolved")
	return nil
}

// Delete removes the alert entirely
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.alerts[id]; !ok {
		return ErrAlertNotFound
	}
	delete(m.alerts, id)
	m.saveStateLocked()
	return nil
}

// RunAIDiagnosis starts a diagnosis mission for the alert and records a
// placeholder diagnosis carrying the mission id. If dispatch fails the
// alert's diagnosis stays unset.
func (m *Manager) RunAIDiagnosis(ctx context.Context, id string) (string, error) {
	m.mu.RLock()
	alert, ok := m.alerts[id]
	if !ok {
		m.mu.RUnlock()
		return "", ErrAlertNotFound
	}
	copied := *alert
	m.mu.RUnlock()

	spec := mission.Spec{
		Title:       fmt.Sprintf("Diagnose alert: %s", copied.RuleName),
		Description: copied.Message,
		Type:        "diagnose",
		Cluster:     copied.Cluster,
		Prompt:      buildDiagnosisPrompt(&copied),
		Context: map[string]string{
			"alert_id": copied.ID,
			"rule_id":  fmt.Sprintf("%d", copied.RuleID),
			"severity": copied.Severity,
		},
	}

	missionID, err := m.dispatcher.StartMission(ctx, spec)
	if err != nil {
		return "", fmt.Errorf("failed to start diagnosis mission: %w", err)
	}

	m.mu.Lock()
	if alert, ok := m.alerts[id]; ok {
		alert.AIDiagnosis = &AIDiagnosis{
			Summary:    "AI analysis in progress",
			MissionID:  missionID,
			AnalyzedAt: time.Now(),
		}
		copied = *alert
		m.saveStateLocked()
	}
	m.mu.Unlock()

	m.recordEvent(EventDiagnosisRequested, &copied)
	logger.Info("Diagnosis mission started",
		zap.String("alert_id", id),
		zap.String("mission_id", missionID))

	return missionID, nil
}

// RecordDiagnosis stores a completed diagnosis reported by the mission
// runner
func (m *Manager) RecordDiagnosis(id string, diagnosis AIDiagnosis) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	alert, ok := m.alerts[id]
	if !ok {
		return ErrAlertNotFound
	}

	if diagnosis.AnalyzedAt.IsZero() {
		diagnosis.AnalyzedAt = time.Now()
	}
	alert.AIDiagnosis = &diagnosis
	m.saveStateLocked()
	return nil
}

func buildDiagnosisPrompt(alert *Alert) string {
	details, _ := json.Marshal(alert.Details)
	return fmt.Sprintf(
		"Diagnose the following Kubernetes alert.\n"+
			"Rule: %s\nSeverity: %s\nMessage: %s\nCluster: %s\nResource: %s (%s)\nDetails: %s\n"+
			"Identify the most likely root cause and suggest remediation steps.",
		alert.RuleName, alert.Severity, alert.Message,
		alert.Cluster, alert.Resource, alert.ResourceKind, string(details))
}

// recordEvent fans one lifecycle event out to the ES buffer, the file event
// log, and the process log
func (m *Manager) recordEvent(event string, alert *Alert) {
	missionID := ""
	if alert.AIDiagnosis != nil {
		missionID = alert.AIDiagnosis.MissionID
	}

	if m.es != nil {
		esEvent := &elasticsearch.AlertEvent{
			Event:     event,
			AlertID:   alert.ID,
			RuleID:    alert.RuleID,
			RuleName:  alert.RuleName,
			Severity:  alert.Severity,
			Status:    alert.Status,
			Cluster:   alert.Cluster,
			Namespace: alert.Namespace,
			Resource:  alert.Resource,
			Message:   alert.Message,
			Details:   alert.Details,
			MissionID: missionID,
		}

		select {
		case m.esBuffer <- esEvent:
		default:
			logger.Warn("ES buffer full, dropping alert event",
				zap.String("alert_id", alert.ID))
		}
	}

	if m.eventLogDir != "" {
		entry := &logger.AlertEventEntry{
			Event:     event,
			AlertID:   alert.ID,
			RuleID:    alert.RuleID,
			RuleName:  alert.RuleName,
			Severity:  alert.Severity,
			Cluster:   alert.Cluster,
			Namespace: alert.Namespace,
			Resource:  alert.Resource,
			Message:   alert.Message,
			Details:   alert.Details,
		}
		if err := logger.WriteAlertEvent(m.eventLogDir, entry); err != nil {
			logger.Warn("Failed to write alert event to file",
				zap.String("alert_id", alert.ID),
				zap.Error(err))
		}
	}
}

// notifySlack sends the notification asynchronously; delivery failures are
// logged inside the notifier
func (m *Manager) notifySlack(alert *Alert, title string) {
	if m.slack == nil {
		return
	}

	msg := notify.Message{
		Severity:  alert.Severity,
		Title:     fmt.Sprintf("%s: %s", title, alert.RuleName),
		Body:      alert.Message,
		Cluster:   alert.Cluster,
		Namespace: alert.Namespace,
		Resource:  alert.Resource,
	}
	if alert.AIDiagnosis != nil {
		msg.DiagnosisSummary = alert.AIDiagnosis.Summary
		msg.DiagnosisRootCause = alert.AIDiagnosis.RootCause
		msg.Suggestions = alert.AIDiagnosis.Suggestions
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := m.slack.Send(ctx, msg); err != nil {
			logger.Error("Slack notification failed",
				zap.String("alert_id", alert.ID),
				zap.Error(err))
		}
	}()
}

// loadState restores alerts from the client-local store; missing or corrupt
// state leaves the collection empty
func (m *Manager) loadState() {
	if m.store == nil {
		return
	}

	var persisted []*Alert
	if !m.store.Load(alertsStateKey, &persisted) {
		return
	}

	m.mu.Lock()
	for _, alert := range persisted {
		if alert != nil && alert.ID != "" {
			m.alerts[alert.ID] = alert
		}
	}
	m.mu.Unlock()

	logger.Info("Restored alerts from local store", zap.Int("count", len(persisted)))
}

// saveStateLocked persists the alert collection. Caller holds m.mu.
func (m *Manager) saveStateLocked() {
	if m.store == nil {
		return
	}

	persisted := make([]*Alert, 0, len(m.alerts))
	for _, alert := range m.alerts {
		persisted = append(persisted, alert)
	}
	m.store.Save(alertsStateKey, persisted)
}
