// Package rules contains the pure condition evaluators. Each evaluator
// consumes a rule condition and a fleet snapshot and returns findings; it
// never creates, mutates, or resolves alerts itself.
package rules

import (
	"fmt"
	"sort"
	"sync"

	"fleetwatch/internal/models"
	"fleetwatch/internal/snapshot"
)

// Finding is one rule violation produced by an evaluator, before it becomes
// an alert
type Finding struct {
	Message      string
	Details      map[string]interface{}
	Cluster      string
	Namespace    string
	Resource     string
	ResourceKind string
}

// Evaluator checks one condition kind against a snapshot
type Evaluator interface {
	Evaluate(cond models.RuleCondition, snap *snapshot.Snapshot) []Finding
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Evaluator)
)

// Register adds an evaluator for a condition type. New condition kinds plug
// in here without touching any dispatcher.
func Register(conditionType string, evaluator Evaluator) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[conditionType] = evaluator
}

// ForCondition returns the evaluator registered for a condition type
func ForCondition(conditionType string) (Evaluator, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	evaluator, ok := registry[conditionType]
	if !ok {
		return nil, fmt.Errorf("no evaluator registered for condition type: %s", conditionType)
	}
	return evaluator, nil
}

// RegisteredTypes lists the known condition types, sorted
func RegisteredTypes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	types := make([]string, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
