// Package orchestrator drives the diagnose -> propose-repair -> approve ->
// execute -> verify loop for one workload at a time. Each session is a
// single-owner state machine; phase advancement on mission completion comes
// from explicit OnDiagnosisComplete/OnRepairComplete triggers invoked by the
// collaborator that observes the mission, never from elapsed wall-clock
// time.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"fleetwatch/internal/logger"
	"fleetwatch/internal/mission"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Session phases
const (
	PhaseIdle             = "idle"
	PhaseScanning         = "scanning"
	PhaseDiagnosing       = "diagnosing"
	PhaseProposingRepair  = "proposing-repair"
	PhaseAwaitingApproval = "awaiting-approval"
	PhaseRepairing        = "repairing"
	PhaseVerifying        = "verifying"
	PhaseComplete         = "complete"
	PhaseFailed           = "failed"
)

// Repair risk levels. High is a valid value reserved for human override;
// derivation never assigns it.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

var (
	// ErrInvalidPhase signals an operation called outside its legal phase
	ErrInvalidPhase = errors.New("operation not valid in current phase")
	// ErrRepairNotFound signals an approval targeting an unknown repair
	ErrRepairNotFound = errors.New("proposed repair not found")
)

// IssueResource identifies the Kubernetes object behind an issue
type IssueResource struct {
	Kind    string `json:"kind"`
	Name    string `json:"name"`
	Status  string `json:"status"` // e.g. unhealthy, missing, degraded
	Message string `json:"message,omitempty"`
}

// Issue is one problem reported for the monitored workload
type Issue struct {
	ID          string        `json:"id"`
	Severity    string        `json:"severity"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Resource    IssueResource `json:"resource"`
}

// ResourceSummary is one monitored resource included in the diagnosis
// request
type ResourceSummary struct {
	Kind    string `json:"kind"`
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// ProposedRepair is one candidate remediation. Approved is the only field a
// human may flip before execution.
type ProposedRepair struct {
	ID          string `json:"id"`
	IssueID     string `json:"issue_id"`
	Action      string `json:"action"`
	Description string `json:"description"`
	Risk        string `json:"risk"`
	Approved    bool   `json:"approved"`
}

// DiagnosisResult is what the mission runner reports when diagnosis
// finishes. A nil Issues slice keeps the issues supplied to StartDiagnose.
type DiagnosisResult struct {
	Summary string  `json:"summary,omitempty"`
	Issues  []Issue `json:"issues,omitempty"`
}

// State is a read-only view of a session
type State struct {
	SessionID        string           `json:"session_id"`
	Phase            string           `json:"phase"`
	IssuesFound      []Issue          `json:"issues_found"`
	ProposedRepairs  []ProposedRepair `json:"proposed_repairs"`
	CompletedRepairs []string         `json:"completed_repairs"`
	LoopCount        int              `json:"loop_count"`
	MaxLoops         int              `json:"max_loops"`
	MissionID        string           `json:"mission_id,omitempty"`
	Error            string           `json:"error,omitempty"`
}

// Session is one diagnose-repair state machine instance
type Session struct {
	mu sync.Mutex

	id         string
	repairable bool
	maxLoops   int
	dispatcher mission.Dispatcher

	phase            string
	issuesFound      []Issue
	proposedRepairs  []ProposedRepair
	completedRepairs []string
	loopCount        int
	missionID        string
	errMsg           string

	// Repairs sent in the current repairing phase, committed to
	// completedRepairs when OnRepairComplete fires
	pendingExecuted []string
}

func NewSession(dispatcher mission.Dispatcher, repairable bool, maxLoops int) *Session {
	if maxLoops < 1 {
		maxLoops = 1
	}
	return &Session{
		id:         uuid.NewString(),
		repairable: repairable,
		maxLoops:   maxLoops,
		dispatcher: dispatcher,
		phase:      PhaseIdle,
	}
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// State returns a copy of the current session state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() State {
	state := State{
		SessionID:        s.id,
		Phase:            s.phase,
		IssuesFound:      append([]Issue(nil), s.issuesFound...),
		ProposedRepairs:  append([]ProposedRepair(nil), s.proposedRepairs...),
		CompletedRepairs: append([]string(nil), s.completedRepairs...),
		LoopCount:        s.loopCount,
		MaxLoops:         s.maxLoops,
		MissionID:        s.missionID,
		Error:            s.errMsg,
	}
	if state.IssuesFound == nil {
		state.IssuesFound = []Issue{}
	}
	if state.ProposedRepairs == nil {
		state.ProposedRepairs = []ProposedRepair{}
	}
	if state.CompletedRepairs == nil {
		state.CompletedRepairs = []string{}
	}
	return state
}

// StartDiagnose begins a diagnosis pass. Entering from verifying counts as a
// loop continuation and increments the loop counter; entering from idle
// resets it.
func (s *Session) StartDiagnose(ctx context.Context, resources []ResourceSummary, issues []Issue, extra map[string]string) error {
	s.mu.Lock()

	switch s.phase {
	case PhaseIdle:
		s.loopCount = 0
	case PhaseVerifying:
		s.loopCount++
	default:
		phase := s.phase
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot start diagnosis from phase %s", ErrInvalidPhase, phase)
	}

	s.phase = PhaseScanning
	s.issuesFound = append([]Issue(nil), issues...)
	s.proposedRepairs = nil
	s.pendingExecuted = nil
	s.errMsg = ""

	prompt := buildDiagnosisRequest(resources, issues, s.repairable)
	s.phase = PhaseDiagnosing

	spec := mission.Spec{
		Title:       "Diagnose workload health",
		Description: fmt.Sprintf("%d resources, %d issues", len(resources), len(issues)),
		Type:        missionType(s.repairable),
		Prompt:      prompt,
		Context:     extra,
	}
	loopCount := s.loopCount
	s.mu.Unlock()

	missionID, err := s.dispatcher.StartMission(ctx, spec)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.phase = PhaseFailed
		s.errMsg = fmt.Sprintf("diagnosis dispatch failed: %v", err)
		return fmt.Errorf("failed to dispatch diagnosis mission: %w", err)
	}

	s.missionID = missionID
	logger.Info("Diagnosis mission dispatched",
		zap.String("session_id", s.id),
		zap.String("mission_id", missionID),
		zap.Int("loop", loopCount))

	return nil
}

// OnDiagnosisComplete advances the session once the mission runner reports
// the diagnosis finished. Diagnose-only sessions and sessions with no issues
// complete here; otherwise repairs are proposed, all unapproved.
func (s *Session) OnDiagnosisComplete(result DiagnosisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseDiagnosing {
		return fmt.Errorf("%w: diagnosis completion in phase %s", ErrInvalidPhase, s.phase)
	}

	if result.Issues != nil {
		s.issuesFound = append([]Issue(nil), result.Issues...)
	}

	if !s.repairable || len(s.issuesFound) == 0 {
		s.proposedRepairs = nil
		s.phase = PhaseComplete
		return nil
	}

	s.proposedRepairs = make([]ProposedRepair, 0, len(s.issuesFound))
	for _, issue := range s.issuesFound {
		action, description := deriveRepairAction(issue)
		s.proposedRepairs = append(s.proposedRepairs, ProposedRepair{
			ID:          uuid.NewString(),
			IssueID:     issue.ID,
			Action:      action,
			Description: description,
			Risk:        deriveRepairRisk(issue),
			Approved:    false,
		})
	}
	s.phase = PhaseProposingRepair

	return nil
}

// ApproveRepair flips approval on a single proposed repair
func (s *Session) ApproveRepair(repairID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseProposingRepair && s.phase != PhaseAwaitingApproval {
		return fmt.Errorf("%w: approval in phase %s", ErrInvalidPhase, s.phase)
	}

	for i := range s.proposedRepairs {
		if s.proposedRepairs[i].ID == repairID {
			s.proposedRepairs[i].Approved = true
			s.phase = PhaseAwaitingApproval
			return nil
		}
	}

	return fmt.Errorf("%w: %s", ErrRepairNotFound, repairID)
}

// ApproveAllRepairs flips approval on every proposed repair
func (s *Session) ApproveAllRepairs() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseProposingRepair && s.phase != PhaseAwaitingApproval {
		return fmt.Errorf("%w: approval in phase %s", ErrInvalidPhase, s.phase)
	}

	for i := range s.proposedRepairs {
		s.proposedRepairs[i].Approved = true
	}
	s.phase = PhaseAwaitingApproval

	return nil
}

// ExecuteRepairs sends every approved, not-yet-completed repair to the
// mission in a single instruction message. A call with nothing approved is a
// no-op. Approval is a hard gate: nothing executes without it.
func (s *Session) ExecuteRepairs(ctx context.Context) error {
	s.mu.Lock()

	if s.phase != PhaseProposingRepair && s.phase != PhaseAwaitingApproval {
		phase := s.phase
		s.mu.Unlock()
		return fmt.Errorf("%w: execution in phase %s", ErrInvalidPhase, phase)
	}

	completed := make(map[string]bool, len(s.completedRepairs))
	for _, id := range s.completedRepairs {
		completed[id] = true
	}

	var approved []ProposedRepair
	for _, repair := range s.proposedRepairs {
		if repair.Approved && !completed[repair.ID] {
			approved = append(approved, repair)
		}
	}

	if len(approved) == 0 {
		s.mu.Unlock()
		return nil
	}

	text := buildRepairInstructions(approved)
	missionID := s.missionID
	s.phase = PhaseRepairing
	s.pendingExecuted = s.pendingExecuted[:0]
	for _, repair := range approved {
		s.pendingExecuted = append(s.pendingExecuted, repair.ID)
	}
	s.mu.Unlock()

	err := s.dispatcher.SendMessage(ctx, missionID, text)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.phase = PhaseFailed
		s.errMsg = fmt.Sprintf("repair dispatch failed: %v", err)
		s.pendingExecuted = nil
		return fmt.Errorf("failed to dispatch repair instructions: %w", err)
	}

	logger.Info("Repair instructions dispatched",
		zap.String("session_id", s.id),
		zap.String("mission_id", missionID),
		zap.Int("repairs", len(approved)))

	return nil
}

// OnRepairComplete records the executed repairs and moves to verification.
// When the loop bound is reached the session completes instead of waiting
// for another diagnosis pass.
func (s *Session) OnRepairComplete() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseRepairing {
		return fmt.Errorf("%w: repair completion in phase %s", ErrInvalidPhase, s.phase)
	}

	s.completedRepairs = append(s.completedRepairs, s.pendingExecuted...)
	s.pendingExecuted = nil
	s.phase = PhaseVerifying

	if s.loopCount >= s.maxLoops-1 {
		s.phase = PhaseComplete
	}

	return nil
}

// Fail forces the session into the failed phase with a reason. Used by
// callers that observe a dispatch or mission failure out of band.
func (s *Session) Fail(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.phase = PhaseFailed
	s.errMsg = reason
}

// Cancel detaches the session from its mission and returns it to idle. The
// remote mission is not stopped; this is best-effort local abandonment.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.missionID = ""
	s.pendingExecuted = nil
	s.phase = PhaseIdle
	s.errMsg = "session cancelled; any running mission was abandoned, not stopped"
}

// Reset returns the session to its initial empty state unconditionally
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.phase = PhaseIdle
	s.issuesFound = nil
	s.proposedRepairs = nil
	s.completedRepairs = nil
	s.pendingExecuted = nil
	s.loopCount = 0
	s.missionID = ""
	s.errMsg = ""
}

// deriveRepairAction maps an issue's resource kind and status to a concrete
// remediation. The mapping is deterministic: identical inputs always yield
// identical actions.
func deriveRepairAction(issue Issue) (action, description string) {
	kind := issue.Resource.Kind
	status := issue.Resource.Status

	if status == "missing" {
		return fmt.Sprintf("Create %s", kind),
			fmt.Sprintf("Create the missing %s %q", kind, issue.Resource.Name)
	}

	switch kind {
	case "Deployment", "StatefulSet", "DaemonSet":
		if status == "unhealthy" {
			return fmt.Sprintf("Restart %s", kind),
				fmt.Sprintf("Restart %s %q to recover unhealthy pods", kind, issue.Resource.Name)
		}
		return fmt.Sprintf("Scale %s", kind),
			fmt.Sprintf("Adjust replica count of %s %q", kind, issue.Resource.Name)
	case "Service":
		return "Check endpoints",
			fmt.Sprintf("Verify Service %q has healthy endpoints", issue.Resource.Name)
	case "PersistentVolumeClaim":
		return "Investigate PVC",
			fmt.Sprintf("Inspect binding and capacity of PVC %q", issue.Resource.Name)
	default:
		return fmt.Sprintf("Investigate %s", kind),
			fmt.Sprintf("Investigate %s %q: %s", kind, issue.Resource.Name, issue.Title)
	}
}

// deriveRepairRisk is deterministic in (severity, kind)
func deriveRepairRisk(issue Issue) string {
	if issue.Severity == "critical" {
		return RiskMedium
	}
	switch issue.Resource.Kind {
	case "Deployment", "StatefulSet":
		return RiskMedium
	}
	return RiskLow
}

func missionType(repairable bool) string {
	if repairable {
		return "diagnose_repair"
	}
	return "diagnose"
}

func buildDiagnosisRequest(resources []ResourceSummary, issues []Issue, repairable bool) string {
	var sb strings.Builder

	sb.WriteString("Diagnose the health of the following Kubernetes workload.\n\n")

	sb.WriteString(fmt.Sprintf("Resources (%d):\n", len(resources)))
	for _, res := range resources {
		sb.WriteString(fmt.Sprintf("- %s/%s: %s", res.Kind, res.Name, res.Status))
		if res.Message != "" {
			sb.WriteString(" (" + res.Message + ")")
		}
		sb.WriteString("\n")
	}

	sb.WriteString(fmt.Sprintf("\nKnown issues (%d):\n", len(issues)))
	for _, issue := range issues {
		sb.WriteString(fmt.Sprintf("- [%s] %s: %s (%s/%s is %s)\n",
			issue.Severity, issue.Title, issue.Description,
			issue.Resource.Kind, issue.Resource.Name, issue.Resource.Status))
	}

	if repairable {
		sb.WriteString("\nRepairs may be proposed; they will require explicit approval before execution.\n")
	} else {
		sb.WriteString("\nThis is a diagnose-only session; do not attempt any repairs.\n")
	}

	return sb.String()
}

func buildRepairInstructions(repairs []ProposedRepair) string {
	var sb strings.Builder

	sb.WriteString("Execute the following approved repairs:\n")
	for i, repair := range repairs {
		sb.WriteString(fmt.Sprintf("%d. %s — %s (risk: %s)\n",
			i+1, repair.Action, repair.Description, repair.Risk))
	}
	sb.WriteString("Report the outcome of each repair when done.")

	return sb.String()
}
