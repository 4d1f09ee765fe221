package logger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	eventFileMutex sync.Mutex
)

// AlertEventEntry is a single alert lifecycle event written to the event log
type AlertEventEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Event     string                 `json:"event"` // fired, resolved, acknowledged, diagnosis_requested
	AlertID   string                 `json:"alert_id"`
	RuleID    uint                   `json:"rule_id"`
	RuleName  string                 `json:"rule_name"`
	Severity  string                 `json:"severity"`
	Cluster   string                 `json:"cluster,omitempty"`
	Namespace string                 `json:"namespace,omitempty"`
	Resource  string                 `json:"resource,omitempty"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// InitEventLog creates the event log directory
func InitEventLog(logDir string) error {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("failed to create event log directory: %w", err)
	}
	return nil
}

// WriteAlertEvent appends an alert event to the daily event log file
func WriteAlertEvent(logDir string, entry *AlertEventEntry) error {
	eventFileMutex.Lock()
	defer eventFileMutex.Unlock()

	// Daily file: logs/alerts-2026-08-24.jsonl
	date := time.Now().Format("2006-01-02")
	logFilePath := filepath.Join(logDir, fmt.Sprintf("alerts-%s.jsonl", date))

	file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open event log file: %w", err)
	}
	defer file.Close()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal event entry: %w", err)
	}

	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event entry: %w", err)
	}

	return nil
}

// EventQueryRequest filters event log queries
type EventQueryRequest struct {
	AlertID   string     `json:"alert_id,omitempty"`
	Event     string     `json:"event,omitempty"`
	Cluster   string     `json:"cluster,omitempty"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Limit     int        `json:"limit,omitempty"`
	Offset    int        `json:"offset,omitempty"`
}

// EventQueryResult is a page of matching alert events
type EventQueryResult struct {
	Total  int                `json:"total"`
	Events []*AlertEventEntry `json:"events"`
}

// QueryAlertEvents reads alert events back from the daily log files
func QueryAlertEvents(logDir string, req *EventQueryRequest) (*EventQueryResult, error) {
	result := &EventQueryResult{
		Events: make([]*AlertEventEntry, 0),
	}

	var startDate, endDate time.Time
	if req.StartTime != nil {
		startDate = *req.StartTime
	} else {
		startDate = time.Now().AddDate(0, 0, -7)
	}
	if req.EndTime != nil {
		endDate = *req.EndTime
	} else {
		endDate = time.Now()
	}

	var matched []*AlertEventEntry
	for d := startDate; !d.After(endDate); d = d.AddDate(0, 0, 1) {
		path := filepath.Join(logDir, fmt.Sprintf("alerts-%s.jsonl", d.Format("2006-01-02")))
		file, err := os.Open(path)
		if err != nil {
			continue // no events that day
		}

		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			var entry AlertEventEntry
			if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
				continue // skip malformed lines
			}
			if !matchesEventQuery(&entry, req) {
				continue
			}
			matched = append(matched, &entry)
		}
		file.Close()
	}

	result.Total = len(matched)

	offset := req.Offset
	if offset > len(matched) {
		offset = len(matched)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 100
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	result.Events = matched[offset:end]

	return result, nil
}

func matchesEventQuery(entry *AlertEventEntry, req *EventQueryRequest) bool {
	if req.AlertID != "" && entry.AlertID != req.AlertID {
		return false
	}
	if req.Event != "" && entry.Event != req.Event {
		return false
	}
	if req.Cluster != "" && entry.Cluster != req.Cluster {
		return false
	}
	if req.StartTime != nil && entry.Timestamp.Before(*req.StartTime) {
		return false
	}
	if req.EndTime != nil && entry.Timestamp.After(*req.EndTime) {
		return false
	}
	return true
}
