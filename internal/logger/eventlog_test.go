package logger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestEvents(t *testing.T, dir string) {
	t.Helper()
	entries := []*AlertEventEntry{
		{Event: "fired", AlertID: "a1", RuleID: 1, RuleName: "Pod crash looping", Severity: "critical", Cluster: "prod", Message: "restarted 7 times"},
		{Event: "acknowledged", AlertID: "a1", RuleID: 1, RuleName: "Pod crash looping", Severity: "critical", Cluster: "prod", Message: "ack"},
		{Event: "fired", AlertID: "a2", RuleID: 2, RuleName: "High resource usage", Severity: "warning", Cluster: "staging", Message: "usage at 95%"},
		{Event: "resolved", AlertID: "a2", RuleID: 2, RuleName: "High resource usage", Severity: "warning", Cluster: "staging", Message: "usage back to normal"},
	}
	for _, entry := range entries {
		require.NoError(t, WriteAlertEvent(dir, entry))
	}
}

func TestWriteAndQueryAlertEvents(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, InitEventLog(dir))
	writeTestEvents(t, dir)

	result, err := QueryAlertEvents(dir, &EventQueryRequest{})
	require.NoError(t, err)
	assert.Equal(t, 4, result.Total)
	require.Len(t, result.Events, 4)
	// Timestamps are stamped on write
	assert.False(t, result.Events[0].Timestamp.IsZero())
}

func TestQueryFilters(t *testing.T) {
	dir := t.TempDir()
	writeTestEvents(t, dir)

	result, err := QueryAlertEvents(dir, &EventQueryRequest{AlertID: "a1"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)

	result, err = QueryAlertEvents(dir, &EventQueryRequest{Event: "fired"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)

	result, err = QueryAlertEvents(dir, &EventQueryRequest{Cluster: "staging"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)
	for _, entry := range result.Events {
		assert.Equal(t, "staging", entry.Cluster)
	}

	result, err = QueryAlertEvents(dir, &EventQueryRequest{AlertID: "a1", Event: "resolved"})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Total)
}

func TestQueryPaging(t *testing.T) {
	dir := t.TempDir()
	writeTestEvents(t, dir)

	result, err := QueryAlertEvents(dir, &EventQueryRequest{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, result.Total)
	assert.Len(t, result.Events, 2)

	result, err = QueryAlertEvents(dir, &EventQueryRequest{Limit: 2, Offset: 3})
	require.NoError(t, err)
	assert.Len(t, result.Events, 1)

	result, err = QueryAlertEvents(dir, &EventQueryRequest{Offset: 100})
	require.NoError(t, err)
	assert.Empty(t, result.Events)
}

func TestQueryTimeWindowExcludesAll(t *testing.T) {
	dir := t.TempDir()
	writeTestEvents(t, dir)

	past := time.Now().AddDate(0, 0, -3)
	pastEnd := past.Add(time.Hour)
	result, err := QueryAlertEvents(dir, &EventQueryRequest{StartTime: &past, EndTime: &pastEnd})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Total)
}

func TestQueryEmptyDirectory(t *testing.T) {
	dir := t.TempDir()

	result, err := QueryAlertEvents(dir, &EventQueryRequest{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Total)
	assert.NotNil(t, result.Events)
}
