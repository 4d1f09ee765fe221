package server

import (
	"errors"
	"net/http"
	"time"

	"fleetwatch/internal/alerting"
	"fleetwatch/internal/logger"
	"fleetwatch/internal/snapshot"

	"github.com/gin-gonic/gin"
)

func (s *Server) listAlerts(c *gin.Context) {
	var req struct {
		Status  string `json:"status,omitempty"`
		Cluster string `json:"cluster,omitempty"`
	}
	// Filters are optional; an empty or absent body lists everything
	_ = c.ShouldBindJSON(&req)

	list := s.alerts.List()

	if req.Status != "" || req.Cluster != "" {
		filtered := list[:0]
		for _, alert := range list {
			if req.Status != "" && alert.Status != req.Status {
				continue
			}
			if req.Cluster != "" && alert.Cluster != req.Cluster {
				continue
			}
			filtered = append(filtered, alert)
		}
		list = filtered
	}

	c.JSON(http.StatusOK, gin.H{"alerts": list})
}

func (s *Server) getAlert(c *gin.Context) {
	var req AlertIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	alert, err := s.alerts.Get(req.ID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
		return
	}

	c.JSON(http.StatusOK, alert)
}

func (s *Server) acknowledgeAlert(c *gin.Context) {
	var req struct {
		AlertIDRequest
		By string `json:"by"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.alerts.Acknowledge(req.ID, req.By); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Alert acknowledged"})
}

func (s *Server) resolveAlert(c *gin.Context) {
	var req AlertIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.alerts.Resolve(req.ID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Alert resolved"})
}

func (s *Server) removeAlert(c *gin.Context) {
	var req AlertIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.alerts.Delete(req.ID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Alert deleted"})
}

func (s *Server) diagnoseAlert(c *gin.Context) {
	var req AlertIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	missionID, err := s.alerts.RunAIDiagnosis(c.Request.Context(), req.ID)
	if err != nil {
		if errors.Is(err, alerting.ErrAlertNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"mission_id": missionID,
		"message":    "Diagnosis started",
	})
}

// recordAlertDiagnosis accepts a completed diagnosis reported by the mission
// runner
func (s *Server) recordAlertDiagnosis(c *gin.Context) {
	var req struct {
		AlertIDRequest
		Summary     string   `json:"summary" binding:"required"`
		RootCause   string   `json:"root_cause"`
		Suggestions []string `json:"suggestions"`
		MissionID   string   `json:"mission_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	diagnosis := alerting.AIDiagnosis{
		Summary:     req.Summary,
		RootCause:   req.RootCause,
		Suggestions: req.Suggestions,
		MissionID:   req.MissionID,
		AnalyzedAt:  time.Now(),
	}

	if err := s.alerts.RecordDiagnosis(req.ID, diagnosis); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Diagnosis recorded"})
}

type EventSearchRequest struct {
	AlertID   string `json:"alert_id,omitempty"`
	Event     string `json:"event,omitempty"`
	Cluster   string `json:"cluster,omitempty"`
	StartTime *int64 `json:"start_time,omitempty"` // Unix timestamp
	EndTime   *int64 `json:"end_time,omitempty"`   // Unix timestamp
	Size      int    `json:"size,omitempty"`
	From      int    `json:"from,omitempty"`
}

func (s *Server) searchAlertEvents(c *gin.Context) {
	var req EventSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// If ES is enabled, search there; otherwise use file-based event logs
	if s.es != nil {
		var filters []map[string]interface{}
		if req.AlertID != "" {
			filters = append(filters, map[string]interface{}{
				"term": map[string]interface{}{"alert_id": req.AlertID},
			})
		}
		if req.Event != "" {
			filters = append(filters, map[string]interface{}{
				"term": map[string]interface{}{"event": req.Event},
			})
		}
		if req.Cluster != "" {
			filters = append(filters, map[string]interface{}{
				"term": map[string]interface{}{"cluster": req.Cluster},
			})
		}
		if req.StartTime != nil || req.EndTime != nil {
			rangeQuery := map[string]interface{}{}
			if req.StartTime != nil {
				rangeQuery["gte"] = time.Unix(*req.StartTime, 0).Format(time.RFC3339)
			}
			if req.EndTime != nil {
				rangeQuery["lte"] = time.Unix(*req.EndTime, 0).Format(time.RFC3339)
			}
			filters = append(filters, map[string]interface{}{
				"range": map[string]interface{}{"@timestamp": rangeQuery},
			})
		}

		size := req.Size
		if size <= 0 {
			size = 100
		}

		query := map[string]interface{}{
			"query": map[string]interface{}{
				"bool": map[string]interface{}{
					"filter": filters,
				},
			},
			"sort": []map[string]interface{}{
				{"@timestamp": map[string]string{"order": "desc"}},
			},
			"size": size,
			"from": req.From,
		}

		events, err := s.es.SearchAlertEvents(c.Request.Context(), query)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"total":  len(events),
			"events": events,
		})
		return
	}

	if s.eventLogDir == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Event history is not enabled"})
		return
	}

	fileReq := &logger.EventQueryRequest{
		AlertID: req.AlertID,
		Event:   req.Event,
		Cluster: req.Cluster,
		Limit:   req.Size,
		Offset:  req.From,
	}
	if req.StartTime != nil {
		t := time.Unix(*req.StartTime, 0)
		fileReq.StartTime = &t
	}
	if req.EndTime != nil {
		t := time.Unix(*req.EndTime, 0)
		fileReq.EndTime = &t
	}

	result, err := logger.QueryAlertEvents(s.eventLogDir, fileReq)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total":  result.Total,
		"events": result.Events,
	})
}

// pushSnapshot ingests a fleet snapshot from a collaborator. Only available
// in push mode.
func (s *Server) pushSnapshot(c *gin.Context) {
	if s.push == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Service pulls snapshots from the introspection API; push is disabled"})
		return
	}

	var snap snapshot.Snapshot
	if err := c.ShouldBindJSON(&snap); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.push.Set(&snap)
	s.alerts.RequestEvaluation()

	c.JSON(http.StatusOK, gin.H{"message": "Snapshot accepted"})
}
