package server

import (
	"errors"
	"net/http"

	"fleetwatch/internal/orchestrator"

	"github.com/gin-gonic/gin"
)

func (s *Server) startDiagnose(c *gin.Context) {
	var req struct {
		SessionID string                         `json:"session_id"` // empty starts a new session
		Resources []orchestrator.ResourceSummary `json:"resources"`
		Issues    []orchestrator.Issue           `json:"issues"`
		Context   map[string]string              `json:"context"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var session *orchestrator.Session
	if req.SessionID == "" {
		session = s.sessions.Create()
	} else {
		var err error
		session, err = s.sessions.Get(req.SessionID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
	}

	if err := session.StartDiagnose(c.Request.Context(), req.Resources, req.Issues, req.Context); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, orchestrator.ErrInvalidPhase) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{
			"session_id": session.ID(),
			"error":      err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, session.State())
}

func (s *Server) diagnoseStatus(c *gin.Context) {
	var req SessionIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := s.sessions.Get(req.SessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}

	c.JSON(http.StatusOK, session.State())
}

func (s *Server) listDiagnoseSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": s.sessions.List()})
}

func (s *Server) approveRepair(c *gin.Context) {
	var req struct {
		SessionIDRequest
		RepairID string `json:"repair_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := s.sessions.Get(req.SessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}

	if err := session.ApproveRepair(req.RepairID); err != nil {
		status := http.StatusConflict
		if errors.Is(err, orchestrator.ErrRepairNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, session.State())
}

func (s *Server) approveAllRepairs(c *gin.Context) {
	var req SessionIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := s.sessions.Get(req.SessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}

	if err := session.ApproveAllRepairs(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, session.State())
}

func (s *Server) executeRepairs(c *gin.Context) {
	var req SessionIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := s.sessions.Get(req.SessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}

	if err := session.ExecuteRepairs(c.Request.Context()); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, orchestrator.ErrInvalidPhase) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, session.State())
}

// diagnosisComplete is the mission runner's callback when a diagnosis pass
// finishes
func (s *Server) diagnosisComplete(c *gin.Context) {
	var req struct {
		SessionIDRequest
		Result orchestrator.DiagnosisResult `json:"result"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := s.sessions.Get(req.SessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}

	if err := session.OnDiagnosisComplete(req.Result); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, session.State())
}

// repairComplete is the mission runner's callback when repair execution
// finishes
func (s *Server) repairComplete(c *gin.Context) {
	var req SessionIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := s.sessions.Get(req.SessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}

	if err := session.OnRepairComplete(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, session.State())
}

func (s *Server) cancelDiagnose(c *gin.Context) {
	var req SessionIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := s.sessions.Get(req.SessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}

	session.Cancel()
	c.JSON(http.StatusOK, session.State())
}

func (s *Server) resetDiagnose(c *gin.Context) {
	var req SessionIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := s.sessions.Get(req.SessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}

	session.Reset()
	c.JSON(http.StatusOK, session.State())
}

func (s *Server) removeDiagnoseSession(c *gin.Context) {
	var req SessionIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.sessions.Remove(req.SessionID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Session removed"})
}
