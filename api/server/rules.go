package server

import (
	"net/http"

	"fleetwatch/internal/database"
	"fleetwatch/internal/models"

	"github.com/gin-gonic/gin"
)

type RuleRequest struct {
	Name      string               `json:"name" binding:"required"`
	Severity  string               `json:"severity" binding:"required,oneof=critical warning info"`
	Enabled   bool                 `json:"enabled"`
	Condition models.RuleCondition `json:"condition" binding:"required"`
}

func (s *Server) addRule(c *gin.Context) {
	var req RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Condition.Type == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "condition type is required"})
		return
	}

	rule := models.AlertRule{
		Name:     req.Name,
		Severity: req.Severity,
		Enabled:  req.Enabled,
	}
	if err := rule.SetCondition(req.Condition); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to encode condition"})
		return
	}

	db := database.GetDB()
	if err := db.Create(&rule).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create rule"})
		return
	}

	// New rules take effect on the next evaluation pass
	s.alerts.RequestEvaluation()

	c.JSON(http.StatusCreated, gin.H{
		"id":      rule.ID,
		"message": "Rule created successfully",
	})
}

func (s *Server) listRules(c *gin.Context) {
	db := database.GetDB()

	var ruleList []models.AlertRule
	if err := db.Find(&ruleList).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list rules"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"rules": ruleList})
}

func (s *Server) getRule(c *gin.Context) {
	var req IDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	db := database.GetDB()

	var rule models.AlertRule
	if err := db.First(&rule, req.ID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Rule not found"})
		return
	}

	c.JSON(http.StatusOK, rule)
}

func (s *Server) updateRule(c *gin.Context) {
	var req struct {
		IDRequest
		RuleRequest
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	db := database.GetDB()

	var rule models.AlertRule
	if err := db.First(&rule, req.ID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Rule not found"})
		return
	}

	rule.Name = req.Name
	rule.Severity = req.Severity
	rule.Enabled = req.Enabled
	if err := rule.SetCondition(req.Condition); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to encode condition"})
		return
	}

	if err := db.Save(&rule).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update rule"})
		return
	}

	s.alerts.RequestEvaluation()

	c.JSON(http.StatusOK, gin.H{"message": "Rule updated successfully"})
}

func (s *Server) removeRule(c *gin.Context) {
	var req IDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	db := database.GetDB()

	if err := db.Delete(&models.AlertRule{}, req.ID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete rule"})
		return
	}

	// Alerts from the removed rule auto-resolve on the next pass
	s.alerts.RequestEvaluation()

	c.JSON(http.StatusOK, gin.H{"message": "Rule deleted successfully"})
}
