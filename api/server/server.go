package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"fleetwatch/api/middleware"
	"fleetwatch/internal/alerting"
	"fleetwatch/internal/config"
	"fleetwatch/internal/elasticsearch"
	"fleetwatch/internal/logger"
	"fleetwatch/internal/orchestrator"
	"fleetwatch/internal/snapshot"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Server struct {
	router      *gin.Engine
	alerts      *alerting.Manager
	sessions    *orchestrator.SessionManager
	push        *snapshot.PushProvider // nil when snapshots are pulled
	es          *elasticsearch.Client
	eventLogDir string
	configPath  string
	config      *config.Config
}

func NewServer(alerts *alerting.Manager, sessions *orchestrator.SessionManager, push *snapshot.PushProvider, esClient *elasticsearch.Client, eventLogDir, configPath string, cfg *config.Config) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()

	router.Use(cors.Default())

	// Request timeout middleware (30 seconds)
	router.Use(func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})

	server := &Server{
		router:      router,
		alerts:      alerts,
		sessions:    sessions,
		push:        push,
		es:          esClient,
		eventLogDir: eventLogDir,
		configPath:  configPath,
		config:      cfg,
	}

	if eventLogDir != "" {
		if err := logger.InitEventLog(eventLogDir); err != nil {
			fmt.Printf("Warning: Failed to initialize event log: %v\n", err)
		}
	}

	server.setupRoutes()

	return server
}

func (s *Server) setupRoutes() {
	// Apply rate limiting to all API routes
	api := s.router.Group("/api/v1")
	api.Use(middleware.RateLimit())

	{
		// Alert rules - all using POST
		api.POST("/rule/add", s.addRule)
		api.POST("/rule/list", s.listRules)
		api.POST("/rule/get", s.getRule)
		api.POST("/rule/update", s.updateRule)
		api.POST("/rule/remove", s.removeRule)

		// Alerts - using POST
		api.POST("/alert/list", s.listAlerts)
		api.POST("/alert/get", s.getAlert)
		api.POST("/alert/acknowledge", s.acknowledgeAlert)
		api.POST("/alert/resolve", s.resolveAlert)
		api.POST("/alert/remove", s.removeAlert)
		api.POST("/alert/diagnose", s.diagnoseAlert)
		api.POST("/alert/diagnosis/record", s.recordAlertDiagnosis)

		// Alert event history - using POST
		api.POST("/alert/events/search", s.searchAlertEvents)

		// Fleet snapshot ingestion (push mode)
		api.POST("/snapshot/push", s.pushSnapshot)

		// Diagnose-repair sessions - using POST
		api.POST("/diagnose/start", s.startDiagnose)
		api.POST("/diagnose/status", s.diagnoseStatus)
		api.POST("/diagnose/list", s.listDiagnoseSessions)
		api.POST("/diagnose/approve", s.approveRepair)
		api.POST("/diagnose/approve-all", s.approveAllRepairs)
		api.POST("/diagnose/execute", s.executeRepairs)
		api.POST("/diagnose/diagnosis-complete", s.diagnosisComplete)
		api.POST("/diagnose/repair-complete", s.repairComplete)
		api.POST("/diagnose/cancel", s.cancelDiagnose)
		api.POST("/diagnose/reset", s.resetDiagnose)
		api.POST("/diagnose/remove", s.removeDiagnoseSession)

		// System configuration
		api.GET("/config", s.getConfig)
		api.POST("/config", s.updateConfig)
	}

	s.router.GET("/health", s.healthCheck)
}

// Common request types
type IDRequest struct {
	ID uint `json:"id" binding:"required"`
}

type AlertIDRequest struct {
	ID string `json:"id" binding:"required"`
}

type SessionIDRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}
