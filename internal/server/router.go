package server

import (
	"context"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/lurebox/lurebox/internal/engage"
	"go.uber.org/zap"
)

// TurnHandler is the engagement entry point the HTTP layer depends on.
type TurnHandler interface {
	HandleEvent(ctx context.Context, event engage.Event) (string, error)
}

// Handler wires the HTTP surface to the turn orchestrator.
type Handler struct {
	orchestrator TurnHandler
	logger       *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(orchestrator TurnHandler, logger *zap.Logger) *Handler {
	return &Handler{orchestrator: orchestrator, logger: logger}
}

// SetupRouter builds the gin engine with all middleware and routes.
func SetupRouter(h *Handler, apiKey string, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(cors.Default())
	router.Use(RequestLogger(logger))
	router.Use(Recovery(logger))
	router.Use(APIKeyMiddleware(apiKey, logger))

	router.GET("/health", h.handleHealth)

	v1 := router.Group("/v1")
	{
		v1.POST("/message", h.handleMessage)
	}

	return router
}

func (h *Handler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleMessage runs one turn for the inbound event.
func (h *Handler) handleMessage(c *gin.Context) {
	var event IncomingEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	language := ""
	if event.Metadata != nil {
		language = event.Metadata.Language
	}

	// A dropped client connection must not abort the turn mid-protocol;
	// cancelling between the two oracle calls would orphan tool-call state.
	ctx := context.WithoutCancel(c.Request.Context())

	reply, err := h.orchestrator.HandleEvent(ctx, engage.Event{
		SessionID: event.SessionID,
		Sender:    event.Message.Sender,
		Text:      event.Message.Text,
		Language:  language,
	})
	if err != nil {
		h.logger.Error("Turn failed", zap.String("session_id", event.SessionID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorBody)
		return
	}

	c.JSON(http.StatusOK, AgentResponse{Status: "success", Reply: reply})
}
