package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"supportbridge/internal/entities"
	"supportbridge/internal/logutil"
	"supportbridge/internal/usecases"
)

const maxRequestBytes = 1 << 20

type Handler struct {
	registrations *usecases.RegistrationUsecase
	transcripts   *usecases.TranscriptSynchronizer
	log           *slog.Logger
}

func NewHandler(registrations *usecases.RegistrationUsecase, transcripts *usecases.TranscriptSynchronizer, logger *slog.Logger) *Handler {
	return &Handler{
		registrations: registrations,
		transcripts:   transcripts,
		log:           logger,
	}
}

// RouteOptions tunes the public routes.
type RouteOptions struct {
	RegistrationRate  rate.Limit
	RegistrationBurst int
}

func SetupRoutes(r *gin.Engine, h *Handler, middleware *Middleware, opts RouteOptions) {
	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog())
	r.Use(SecurityHeaders())
	r.Use(RequestSizeLimiter(maxRequestBytes))
	r.Use(middleware.CORSMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.POST("/registrations", middleware.RateLimitPerIP(opts.RegistrationRate, opts.RegistrationBurst), h.Register)
	r.POST("/webhooks", middleware.WebhookSignature(), h.Webhook)
}

type registrationRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

// Register provisions the visitor's chat session. Every failure, including
// bad input, is answered with 500 and an error message; nothing partial is returned.
func (h *Handler) Register(c *gin.Context) {
	var req registrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "invalid registration payload"})
		return
	}

	reg, err := h.registrations.Register(c.Request.Context(), entities.Visitor{
		FirstName: SanitizeString(req.FirstName),
		LastName:  SanitizeString(req.LastName),
		Email:     SanitizeString(req.Email),
	})
	if err != nil {
		if entities.IsValidation(err) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		h.log.Error("registration failed",
			slog.String("request_id", logutil.RequestID(c.Request.Context())),
			slog.Any("error", err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}

	c.JSON(http.StatusOK, reg)
}

// Webhook always acknowledges, so the provider never retries on our failures.
func (h *Handler) Webhook(c *gin.Context) {
	var ev entities.MessageEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		h.log.Warn("undecodable webhook payload",
			slog.String("request_id", logutil.RequestID(c.Request.Context())),
			slog.Any("error", err),
		)
		c.Status(http.StatusOK)
		return
	}

	// The sync outlives a provider that hangs up early.
	h.transcripts.OnMessageEvent(context.WithoutCancel(c.Request.Context()), ev)
	c.Status(http.StatusOK)
}
