// Mock WhatsApp service for local development and e2e testing. It accepts
// the bridge's outbound sends, simulates delivery, and can replay an
// inbound customer message to the bridge webhook.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type DeliveryStatus string

const (
	StatusDelivered DeliveryStatus = "DELIVERED"
	StatusFailed    DeliveryStatus = "FAILED"
)

// SendRequest is the payload the bridge posts to /api/send.
type SendRequest struct {
	Phone   string `json:"phone" binding:"required"`
	Message string `json:"message" binding:"required"`
}

type SendResponse struct {
	MessageID   string         `json:"message_id"`
	Status      DeliveryStatus `json:"status"`
	DeliveredAt *time.Time     `json:"delivered_at,omitempty"`
	ErrorCode   string         `json:"error_code,omitempty"`
	ErrorMsg    string         `json:"error_message,omitempty"`
	ProcessedAt time.Time      `json:"processed_at"`
}

// InboundRequest injects a customer message: the mock wraps it in the
// webhook envelope and posts it to the bridge.
type InboundRequest struct {
	Phone string `json:"phone" binding:"required"`
	Text  string `json:"text"`
	Type  string `json:"type"`
	Name  string `json:"name"`
}

type HealthResponse struct {
	Status       string    `json:"status"`
	InstanceID   string    `json:"instance_id"`
	Timestamp    time.Time `json:"timestamp"`
	DeliveryRate float64   `json:"delivery_rate"`
}

// MockWhatsApp simulates the WhatsApp transport service.
type MockWhatsApp struct {
	deliveryRate  float64
	minDelay      time.Duration
	maxDelay      time.Duration
	instanceID    string
	apiKey        string
	webhookURL    string
	webhookSecret string
	rng           *rand.Rand
}

func NewMockWhatsApp(deliveryRate float64, minDelay, maxDelay time.Duration) *MockWhatsApp {
	return &MockWhatsApp{
		deliveryRate: deliveryRate,
		minDelay:     minDelay,
		maxDelay:     maxDelay,
		instanceID:   "MOCK_WA_" + uuid.New().String()[:8],
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (m *MockWhatsApp) simulateSend(req *SendRequest) *SendResponse {
	delay := m.randomDelay()
	time.Sleep(delay)

	response := &SendResponse{
		MessageID:   "wamid." + uuid.New().String(),
		ProcessedAt: time.Now(),
	}

	if m.shouldSucceed() {
		now := time.Now()
		response.Status = StatusDelivered
		response.DeliveredAt = &now

		log.Info().
			Str("message_id", response.MessageID).
			Str("phone", req.Phone).
			Dur("delay", delay).
			Msg("message delivered")
	} else {
		response.Status = StatusFailed
		response.ErrorCode = m.randomErrorCode()
		response.ErrorMsg = m.errorMessage(response.ErrorCode)

		log.Warn().
			Str("message_id", response.MessageID).
			Str("phone", req.Phone).
			Str("error_code", response.ErrorCode).
			Msg("message delivery failed")
	}

	return response
}

func (m *MockWhatsApp) randomDelay() time.Duration {
	delta := m.maxDelay - m.minDelay
	if delta <= 0 {
		return m.minDelay
	}
	return m.minDelay + time.Duration(m.rng.Int63n(int64(delta)))
}

func (m *MockWhatsApp) shouldSucceed() bool {
	return m.rng.Float64() < m.deliveryRate
}

func (m *MockWhatsApp) randomErrorCode() string {
	errorCodes := []string{
		"INVALID_NUMBER",
		"NOT_ON_WHATSAPP",
		"NETWORK_ERROR",
		"TIMEOUT",
		"BLOCKED",
	}
	return errorCodes[m.rng.Intn(len(errorCodes))]
}

func (m *MockWhatsApp) errorMessage(code string) string {
	messages := map[string]string{
		"INVALID_NUMBER":  "The phone number is invalid",
		"NOT_ON_WHATSAPP": "The recipient has no WhatsApp account",
		"NETWORK_ERROR":   "Network connectivity issue",
		"TIMEOUT":         "Message delivery timed out",
		"BLOCKED":         "The recipient has blocked this sender",
	}
	if msg, ok := messages[code]; ok {
		return msg
	}
	return "Unknown error occurred"
}

type Handler struct {
	service *MockWhatsApp
}

func NewHandler(service *MockWhatsApp) *Handler {
	return &Handler{service: service}
}

// Send handles the bridge's outbound message requests.
func (h *Handler) Send(c *gin.Context) {
	if h.service.apiKey != "" && c.GetHeader("X-API-Key") != h.service.apiKey {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
		return
	}

	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	log.Info().
		Str("phone", req.Phone).
		Int("length", len(req.Message)).
		Msg("received send request")

	response := h.service.simulateSend(&req)

	statusCode := http.StatusOK
	if response.Status == StatusFailed {
		statusCode = http.StatusBadGateway
	}
	c.JSON(statusCode, response)
}

// Inbound replays a customer message to the bridge webhook.
func (h *Handler) Inbound(c *gin.Context) {
	if h.service.webhookURL == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "BRIDGE_WEBHOOK_URL is not configured"})
		return
	}

	var req InboundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}
	if req.Type == "" {
		req.Type = "text"
	}

	envelope := map[string]any{
		"event": "message.received",
		"data": map[string]any{
			"phone":     req.Phone,
			"text":      req.Text,
			"type":      req.Type,
			"name":      req.Name,
			"messageId": "wamid." + uuid.New().String(),
		},
	}
	body, _ := json.Marshal(envelope)

	httpReq, err := http.NewRequestWithContext(c.Request.Context(), http.MethodPost, h.service.webhookURL, bytes.NewReader(body))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if h.service.webhookSecret != "" {
		httpReq.Header.Set("X-Webhook-Secret", h.service.webhookSecret)
	}

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		log.Error().Err(err).Msg("failed to deliver webhook")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	defer resp.Body.Close()

	var bridgeResult map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&bridgeResult)

	log.Info().
		Str("phone", req.Phone).
		Int("bridge_status", resp.StatusCode).
		Msg("webhook delivered")

	c.JSON(resp.StatusCode, bridgeResult)
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:       "healthy",
		InstanceID:   h.service.instanceID,
		Timestamp:    time.Now(),
		DeliveryRate: h.service.deliveryRate,
	})
}

// UpdateConfig allows changing delivery behaviour at runtime.
func (h *Handler) UpdateConfig(c *gin.Context) {
	var config struct {
		DeliveryRate *float64 `json:"delivery_rate"`
	}

	if err := c.ShouldBindJSON(&config); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	if config.DeliveryRate != nil {
		if *config.DeliveryRate >= 0 && *config.DeliveryRate <= 1.0 {
			h.service.deliveryRate = *config.DeliveryRate
			log.Info().Float64("rate", *config.DeliveryRate).Msg("updated delivery rate")
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"message":       "Configuration updated",
		"delivery_rate": h.service.deliveryRate,
	})
}

func SetupRouter(handler *Handler) *gin.Engine {
	router := gin.Default()

	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", duration).
			Msg("Request processed")
	})

	api := router.Group("/api")
	{
		api.POST("/send", handler.Send)
		api.POST("/inbound", handler.Inbound)
		api.GET("/health", handler.HealthCheck)
		api.PUT("/config", handler.UpdateConfig)
	}

	router.GET("/health", handler.HealthCheck)

	return router
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	port := getEnv("PORT", "3000")
	deliveryRate := getEnvFloat("DELIVERY_RATE", 1)
	minDelay := getEnvDuration("MIN_DELAY", 100*time.Millisecond)
	maxDelay := getEnvDuration("MAX_DELAY", 1*time.Second)

	service := NewMockWhatsApp(deliveryRate, minDelay, maxDelay)
	service.apiKey = getEnv("API_KEY", "")
	service.webhookURL = getEnv("BRIDGE_WEBHOOK_URL", "")
	service.webhookSecret = getEnv("BRIDGE_WEBHOOK_SECRET", "")

	log.Info().
		Str("port", port).
		Float64("delivery_rate", deliveryRate).
		Dur("min_delay", minDelay).
		Dur("max_delay", maxDelay).
		Str("bridge_webhook", service.webhookURL).
		Msg("Starting Mock WhatsApp Service")

	handler := NewHandler(service)
	router := SetupRouter(handler)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
