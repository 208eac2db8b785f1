package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tickethub/whatsapp-bridge/pkg/logger"
	"github.com/valyala/fasthttp"
)

// WhatsAppClient talks to the local WhatsApp transport service. Delivery is
// best-effort; callers treat send failures as non-fatal.
type WhatsAppClient struct {
	url     string
	apiKey  string
	timeout time.Duration
	client  *fasthttp.Client
}

type WhatsAppConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

func NewWhatsAppClient(cfg WhatsAppConfig) *WhatsAppClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &WhatsAppClient{
		url:     cfg.URL,
		apiKey:  cfg.APIKey,
		timeout: cfg.Timeout,
		client: &fasthttp.Client{
			ReadTimeout:         cfg.Timeout,
			WriteTimeout:        cfg.Timeout,
			MaxIdleConnDuration: 60 * time.Second,
		},
	}
}

type sendTextRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

func (c *WhatsAppClient) SendText(ctx context.Context, phone, text string) error {
	body, err := json.Marshal(sendTextRequest{Phone: phone, Message: text})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	start := time.Now()
	if err := c.doRequest(ctx, "POST", "/api/send", body, nil); err != nil {
		logger.Warn("whatsapp send failed", "phone", phone, "error", err)
		return err
	}

	logger.Debug("whatsapp message sent", "phone", phone, "latency_ms", time.Since(start).Milliseconds())
	return nil
}

func (c *WhatsAppClient) doRequest(ctx context.Context, method, path string, body []byte, out interface{}) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.url + path)
	req.Header.SetMethod(method)
	req.Header.SetContentType("application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	if body != nil {
		req.SetBody(body)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.timeout)
	}

	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	statusCode := resp.StatusCode()
	if statusCode != fasthttp.StatusOK && statusCode != fasthttp.StatusCreated {
		return fmt.Errorf("unexpected status code: %d, body: %s", statusCode, resp.Body())
	}

	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}
