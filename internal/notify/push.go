package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// PushMessage (title, body, data) for the push platform
type PushMessage struct {
	To       []string               `json:"-"`
	Title    string                 `json:"title"`
	Body     string                 `json:"body"`
	Data     map[string]interface{} `json:"data,omitempty"`
	Sound    string                 `json:"sound,omitempty"`
	Priority string                 `json:"priority,omitempty"`
}

// PushSender delivers push notifications
type PushSender interface {
	Send(ctx context.Context, msg PushMessage) error
}

type expoMessage struct {
	To string `json:"to"`
	PushMessage
}

type expoTicket struct {
	Status  string                 `json:"status"`
	ID      string                 `json:"id,omitempty"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

type expoResponse struct {
	Data   []expoTicket `json:"data"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors,omitempty"`
}

// ExpoPushClient posts to the Expo push API
type ExpoPushClient struct {
	httpClient *resty.Client
	url        string
	logger     *zap.Logger
}

// NewExpoPushClient creates a client for url, e.g. https://exp.host/--/api/v2/push/send
func NewExpoPushClient(url string, timeout time.Duration, logger *zap.Logger) *ExpoPushClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &ExpoPushClient{
		httpClient: client,
		url:        url,
		logger:     logger,
	}
}

// Send one message per recipient token
func (c *ExpoPushClient) Send(ctx context.Context, msg PushMessage) error {
	if len(msg.To) == 0 {
		return nil
	}

	batch := make([]expoMessage, 0, len(msg.To))
	for _, to := range msg.To {
		batch = append(batch, expoMessage{To: to, PushMessage: msg})
	}

	var response expoResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(batch).
		SetResult(&response).
		SetError(&response).
		Post(c.url)
	if err != nil {
		c.logger.Error("Push API call failed", zap.Error(err))
		return fmt.Errorf("failed to call push API: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("push API returned status %d", resp.StatusCode())
	}
	if len(response.Errors) > 0 {
		return fmt.Errorf("push API error: %s", response.Errors[0].Message)
	}

	var failed []string
	for i, ticket := range response.Data {
		if ticket.Status != "ok" {
			to := ""
			if i < len(batch) {
				to = batch[i].To
			}
			failed = append(failed, fmt.Sprintf("%s: %s", to, ticket.Message))
		}
	}
	if len(failed) > 0 {
		c.logger.Warn("Some push tickets failed", zap.Strings("failures", failed))
		return fmt.Errorf("push delivery failed for %d of %d recipients: %s",
			len(failed), len(batch), strings.Join(failed, "; "))
	}

	c.logger.Debug("Push sent", zap.Int("recipients", len(batch)))
	return nil
}
