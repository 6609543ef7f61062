package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"crm-pipeline-api/internal/metrics"
)

// NotificationType represents the type of notification
type NotificationType string

const (
	NotificationStageEntered  NotificationType = "STAGE_ENTERED"
	NotificationEntityCreated NotificationType = "ENTITY_CREATED"
)

// NotificationEvent represents a notification to be sent
type NotificationEvent struct {
	Type       NotificationType       `json:"type"`
	CompanyID  string                 `json:"companyId"`
	ActorID    string                 `json:"actorId"`
	PipelineID string                 `json:"pipelineId"`
	EntityType string                 `json:"entityType"`
	EntityID   string                 `json:"entityId"`
	FromStage  string                 `json:"fromStage,omitempty"`
	Stage      string                 `json:"stage"`
	Recipients []string               `json:"recipients,omitempty"`
	Message    string                 `json:"message,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	OccurredAt string                 `json:"occurredAt,omitempty"`
}

// BulkNotificationRequest represents a bulk notification request
type BulkNotificationRequest struct {
	Notifications []NotificationEvent `json:"notifications"`
}

// NotificationClient defines the interface for notification service communication.
// Delivery failures are logged and never returned: a failed notification must
// not fail the operation that triggered it.
type NotificationClient interface {
	SendNotification(ctx context.Context, event NotificationEvent) error
	SendBulkNotifications(ctx context.Context, events []NotificationEvent) error
}

type notificationClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// NewNotificationClient creates a new Notification API client
func NewNotificationClient(baseURL string, apiKey string, timeout time.Duration, logger *zap.Logger, m *metrics.Metrics) NotificationClient {
	return &notificationClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		metrics:    m,
	}
}

func (c *notificationClient) SendNotification(ctx context.Context, event NotificationEvent) error {
	if event.OccurredAt == "" {
		event.OccurredAt = time.Now().UTC().Format(time.RFC3339)
	}
	return c.post(ctx, "/api/internal/notifications", event, 1, string(event.Type))
}

func (c *notificationClient) SendBulkNotifications(ctx context.Context, events []NotificationEvent) error {
	if len(events) == 0 {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for i := range events {
		if events[i].OccurredAt == "" {
			events[i].OccurredAt = now
		}
	}
	return c.post(ctx, "/api/internal/notifications/bulk", BulkNotificationRequest{Notifications: events}, len(events), "bulk")
}

func (c *notificationClient) post(ctx context.Context, path string, payload interface{}, count int, kind string) error {
	url := c.baseURL + path

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		c.logger.Error("Failed to marshal notification payload",
			zap.Error(err),
			zap.String("type", kind),
		)
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	startTime := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		c.logger.Error("Failed to create notification request", zap.Error(err))
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Internal-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	duration := time.Since(startTime)

	statusCode := 0
	if resp != nil {
		statusCode = resp.StatusCode
	}
	c.metrics.RecordExternalAPICall(url, http.MethodPost, statusCode, duration, err)

	if err != nil {
		c.logger.Error("Failed to send notification",
			zap.Error(err),
			zap.String("type", kind),
			zap.Int("count", count),
			zap.Duration("duration", duration),
		)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.logger.Info("Notification sent",
			zap.String("type", kind),
			zap.Int("count", count),
			zap.Duration("duration", duration),
		)
		return nil
	}

	c.logger.Warn("Notification service returned non-success status",
		zap.Int("status_code", resp.StatusCode),
		zap.String("type", kind),
		zap.Int("count", count),
		zap.Duration("duration", duration),
	)
	return nil
}

// NoOpNotificationClient is used when no notification service is configured
type NoOpNotificationClient struct{}

func NewNoOpNotificationClient() NotificationClient {
	return &NoOpNotificationClient{}
}

func (c *NoOpNotificationClient) SendNotification(ctx context.Context, event NotificationEvent) error {
	return nil
}

func (c *NoOpNotificationClient) SendBulkNotifications(ctx context.Context, events []NotificationEvent) error {
	return nil
}
