package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"crm-pipeline-api/internal/domain"
	"crm-pipeline-api/internal/metrics"
)

// ErrRefinementUnavailable is returned when no refinement service is configured
var ErrRefinementUnavailable = errors.New("schema refinement service is not configured")

// RefineRequest is the body sent to the refinement service
type RefineRequest struct {
	Schemas []domain.TableSchema `json:"schemas"`
}

// RefineResponse is the body returned by the refinement service
type RefineResponse struct {
	Schemas []domain.TableSchema `json:"schemas"`
}

// RefinementClient asks an external service for improved column types and keys.
// Unlike notifications, refinement errors are returned to the caller.
type RefinementClient interface {
	Refine(ctx context.Context, schemas []domain.TableSchema) ([]domain.TableSchema, error)
}

type refinementClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// NewRefinementClient creates a new refinement API client
func NewRefinementClient(baseURL string, apiKey string, timeout time.Duration, logger *zap.Logger, m *metrics.Metrics) RefinementClient {
	return &refinementClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		metrics:    m,
	}
}

func (c *refinementClient) Refine(ctx context.Context, schemas []domain.TableSchema) ([]domain.TableSchema, error) {
	url := fmt.Sprintf("%s/api/schemas/refine", c.baseURL)

	jsonBody, err := json.Marshal(RefineRequest{Schemas: schemas})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal refinement request: %w", err)
	}

	startTime := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
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
		c.logger.Error("Failed to call refinement service",
			zap.Error(err),
			zap.Int("table_count", len(schemas)),
			zap.Duration("duration", duration),
		)
		return nil, fmt.Errorf("refinement request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.logger.Warn("Refinement service returned non-success status",
			zap.Int("status_code", resp.StatusCode),
			zap.String("body", string(body)),
		)
		return nil, fmt.Errorf("refinement service returned status %d", resp.StatusCode)
	}

	var out RefineResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode refinement response: %w", err)
	}

	c.logger.Info("Schemas refined",
		zap.Int("table_count", len(out.Schemas)),
		zap.Duration("duration", duration),
	)
	return out.Schemas, nil
}

// NoOpRefinementClient is used when no refinement service is configured
type NoOpRefinementClient struct{}

func NewNoOpRefinementClient() RefinementClient {
	return &NoOpRefinementClient{}
}

func (c *NoOpRefinementClient) Refine(ctx context.Context, schemas []domain.TableSchema) ([]domain.TableSchema, error) {
	return nil, ErrRefinementUnavailable
}
