package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"crm-pipeline-api/internal/domain"
	"crm-pipeline-api/internal/metrics"
)

const backendRemote = "remote"

// StoreHealthPath is the health route under /store. Pipeline validation
// rejects entity types with a leading "_", so no entity type can shadow it.
const StoreHealthPath = "/_health"

// Headers of the remote store protocol
const (
	HeaderAPIKey    = "X-Internal-API-Key"
	HeaderCompanyID = "X-Company-ID"
)

// Query parameters of the remote list endpoint
const (
	ParamPage          = "page"
	ParamLimit         = "limit"
	ParamSearch        = "search"
	ParamSearchExclude = "searchExclude"
	ParamStage         = "stage"
	ParamSortBy        = "sortBy"
	ParamSortOrder     = "sortOrder"
	ParamDateField     = "dateField"
	ParamDateFrom      = "dateFrom"
	ParamDateTo        = "dateTo"
)

// RemoteConfig locates a remote store
type RemoteConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// RemoteAdapter talks to a store served over the REST protocol implemented by
// handler.StoreHandler. Network failures, 5xx answers and undecodable bodies
// come back as *TransportError. Nothing is retried.
type RemoteAdapter struct {
	baseURL    string
	apiKey     string
	companyID  string
	httpClient *http.Client
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// NewRemoteAdapter binds a remote store to one company. A nil httpClient gets
// a client with cfg.Timeout.
func NewRemoteAdapter(cfg RemoteConfig, companyID string, httpClient *http.Client, logger *zap.Logger, m *metrics.Metrics) *RemoteAdapter {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RemoteAdapter{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		companyID:  companyID,
		httpClient: httpClient,
		logger:     logger,
		metrics:    m,
	}
}

// RemoteFactory shares one HTTP client between all companies
func RemoteFactory(cfg RemoteConfig, logger *zap.Logger, m *metrics.Metrics) Factory {
	client := &http.Client{Timeout: cfg.Timeout}
	return func(companyID string) Adapter {
		return NewRemoteAdapter(cfg, companyID, client, logger, m)
	}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *RemoteAdapter) entityPath(entityType string, parts ...string) string {
	var b strings.Builder
	b.WriteString(a.baseURL)
	b.WriteString("/store/")
	b.WriteString(url.PathEscape(entityType))
	for _, p := range parts {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(p))
	}
	return b.String()
}

// do sends one request and decodes the data member of the response into out
func (a *RemoteAdapter) do(ctx context.Context, op, method, endpoint string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", op, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(HeaderAPIKey, a.apiKey)
	req.Header.Set(HeaderCompanyID, a.companyID)

	start := time.Now()
	resp, err := a.httpClient.Do(req)
	duration := time.Since(start)

	statusCode := 0
	if resp != nil {
		statusCode = resp.StatusCode
	}
	a.metrics.RecordExternalAPICall(endpoint, method, statusCode, duration, err)

	if err != nil {
		a.logger.Error("Remote store request failed",
			zap.String("operation", op),
			zap.String("company_id", a.companyID),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrEntityNotFound
	case resp.StatusCode == http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrInvalidInput, remoteMessage(raw))
	case resp.StatusCode >= 300:
		a.logger.Warn("Remote store returned non-success status",
			zap.String("operation", op),
			zap.Int("status_code", resp.StatusCode),
			zap.Duration("duration", duration),
		)
		return &TransportError{Op: op, Err: fmt.Errorf("status %d: %s", resp.StatusCode, remoteMessage(raw))}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decode data: %w", err)}
	}
	return nil
}

func remoteMessage(raw []byte) string {
	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Error != nil {
		return env.Error.Message
	}
	return strings.TrimSpace(string(raw))
}

// EncodeFilters renders filters as list query parameters
func EncodeFilters(f Filters) url.Values {
	q := url.Values{}
	if f.Page > 0 {
		q.Set(ParamPage, strconv.Itoa(f.Page))
	}
	if f.Limit > 0 {
		q.Set(ParamLimit, strconv.Itoa(f.Limit))
	}
	if f.Search != "" {
		q.Set(ParamSearch, f.Search)
	}
	for _, name := range f.SearchExclude {
		q.Add(ParamSearchExclude, name)
	}
	for _, s := range f.Stages {
		q.Add(ParamStage, s)
	}
	if f.SortBy != "" {
		q.Set(ParamSortBy, f.SortBy)
	}
	if f.SortOrder != "" {
		q.Set(ParamSortOrder, string(f.SortOrder))
	}
	if r := f.DateRange; r != nil {
		q.Set(ParamDateField, r.Field)
		if r.From != nil {
			q.Set(ParamDateFrom, r.From.Format(time.RFC3339Nano))
		}
		if r.To != nil {
			q.Set(ParamDateTo, r.To.Format(time.RFC3339Nano))
		}
	}
	return q
}

// DecodeFilters parses list query parameters
func DecodeFilters(q url.Values) (Filters, error) {
	f := Filters{
		Search:        q.Get(ParamSearch),
		SearchExclude: q[ParamSearchExclude],
		Stages:        q[ParamStage],
		SortBy:        q.Get(ParamSortBy),
		SortOrder:     SortOrder(strings.ToLower(q.Get(ParamSortOrder))),
	}
	if f.SortOrder != "" && f.SortOrder != SortAsc && f.SortOrder != SortDesc {
		return f, fmt.Errorf("invalid sortOrder %q", q.Get(ParamSortOrder))
	}

	var err error
	if v := q.Get(ParamPage); v != "" {
		if f.Page, err = strconv.Atoi(v); err != nil {
			return f, fmt.Errorf("invalid page %q", v)
		}
	}
	if v := q.Get(ParamLimit); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil {
			return f, fmt.Errorf("invalid limit %q", v)
		}
	}

	if field := q.Get(ParamDateField); field != "" {
		r := &DateRange{Field: field}
		if r.From, err = ParseDateBound(q.Get(ParamDateFrom), false); err != nil {
			return f, err
		}
		if r.To, err = ParseDateBound(q.Get(ParamDateTo), true); err != nil {
			return f, err
		}
		f.DateRange = r
	}
	return f, nil
}

func (a *RemoteAdapter) TestConnection(ctx context.Context) (err error) {
	defer func(start time.Time) { observe(a.metrics, backendRemote, "test_connection", start, err) }(time.Now())
	err = a.do(ctx, "test_connection", http.MethodGet, a.baseURL+"/store"+StoreHealthPath, nil, nil)
	if errors.Is(err, ErrEntityNotFound) {
		// a 404 here means the base URL does not point at a store server
		err = &TransportError{Op: "test_connection", Err: fmt.Errorf("no store health route under %s", a.baseURL)}
	}
	return err
}

func (a *RemoteAdapter) GetAll(ctx context.Context, entityType string, filters Filters) (page *Page, err error) {
	defer func(start time.Time) { observe(a.metrics, backendRemote, "get_all", start, err) }(time.Now())

	endpoint := a.entityPath(entityType)
	if q := EncodeFilters(filters).Encode(); q != "" {
		endpoint += "?" + q
	}
	var out Page
	if err := a.do(ctx, "get_all", http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, err
	}
	if out.Items == nil {
		out.Items = []domain.CRMEntity{}
	}
	return &out, nil
}

func (a *RemoteAdapter) GetByID(ctx context.Context, entityType, id string) (e *domain.CRMEntity, err error) {
	defer func(start time.Time) { observe(a.metrics, backendRemote, "get_by_id", start, err) }(time.Now())

	var out domain.CRMEntity
	if err := a.do(ctx, "get_by_id", http.MethodGet, a.entityPath(entityType, id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *RemoteAdapter) Create(ctx context.Context, entityType string, input EntityInput) (e *domain.CRMEntity, err error) {
	defer func(start time.Time) { observe(a.metrics, backendRemote, "create", start, err) }(time.Now())

	var out domain.CRMEntity
	if err := a.do(ctx, "create", http.MethodPost, a.entityPath(entityType), input, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *RemoteAdapter) Update(ctx context.Context, entityType, id string, patch EntityPatch) (e *domain.CRMEntity, err error) {
	defer func(start time.Time) { observe(a.metrics, backendRemote, "update", start, err) }(time.Now())

	var out domain.CRMEntity
	if err := a.do(ctx, "update", http.MethodPatch, a.entityPath(entityType, id), patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *RemoteAdapter) Delete(ctx context.Context, entityType, id string) (err error) {
	defer func(start time.Time) { observe(a.metrics, backendRemote, "delete", start, err) }(time.Now())
	return a.do(ctx, "delete", http.MethodDelete, a.entityPath(entityType, id), nil, nil)
}

func (a *RemoteAdapter) MoveStage(ctx context.Context, entityType, id, stage string) (*domain.CRMEntity, error) {
	return a.Update(ctx, entityType, id, EntityPatch{Stage: &stage})
}

func (a *RemoteAdapter) GetByStage(ctx context.Context, entityType, stage string) (out []domain.CRMEntity, err error) {
	defer func(start time.Time) { observe(a.metrics, backendRemote, "get_by_stage", start, err) }(time.Now())

	if err := a.do(ctx, "get_by_stage", http.MethodGet, a.entityPath(entityType, "stages", stage), nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.CRMEntity{}
	}
	return out, nil
}

func (a *RemoteAdapter) GetStats(ctx context.Context, entityType string) (st *Stats, err error) {
	defer func(start time.Time) { observe(a.metrics, backendRemote, "get_stats", start, err) }(time.Now())

	var out Stats
	if err := a.do(ctx, "get_stats", http.MethodGet, a.entityPath(entityType, "stats"), nil, &out); err != nil {
		return nil, err
	}
	if out.ByStage == nil {
		out.ByStage = map[string]int{}
	}
	return &out, nil
}
