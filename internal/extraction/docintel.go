package extraction

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

const (
	DefaultModelID    = "prebuilt-invoice"
	DefaultAPIVersion = "2024-11-30"

	subscriptionKeyHeader = "Ocp-Apim-Subscription-Key"
	maxErrorBody          = 64 << 10
)

// DocIntelConfig configures a Document Intelligence compatible analyze API
type DocIntelConfig struct {
	Endpoint   string
	Key        string
	ModelID    string
	APIVersion string
	HTTPClient *http.Client
}

// DocIntel implements Backend against a Document Intelligence compatible REST API.
// Construction never fails; missing configuration is reported by Submit.
type DocIntel struct {
	endpoint   string
	key        string
	modelID    string
	apiVersion string
	client     *http.Client
}

// NewDocIntel creates a new DocIntel backend
func NewDocIntel(cfg DocIntelConfig) *DocIntel {
	if cfg.ModelID == "" {
		cfg.ModelID = DefaultModelID
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &DocIntel{
		endpoint:   strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/"),
		key:        strings.TrimSpace(cfg.Key),
		modelID:    cfg.ModelID,
		apiVersion: cfg.APIVersion,
		client:     client,
	}
}

type analyzeRequest struct {
	Base64Source string `json:"base64Source"`
}

type analyzeOperation struct {
	Status        string          `json:"status"`
	Error         *OperationError `json:"error,omitempty"`
	AnalyzeResult *AnalysisResult `json:"analyzeResult,omitempty"`
}

type errorResponse struct {
	Error *OperationError `json:"error"`
}

// Submit sends the document to the analyze endpoint
func (d *DocIntel) Submit(ctx context.Context, data []byte, contentType string) (*Operation, error) {
	if d.endpoint == "" || d.key == "" {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(analyzeRequest{Base64Source: base64.StdEncoding.EncodeToString(data)})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	analyzeURL := fmt.Sprintf("%s/documentintelligence/documentModels/%s:analyze?api-version=%s",
		d.endpoint, url.PathEscape(d.modelID), url.QueryEscape(d.apiVersion))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, analyzeURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(subscriptionKeyHeader, d.key)

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "submitting document", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return nil, serviceError(resp)
	}

	location := resp.Header.Get("Operation-Location")
	if location == "" {
		return nil, &ServiceError{StatusCode: resp.StatusCode, Message: "response is missing the Operation-Location header"}
	}

	op := &Operation{ID: operationID(location), Location: location}
	slog.Debug("Submitted document for analysis",
		"operation", op.ID,
		"model", d.modelID,
		"content_type", contentType,
		"file_size", len(data),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return op, nil
}

// Status fetches the current state of op
func (d *DocIntel) Status(ctx context.Context, op *Operation) (*OperationStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, op.Location, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set(subscriptionKeyHeader, d.key)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "fetching operation status", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, serviceError(resp)
	}

	var result analyzeOperation
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &TransportError{Op: "decoding operation status", Err: err}
	}

	switch result.Status {
	case "notStarted":
		return &OperationStatus{State: StateNotStarted}, nil
	case "running":
		return &OperationStatus{State: StateRunning}, nil
	case "succeeded":
		return &OperationStatus{State: StateSucceeded, Result: result.AnalyzeResult}, nil
	case "failed", "canceled":
		opErr := result.Error
		if opErr == nil {
			opErr = &OperationError{Code: result.Status, Message: "operation " + result.Status}
		}
		return &OperationStatus{State: StateFailed, Error: opErr}, nil
	default:
		return nil, &ServiceError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("unknown operation status %q", result.Status)}
	}
}

// Close releases idle connections
func (d *DocIntel) Close() error {
	d.client.CloseIdleConnections()
	return nil
}

// serviceError builds a ServiceError from a non-success response
func serviceError(resp *http.Response) *ServiceError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	svcErr := &ServiceError{StatusCode: resp.StatusCode}

	var payload errorResponse
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != nil {
		svcErr.Code = payload.Error.Code
		svcErr.Message = payload.Error.Message
		return svcErr
	}

	svcErr.Message = strings.TrimSpace(string(body))
	if svcErr.Message == "" {
		svcErr.Message = http.StatusText(resp.StatusCode)
	}
	return svcErr
}

// operationID extracts the result id from an Operation-Location URL
func operationID(location string) string {
	u, err := url.Parse(location)
	if err != nil || u.Path == "" {
		return location
	}
	return path.Base(u.Path)
}
