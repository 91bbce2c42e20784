package tracking

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
)

// CometConfig contains configuration for the Comet-style REST backend.
type CometConfig struct {
	BaseURL       string        `json:"base_url" yaml:"base_url"`
	APIKey        string        `json:"api_key" yaml:"api_key"`
	Timeout       time.Duration `json:"timeout" yaml:"timeout"`
	RetryAttempts int           `json:"retry_attempts" yaml:"retry_attempts"`
	RetryDelay    time.Duration `json:"retry_delay" yaml:"retry_delay"`
}

// DefaultCometConfig returns default configuration for the Comet backend.
func DefaultCometConfig() CometConfig {
	return CometConfig{
		BaseURL:       "http://localhost:8080",
		Timeout:       30 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    1 * time.Second,
	}
}

// CometClient logs metrics and images to a Comet-style REST endpoint.
type CometClient struct {
	baseURL       string
	apiKey        string
	experimentKey string
	httpClient    *http.Client
	retryAttempts int
	retryDelay    time.Duration
}

// NewCometClient creates a new client with a fresh experiment key.
func NewCometClient(config CometConfig) *CometClient {
	attempts := config.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	return &CometClient{
		baseURL:       config.BaseURL,
		apiKey:        config.APIKey,
		experimentKey: uuid.NewString(),
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		retryAttempts: attempts,
		retryDelay:    config.RetryDelay,
	}
}

// Name identifies the backend.
func (c *CometClient) Name() string { return "comet" }

// ExperimentKey returns the experiment key of this client.
func (c *CometClient) ExperimentKey() string { return c.experimentKey }

type cometMetricsRequest struct {
	ExperimentKey string             `json:"experiment_key"`
	Metrics       map[string]float64 `json:"metrics"`
}

type cometImageRequest struct {
	ExperimentKey string `json:"experiment_key"`
	Name          string `json:"name"`
	ImageBase64   string `json:"image_base64"`
}

type cometResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	ErrorCode string `json:"error_code,omitempty"`
}

// LogMetrics sends a mapping of scalar metrics to the backend.
func (c *CometClient) LogMetrics(metrics map[string]float64) error {
	return c.post("/api/metrics", cometMetricsRequest{
		ExperimentKey: c.experimentKey,
		Metrics:       metrics,
	})
}

// LogImage uploads the image at path under the given name.
func (c *CometClient) LogImage(name, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read image %s: %w", path, err)
	}
	return c.post("/api/images", cometImageRequest{
		ExperimentKey: c.experimentKey,
		Name:          name,
		ImageBase64:   base64.StdEncoding.EncodeToString(raw),
	})
}

// post sends a JSON payload with retry logic.
func (c *CometClient) post(endpoint string, payload interface{}) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if err := c.send(endpoint, jsonData); err == nil {
			return nil
		} else {
			lastErr = err
		}
		// Wait before retry (except for the last attempt)
		if attempt < c.retryAttempts-1 {
			time.Sleep(c.retryDelay)
		}
	}
	return fmt.Errorf("failed to send to %s after %d attempts: %w", endpoint, c.retryAttempts, lastErr)
}

func (c *CometClient) send(endpoint string, jsonData []byte) error {
	url := fmt.Sprintf("%s%s", c.baseURL, endpoint)
	req, err := http.NewRequest("POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "jetflow-tracking")
	if c.apiKey != "" {
		req.Header.Set("Authorization", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	var cometResp cometResponse
	if err := json.Unmarshal(respBody, &cometResp); err != nil {
		return fmt.Errorf("failed to parse response JSON: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP request failed with status %d: %s", resp.StatusCode, cometResp.Message)
	}
	return nil
}
