// Package mlflow is a minimal client for the MLflow 2.0 REST API, covering
// just the experiment/run surface the benchmark pipeline records to.
package mlflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

type ClientOption func(*Client)

type Client struct {
	base     url.URL
	username string
	password string
	http     *http.Client
}

const defaultTimeout = 60 * time.Second

func NewClient(trackingURI, username, password string, opts ...ClientOption) (*Client, error) {
	base, err := url.Parse(trackingURI)
	if err != nil {
		return nil, fmt.Errorf("parse tracking uri: %w", err)
	}

	c := &Client{
		base:     *base,
		username: username,
		password: password,
		http:     &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.http = httpClient
	}
}

type Experiment struct {
	ExperimentID string `json:"experiment_id"`
	Name         string `json:"name"`
}

type RunInfo struct {
	RunID string `json:"run_id"`
}

type Metric struct {
	Key       string  `json:"key"`
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp"`
	Step      int64   `json:"step"`
}

type Param struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type runTag struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// GetOrCreateExperiment resolves an experiment id by name, creating the
// experiment when the tracker does not know it yet.
func (c *Client) GetOrCreateExperiment(ctx context.Context, name string) (string, error) {
	var got struct {
		Experiment Experiment `json:"experiment"`
	}
	err := c.do(ctx, http.MethodGet, "/api/2.0/mlflow/experiments/get-by-name?experiment_name="+url.QueryEscape(name), nil, &got)
	if err == nil {
		return got.Experiment.ExperimentID, nil
	}

	var created struct {
		ExperimentID string `json:"experiment_id"`
	}
	req := map[string]string{"name": name}
	if err := c.do(ctx, http.MethodPost, "/api/2.0/mlflow/experiments/create", req, &created); err != nil {
		return "", fmt.Errorf("create experiment %q: %w", name, err)
	}
	return created.ExperimentID, nil
}

// ListExperiments returns the experiments visible to the caller. Used by the
// connectivity check.
func (c *Client) ListExperiments(ctx context.Context) ([]Experiment, error) {
	req := map[string]any{"max_results": 1000}
	var resp struct {
		Experiments []Experiment `json:"experiments"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/2.0/mlflow/experiments/search", req, &resp); err != nil {
		return nil, fmt.Errorf("search experiments: %w", err)
	}
	return resp.Experiments, nil
}

func (c *Client) CreateRun(ctx context.Context, experimentID, runName string, tags map[string]string) (string, error) {
	tagList := make([]runTag, 0, len(tags)+1)
	tagList = append(tagList, runTag{Key: "mlflow.runName", Value: runName})
	for k, v := range tags {
		tagList = append(tagList, runTag{Key: k, Value: v})
	}

	req := map[string]any{
		"experiment_id": experimentID,
		"run_name":      runName,
		"start_time":    time.Now().UnixMilli(),
		"tags":          tagList,
	}
	var resp struct {
		Run struct {
			Info RunInfo `json:"info"`
		} `json:"run"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/2.0/mlflow/runs/create", req, &resp); err != nil {
		return "", fmt.Errorf("create run %q: %w", runName, err)
	}
	return resp.Run.Info.RunID, nil
}

// LogBatch records params and metrics against a run in one call.
func (c *Client) LogBatch(ctx context.Context, runID string, params []Param, metrics []Metric) error {
	req := map[string]any{"run_id": runID}
	if len(params) > 0 {
		req["params"] = params
	}
	if len(metrics) > 0 {
		req["metrics"] = metrics
	}
	if err := c.do(ctx, http.MethodPost, "/api/2.0/mlflow/runs/log-batch", req, nil); err != nil {
		return fmt.Errorf("log batch: %w", err)
	}
	return nil
}

func (c *Client) EndRun(ctx context.Context, runID string) error {
	req := map[string]any{
		"run_id":   runID,
		"status":   "FINISHED",
		"end_time": time.Now().UnixMilli(),
	}
	if err := c.do(ctx, http.MethodPost, "/api/2.0/mlflow/runs/update", req, nil); err != nil {
		return fmt.Errorf("end run: %w", err)
	}
	return nil
}

// MetricsFromMap flattens a metric map into API metrics stamped with the
// current time.
func MetricsFromMap(values map[string]float64) []Metric {
	now := time.Now().UnixMilli()
	metrics := make([]Metric, 0, len(values))
	for k, v := range values {
		metrics = append(metrics, Metric{Key: k, Value: v, Timestamp: now})
	}
	return metrics
}

func (c *Client) do(ctx context.Context, method, path string, reqData, respData any) error {
	var body io.Reader
	if reqData != nil {
		raw, err := json.Marshal(reqData)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	reqURL := c.base.String() + path
	request, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	if c.username != "" {
		request.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.http.Do(request)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(respBody))
	}

	if respData != nil {
		if err := json.Unmarshal(respBody, respData); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
