package mlflow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateExperiment(t *testing.T) {
	t.Run("existing experiment", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/2.0/mlflow/experiments/get-by-name", r.URL.Path)
			assert.Equal(t, "spec-bench-evaluation", r.URL.Query().Get("experiment_name"))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"experiment": map[string]string{"experiment_id": "7", "name": "spec-bench-evaluation"},
			})
		}))
		defer srv.Close()

		c, err := NewClient(srv.URL, "u", "p")
		require.NoError(t, err)

		id, err := c.GetOrCreateExperiment(context.Background(), "spec-bench-evaluation")
		require.NoError(t, err)
		assert.Equal(t, "7", id)
	})

	t.Run("creates when missing", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/api/2.0/mlflow/experiments/get-by-name":
				http.Error(w, `{"error_code":"RESOURCE_DOES_NOT_EXIST"}`, http.StatusNotFound)
			case "/api/2.0/mlflow/experiments/create":
				var req map[string]string
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "fresh", req["name"])
				_ = json.NewEncoder(w).Encode(map[string]string{"experiment_id": "42"})
			default:
				t.Fatalf("unexpected path %s", r.URL.Path)
			}
		}))
		defer srv.Close()

		c, err := NewClient(srv.URL, "u", "p")
		require.NoError(t, err)

		id, err := c.GetOrCreateExperiment(context.Background(), "fresh")
		require.NoError(t, err)
		assert.Equal(t, "42", id)
	})
}

func TestCreateRun(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/2.0/mlflow/runs/create", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "admin", user)
		assert.Equal(t, "pw", pass)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"run": map[string]any{"info": map[string]string{"run_id": "run-1"}},
		})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "admin", "pw")
	require.NoError(t, err)

	runID, err := c.CreateRun(context.Background(), "7", "speed_analysis_eagle", map[string]string{"branch": "exp_1"})
	require.NoError(t, err)
	assert.Equal(t, "run-1", runID)
	assert.Equal(t, "7", got["experiment_id"])
	assert.Equal(t, "speed_analysis_eagle", got["run_name"])
}

func TestLogBatchAndEndRun(t *testing.T) {
	var paths []string
	var batch map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if r.URL.Path == "/api/2.0/mlflow/runs/log-batch" {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&batch))
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "", "")
	require.NoError(t, err)

	params := []Param{{Key: "model_name", Value: "eagle"}}
	metrics := []Metric{{Key: "overall_speedup_ratio", Value: 2.1, Timestamp: 1}}
	require.NoError(t, c.LogBatch(context.Background(), "run-1", params, metrics))
	require.NoError(t, c.EndRun(context.Background(), "run-1"))

	assert.Equal(t, []string{"/api/2.0/mlflow/runs/log-batch", "/api/2.0/mlflow/runs/update"}, paths)
	assert.Equal(t, "run-1", batch["run_id"])
	require.Len(t, batch["metrics"], 1)
	require.Len(t, batch["params"], 1)
}

func TestMetricsFromMap(t *testing.T) {
	metrics := MetricsFromMap(map[string]float64{"a": 1, "b": 2})
	assert.Len(t, metrics, 2)
	for _, m := range metrics {
		assert.NotZero(t, m.Timestamp)
	}
}
