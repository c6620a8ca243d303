package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/pvfit/internal/config"
	pverrors "github.com/copyleftdev/pvfit/internal/errors"
	"github.com/copyleftdev/pvfit/internal/fit"
	"github.com/copyleftdev/pvfit/internal/logging"
	"github.com/copyleftdev/pvfit/internal/metrics"
	"github.com/copyleftdev/pvfit/internal/reference"
)

// testLogger creates a logger that discards its output
func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	return logging.New(logging.DebugLevel, io.Discard)
}

func newTestServer(t *testing.T) (*Server, *metrics.Metrics, http.Handler) {
	t.Helper()
	cfg := config.Default()
	cfg.Environment = "test"
	cfg.Optimization.Seed = 7

	m := metrics.New()
	srv := NewServer(fit.NewRunner(cfg, m, nil), testLogger(t), m)
	t.Cleanup(func() { _ = srv.Close() })
	return srv, m, srv.Handler(testLogger(t))
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&out))
	return out
}

func smallFit(extra string) string {
	return `{"model":"sdm","dataset":"synthetic","population":8,"max_iterations":3` + extra + `}`
}

func TestRegisterRoutes(t *testing.T) {
	srv, _, _ := newTestServer(t)
	r := chi.NewRouter()
	srv.RegisterRoutes(r)

	tests := []struct {
		method      string
		path        string
		shouldExist bool
	}{
		{"POST", "/api/v1/solve", true},
		{"POST", "/api/v1/fit", true},
		{"GET", "/api/v1/status/123", true},
		{"DELETE", "/api/v1/fit/123", true},
		{"GET", "/api/v1/datasets", true},
		{"POST", "/rpc", true},
		{"GET", "/healthz", false},
		{"GET", "/nonexistent", false},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader("{}"))
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)

			// the status route answers 404 for unknown ids, so only check
			// that routed requests produce a JSON body
			if tt.shouldExist {
				assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
			} else {
				assert.Equal(t, http.StatusNotFound, rr.Code)
			}
		})
	}
}

func TestHealthAndMetrics(t *testing.T) {
	_, _, h := newTestServer(t)

	rr := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())

	rr = do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}

func TestSolveEndpoint(t *testing.T) {
	_, _, h := newTestServer(t)

	truth := reference.SyntheticTruth()
	body, err := json.Marshal(fit.SolveRequest{
		Model:    "sdm",
		Params:   map[string]float64{"iph": truth.Iph, "is": truth.Is, "n": truth.N, "rs": truth.Rs, "rsh": truth.Rsh},
		Voltages: []float64{0, 0.5},
	})
	require.NoError(t, err)

	rr := do(t, h, http.MethodPost, "/api/v1/solve", string(body))
	require.Equal(t, http.StatusOK, rr.Code)
	out := decode(t, rr)
	currents := out["currents"].([]interface{})
	require.Len(t, currents, 2)
	assert.InDelta(t, truth.Iph, currents[0].(float64), 0.01)

	rr = do(t, h, http.MethodPost, "/api/v1/solve", `{"model":"sdm","params":{"iph":1},"voltages":[0]}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPost, "/api/v1/solve", `{`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestFitLifecycle(t *testing.T) {
	srv, m, h := newTestServer(t)

	rr := do(t, h, http.MethodPost, "/api/v1/fit", smallFit(""))
	require.Equal(t, http.StatusAccepted, rr.Code)
	id := decode(t, rr)["fit_id"].(string)
	require.NotEmpty(t, id)

	srv.Wait()

	rr = do(t, h, http.MethodGet, "/api/v1/status/"+id, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var status FitStatus
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&status))
	assert.Equal(t, StatusCompleted, status.Status)
	assert.Equal(t, 1.0, status.Progress)
	require.NotNil(t, status.Result)
	assert.Len(t, status.Result.Vector, 5)
	assert.NotEmpty(t, status.EndTime)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FitsTotal.WithLabelValues("ischo", "sdm", "completed")))

	rr = do(t, h, http.MethodDelete, "/api/v1/fit/"+id, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code, "finished fits cannot be cancelled")
}

func TestFitErrors(t *testing.T) {
	_, _, h := newTestServer(t)

	rr := do(t, h, http.MethodPost, "/api/v1/fit", smallFit(`,"algorithm":"pso"`))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, h, http.MethodPost, "/api/v1/fit", smallFit(`,"bounds":[[1,0],[0,1],[0,1],[0,1],[0,1]]`))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodGet, "/api/v1/status/missing", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, h, http.MethodDelete, "/api/v1/fit/missing", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCancelRunningFit(t *testing.T) {
	srv, _, h := newTestServer(t)

	rr := do(t, h, http.MethodPost, "/api/v1/fit", smallFit(`,"max_iterations":1000000`))
	require.Equal(t, http.StatusAccepted, rr.Code)
	id := decode(t, rr)["fit_id"].(string)

	rr = do(t, h, http.MethodDelete, "/api/v1/fit/"+id, "")
	require.Equal(t, http.StatusOK, rr.Code)

	done := make(chan struct{})
	go func() {
		srv.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("cancelled fit did not stop")
	}

	st, err := srv.status(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, st.Status)
	assert.Nil(t, st.Result)
}

func TestDatasetsAndReference(t *testing.T) {
	_, _, h := newTestServer(t)

	rr := do(t, h, http.MethodGet, "/api/v1/datasets", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var datasets []map[string]interface{}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&datasets))
	assert.Len(t, datasets, len(reference.Names()))

	rr = do(t, h, http.MethodGet, "/api/v1/reference", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var scores []fit.ReferenceScore
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&scores))
	assert.Len(t, scores, len(reference.PublishedSets()))
}

func rpc(t *testing.T, h http.Handler, method string, params interface{}) map[string]interface{} {
	t.Helper()
	body := map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": method}
	if params != nil {
		body["params"] = params
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	rr := do(t, h, http.MethodPost, "/rpc", string(raw))
	require.Equal(t, http.StatusOK, rr.Code)
	return decode(t, rr)
}

func rpcErrorCode(t *testing.T, resp map[string]interface{}) int {
	t.Helper()
	errObj, ok := resp["error"].(map[string]interface{})
	require.True(t, ok, "response should contain error object: %v", resp)
	return int(errObj["code"].(float64))
}

func TestJSONRPC(t *testing.T) {
	srv, m, h := newTestServer(t)

	resp := rpc(t, h, "pv.solve", []interface{}{map[string]interface{}{
		"model":    "sdm",
		"params":   map[string]float64{"iph": 1, "is": 1e-9, "n": 1.3, "rs": 0.01, "rsh": 100},
		"voltages": []float64{0, 0.2},
	}})
	require.Nil(t, resp["error"])
	assert.Len(t, resp["result"].(map[string]interface{})["currents"], 2)

	var req fit.Request
	require.NoError(t, json.Unmarshal([]byte(smallFit("")), &req))
	resp = rpc(t, h, "fit.start", req)
	require.Nil(t, resp["error"])
	id := resp["result"].(map[string]interface{})["fit_id"].(string)
	srv.Wait()

	resp = rpc(t, h, "fit.status", map[string]string{"fit_id": id})
	require.Nil(t, resp["error"])
	assert.Equal(t, StatusCompleted, resp["result"].(map[string]interface{})["status"])

	resp = rpc(t, h, "fit.cancel", map[string]string{"fit_id": id})
	assert.Equal(t, codeInvalidParams, rpcErrorCode(t, resp))

	resp = rpc(t, h, "fit.status", map[string]string{"fit_id": "nope"})
	assert.Equal(t, codeNotFound, rpcErrorCode(t, resp))

	resp = rpc(t, h, "fit.start", map[string]interface{}{"model": "sdm", "dataset": "synthetic", "bounds": [][]float64{{1, 0}, {0, 1}, {0, 1}, {0, 1}, {0, 1}}})
	assert.Equal(t, codeInvalidParams, rpcErrorCode(t, resp))

	resp = rpc(t, h, "reference.scores", nil)
	require.Nil(t, resp["error"])

	resp = rpc(t, h, "fit.start", nil)
	assert.Equal(t, codeInvalidParams, rpcErrorCode(t, resp))

	resp = rpc(t, h, "optimization.start", nil)
	assert.Equal(t, codeMethodNotFound, rpcErrorCode(t, resp))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("fit.start", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("fit.start", "error")))
}

func TestJSONRPCMalformed(t *testing.T) {
	_, _, h := newTestServer(t)

	rr := do(t, h, http.MethodPost, "/rpc", "{not json")
	assert.Equal(t, codeParseError, rpcErrorCode(t, decode(t, rr)))

	rr = do(t, h, http.MethodPost, "/rpc", `{"jsonrpc":"1.0","id":3,"method":"pv.solve"}`)
	resp := decode(t, rr)
	assert.Equal(t, codeInvalidRequest, rpcErrorCode(t, resp))
	assert.Equal(t, 3.0, resp["id"])
}

func TestRespondWithError(t *testing.T) {
	srv, _, _ := newTestServer(t)

	tests := []struct {
		name       string
		code       int
		message    string
		id         interface{}
		expectedID interface{}
	}{
		{"string id", codeInvalidParams, "invalid input", "123", "123"},
		{"nil id", codeServerError, "server error", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			srv.respondWithError(rr, tt.code, tt.message, tt.id)

			// JSON-RPC errors travel in the body of a 200
			assert.Equal(t, http.StatusOK, rr.Code)

			var response map[string]interface{}
			require.NoError(t, json.NewDecoder(bytes.NewReader(rr.Body.Bytes())).Decode(&response))
			errObj, ok := response["error"].(map[string]interface{})
			require.True(t, ok)
			assert.Equal(t, float64(tt.code), errObj["code"])
			assert.Equal(t, tt.message, errObj["message"])
			assert.Equal(t, tt.expectedID, response["id"])
		})
	}
}

func TestCloseCancelsFits(t *testing.T) {
	srv, _, h := newTestServer(t)

	rr := do(t, h, http.MethodPost, "/api/v1/fit", smallFit(`,"max_iterations":1000000`))
	require.Equal(t, http.StatusAccepted, rr.Code)
	id := decode(t, rr)["fit_id"].(string)

	require.NoError(t, srv.Close())

	st, err := srv.status(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, st.Status)
	assert.NotEmpty(t, st.EndTime)

	rr = do(t, h, http.MethodPost, "/api/v1/fit", smallFit(""))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestStartFitDuringClose(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := fit.Request{Model: "sdm", Dataset: "synthetic", Population: 4, MaxIterations: 1000000, Seed: 1}

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := 0; k < 5; k++ {
				if _, err := srv.startFit(req); err != nil {
					assert.Equal(t, pverrors.KindUnavailable, pverrors.KindOf(err))
				}
			}
		}()
	}
	require.NoError(t, srv.Close())
	wg.Wait()
	require.NoError(t, srv.Close())

	srv.fitsMu.RLock()
	defer srv.fitsMu.RUnlock()
	for id, st := range srv.fits {
		assert.NotEqual(t, StatusRunning, st.Status, id)
		assert.NotEqual(t, StatusPending, st.Status, id)
	}
}
