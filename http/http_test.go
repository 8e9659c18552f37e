package http

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/hagall-spatial/simulation"
	"github.com/aukilabs/hagall-spatial/spatial"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/require"
)

func TestHandleHealthCheck(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleHealthCheck(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleReadyCheck(t *testing.T) {
	ready := false
	h := HandleReadyCheck(func() bool { return ready })

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	ready = true
	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleVersion(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleVersion("v1.2.3")(rec, httptest.NewRequest(http.MethodGet, "/version", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "v1.2.3", rec.Body.String())
}

func TestHandleSnapshot(t *testing.T) {
	h := HandleSnapshot(func() simulation.Snapshot {
		return simulation.Snapshot{
			WorldID: "world",
			Index:   simulation.KindDoubleGrid,
			Frame:   9,
			Stats:   simulation.Stats{Elements: 4, Nodes: 2},
		}
	})

	t.Run("get", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/snapshot", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var snapshot simulation.Snapshot
		err := json.Unmarshal(rec.Body.Bytes(), &snapshot)
		require.NoError(t, err)
		require.Equal(t, "world", snapshot.WorldID)
		require.Equal(t, simulation.KindDoubleGrid, snapshot.Index)
		require.Equal(t, uint64(9), snapshot.Frame)
		require.Equal(t, 4, snapshot.Stats.Elements)
	})

	t.Run("post", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodPost, "/snapshot", nil))
		require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestHandleDespawn(t *testing.T) {
	var despawned []int
	h := HandleDespawn(func(id int) error {
		switch id {
		case 1:
			despawned = append(despawned, id)
			return nil
		case 2:
			return errors.New("agent not found").WithType(spatial.ErrTypeNotFound)
		default:
			return errors.New("index failure")
		}
	})

	newRequest := func(body string) *http.Request {
		return httptest.NewRequest(http.MethodPost, "/despawn", bytes.NewBufferString(body))
	}

	t.Run("despawned", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h(rec, newRequest(`{"agent_id":1}`))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, []int{1}, despawned)
	})

	t.Run("unknown agent", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h(rec, newRequest(`{"agent_id":2}`))
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("index failure", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h(rec, newRequest(`{"agent_id":3}`))
		require.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("invalid json", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h(rec, newRequest("{"))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("get", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/despawn", nil))
		require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		require.Equal(t, []int{1}, despawned)
	})
}

func TestVerifyAuthTokenHandler(t *testing.T) {
	next := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}

	t.Run("no token configured", func(t *testing.T) {
		rec := httptest.NewRecorder()
		VerifyAuthTokenHandler("", next)(rec, httptest.NewRequest(http.MethodGet, "/smoke-test", nil))
		require.Equal(t, http.StatusTeapot, rec.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/smoke-test", nil)
		req.Header.Set("Authorization", "Bearer secret")

		rec := httptest.NewRecorder()
		VerifyAuthTokenHandler("secret", next)(rec, req)
		require.Equal(t, http.StatusTeapot, rec.Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/smoke-test", nil)
		req.Header.Set("Authorization", "Bearer nope")

		rec := httptest.NewRecorder()
		VerifyAuthTokenHandler("secret", next)(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		VerifyAuthTokenHandler("secret", next)(rec, httptest.NewRequest(http.MethodGet, "/smoke-test", nil))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestVerifyAuthToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	require.Error(t, VerifyAuthToken("secret")(nil, req))

	req.Header.Set("Authorization", "Bearer secret")
	require.NoError(t, VerifyAuthToken("secret")(nil, req))
}

func TestMetricsPathFormatter(t *testing.T) {
	require.Equal(t, "/snapshot", MetricsPathFormatter(http.StatusOK, "/snapshot"))
	require.Empty(t, MetricsPathFormatter(http.StatusNotFound, "/unknown"))
	require.Empty(t, MetricsPathFormatter(http.StatusUnauthorized, "/stream"))
}

func TestHandleWithCORS(t *testing.T) {
	h := HandleWithCORS(http.HandlerFunc(HandleHealthCheck))

	t.Run("preflight", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/health", nil))
		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("get", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	})
}
