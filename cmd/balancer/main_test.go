package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trafficlab/crossing/internal/cluster"
	"github.com/trafficlab/crossing/internal/router"
	"github.com/trafficlab/crossing/internal/store"
)

// newControllerStub answers /signal and /vip like a healthy controller.
func newControllerStub(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/signal", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(cluster.SignalResponse{OK: true})
	})
	mux.HandleFunc("/vip", func(w http.ResponseWriter, r *http.Request) {
		var req cluster.VIPArrivalRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_ = json.NewEncoder(w).Encode(cluster.VIPArrivalResponse{VehicleID: req.VehicleID, OK: true})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestServer(t *testing.T, controllerURL string) (*server, *httptest.Server, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore(time.Minute)
	t.Cleanup(st.Close)

	registry := router.NewRegistry()
	require.NoError(t, registry.Add(router.NewInstance("controller", controllerURL, 5, false)))
	metrics := router.NewMetrics(prometheus.NewRegistry())
	balancer := router.NewBalancer(registry, nil, st, metrics, router.Config{})

	s := &server{balancer: balancer, store: st}
	mux := http.NewServeMux()
	s.routes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return s, srv, st
}

func postJSON(t *testing.T, url string, body, out any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestHandleSignalForwards(t *testing.T) {
	controller := newControllerStub(t)
	_, srv, st := newTestServer(t, controller.URL)

	var resp cluster.SignalResponse
	httpResp := postJSON(t, srv.URL+"/signal", cluster.SignalRequest{TargetPair: []int{1, 2}}, &resp)

	assert.Equal(t, http.StatusOK, httpResp.StatusCode)
	assert.True(t, resp.OK)

	recent := st.RecentRequests(10)
	require.Len(t, recent, 1)
	assert.Equal(t, "signal", recent[0].Operation)
	assert.Equal(t, "[1,2]", recent[0].TargetPair)
	assert.Equal(t, store.RequestCompleted, recent[0].Status)
}

func TestHandleVIPForwards(t *testing.T) {
	controller := newControllerStub(t)
	_, srv, _ := newTestServer(t, controller.URL)

	var resp cluster.VIPArrivalResponse
	postJSON(t, srv.URL+"/vip",
		cluster.VIPArrivalRequest{VehicleID: "amb-1", TargetPair: []int{3, 4}, Priority: 1}, &resp)

	assert.True(t, resp.OK)
	assert.Equal(t, "amb-1", resp.VehicleID)
}

func TestHandleSignalNoControllers(t *testing.T) {
	_, srv, _ := newTestServer(t, "http://localhost:1")

	httpResp := postJSON(t, srv.URL+"/signal", cluster.SignalRequest{TargetPair: []int{1, 2}}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, httpResp.StatusCode)
}

func TestStatusPushRoundtrip(t *testing.T) {
	controller := newControllerStub(t)
	_, srv, st := newTestServer(t, controller.URL)

	update := cluster.StatusUpdate{
		Controller: "controller",
		Signals:    map[string]string{"1": "GREEN", "2": "GREEN", "P1": "RED"},
	}
	httpResp := postJSON(t, srv.URL+"/signals/update", update, nil)
	require.Equal(t, http.StatusNoContent, httpResp.StatusCode)

	resp, err := http.Get(srv.URL + "/signals")
	require.NoError(t, err)
	defer resp.Body.Close()
	var got struct {
		Signals map[string]store.SignalRecord `json:"signals"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "GREEN", got.Signals["1"].Status)
	assert.Equal(t, "RED", got.Signals["P1"].Status)

	assert.Equal(t, "GREEN", st.Signals()["2"].Status)
}

func TestVIPServedPush(t *testing.T) {
	controller := newControllerStub(t)
	_, srv, st := newTestServer(t, controller.URL)

	served := cluster.VIPServedUpdate{
		VehicleID:   "fire-9",
		TargetPair:  []int{1, 2},
		Controller:  "controller",
		Priority:    2,
		ArrivalTime: time.Now().Add(-3 * time.Second).UnixNano(),
		ServiceSecs: 3.0,
	}
	httpResp := postJSON(t, srv.URL+"/vips/served", served, nil)
	require.Equal(t, http.StatusNoContent, httpResp.StatusCode)

	vips := st.RecentVIPs(10)
	require.Len(t, vips, 1)
	assert.Equal(t, "fire-9", vips[0].VehicleID)
	assert.Equal(t, "[1,2]", vips[0].TargetPair)
	assert.Equal(t, "controller", vips[0].ServedBy)
}

func TestHandleStatusAggregates(t *testing.T) {
	controller := newControllerStub(t)
	_, srv, _ := newTestServer(t, controller.URL)

	postJSON(t, srv.URL+"/signal", cluster.SignalRequest{TargetPair: []int{1, 2}}, nil)
	postJSON(t, srv.URL+"/signals/update",
		cluster.StatusUpdate{Controller: "controller", Signals: map[string]string{"1": "GREEN"}}, nil)

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var status store.SystemStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Len(t, status.RecentRequests, 1)
	assert.Contains(t, status.Signals, "1")
	require.Len(t, status.Controllers, 1)
	assert.Equal(t, "controller", status.Controllers[0].Name)
	assert.False(t, status.Timestamp.IsZero())
}

func TestParseControllers(t *testing.T) {
	out := parseControllers("controller=http://a, controller-clone=http://b,,broken")
	require.Len(t, out, 2)
	assert.Equal(t, "http://a", out["controller"])
	assert.Equal(t, "http://b", out["controller-clone"])

	assert.Empty(t, parseControllers(""))
}

func TestPairString(t *testing.T) {
	assert.Equal(t, "[1,2]", pairString([]int{1, 2}))
	assert.Equal(t, "[3,4]", pairString([]int{3, 4}))
	assert.Equal(t, "[]", pairString(nil))
}
