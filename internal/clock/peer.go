package clock

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/trafficlab/crossing/internal/cluster"
)

// HTTPPeer talks to a remote clock node over the shared HTTP/JSON
// protocol: POST /clock/value and POST /clock/set.
type HTTPPeer struct {
	name string
	addr string
}

// NewHTTPPeer returns a peer client for a node at addr, e.g.
// "http://pedestrian:9000".
func NewHTTPPeer(name, addr string) *HTTPPeer {
	return &HTTPPeer{name: name, addr: addr}
}

// Name implements Peer.
func (p *HTTPPeer) Name() string { return p.name }

// ClockValue implements Peer.
func (p *HTTPPeer) ClockValue(ctx context.Context, serverTime time.Time) (time.Duration, error) {
	var resp cluster.ClockValueResponse
	err := cluster.PostJSON(ctx, p.addr+"/clock/value",
		cluster.ClockValueRequest{ServerTime: serverTime.UnixNano()}, &resp)
	if err != nil {
		return 0, err
	}
	return time.Duration(resp.Offset), nil
}

// SetEpoch implements Peer.
func (p *HTTPPeer) SetEpoch(ctx context.Context, epoch time.Time) error {
	return cluster.PostJSON(ctx, p.addr+"/clock/set",
		cluster.SetEpochRequest{Epoch: epoch.UnixNano()}, nil)
}

// RegisterHandlers mounts the peer-side endpoints for c on mux. Every
// clock-bearing node (pedestrian, sensor) serves these so the controller
// can run Berkeley rounds against it.
func RegisterHandlers(mux *http.ServeMux, c *Clock) {
	mux.HandleFunc("/clock/value", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req cluster.ClockValueRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		off := c.Offset(time.Unix(0, req.ServerTime))
		_ = json.NewEncoder(w).Encode(cluster.ClockValueResponse{Offset: int64(off)})
	})

	mux.HandleFunc("/clock/set", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req cluster.SetEpochRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		c.SetEpoch(time.Unix(0, req.Epoch))
		w.WriteHeader(http.StatusNoContent)
	})
}
