package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Vote values returned by the pedestrian-acknowledgment node.
const (
	VoteGranted = "OK"
	VoteDenied  = "DENY"
)

// SignalRequest asks a controller to turn a direction-pair green.
// TargetPair is the wire form of a pair: [1,2] or [3,4].
type SignalRequest struct {
	TargetPair []int `json:"target_pair"`
}

// SignalResponse reports whether a signal request was carried out.
// OK is false when the pedestrian node denied the transition.
type SignalResponse struct {
	OK bool `json:"ok"`
}

// VIPArrivalRequest registers a high-priority vehicle for a direction-pair.
// Priority 1 is the highest. VehicleID may be empty, in which case the
// controller generates one and echoes it back in the response.
type VIPArrivalRequest struct {
	VehicleID  string `json:"vehicle_id,omitempty"`
	TargetPair []int  `json:"target_pair"`
	Priority   int    `json:"priority"`
}

// VIPArrivalResponse acknowledges a VIP registration.
type VIPArrivalResponse struct {
	VehicleID string `json:"vehicle_id"`
	OK        bool   `json:"ok"`
}

// VoteRequest asks the pedestrian node whether a direction-pair may be
// given green.
type VoteRequest struct {
	TargetPair []int `json:"target_pair"`
}

// VoteResponse carries the pedestrian node's vote: VoteGranted or VoteDenied.
type VoteResponse struct {
	Vote string `json:"vote"`
}

// ClockValueRequest carries the coordinator's corrected time, in Unix
// nanoseconds, to a peer during a Berkeley round.
type ClockValueRequest struct {
	ServerTime int64 `json:"server_time_ns"`
}

// ClockValueResponse carries a peer's offset relative to the coordinator's
// time: peer local time minus server time, in nanoseconds.
type ClockValueResponse struct {
	Offset int64 `json:"offset_ns"`
}

// SetEpochRequest pushes the corrected epoch, in Unix nanoseconds, to a
// peer in the final step of a Berkeley round.
type SetEpochRequest struct {
	Epoch int64 `json:"epoch_ns"`
}

// StatusUpdate is pushed by a controller to the balancer after every
// completed transition so the system status store stays current.
type StatusUpdate struct {
	Signals    map[string]string `json:"signals"`
	Controller string            `json:"controller"`
}

// VIPServedUpdate is pushed by a controller to the balancer after a VIP
// completes its crossing, for the VIP audit log.
type VIPServedUpdate struct {
	VehicleID   string  `json:"vehicle_id"`
	TargetPair  []int   `json:"target_pair"`
	Controller  string  `json:"controller"`
	Priority    int     `json:"priority"`
	ArrivalTime int64   `json:"arrival_time_ns"`
	ServiceSecs float64 `json:"service_seconds"`
}

// Deadlines come from the caller's context: signal transitions hold a
// request open for tens of seconds, so a flat client timeout would cut
// legitimate calls short.
var httpClient = &http.Client{}

// PostJSON sends body as JSON to url and, when out is non-nil, decodes the
// response body into it. Responses with status >= 300 are errors.
func PostJSON(ctx context.Context, url string, body any, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %s: %d", url, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetJSON issues a GET to url and decodes the JSON response into out.
func GetJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %s: %d", url, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
