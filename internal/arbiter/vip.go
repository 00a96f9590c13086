package arbiter

import (
	"fmt"
	"time"

	"github.com/trafficlab/crossing/internal/signal"
)

// VIPRequest is one pending high-priority vehicle waiting for its
// direction-pair. Priority 1 is the highest; ties are broken by earlier
// arrival time, so the total order is (priority asc, arrival asc).
type VIPRequest struct {
	ArrivalTime time.Time
	VehicleID   string
	Priority    int
	TargetPair  signal.Pair
}

// Before reports whether r precedes other in the service order.
func (r VIPRequest) Before(other VIPRequest) bool {
	if r.Priority != other.Priority {
		return r.Priority < other.Priority
	}
	return r.ArrivalTime.Before(other.ArrivalTime)
}

// Label renders the request for logs: "AMBULANCE amb-42 [P1]".
func (r VIPRequest) Label() string {
	return fmt.Sprintf("%s %s [P%d]", VehicleType(r.Priority), r.VehicleID, r.Priority)
}

// VehicleType maps a priority to the conventional vehicle class used in
// logs and status output.
func VehicleType(priority int) string {
	switch priority {
	case 1:
		return "AMBULANCE"
	case 2:
		return "FIRE_TRUCK"
	case 3:
		return "POLICE"
	case 4:
		return "VIP_CAR"
	}
	return fmt.Sprintf("VIP_P%d", priority)
}

// VIPInfo is the externally visible form of a queued request, returned by
// status queries.
type VIPInfo struct {
	VehicleID   string  `json:"vehicle_id"`
	VehicleType string  `json:"vehicle_type"`
	Priority    int     `json:"priority"`
	WaitingSecs float64 `json:"waiting_seconds"`
}
