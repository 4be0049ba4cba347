package design

import "strconv"

// Budget levels accepted in a request.
const (
	BudgetLow    = "low"
	BudgetMedium = "medium"
	BudgetHigh   = "high"
)

// Traffic patterns accepted in a request.
const (
	TrafficSteady = "steady"
	TrafficSpiky  = "spiky"
)

// DesignRequest holds the product requirements a run designs for. The first
// seven fields are the core drivers and are always present once validated.
type DesignRequest struct {
	AppName        string   `json:"app_name"`
	Description    string   `json:"description"`
	DAU            int      `json:"dau"`
	PeakRPS        int      `json:"peak_rps"`
	ReadWriteRatio float64  `json:"read_write_ratio"`
	Regions        []string `json:"regions"`
	BudgetLevel    string   `json:"budget_level"`

	Domain              string   `json:"domain,omitempty"`
	EndUsers            string   `json:"end_users,omitempty"`
	UserRoles           []string `json:"user_roles,omitempty"`
	PeakConcurrentUsers *int     `json:"peak_concurrent_users,omitempty"`
	TrafficPattern      string   `json:"traffic_pattern,omitempty"`
	DataTypes           []string `json:"data_types,omitempty"`
	Compliance          []string `json:"compliance,omitempty"`
	LatencyTargetP50Ms  *int     `json:"latency_target_ms_p50,omitempty"`
	LatencyTargetP95Ms  *int     `json:"latency_target_ms_p95,omitempty"`
	AvailabilityTarget  *float64 `json:"availability_target,omitempty"`
	RPOHours            *float64 `json:"rpo_hours,omitempty"`
	RTOHours            *float64 `json:"rto_hours,omitempty"`
	APIsNeeded          []string `json:"apis_needed,omitempty"`
	APIRateLimitRPM     *int     `json:"api_rate_limits_rpm,omitempty"`
	TeamSize            *int     `json:"team_size,omitempty"`
	SpecialConstraints  []string `json:"special_constraints,omitempty"`
}

// PeakConcurrency returns the declared peak concurrent users, falling back to a
// tenth of the daily actives.
func (r DesignRequest) PeakConcurrency() int {
	if r.PeakConcurrentUsers != nil && *r.PeakConcurrentUsers > 0 {
		return *r.PeakConcurrentUsers
	}
	return r.DAU / 10
}

// Pattern returns the traffic pattern with the default applied.
func (r DesignRequest) Pattern() string {
	if r.TrafficPattern == "" {
		return TrafficSteady
	}
	return r.TrafficPattern
}

// FreeText lists the user supplied prose fields keyed by their JSON name.
func (r DesignRequest) FreeText() map[string]string {
	fields := map[string]string{
		"app_name":    r.AppName,
		"description": r.Description,
		"domain":      r.Domain,
		"end_users":   r.EndUsers,
	}
	for i, c := range r.SpecialConstraints {
		fields[indexed("special_constraints", i)] = c
	}
	for i, a := range r.APIsNeeded {
		fields[indexed("apis_needed", i)] = a
	}
	return fields
}

// Clone returns a deep copy so callers can hand the request to goroutines
// without sharing slices.
func (r DesignRequest) Clone() DesignRequest {
	out := r
	out.Regions = cloneStrings(r.Regions)
	out.UserRoles = cloneStrings(r.UserRoles)
	out.DataTypes = cloneStrings(r.DataTypes)
	out.Compliance = cloneStrings(r.Compliance)
	out.APIsNeeded = cloneStrings(r.APIsNeeded)
	out.SpecialConstraints = cloneStrings(r.SpecialConstraints)
	out.PeakConcurrentUsers = clonePtr(r.PeakConcurrentUsers)
	out.LatencyTargetP50Ms = clonePtr(r.LatencyTargetP50Ms)
	out.LatencyTargetP95Ms = clonePtr(r.LatencyTargetP95Ms)
	out.AvailabilityTarget = clonePtr(r.AvailabilityTarget)
	out.RPOHours = clonePtr(r.RPOHours)
	out.RTOHours = clonePtr(r.RTOHours)
	out.APIRateLimitRPM = clonePtr(r.APIRateLimitRPM)
	out.TeamSize = clonePtr(r.TeamSize)
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func indexed(name string, i int) string {
	return name + "." + strconv.Itoa(i)
}
