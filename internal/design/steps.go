package design

// StepID names one model-backed step of a design run.
type StepID string

const (
	StepArchitecture StepID = "architecture"
	StepSizing       StepID = "sizing"
	StepTechStack    StepID = "tech_stack"
	StepAPIDesign    StepID = "api_design"
	StepPerformance  StepID = "performance_reliability"
	StepSecurity     StepID = "security"
	StepSummary      StepID = "summary"
)

// AllSteps lists every step in declaration order.
func AllSteps() []StepID {
	return []StepID{
		StepArchitecture,
		StepSizing,
		StepTechStack,
		StepAPIDesign,
		StepPerformance,
		StepSecurity,
		StepSummary,
	}
}

// Payload is the validated output of one step. Each step has exactly one
// concrete payload type.
type Payload interface {
	Step() StepID
}

// ArchitectureOption is one candidate architecture.
type ArchitectureOption struct {
	Title   string   `json:"title"`
	Bullets []string `json:"bullets"`
}

type ArchitecturePayload struct {
	Options           []ArchitectureOption `json:"options"`
	RecommendedOption string               `json:"recommended_option"`
	Components        []string             `json:"components"`
	Flows             []string             `json:"flows"`
}

func (ArchitecturePayload) Step() StepID { return StepArchitecture }

// SizingPayload is the model's capacity estimate.
type SizingPayload struct {
	PeakQPS         float64  `json:"peak_qps"`
	ReadQPS         float64  `json:"read_qps"`
	WriteQPS        float64  `json:"write_qps"`
	StorageGB       float64  `json:"storage_gb"`
	MonthlyGrowthGB float64  `json:"monthly_growth_gb"`
	BandwidthGbps   float64  `json:"bandwidth_gbps"`
	AppInstances    int      `json:"app_instances"`
	DBInstances     int      `json:"db_instances"`
	CacheGB         float64  `json:"cache_gb"`
	Notes           []string `json:"notes"`
}

func (SizingPayload) Step() StepID { return StepSizing }

// TechChoice is a technology picked for one layer of the system.
type TechChoice struct {
	Layer     string `json:"layer"`
	Choice    string `json:"choice"`
	Rationale string `json:"rationale"`
}

type TechStackPayload struct {
	TechStack []TechChoice `json:"tech_stack"`
}

func (TechStackPayload) Step() StepID { return StepTechStack }

// APIEndpoint sketches one endpoint of the designed system.
type APIEndpoint struct {
	Method       string         `json:"method"`
	Path         string         `json:"path"`
	Description  string         `json:"description"`
	Request      map[string]any `json:"request"`
	Response     map[string]any `json:"response"`
	RateLimitRPM *int           `json:"rate_limit_rpm,omitempty"`
	Idempotent   bool           `json:"idempotent"`
}

type APIDesignPayload struct {
	Endpoints []APIEndpoint `json:"endpoints"`
}

func (APIDesignPayload) Step() StepID { return StepAPIDesign }

type PerformancePayload struct {
	PerformancePlan []string `json:"performance_plan"`
	ReliabilityPlan []string `json:"reliability_plan"`
}

func (PerformancePayload) Step() StepID { return StepPerformance }

type SecurityPayload struct {
	SecurityPlan  []string `json:"security_plan"`
	ThreatModel   []string `json:"threat_model"`
	Observability []string `json:"observability"`
}

func (SecurityPayload) Step() StepID { return StepSecurity }

type SummaryPayload struct {
	Summary       string   `json:"summary"`
	PhasedRollout []string `json:"phased_rollout"`
	Risks         []string `json:"risks"`
}

func (SummaryPayload) Step() StepID { return StepSummary }
