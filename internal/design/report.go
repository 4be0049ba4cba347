package design

// Baseline is the deterministic sizing computed from the request alone.
type Baseline struct {
	BaseQPS          float64 `json:"base_qps"`
	PeakQPS          float64 `json:"peak_qps"`
	ReadQPS          float64 `json:"read_qps"`
	WriteQPS         float64 `json:"write_qps"`
	DeclaredPeakRPS  int     `json:"declared_peak_rps"`
	EffectivePeakQPS float64 `json:"effective_peak_qps"`
	DailyGB          float64 `json:"daily_gb"`
	RetentionGB      float64 `json:"total_gb_retention"`
	MonthlyGrowthGB  float64 `json:"monthly_growth_gb"`
	BandwidthGbps    float64 `json:"bandwidth_gbps"`
}

type ArchitectureSection struct {
	Options           []ArchitectureOption `json:"options"`
	RecommendedOption string               `json:"recommended_option"`
	Components        []string             `json:"components"`
	Flows             []string             `json:"flows"`
	MermaidFlow       string               `json:"mermaid_flow"`
	MermaidComponents string               `json:"mermaid_components"`
}

type APISection struct {
	Endpoints []APIEndpoint `json:"endpoints"`
	OpenAPI   string        `json:"openapi"`
}

type SizingSection struct {
	Baseline Baseline      `json:"baseline"`
	Estimate SizingPayload `json:"estimate"`
}

type SecuritySection struct {
	Plan                []string `json:"plan"`
	ThreatModel         []string `json:"threat_model"`
	Observability       []string `json:"observability"`
	ComplianceChecklist []string `json:"compliance_checklist"`
}

// DesignReport is the assembled output of a fully successful run. It carries
// no run identifiers or timestamps, so equal inputs produce equal reports.
type DesignReport struct {
	Request         DesignRequest       `json:"request"`
	Summary         string              `json:"summary"`
	Assumptions     []string            `json:"assumptions"`
	Architecture    ArchitectureSection `json:"architecture"`
	TechStack       []TechChoice        `json:"tech_stack"`
	API             APISection          `json:"api"`
	Sizing          SizingSection       `json:"sizing"`
	PerformancePlan []string            `json:"performance_plan"`
	ReliabilityPlan []string            `json:"reliability_plan"`
	Security        SecuritySection     `json:"security"`
	Risks           []string            `json:"risks"`
	PhasedRollout   []string            `json:"phased_rollout"`
}
