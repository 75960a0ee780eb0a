package models

// QuarterCounts buckets completed assurance activities by calendar quarter.
type QuarterCounts struct {
	Q1    int `json:"q1"`
	Q2    int `json:"q2"`
	Q3    int `json:"q3"`
	Q4    int `json:"q4"`
	Total int `json:"total"`
}

// VisitMetrics pairs completed counts with the minimum required for the year.
type VisitMetrics struct {
	Completed           QuarterCounts `json:"completed"`
	MinimumRequirements int           `json:"minimum_requirements"`
}

// AuditMetrics counts completed scheduled audits against the requirement.
type AuditMetrics struct {
	Completed           int `json:"completed"`
	MinimumRequirements int `json:"minimum_requirements"`
}

// HactValues is the derived assurance record stored on the partner.
type HactValues struct {
	AssuranceCoverage   string       `json:"assurance_coverage"`
	ProgrammaticVisits  VisitMetrics `json:"programmatic_visits"`
	SpotChecks          VisitMetrics `json:"spot_checks"`
	Audits              AuditMetrics `json:"audits"`
	OutstandingFindings int          `json:"outstanding_findings"`
	// MicroAssessmentNeeded is "Yes", "No" or "Missing".
	MicroAssessmentNeeded string `json:"micro_assessment_needed"`
}

// MinRequirements is the minimum-requirements slice of HactValues, kept on
// the partner separately so list views can render it without the full record.
type MinRequirements struct {
	ProgrammaticVisits int `json:"programmatic_visits"`
	SpotChecks         int `json:"spot_checks"`
	Audits             int `json:"audits"`
}

// Assurance coverage levels
const (
	AssuranceCoverageComplete = "complete"
	AssuranceCoveragePartial  = "partial"
	AssuranceCoverageNone     = "none"
)
