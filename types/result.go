package types

import "time"

// RunStatus classifies the outcome of one planning run.
type RunStatus string

const (
	RunStatusOk      RunStatus = "ok"
	RunStatusWarning RunStatus = "warning"
	RunStatusError   RunStatus = "error"
	RunStatusBusy    RunStatus = "busy"
)

// IssueCode is a machine-readable identifier for a run issue.
type IssueCode string

const (
	IssueMissingColumn      IssueCode = "data.missing_column"
	IssueColumnMismatch     IssueCode = "data.column_length_mismatch"
	IssueStalePrices        IssueCode = "data.stale_prices"
	IssueProviderUna        IssueCode = "data.provider_unavailable"
	IssueHistoryUnavailable IssueCode = "data.history_unavailable"
	IssueBatteryNoCapacity  IssueCode = "config.battery_zero_capacity"
	IssueWaterHeaterNoPower IssueCode = "config.water_heater_zero_power"
	IssueSolarNoCapacity    IssueCode = "config.solar_zero_capacity"
	IssueInfeasible         IssueCode = "solver.infeasible"
	IssueSolverFailure      IssueCode = "solver.failed"
	IssueRelaxed            IssueCode = "solver.soft_constraint_relaxed"
	IssueWaterQuotaRelaxed  IssueCode = "solver.water_quota_relaxed"
	IssueSuboptimal         IssueCode = "solver.time_cap_suboptimal"
	IssuePlannerBusy        IssueCode = "planner.busy"
	IssuePersistFailed      IssueCode = "persist.failed"
)

type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

type Issue struct {
	Code     IssueCode `json:"code"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
}

// RunResult is the structured outcome handed to health/observability
// collaborators. Errors never escape as panics; they end up here.
type RunResult struct {
	Status         RunStatus `json:"status"`
	Issues         []Issue   `json:"issues"`
	ObjectiveValue float64   `json:"objective_value"`
	SolveTimeMs    float64   `json:"solve_time_ms"`
	PlannedAt      time.Time `json:"planned_at"`
	SlotCount      int       `json:"slot_count"`
}

// AddIssue appends an issue and escalates the overall status.
func (r *RunResult) AddIssue(code IssueCode, severity Severity, message string) {
	r.Issues = append(r.Issues, Issue{Code: code, Severity: severity, Message: message})
	switch severity {
	case SeverityError:
		r.Status = RunStatusError
	case SeverityWarning:
		if r.Status != RunStatusError {
			r.Status = RunStatusWarning
		}
	}
}
