package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ScenarioKind selects one of the three scenario operators.
type ScenarioKind string

const (
	ScenarioAcquisition ScenarioKind = "acquisition"
	ScenarioDivestiture ScenarioKind = "divestiture"
	ScenarioRiskEvent   ScenarioKind = "risk_event"
)

// RiskEventScope makes "apply to every exposed company" an explicit choice.
type RiskEventScope string

const (
	// ScopeAuto derives the scope from the filters: no filters means every exposed company.
	ScopeAuto     RiskEventScope = ""
	ScopeAll      RiskEventScope = "all"
	ScopeFiltered RiskEventScope = "filtered"
)

// AcquisitionParams replaces every owner of TargetID with AcquirerID.
type AcquisitionParams struct {
	AcquirerID string  `json:"acquirer_id" validate:"required"`
	TargetID   string  `json:"target_id" validate:"required"`
	Percent    float64 `json:"percent" validate:"gte=0,lte=1"`
}

// UnmarshalJSON rejects a payload without percent. An explicit 0 is kept.
func (p *AcquisitionParams) UnmarshalJSON(b []byte) error {
	type plain AcquisitionParams
	var raw struct {
		plain
		Percent *float64 `json:"percent"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw.Percent == nil {
		return fmt.Errorf("%w: acquisition percent is required", ErrInvalidScenario)
	}
	*p = AcquisitionParams(raw.plain)
	p.Percent = *raw.Percent
	return nil
}

// DivestitureParams removes a single OWNS edge.
type DivestitureParams struct {
	OwnerKind NodeKind `json:"owner_kind,omitempty"`
	OwnerID   string   `json:"owner_id" validate:"required"`
	TargetID  string   `json:"target_id" validate:"required"`
}

// ExposureFilter narrows a risk event. Empty fields do not restrict.
type ExposureFilter struct {
	CompanyID string `json:"company_id,omitempty"`
	Sector    string `json:"sector,omitempty"`
	Location  string `json:"location,omitempty"`
}

// Empty reports whether no filter dimension is set.
func (f ExposureFilter) Empty() bool {
	return f.CompanyID == "" && f.Sector == "" && f.Location == ""
}

// RiskEventParams scales the weight of matching exposures to Factor.
type RiskEventParams struct {
	Factor     string         `json:"factor" validate:"required"`
	Multiplier float64        `json:"multiplier" validate:"gte=0"`
	Filter     ExposureFilter `json:"filter"`
	Scope      RiskEventScope `json:"scope,omitempty" validate:"omitempty,oneof=all filtered"`
}

// ResolveScope returns the effective scope or ErrInvalidScenario when the
// scope contradicts the filters.
func (p RiskEventParams) ResolveScope() (RiskEventScope, error) {
	switch p.Scope {
	case ScopeAuto:
		if p.Filter.Empty() {
			return ScopeAll, nil
		}
		return ScopeFiltered, nil
	case ScopeAll:
		if !p.Filter.Empty() {
			return "", fmt.Errorf("%w: scope all does not accept filters", ErrInvalidScenario)
		}
		return ScopeAll, nil
	case ScopeFiltered:
		if p.Filter.Empty() {
			return "", fmt.Errorf("%w: scope filtered needs at least one filter", ErrInvalidScenario)
		}
		return ScopeFiltered, nil
	default:
		return "", fmt.Errorf("%w: unknown scope %q", ErrInvalidScenario, p.Scope)
	}
}

// ScenarioRequest is the envelope accepted by the pipeline over HTTP and Kafka.
// Exactly the field matching Kind must be set.
type ScenarioRequest struct {
	Kind        ScenarioKind       `json:"kind" validate:"required,oneof=acquisition divestiture risk_event"`
	Acquisition *AcquisitionParams `json:"acquisition,omitempty" validate:"required_if=Kind acquisition"`
	Divestiture *DivestitureParams `json:"divestiture,omitempty" validate:"required_if=Kind divestiture"`
	RiskEvent   *RiskEventParams   `json:"risk_event,omitempty" validate:"required_if=Kind risk_event"`
	// ReportRemoved asks the diff to list companies that disappeared.
	ReportRemoved bool `json:"report_removed,omitempty"`
}

// Describe renders a short human label for logs.
func (r ScenarioRequest) Describe() string {
	switch r.Kind {
	case ScenarioAcquisition:
		if r.Acquisition != nil {
			return fmt.Sprintf("acquisition %s->%s %.2f", r.Acquisition.AcquirerID, r.Acquisition.TargetID, r.Acquisition.Percent)
		}
	case ScenarioDivestiture:
		if r.Divestiture != nil {
			return fmt.Sprintf("divestiture %s-/->%s", r.Divestiture.OwnerID, r.Divestiture.TargetID)
		}
	case ScenarioRiskEvent:
		if r.RiskEvent != nil {
			return fmt.Sprintf("risk_event %s x%.2f", r.RiskEvent.Factor, r.RiskEvent.Multiplier)
		}
	}
	return string(r.Kind)
}

// PropagationSummary is the externally visible part of a propagation run.
type PropagationSummary struct {
	Iterations       int           `json:"iterations"`
	Converged        bool          `json:"converged"`
	UpdatesPerRound  []int         `json:"updates_per_round"`
	Nodes            int           `json:"nodes"`
	CyclicComponents int           `json:"cyclic_components"`
	SelfLoops        int           `json:"self_loops"`
	Duration         time.Duration `json:"duration_ns"`
}

// ScenarioOutcome is the result of one pipeline run.
type ScenarioOutcome struct {
	RunID        string              `json:"run_id"`
	Kind         ScenarioKind        `json:"kind"`
	Description  string              `json:"description"`
	Applied      bool                `json:"applied"`
	UpdatedEdges int                 `json:"updated_edges"`
	Propagation  *PropagationSummary `json:"propagation,omitempty"`
	Diff         *DiffReport         `json:"diff,omitempty"`
	BeforePath   string              `json:"before_path,omitempty"`
	AfterPath    string              `json:"after_path,omitempty"`
	DiffPath     string              `json:"diff_path,omitempty"`
	StartedAt    time.Time           `json:"started_at"`
	FinishedAt   time.Time           `json:"finished_at"`
}
