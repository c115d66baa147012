package models

// Requests for the HTTP API. Defined in domain for consistency and reuse.

type PropagateRequest struct {
	MaxIterations int `query:"max_iterations" json:"max_iterations" default:"0" validate:"gte=0,lte=10000"`
}

type NormalizeRequest struct {
	MaxScore float64 `query:"max_score" json:"max_score" default:"100" validate:"gt=0"`
}

type RecomputeRequest struct {
	MaxIterations int `query:"max_iterations" json:"max_iterations" default:"0" validate:"gte=0,lte=10000"`
}

// AcquisitionRequest.Percent is a pointer so an explicit 0 passes
// `required`. There is no default ownership.
type AcquisitionRequest struct {
	AcquirerID    string   `json:"acquirer_id" validate:"required"`
	TargetID      string   `json:"target_id" validate:"required,nefield=AcquirerID"`
	Percent       *float64 `json:"percent" validate:"required,gte=0,lte=1"`
	ReportRemoved bool     `json:"report_removed"`
}

type DivestitureRequest struct {
	OwnerKind     string `json:"owner_kind" default:"company" validate:"oneof=company blockholder"`
	OwnerID       string `json:"owner_id" validate:"required"`
	TargetID      string `json:"target_id" validate:"required"`
	ReportRemoved bool   `json:"report_removed"`
}

type RiskEventRequest struct {
	Factor        string   `json:"factor" validate:"required"`
	Multiplier    *float64 `json:"multiplier" validate:"required,gte=0"`
	CompanyID     string   `json:"company_id"`
	Sector        string   `json:"sector"`
	Location      string   `json:"location"`
	Scope         string   `json:"scope" validate:"omitempty,oneof=all filtered"`
	ReportRemoved bool     `json:"report_removed"`
}

// SectorConcentrationRequest.Threshold is nil when the caller wants the
// configured threshold.
type SectorConcentrationRequest struct {
	Threshold *float64 `query:"threshold" json:"threshold" validate:"omitempty,gte=0,lte=1"`
}

type CriticalNodesRequest struct {
	TopN int `query:"top_n" json:"top_n" default:"0" validate:"gte=0,lte=1000"`
}

type TopRisksRequest struct {
	Kind string `query:"kind" json:"kind" default:"company" validate:"oneof=company blockholder"`
	N    int    `query:"n" json:"n" default:"10" validate:"gte=1,lte=1000"`
}

type RiskFactorExposureRequest struct {
	N int `query:"n" json:"n" default:"15" validate:"gte=1,lte=1000"`
}

type NeighborhoodRequest struct {
	Kind  string `query:"kind" json:"kind" default:"company" validate:"oneof=company blockholder"`
	ID    string `query:"id" json:"id" validate:"required"`
	Depth int    `query:"depth" json:"depth" default:"0" validate:"gte=0,lte=10"`
}

// AcquisitionParams maps the request onto scenario parameters.
func (r AcquisitionRequest) Params() AcquisitionParams {
	p := AcquisitionParams{AcquirerID: r.AcquirerID, TargetID: r.TargetID}
	if r.Percent != nil {
		p.Percent = *r.Percent
	}
	return p
}

// ThresholdOrDefault returns -1, the engine's "configured threshold", when
// none was sent.
func (r SectorConcentrationRequest) ThresholdOrDefault() float64 {
	if r.Threshold == nil {
		return -1
	}
	return *r.Threshold
}

func (r DivestitureRequest) Params() DivestitureParams {
	kind, _ := ParseOwnerKind(r.OwnerKind)
	return DivestitureParams{OwnerKind: kind, OwnerID: r.OwnerID, TargetID: r.TargetID}
}

func (r RiskEventRequest) Params() RiskEventParams {
	p := RiskEventParams{
		Factor: r.Factor,
		Filter: ExposureFilter{CompanyID: r.CompanyID, Sector: r.Sector, Location: r.Location},
		Scope:  RiskEventScope(r.Scope),
	}
	if r.Multiplier != nil {
		p.Multiplier = *r.Multiplier
	}
	return p
}
