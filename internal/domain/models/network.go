package models

// NodeKind labels the three node types of the ownership network.
type NodeKind string

const (
	KindCompany     NodeKind = "Company"
	KindBlockholder NodeKind = "Blockholder"
	KindRiskFactor  NodeKind = "RiskFactor"
)

// IsOwner reports whether nodes of this kind may hold OWNS edges.
func (k NodeKind) IsOwner() bool {
	return k == KindCompany || k == KindBlockholder
}

// ParseOwnerKind maps request values ("company", "blockholder", "") to an owner kind.
func ParseOwnerKind(s string) (NodeKind, bool) {
	switch s {
	case "", "company", "Company":
		return KindCompany, true
	case "blockholder", "Blockholder":
		return KindBlockholder, true
	default:
		return "", false
	}
}

// Role is the structural role of a company.
type Role string

const (
	RoleCompany  Role = "company"
	RoleAcquired Role = "acquired"
)

// Company is a listed entity with exposures and owners.
type Company struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Sector         string  `json:"sector,omitempty"`
	Location       string  `json:"location,omitempty"`
	MarketCap      float64 `json:"market_cap"`
	DirectRisk     float64 `json:"direct_risk"`
	TotalRisk      float64 `json:"total_risk"`
	DollarizedRisk float64 `json:"dollarized_risk"`
	NormalizedRisk float64 `json:"normalized_risk,omitempty"`
	Role           Role    `json:"role,omitempty"`
}

// Blockholder owns companies but carries no direct exposure.
type Blockholder struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Type           string  `json:"type,omitempty"`
	TotalRisk      float64 `json:"total_risk"`
	DollarizedRisk float64 `json:"dollarized_risk"`
	NormalizedRisk float64 `json:"normalized_risk,omitempty"`
}

// RiskFactor is keyed by name only.
type RiskFactor struct {
	Name           string  `json:"name"`
	DollarizedRisk float64 `json:"dollarized_risk"`
}

// Ownership is an OWNS edge. OwnerKind defaults to Company when empty.
type Ownership struct {
	OwnerKind NodeKind `json:"owner_kind,omitempty"`
	OwnerID   string   `json:"owner_id"`
	TargetID  string   `json:"target_id"`
	Percent   float64  `json:"percent"`
	Year      int      `json:"year,omitempty"`
}

// Exposure is an EXPOSED_TO edge from a company to a risk factor.
type Exposure struct {
	CompanyID string  `json:"company_id"`
	Factor    string  `json:"factor"`
	Weight    float64 `json:"weight"`
}

// GraphSeed is a full, flat description of a network. It is the JSON fixture
// format of the in-memory store and the export format of graph.Graph.
type GraphSeed struct {
	Companies    []Company     `json:"companies"`
	Blockholders []Blockholder `json:"blockholders"`
	RiskFactors  []RiskFactor  `json:"risk_factors"`
	Ownerships   []Ownership   `json:"ownerships"`
	Exposures    []Exposure    `json:"exposures"`
}
