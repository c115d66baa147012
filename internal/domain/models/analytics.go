package models

// SectorShare is the dollarized risk held by one sector.
type SectorShare struct {
	Sector         string  `json:"sector"`
	DollarizedRisk float64 `json:"dollarized_risk"`
	Share          float64 `json:"share"`
	SharePct       float64 `json:"share_pct"`
	Overexposed    bool    `json:"overexposed"`
}

// SectorConcentration is the sector breakdown of the portfolio.
type SectorConcentration struct {
	Threshold      float64       `json:"threshold"`
	PortfolioTotal float64       `json:"portfolio_total"`
	Herfindahl     float64       `json:"herfindahl"`
	Sectors        []SectorShare `json:"sectors"`
}

// Overexposed returns only the sectors above the threshold.
func (c SectorConcentration) Overexposed() []SectorShare {
	out := make([]SectorShare, 0, len(c.Sectors))
	for _, s := range c.Sectors {
		if s.Overexposed {
			out = append(out, s)
		}
	}
	return out
}

// CriticalNode is a company or blockholder ranked by network degree.
type CriticalNode struct {
	Kind   NodeKind `json:"kind"`
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Degree int      `json:"degree"`
}

// RankedRisk is an entry of a dollarized-risk ranking.
type RankedRisk struct {
	Kind           NodeKind `json:"kind"`
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	DollarizedRisk float64  `json:"dollarized_risk"`
}

// NamedRef pairs an id with its display name.
type NamedRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Catalog lists selectable entities for scenario inputs.
type Catalog struct {
	Companies    []NamedRef `json:"companies"`
	Blockholders []NamedRef `json:"blockholders"`
	RiskFactors  []string   `json:"risk_factors"`
	Sectors      []string   `json:"sectors"`
	Locations    []string   `json:"locations"`
}

// Neighborhood is the ego network around one company or blockholder.
type Neighborhood struct {
	Root       NamedRef    `json:"root"`
	Companies  []NamedRef  `json:"companies"`
	Owners     []NamedRef  `json:"owners"`
	Ownerships []Ownership `json:"ownerships"`
	Exposures  []Exposure  `json:"exposures"`
}
