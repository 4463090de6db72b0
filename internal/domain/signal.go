package domain

import (
	"strings"
	"time"
)

// Signal is the classified view of a trade opportunity before risk planning.
type Signal struct {
	Symbol        string    `json:"symbol"`
	Direction     Direction `json:"direction"`
	Confidence    float64   `json:"confidence"` // 0-100
	Regime        Regime    `json:"regime"`
	EntryType     EntryType `json:"entry_type"`
	HTFAligned    bool      `json:"htf_aligned"`
	TrendStrength float64   `json:"trend_strength"`
	Reasoning     []string  `json:"reasoning"`
	CreatedAt     time.Time `json:"created_at"`
}

// Summary joins the reasoning fragments.
func (s Signal) Summary() string {
	return strings.Join(s.Reasoning, " | ")
}

// EntrySetup is the output of the entry pattern classifier.
type EntrySetup struct {
	Type          EntryType `json:"type"`
	UseLimitOrder bool      `json:"use_limit_order"`
	EntryPrice    float64   `json:"entry_price"`
	Reason        string    `json:"reason"`
}
