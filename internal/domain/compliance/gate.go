// Package compliance decides which transactions need human review before they settle.
// Evaluation is pure: party history is gathered by the caller.
package compliance

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// DefaultThreshold is R$10.000,00 in centavos
const DefaultThreshold int64 = 1_000_000

// PartyHistory summarizes a party's recent marketplace activity
type PartyHistory struct {
	PartyID uuid.UUID `json:"party_id"`
	Role    string    `json:"role"`
	Count   int64     `json:"count"`  // transactions inside the velocity window
	Volume  int64     `json:"volume"` // centavos inside the velocity window
}

// Assessment is the gate verdict
type Assessment struct {
	Flagged bool   `json:"flagged"`
	Reason  string `json:"reason,omitempty"`
	Report  string `json:"report,omitempty"`
}

// Heuristic is a pluggable suspicious-pattern rule
type Heuristic interface {
	Name() string
	Check(value int64, history []PartyHistory) (flagged bool, reason string)
}

// HeuristicFunc adapts a function to Heuristic
type HeuristicFunc struct {
	Label string
	Fn    func(value int64, history []PartyHistory) (bool, string)
}

func (h HeuristicFunc) Name() string { return h.Label }

func (h HeuristicFunc) Check(value int64, history []PartyHistory) (bool, string) {
	return h.Fn(value, history)
}

// VelocityHeuristic flags parties that already closed MaxCount transactions inside the window
type VelocityHeuristic struct {
	MaxCount int64
}

func (v VelocityHeuristic) Name() string { return "velocity" }

func (v VelocityHeuristic) Check(_ int64, history []PartyHistory) (bool, string) {
	for _, h := range history {
		if v.MaxCount > 0 && h.Count >= v.MaxCount {
			return true, fmt.Sprintf("%s %s has %d recent transactions (limit %d)", h.Role, h.PartyID, h.Count, v.MaxCount)
		}
	}
	return false, ""
}

// Gate evaluates transactions against the threshold and heuristics
type Gate struct {
	Threshold  int64
	Heuristics []Heuristic
}

// NewGate builds a gate; a non-positive threshold falls back to DefaultThreshold
func NewGate(threshold int64, heuristics ...Heuristic) *Gate {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Gate{Threshold: threshold, Heuristics: heuristics}
}

// Evaluate returns the verdict for a transaction of value between the given parties.
// Values at or above the threshold are always flagged.
func (g *Gate) Evaluate(value int64, history []PartyHistory) Assessment {
	var reasons []string
	var report strings.Builder

	fmt.Fprintf(&report, "value: %d centavos (threshold %d)\n", value, g.Threshold)
	if value >= g.Threshold {
		reasons = append(reasons, fmt.Sprintf("value %s at or above threshold %s", formatBRL(value), formatBRL(g.Threshold)))
	}
	for _, h := range history {
		fmt.Fprintf(&report, "%s %s: %d transactions, volume %d\n", h.Role, h.PartyID, h.Count, h.Volume)
	}
	for _, rule := range g.Heuristics {
		flagged, reason := rule.Check(value, history)
		status := "pass"
		if flagged {
			status = "flag"
			reasons = append(reasons, reason)
		}
		fmt.Fprintf(&report, "rule %s: %s\n", rule.Name(), status)
	}

	if len(reasons) == 0 {
		return Assessment{Report: report.String()}
	}
	return Assessment{
		Flagged: true,
		Reason:  strings.Join(reasons, "; "),
		Report:  report.String(),
	}
}

func formatBRL(centavos int64) string {
	return fmt.Sprintf("R$%d,%02d", centavos/100, centavos%100)
}
