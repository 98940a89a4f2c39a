package graph

// ---------------------------------------------------------------------------
// Dependency types
// ---------------------------------------------------------------------------

// DependencyType is the direction of a logical dependency between two
// inventory elements.
type DependencyType string

const (
	DependencyUpstream   DependencyType = "upstream"
	DependencyDownstream DependencyType = "downstream"
	DependencyPeer       DependencyType = "peer"
	DependencyBackup     DependencyType = "backup"
)

// ImpactSeverity is how hard a target is hit when the source fails.
type ImpactSeverity string

const (
	ImpactCritical ImpactSeverity = "critical"
	ImpactMajor    ImpactSeverity = "major"
	ImpactMinor    ImpactSeverity = "minor"
	ImpactNone     ImpactSeverity = "none"
)

// ---------------------------------------------------------------------------
// DependencyLink
// ---------------------------------------------------------------------------

// DependencyLink is a logical (non-containment) relationship between two
// nodes. Links are stored on the nodes they involve, not in the graph's
// edge map.
type DependencyLink struct {
	SourceID      string         `json:"source_id"`
	TargetID      string         `json:"target_id"`
	Type          DependencyType `json:"type"`
	Impact        ImpactSeverity `json:"impact"`
	Bidirectional bool           `json:"bidirectional"`
}

// Propagates reports whether a failure of fromID travels along l, and
// returns the node it reaches. Downstream, peer and backup links carry
// failure from source to target; bidirectional links also carry it back.
// Upstream links record what the source depends on and never propagate
// forward.
func (l DependencyLink) Propagates(fromID string) (string, bool) {
	if l.SourceID == fromID && l.Type != DependencyUpstream {
		return l.TargetID, true
	}
	if l.Bidirectional && l.TargetID == fromID {
		return l.SourceID, true
	}
	return "", false
}
