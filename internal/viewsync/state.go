package viewsync

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/vyuha/topoview/internal/graph"
)

// ErrInvalidFilter is returned when a filter or restored state carries a
// value outside the closed enumerations.
var ErrInvalidFilter = errors.New("viewsync: invalid filter")

// ErrInvalidOptions is returned for load options that cannot be honoured.
var ErrInvalidOptions = errors.New("viewsync: invalid load options")

var validate = validator.New()

// ---------------------------------------------------------------------------
// IDSet
// ---------------------------------------------------------------------------

// IDSet is a set of node ids. It encodes as a sorted JSON array.
type IDSet map[string]struct{}

// NewIDSet returns a set holding ids.
func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s IDSet) Add(id string) { s[id] = struct{}{} }

func (s IDSet) Remove(id string) { delete(s, id) }

func (s IDSet) Len() int { return len(s) }

// Sorted returns the members in lexical order.
func (s IDSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s IDSet) Clone() IDSet {
	cp := make(IDSet, len(s))
	for id := range s {
		cp[id] = struct{}{}
	}
	return cp
}

func (s IDSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *IDSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewIDSet(ids...)
	return nil
}

// ---------------------------------------------------------------------------
// Filters
// ---------------------------------------------------------------------------

// ViewFilters is the active filter set. Empty lists and false flags place
// no constraint; everything that is set must match (AND across fields).
type ViewFilters struct {
	HealthStates     []graph.HealthState `json:"health_states" validate:"dive,oneof=healthy degraded down offline unknown"`
	Vendors          []graph.Vendor      `json:"vendors" validate:"dive,oneof=Nokia Ericsson Huawei ZTE Unknown"`
	Technologies     []graph.Technology  `json:"technologies" validate:"dive,oneof=2G 3G 4G 5G Transport IP Power Optical Microwave"`
	HasAlarms        bool                `json:"has_alarms"`
	AutomationLocked bool                `json:"automation_locked"`
}

// Validate checks every list entry against its enumeration.
func (f ViewFilters) Validate() error {
	if err := validate.Struct(f); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	return nil
}

func (f ViewFilters) clone() ViewFilters {
	return ViewFilters{
		HealthStates:     append([]graph.HealthState{}, f.HealthStates...),
		Vendors:          append([]graph.Vendor{}, f.Vendors...),
		Technologies:     append([]graph.Technology{}, f.Technologies...),
		HasAlarms:        f.HasAlarms,
		AutomationLocked: f.AutomationLocked,
	}
}

// FilterPatch is a partial filter update. Nil fields keep the current
// value; a non-nil empty list clears that constraint.
type FilterPatch struct {
	HealthStates     *[]graph.HealthState `json:"health_states,omitempty"`
	Vendors          *[]graph.Vendor      `json:"vendors,omitempty"`
	Technologies     *[]graph.Technology  `json:"technologies,omitempty"`
	HasAlarms        *bool                `json:"has_alarms,omitempty"`
	AutomationLocked *bool                `json:"automation_locked,omitempty"`
}

// Merge returns f with the set fields of p applied.
func (f ViewFilters) Merge(p FilterPatch) ViewFilters {
	out := f.clone()
	if p.HealthStates != nil {
		out.HealthStates = append([]graph.HealthState{}, (*p.HealthStates)...)
	}
	if p.Vendors != nil {
		out.Vendors = append([]graph.Vendor{}, (*p.Vendors)...)
	}
	if p.Technologies != nil {
		out.Technologies = append([]graph.Technology{}, (*p.Technologies)...)
	}
	if p.HasAlarms != nil {
		out.HasAlarms = *p.HasAlarms
	}
	if p.AutomationLocked != nil {
		out.AutomationLocked = *p.AutomationLocked
	}
	return out
}

// MatchesFilters reports whether n passes every active predicate in f.
func MatchesFilters(n *graph.TopologyNode, f ViewFilters) bool {
	if n == nil {
		return false
	}
	if len(f.HealthStates) > 0 && !contains(f.HealthStates, n.HealthState) {
		return false
	}
	if len(f.Vendors) > 0 && !contains(f.Vendors, n.Vendor) {
		return false
	}
	if len(f.Technologies) > 0 && !contains(f.Technologies, n.Technology) {
		return false
	}
	if f.HasAlarms && !n.HasAlarms() {
		return false
	}
	if f.AutomationLocked && !n.AutomationLocked {
		return false
	}
	return true
}

func contains[T comparable](list []T, v T) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// ViewSyncState
// ---------------------------------------------------------------------------

// DefaultZoomLevel is the zoom level of a fresh service.
const DefaultZoomLevel = 1.0

// ViewSyncState is the per-session view state every renderer reads.
type ViewSyncState struct {
	SelectedNodeID  string                `json:"selected_node_id"`
	ExpandedNodeIDs IDSet                 `json:"expanded_node_ids"`
	VisibleNodeIDs  IDSet                 `json:"visible_node_ids"`
	ZoomLevel       float64               `json:"zoom_level"`
	ViewportBounds  *graph.ViewportBounds `json:"viewport_bounds,omitempty"`
	Filters         ViewFilters           `json:"filters"`
}

// NewViewSyncState returns the state of a fresh session.
func NewViewSyncState() ViewSyncState {
	return ViewSyncState{
		ExpandedNodeIDs: NewIDSet(),
		VisibleNodeIDs:  NewIDSet(),
		ZoomLevel:       DefaultZoomLevel,
		Filters:         ViewFilters{}.clone(),
	}
}

// Clone returns a copy that shares nothing with s.
func (s ViewSyncState) Clone() ViewSyncState {
	cp := s
	cp.ExpandedNodeIDs = s.ExpandedNodeIDs.Clone()
	cp.VisibleNodeIDs = s.VisibleNodeIDs.Clone()
	if s.ViewportBounds != nil {
		b := *s.ViewportBounds
		cp.ViewportBounds = &b
	}
	cp.Filters = s.Filters.clone()
	return cp
}

func (s *ViewSyncState) normalize() {
	if s.ExpandedNodeIDs == nil {
		s.ExpandedNodeIDs = NewIDSet()
	}
	if s.VisibleNodeIDs == nil {
		s.VisibleNodeIDs = NewIDSet()
	}
	if s.ZoomLevel <= 0 {
		s.ZoomLevel = DefaultZoomLevel
	}
	s.Filters = s.Filters.clone()
}

// ---------------------------------------------------------------------------
// LoadOptions
// ---------------------------------------------------------------------------

// LoadOptions controls progressive loading.
type LoadOptions struct {
	MaxNodesPerBatch      int           `json:"max_nodes_per_batch" yaml:"max_nodes_per_batch" validate:"min=1,max=10000"`
	BatchDelay            time.Duration `json:"batch_delay" yaml:"batch_delay" validate:"min=0"`
	PrioritizeVisibleArea bool          `json:"prioritize_visible_area" yaml:"prioritize_visible_area"`
}

// DefaultLoadOptions returns 50 nodes per batch, roughly one frame
// between batches, viewport first.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{
		MaxNodesPerBatch:      50,
		BatchDelay:            16 * time.Millisecond,
		PrioritizeVisibleArea: true,
	}
}

// Validate checks o.
func (o LoadOptions) Validate() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	return nil
}
