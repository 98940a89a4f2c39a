package graph

import (
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Node types
// ---------------------------------------------------------------------------

// NodeType is the inventory level a node lives on. The declared order is
// the containment order, from the synthetic global root down to cells.
type NodeType string

const (
	NodeTypeGlobal  NodeType = "global"
	NodeTypeCountry NodeType = "country"
	NodeTypeRegion  NodeType = "region"
	NodeTypeCluster NodeType = "cluster"
	NodeTypeSite    NodeType = "site"
	NodeTypeNode    NodeType = "node"
	NodeTypeRack    NodeType = "rack"
	NodeTypeBoard   NodeType = "board"
	NodeTypeRRU     NodeType = "rru"
	NodeTypePort    NodeType = "port"
	NodeTypeCell    NodeType = "cell"
)

// Hierarchy lists every NodeType ordered by depth.
var Hierarchy = []NodeType{
	NodeTypeGlobal,
	NodeTypeCountry,
	NodeTypeRegion,
	NodeTypeCluster,
	NodeTypeSite,
	NodeTypeNode,
	NodeTypeRack,
	NodeTypeBoard,
	NodeTypeRRU,
	NodeTypePort,
	NodeTypeCell,
}

// Level returns the depth of t in the hierarchy (global = 0), or -1 for an
// unknown type.
func (t NodeType) Level() int {
	for i, h := range Hierarchy {
		if h == t {
			return i
		}
	}
	return -1
}

// ChildType returns the type one level below t.
func (t NodeType) ChildType() (NodeType, bool) {
	lvl := t.Level()
	if lvl < 0 || lvl >= len(Hierarchy)-1 {
		return "", false
	}
	return Hierarchy[lvl+1], true
}

// IsRackContained reports whether nodes of this type occupy rack units.
func (t NodeType) IsRackContained() bool {
	return t == NodeTypeBoard || t == NodeTypeRRU
}

// ---------------------------------------------------------------------------
// Closed enumerations
// ---------------------------------------------------------------------------

// HealthState is the operational health of a single node. It is never
// rolled up from children.
type HealthState string

const (
	HealthHealthy  HealthState = "healthy"
	HealthDegraded HealthState = "degraded"
	HealthDown     HealthState = "down"
	HealthOffline  HealthState = "offline"
	HealthUnknown  HealthState = "unknown"
)

// HealthStates lists every HealthState.
var HealthStates = []HealthState{HealthHealthy, HealthDegraded, HealthDown, HealthOffline, HealthUnknown}

// Vendor is the equipment manufacturer.
type Vendor string

const (
	VendorNokia    Vendor = "Nokia"
	VendorEricsson Vendor = "Ericsson"
	VendorHuawei   Vendor = "Huawei"
	VendorZTE      Vendor = "ZTE"
	VendorUnknown  Vendor = "Unknown"
)

// Technology is the network technology a node serves.
type Technology string

const (
	Tech2G        Technology = "2G"
	Tech3G        Technology = "3G"
	Tech4G        Technology = "4G"
	Tech5G        Technology = "5G"
	TechTransport Technology = "Transport"
	TechIP        Technology = "IP"
	TechPower     Technology = "Power"
	TechOptical   Technology = "Optical"
	TechMicrowave Technology = "Microwave"
)

// ---------------------------------------------------------------------------
// Supporting types
// ---------------------------------------------------------------------------

// GeoPoint is a WGS84 position.
type GeoPoint struct {
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Altitude float64 `json:"altitude,omitempty"`
}

// ViewportBounds is a geographic rectangle as reported by the map view.
// Rectangles crossing the antimeridian are not supported.
type ViewportBounds struct {
	North float64 `json:"north" validate:"gte=-90,lte=90,gtefield=South"`
	South float64 `json:"south" validate:"gte=-90,lte=90"`
	East  float64 `json:"east" validate:"gte=-180,lte=180,gtefield=West"`
	West  float64 `json:"west" validate:"gte=-180,lte=180"`
}

// Contains reports whether p lies inside b (edges inclusive).
func (b ViewportBounds) Contains(p GeoPoint) bool {
	return p.Lat <= b.North && p.Lat >= b.South && p.Lng <= b.East && p.Lng >= b.West
}

// AlarmSummary counts active alarms by severity. Total is always the sum of
// the four severities; build values with NewAlarmSummary.
type AlarmSummary struct {
	Critical int `json:"critical"`
	Major    int `json:"major"`
	Minor    int `json:"minor"`
	Warning  int `json:"warning"`
	Total    int `json:"total"`
}

// NewAlarmSummary returns an AlarmSummary with Total filled in.
func NewAlarmSummary(critical, major, minor, warning int) AlarmSummary {
	return AlarmSummary{
		Critical: critical,
		Major:    major,
		Minor:    minor,
		Warning:  warning,
		Total:    critical + major + minor + warning,
	}
}

// Consistent reports whether Total matches the severity counts.
func (a AlarmSummary) Consistent() bool {
	return a.Total == a.Critical+a.Major+a.Minor+a.Warning
}

// KPISummary holds the latest key performance indicators of a node.
type KPISummary struct {
	Availability float64   `json:"availability"` // percent
	DropRate     float64   `json:"drop_rate"`
	Throughput   float64   `json:"throughput"`
	Latency      float64   `json:"latency_ms"`
	Utilization  float64   `json:"utilization"` // percent
	LastUpdate   time.Time `json:"last_update"`
}

// Capacity describes how much of a resource a node has and uses.
// UsedCapacity is expected to stay at or below TotalCapacity.
type Capacity struct {
	TotalCapacity float64 `json:"total_capacity"`
	UsedCapacity  float64 `json:"used_capacity"`
	Unit          string  `json:"unit"`
}

// RackPosition is the unit span a rack-contained element occupies.
type RackPosition struct {
	StartU int `json:"start_u"`
	EndU   int `json:"end_u"`
}

// HealthSnapshot is one entry in a node's state history.
type HealthSnapshot struct {
	State     HealthState  `json:"state"`
	Alarms    AlarmSummary `json:"alarms"`
	Timestamp time.Time    `json:"timestamp"`
}

// ---------------------------------------------------------------------------
// TopologyNode
// ---------------------------------------------------------------------------

// TopologyNode is one inventory element at any hierarchy level.
type TopologyNode struct {
	ID          string   `json:"id"`
	GlobalID    string   `json:"global_id"`
	Type        NodeType `json:"type"`
	Name        string   `json:"name"`
	ParentID    string   `json:"parent_id,omitempty"`
	ChildrenIDs []string `json:"children_ids"`

	Location *GeoPoint `json:"location,omitempty"`
	Country  string    `json:"country,omitempty"`
	Region   string    `json:"region,omitempty"`

	Vendor       Vendor     `json:"vendor,omitempty"`
	Technology   Technology `json:"technology,omitempty"`
	Model        string     `json:"model,omitempty"`
	SerialNumber string     `json:"serial_number,omitempty"`
	Firmware     string     `json:"firmware,omitempty"`

	HealthState  HealthState  `json:"health_state"`
	AlarmSummary AlarmSummary `json:"alarm_summary"`
	KPISummary   KPISummary   `json:"kpi_summary"`
	Capacity     *Capacity    `json:"capacity,omitempty"`

	Dependencies []DependencyLink `json:"dependencies,omitempty"`

	AutomationLocked   bool `json:"automation_locked"`
	AutomationEligible bool `json:"automation_eligible"`

	LastStateChange time.Time        `json:"last_state_change"`
	LastUpdate      time.Time        `json:"last_update"`
	StateHistory    []HealthSnapshot `json:"state_history"`

	IsAggregated    bool          `json:"is_aggregated,omitempty"`
	AggregatedCount int           `json:"aggregated_count,omitempty"`
	RackPosition    *RackPosition `json:"rack_position,omitempty"`
}

// NewNode creates a TopologyNode of the given type and name in the
// unknown health state. If id is empty a new UUID v4 is generated.
func NewNode(id string, nodeType NodeType, name string) *TopologyNode {
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()
	return &TopologyNode{
		ID:              id,
		Type:            nodeType,
		Name:            name,
		ChildrenIDs:     []string{},
		HealthState:     HealthUnknown,
		LastStateChange: now,
		LastUpdate:      now,
		StateHistory:    []HealthSnapshot{},
	}
}

// SetHealth sets the health state and keeps AutomationEligible in step.
func (n *TopologyNode) SetHealth(state HealthState) {
	n.HealthState = state
	n.AutomationEligible = state == HealthHealthy
}

// HasAlarms returns true when the node carries at least one active alarm.
func (n *TopologyNode) HasAlarms() bool {
	return n.AlarmSummary.Total > 0
}

// IsLeaf returns true when the node has no children.
func (n *TopologyNode) IsLeaf() bool {
	return len(n.ChildrenIDs) == 0
}

// Clone returns a copy of n that shares no slices or pointers with it.
func (n *TopologyNode) Clone() *TopologyNode {
	cp := *n
	cp.ChildrenIDs = append([]string{}, n.ChildrenIDs...)
	cp.Dependencies = append([]DependencyLink(nil), n.Dependencies...)
	cp.StateHistory = append([]HealthSnapshot{}, n.StateHistory...)
	if n.Location != nil {
		loc := *n.Location
		cp.Location = &loc
	}
	if n.Capacity != nil {
		c := *n.Capacity
		cp.Capacity = &c
	}
	if n.RackPosition != nil {
		rp := *n.RackPosition
		cp.RackPosition = &rp
	}
	return &cp
}
