package graph

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync/atomic"
	"time"
)

// RootName is the name of the synthetic root every generated graph hangs
// from.
const RootName = "GLOBAL"

// Source produces a complete topology graph. The synthetic Generator is
// one implementation; a live inventory feed would be another.
type Source interface {
	Generate(ctx context.Context) (*TopologyGraph, error)
}

// nodeSeq makes generated ids unique within the process.
var nodeSeq atomic.Uint64

func nextID(t NodeType) string {
	return fmt.Sprintf("%s_%d", t, nodeSeq.Add(1))
}

// ---------------------------------------------------------------------------
// Fixed geography
// ---------------------------------------------------------------------------

type countryDef struct {
	name    string
	lat     float64
	lng     float64
	regions []string
}

var countries = []countryDef{
	{name: "Germany", lat: 51.17, lng: 10.45, regions: []string{"Bavaria", "Berlin", "Hesse"}},
	{name: "France", lat: 46.60, lng: 2.21, regions: []string{"Ile-de-France", "Occitanie"}},
	{name: "Spain", lat: 40.46, lng: -3.75, regions: []string{"Catalonia", "Madrid", "Andalusia"}},
	{name: "Italy", lat: 41.87, lng: 12.57, regions: []string{"Lombardy", "Lazio"}},
}

// CountryCount returns the number of countries every generated graph has.
func CountryCount() int { return len(countries) }

// RegionCount returns the total number of regions across all countries.
func RegionCount() int {
	total := 0
	for _, c := range countries {
		total += len(c.regions)
	}
	return total
}

var vendors = []Vendor{VendorNokia, VendorEricsson, VendorHuawei, VendorZTE}

var technologies = []Technology{Tech2G, Tech3G, Tech4G, Tech5G, TechTransport, TechIP, TechPower, TechOptical, TechMicrowave}

var (
	healthWeights = []struct {
		state  HealthState
		weight int
	}{
		{HealthHealthy, 70},
		{HealthDegraded, 15},
		{HealthDown, 5},
		{HealthOffline, 5},
		{HealthUnknown, 5},
	}
	modelsByVendor = map[Vendor][]string{
		VendorNokia:    {"AirScale", "FlexiZone", "7750 SR"},
		VendorEricsson: {"RBS 6000", "Baseband 6630", "Router 6675"},
		VendorHuawei:   {"BBU5900", "AAU5613", "NE40E"},
		VendorZTE:      {"ZXSDR B8200", "ZXRAN A9611", "ZXCTN 6180"},
	}
)

// ---------------------------------------------------------------------------
// GeneratorConfig
// ---------------------------------------------------------------------------

// GeneratorConfig controls the fan-out below the fixed country/region
// levels and the random seed for content. Every fan-out must be at least
// one so that each non-leaf node has a child.
type GeneratorConfig struct {
	Seed              int64 `yaml:"seed" json:"seed"`
	ClustersPerRegion int   `yaml:"clusters_per_region" json:"clusters_per_region" validate:"min=1,max=50"`
	SitesPerCluster   int   `yaml:"sites_per_cluster" json:"sites_per_cluster" validate:"min=1,max=50"`
	NodesPerSite      int   `yaml:"nodes_per_site" json:"nodes_per_site" validate:"min=1,max=20"`
	RacksPerNode      int   `yaml:"racks_per_node" json:"racks_per_node" validate:"min=1,max=10"`
	BoardsPerRack     int   `yaml:"boards_per_rack" json:"boards_per_rack" validate:"min=1,max=20"`
	RRUsPerBoard      int   `yaml:"rrus_per_board" json:"rrus_per_board" validate:"min=1,max=12"`
	PortsPerRRU       int   `yaml:"ports_per_rru" json:"ports_per_rru" validate:"min=1,max=8"`
	CellsPerPort      int   `yaml:"cells_per_port" json:"cells_per_port" validate:"min=1,max=6"`
}

// DefaultGeneratorConfig returns the fan-outs used when nothing else is
// configured. A zero seed means "seed from the clock".
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		ClustersPerRegion: 2,
		SitesPerCluster:   2,
		NodesPerSite:      2,
		RacksPerNode:      1,
		BoardsPerRack:     2,
		RRUsPerBoard:      2,
		PortsPerRRU:       2,
		CellsPerPort:      2,
	}
}

// ExpectedNodeCount returns the exact number of nodes Generate produces
// for cfg.
func (cfg GeneratorConfig) ExpectedNodeCount() int {
	total := 1 + len(countries)
	perLevel := RegionCount()
	total += perLevel
	for _, f := range cfg.fanouts() {
		perLevel *= f
		total += perLevel
	}
	return total
}

func (cfg GeneratorConfig) fanouts() []int {
	return []int{
		cfg.ClustersPerRegion,
		cfg.SitesPerCluster,
		cfg.NodesPerSite,
		cfg.RacksPerNode,
		cfg.BoardsPerRack,
		cfg.RRUsPerBoard,
		cfg.PortsPerRRU,
		cfg.CellsPerPort,
	}
}

func (cfg *GeneratorConfig) applyDefaults() {
	def := DefaultGeneratorConfig()
	fix := func(v *int, d int) {
		if *v < 1 {
			*v = d
		}
	}
	fix(&cfg.ClustersPerRegion, def.ClustersPerRegion)
	fix(&cfg.SitesPerCluster, def.SitesPerCluster)
	fix(&cfg.NodesPerSite, def.NodesPerSite)
	fix(&cfg.RacksPerNode, def.RacksPerNode)
	fix(&cfg.BoardsPerRack, def.BoardsPerRack)
	fix(&cfg.RRUsPerBoard, def.RRUsPerBoard)
	fix(&cfg.PortsPerRRU, def.PortsPerRRU)
	fix(&cfg.CellsPerPort, def.CellsPerPort)
}

// ---------------------------------------------------------------------------
// Generator
// ---------------------------------------------------------------------------

// Generator builds synthetic topology graphs. The shape is fully
// determined by the config; health, alarms, KPIs, vendors and positions
// are drawn from the seeded random source.
type Generator struct {
	cfg GeneratorConfig
	rng *rand.Rand
	now time.Time
}

// NewGenerator returns a Generator for cfg. Fan-outs below one are
// replaced by the defaults.
func NewGenerator(cfg GeneratorConfig) *Generator {
	cfg.applyDefaults()
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{
		cfg: cfg,
		rng: rand.New(rand.NewSource(seed)),
	}
}

// GenerateGraph builds a graph with the default configuration.
func GenerateGraph() *TopologyGraph {
	g, _ := NewGenerator(DefaultGeneratorConfig()).Generate(context.Background())
	return g
}

// Generate builds a complete graph. It only fails when ctx is cancelled.
func (gen *Generator) Generate(ctx context.Context) (*TopologyGraph, error) {
	gen.now = time.Now().UTC()
	g := NewTopologyGraph()

	root := gen.newNode(NodeTypeGlobal, RootName, nil)
	gen.mustAdd(g, root)

	for _, c := range countries {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("graph: generate: %w", err)
		}
		country := gen.newNode(NodeTypeCountry, c.name, root)
		country.Country = c.name
		country.Location = &GeoPoint{Lat: c.lat, Lng: c.lng}
		gen.mustAdd(g, country)

		for _, r := range c.regions {
			region := gen.newNode(NodeTypeRegion, r, country)
			region.Region = r
			region.Location = gen.jitter(country.Location, 2.0)
			gen.mustAdd(g, region)
			gen.buildRegion(g, region)
		}
	}
	return g, nil
}

func (gen *Generator) buildRegion(g *TopologyGraph, region *TopologyNode) {
	for ci := 0; ci < gen.cfg.ClustersPerRegion; ci++ {
		cluster := gen.newNode(NodeTypeCluster, fmt.Sprintf("CL%02d", ci+1), region)
		cluster.Location = gen.jitter(region.Location, 0.5)
		gen.mustAdd(g, cluster)

		var siteHubs []*TopologyNode
		for si := 0; si < gen.cfg.SitesPerCluster; si++ {
			site := gen.newNode(NodeTypeSite, fmt.Sprintf("SITE%02d", si+1), cluster)
			site.Location = gen.jitter(cluster.Location, 0.2)
			site.Location.Altitude = math.Round(gen.between(5, 900))
			site.Capacity = gen.capacity(20, 120, "kW")
			gen.mustAdd(g, site)

			hub := gen.buildSite(g, site)
			siteHubs = append(siteHubs, hub)
		}
		linkBackupRing(siteHubs)
	}
}

// buildSite creates the network elements of a site and returns the first
// one, which acts as the site's transport hub.
func (gen *Generator) buildSite(g *TopologyGraph, site *TopologyNode) *TopologyNode {
	var elements []*TopologyNode
	for ni := 0; ni < gen.cfg.NodesPerSite; ni++ {
		vendor := vendors[gen.rng.Intn(len(vendors))]
		tech := technologies[gen.rng.Intn(len(technologies))]
		if ni == 0 {
			tech = TechTransport
		}

		elem := gen.newNode(NodeTypeNode, fmt.Sprintf("NODE%02d", ni+1), site)
		elem.Location = gen.jitter(site.Location, 0.001)
		gen.equip(elem, vendor, tech)
		elem.Capacity = gen.capacity(1, 100, "Gbps")
		gen.mustAdd(g, elem)
		elements = append(elements, elem)

		gen.buildRacks(g, elem)
	}

	hub := elements[0]
	for _, other := range elements[1:] {
		impact := ImpactMajor
		if gen.rng.Intn(3) == 0 {
			impact = ImpactCritical
		}
		hub.Dependencies = append(hub.Dependencies, DependencyLink{
			SourceID: hub.ID, TargetID: other.ID, Type: DependencyDownstream, Impact: impact,
		})
		other.Dependencies = append(other.Dependencies, DependencyLink{
			SourceID: other.ID, TargetID: hub.ID, Type: DependencyUpstream, Impact: impact,
		})
	}
	return hub
}

func (gen *Generator) buildRacks(g *TopologyGraph, elem *TopologyNode) {
	for ri := 0; ri < gen.cfg.RacksPerNode; ri++ {
		rack := gen.newNode(NodeTypeRack, fmt.Sprintf("RACK%02d", ri+1), elem)
		gen.inherit(rack, elem)
		gen.mustAdd(g, rack)

		nextU := 1
		for bi := 0; bi < gen.cfg.BoardsPerRack; bi++ {
			board := gen.newNode(NodeTypeBoard, fmt.Sprintf("BRD%02d", bi+1), rack)
			gen.inherit(board, rack)
			gen.equip(board, elem.Vendor, elem.Technology)
			board.Capacity = gen.capacity(8, 48, "ports")
			board.RackPosition, nextU = gen.rackSlot(nextU, 2)
			gen.mustAdd(g, board)

			for ui := 0; ui < gen.cfg.RRUsPerBoard; ui++ {
				rru := gen.newNode(NodeTypeRRU, fmt.Sprintf("RRU%02d", ui+1), board)
				gen.inherit(rru, board)
				gen.equip(rru, elem.Vendor, elem.Technology)
				rru.RackPosition, nextU = gen.rackSlot(nextU, 1)
				gen.mustAdd(g, rru)

				for pi := 0; pi < gen.cfg.PortsPerRRU; pi++ {
					port := gen.newNode(NodeTypePort, fmt.Sprintf("PORT%02d", pi+1), rru)
					gen.inherit(port, rru)
					port.Capacity = gen.capacity(1000, 25000, "Mbps")
					gen.mustAdd(g, port)

					for ki := 0; ki < gen.cfg.CellsPerPort; ki++ {
						cell := gen.newNode(NodeTypeCell, fmt.Sprintf("CELL%02d", ki+1), port)
						gen.inherit(cell, port)
						gen.mustAdd(g, cell)
					}
				}
			}
		}
	}
}

// linkBackupRing connects consecutive site hubs of a cluster with
// bidirectional backup links.
func linkBackupRing(hubs []*TopologyNode) {
	for i := 0; i+1 < len(hubs); i++ {
		a, b := hubs[i], hubs[i+1]
		a.Dependencies = append(a.Dependencies, DependencyLink{
			SourceID: a.ID, TargetID: b.ID, Type: DependencyBackup, Impact: ImpactMinor, Bidirectional: true,
		})
	}
}

// ---------------------------------------------------------------------------
// Node content
// ---------------------------------------------------------------------------

func (gen *Generator) newNode(t NodeType, name string, parent *TopologyNode) *TopologyNode {
	n := NewNode(nextID(t), t, name)
	if parent != nil {
		n.ParentID = parent.ID
		n.Country = parent.Country
		n.Region = parent.Region
	}
	gen.health(n)
	return n
}

func (gen *Generator) mustAdd(g *TopologyGraph, n *TopologyNode) {
	// The generator only ever adds children of nodes it has already
	// added, with fresh ids, so insertion cannot fail.
	if err := g.AddNode(n); err != nil {
		panic(err)
	}
}

func (gen *Generator) health(n *TopologyNode) {
	pick := gen.rng.Intn(100)
	state := HealthUnknown
	for _, hw := range healthWeights {
		if pick < hw.weight {
			state = hw.state
			break
		}
		pick -= hw.weight
	}
	n.SetHealth(state)
	n.AutomationLocked = gen.rng.Intn(10) == 0

	var critical, major, minor, warning int
	switch state {
	case HealthHealthy:
		warning = gen.rng.Intn(2)
	case HealthDegraded:
		major = gen.rng.Intn(3)
		minor = 1 + gen.rng.Intn(4)
		warning = gen.rng.Intn(5)
	case HealthDown, HealthOffline:
		critical = 1 + gen.rng.Intn(3)
		major = gen.rng.Intn(4)
		minor = gen.rng.Intn(3)
	default:
		minor = gen.rng.Intn(2)
		warning = gen.rng.Intn(3)
	}
	n.AlarmSummary = NewAlarmSummary(critical, major, minor, warning)

	availability := gen.between(99, 100)
	if state != HealthHealthy {
		availability = gen.between(85, 99)
	}
	n.KPISummary = KPISummary{
		Availability: round2(availability),
		DropRate:     round2(gen.between(0, 2)),
		Throughput:   round2(gen.between(0, 1000)),
		Latency:      round2(gen.between(1, 50)),
		Utilization:  round2(gen.between(0, 100)),
		LastUpdate:   gen.now,
	}

	changed := gen.now.Add(-time.Duration(gen.rng.Intn(72*3600)) * time.Second)
	n.LastStateChange = changed
	n.LastUpdate = gen.now
}

func (gen *Generator) equip(n *TopologyNode, vendor Vendor, tech Technology) {
	n.Vendor = vendor
	n.Technology = tech
	models := modelsByVendor[vendor]
	n.Model = models[gen.rng.Intn(len(models))]
	n.SerialNumber = fmt.Sprintf("%s-%08X", vendor[:2], gen.rng.Uint32())
	n.Firmware = fmt.Sprintf("%d.%d.%d", 18+gen.rng.Intn(6), gen.rng.Intn(10), gen.rng.Intn(20))
}

func (gen *Generator) inherit(n, parent *TopologyNode) {
	n.Vendor = parent.Vendor
	n.Technology = parent.Technology
	if parent.Location != nil {
		loc := *parent.Location
		n.Location = &loc
	}
}

func (gen *Generator) capacity(min, max float64, unit string) *Capacity {
	total := math.Round(gen.between(min, max))
	return &Capacity{
		TotalCapacity: total,
		UsedCapacity:  round2(total * gen.rng.Float64()),
		Unit:          unit,
	}
}

func (gen *Generator) rackSlot(startU, height int) (*RackPosition, int) {
	return &RackPosition{StartU: startU, EndU: startU + height - 1}, startU + height
}

func (gen *Generator) jitter(p *GeoPoint, spread float64) *GeoPoint {
	return &GeoPoint{
		Lat: p.Lat + (gen.rng.Float64()*2-1)*spread,
		Lng: p.Lng + (gen.rng.Float64()*2-1)*spread,
	}
}

func (gen *Generator) between(min, max float64) float64 {
	return min + gen.rng.Float64()*(max-min)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
