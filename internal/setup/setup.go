// Package setup orchestrates a complete network plan: completing edge-node
// configuration, carving out the internal address space, ingesting a
// GraphML topology, assigning interface/MAC addresses and client subnets,
// and planning routes between every pair of client nodes. It is the
// coordination hub described by the wider system; all side effects on the
// host are delegated to a Work implementation, and all diagnostics to a Log
// sink.
package setup

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/walexzzy/netmirage/internal/addr"
	"github.com/walexzzy/netmirage/internal/addriter"
	"github.com/walexzzy/netmirage/internal/fragment"
	"github.com/walexzzy/netmirage/internal/graphml"
	"github.com/walexzzy/netmirage/internal/macaddr"
	"github.com/walexzzy/netmirage/internal/routeplan"
)

// NodeID identifies a planned node. It is shared with routeplan so that
// route reconstruction needs no translation layer.
type NodeID = routeplan.NodeID

// Number of MAC addresses consumed per client node and per link,
// respectively: one for each endpoint of the veth pair involved.
const (
	ClientMacs = 2
	LinkMacs   = 2
)

// Error taxonomy. Every fallible Driver operation returns an error wrapping
// exactly one of these sentinels, so callers can classify failures without
// string matching.
var (
	ErrInvalidInput         = errors.New("setup: invalid input")
	ErrExhaustion           = errors.New("setup: address or MAC space exhausted")
	ErrUnderspecified       = errors.New("setup: configuration is underspecified")
	ErrTopologyInconsistent = errors.New("setup: topology is inconsistent")
	ErrExternalFailure      = errors.New("setup: external operation failed")
	ErrBug                  = errors.New("setup: internal invariant violated")
)

// Level is a diagnostic severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelError
)

// Log is a leveled diagnostic sink. PassesThreshold lets callers skip
// formatting expensive messages that would be discarded anyway.
type Log interface {
	Logf(level Level, format string, args ...any)
	PassesThreshold(level Level) bool
}

// Work performs every side-effecting operation on the host that the driver
// itself never does directly. All methods return an error; a non-nil error
// aborts the driver, which still runs Cleanup unless the failing call was
// Init itself.
type Work interface {
	Init() error
	Cleanup() error
	DestroyHosts() (deleted int, err error)

	ResolveRemoteMac(intf string, ip addr.IPv4) (macaddr.Addr, error)
	GetLocalMac(intf string) (macaddr.Addr, error)

	AddRoot(rootA, rootB addr.IPv4) error
	AddEdgeInterface(intf string) (port uint32, err error)
	AddEdgeRoutes(vsubnet addr.Subnet, port uint32, localMac, remoteMac macaddr.Addr) error

	AddHost(id NodeID, ip addr.IPv4, clientMacs []macaddr.Addr, attrs graphml.NodeAttrs, isClient bool) error
	SetSelfLink(id NodeID, attrs graphml.LinkAttrs) error
	AddLink(source, target NodeID, sourceIP, targetIP addr.IPv4, macs []macaddr.Addr, attrs graphml.LinkAttrs) error

	AddClientRoutes(id NodeID, clientMacs []macaddr.Addr, subnet addr.Subnet, edgePort uint32) error
	AddInternalRoutes(prev, next NodeID, prevAddr, nextAddr addr.IPv4, srcClientSubnet, dstClientSubnet addr.Subnet) error

	EnsureScaling(worstCaseLinkCount uint64, nodeCount, clientCount int) error
}

// EdgeNode is one configured edge, a real external host reachable through a
// real interface that owns a virtual client subnet.
type EdgeNode struct {
	IP   addr.IPv4
	Intf string

	IntfSpecified bool

	MACSpecified bool
	MAC          macaddr.Addr

	VSubnetSpecified bool
	VSubnet          addr.Subnet
}

// EdgeNodeDefaults supplies fallback values for edge nodes that don't
// specify their own.
type EdgeNodeDefaults struct {
	IntfSpecified bool
	Intf          string
	GlobalVSubnet addr.Subnet
}

// SetupParams configures a Driver's edge topology.
type SetupParams struct {
	NSPrefix         string
	OVSDir           string
	OVSSchema        string
	SoftMemCap       uint64
	EdgeNodes        []EdgeNode
	EdgeNodeDefaults EdgeNodeDefaults
}

// SetupGraphMLParams configures how the GraphML topology source is read.
type SetupGraphMLParams struct {
	TwoPass    bool
	ClientType *string
	WeightKey  string
}

// Source supplies the GraphML topology. Open must be safely callable twice
// when Seekable is true (two-pass mode reopens the same source); a single
// non-seekable stream (e.g., stdin) can only be used in single-pass mode.
type Source struct {
	Open     func() (io.Reader, error)
	Seekable bool
}

type nodeState struct {
	id           NodeID
	externalID   string
	addr         addr.IPv4
	isClient     bool
	clientMacs   []macaddr.Addr
	clientSubnet addr.Subnet
}

// PlannedNode is a read-only snapshot of one node's planning outcome, for
// inspection after a Driver run completes.
type PlannedNode struct {
	ExternalID   string
	ID           NodeID
	InterfaceIP  addr.IPv4
	IsClient     bool
	ClientSubnet addr.Subnet
	ClientMacs   []macaddr.Addr
}

// Driver coordinates one complete setup run. Construct with NewDriver and
// call Run exactly once; a Driver is not reusable across runs.
type Driver struct {
	params SetupParams
	work   Work
	log    Log

	nodesByExternalID map[string]NodeID
	nodes             []*nodeState

	finishedNodes bool // true once node creation has ended (two-pass transition, or first link seen)
	ignoreNodes   bool // true during two-pass's second pass: nodes are silently dropped
	ignoreEdges   bool // true during two-pass's first pass: edges are silently dropped
	linksStarted  bool // true once the one-time link bookkeeping (routes, scaling) has run

	defaultIsClient bool

	clientNodes    int
	clientsPerEdge float64
	currentEdgeIdx int
	clientIter     *fragment.Iter

	intfIter *addriter.Iter
	macIter  *macaddr.Iter

	routes *routeplan.Planner

	edgePorts []uint32
}

// NewDriver constructs a Driver. params is copied defensively where mutated
// (edge-node completion fills in interfaces, MACs, and synthesized virtual
// subnets in place on a local copy).
func NewDriver(params SetupParams, work Work, log Log) *Driver {
	edgeNodes := make([]EdgeNode, len(params.EdgeNodes))
	copy(edgeNodes, params.EdgeNodes)
	params.EdgeNodes = edgeNodes

	return &Driver{
		params:            params,
		work:              work,
		log:               log,
		nodesByExternalID: make(map[string]NodeID),
		macIter:           macaddr.NewIter(),
	}
}

// Run executes a full setup: completing edge nodes, carving the address
// space, plumbing edge interfaces, ingesting the topology, assigning client
// subnets, and planning routes. Once Work.Init has succeeded, Work.Cleanup
// always runs before Run returns, even on failure.
func (d *Driver) Run(gmlParams SetupGraphMLParams, src Source) (err error) {
	if err = d.work.Init(); err != nil {
		return fmt.Errorf("%w: initializing work: %v", ErrExternalFailure, err)
	}
	defer func() {
		if cerr := d.work.Cleanup(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: cleanup: %v", ErrExternalFailure, cerr)
		}
	}()

	if len(d.params.EdgeNodes) == 0 {
		return fmt.Errorf("%w: no edge nodes configured", ErrUnderspecified)
	}

	if err = d.completeEdgeNodes(); err != nil {
		return err
	}
	if err = d.setupAddressSpace(); err != nil {
		return err
	}
	if err = d.plumbEdges(); err != nil {
		return err
	}

	d.defaultIsClient = gmlParams.ClientType == nil
	gopts := graphml.Options{ClientType: gmlParams.ClientType, WeightKey: gmlParams.WeightKey}

	if gmlParams.TwoPass {
		if !src.Seekable {
			return fmt.Errorf("%w: two-pass mode requires a seekable (file) topology source", ErrUnderspecified)
		}
		d.ignoreEdges = true
		if err = d.parsePass(gopts, src); err != nil {
			return err
		}

		// Pretend we've reached the end of the node section in a sorted
		// file; any further nodes in the second pass are dropped rather
		// than rejected.
		d.finishedNodes = true
		d.ignoreNodes = true
		d.ignoreEdges = false
		if err = d.parsePass(gopts, src); err != nil {
			return err
		}
	} else {
		if err = d.parsePass(gopts, src); err != nil {
			return err
		}
	}

	if err = d.assignClientSubnets(); err != nil {
		return err
	}
	return d.planRoutes()
}

func (d *Driver) parsePass(gopts graphml.Options, src Source) error {
	r, err := src.Open()
	if err != nil {
		return fmt.Errorf("%w: opening topology source: %v", ErrExternalFailure, err)
	}
	reader := graphml.NewReader(gopts, d.onNode, d.onLink)
	err = reader.Parse(r)
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{ErrInvalidInput, ErrExhaustion, ErrUnderspecified, ErrTopologyInconsistent, ErrExternalFailure, ErrBug} {
		if errors.Is(err, sentinel) {
			return err // already classified by a driver callback
		}
	}
	if errors.Is(err, graphml.ErrBadParserState) {
		return fmt.Errorf("%w: %w", ErrBug, err)
	}
	return fmt.Errorf("%w: parsing topology: %w", ErrInvalidInput, err)
}

// PlannedNodes returns a snapshot of every node the driver created, in
// creation order (which is also id order).
func (d *Driver) PlannedNodes() []PlannedNode {
	out := make([]PlannedNode, len(d.nodes))
	for i, st := range d.nodes {
		out[i] = PlannedNode{
			ExternalID:   st.externalID,
			ID:           st.id,
			InterfaceIP:  st.addr,
			IsClient:     st.isClient,
			ClientSubnet: st.clientSubnet,
			ClientMacs:   st.clientMacs,
		}
	}
	return out
}

func (d *Driver) completeEdgeNodes() error {
	var pending []int
	for i := range d.params.EdgeNodes {
		e := &d.params.EdgeNodes[i]
		if !e.IntfSpecified {
			if !d.params.EdgeNodeDefaults.IntfSpecified {
				return fmt.Errorf("%w: edge node %d has no interface and no default is configured", ErrUnderspecified, i)
			}
			e.Intf = d.params.EdgeNodeDefaults.Intf
			e.IntfSpecified = true
		}
		if !e.MACSpecified {
			mac, err := d.work.ResolveRemoteMac(e.Intf, e.IP)
			if err != nil {
				return fmt.Errorf("%w: resolving remote MAC for edge node %d: %v", ErrExternalFailure, i, err)
			}
			e.MAC = mac
			e.MACSpecified = true
		}
		if !e.VSubnetSpecified {
			pending = append(pending, i)
		}
	}

	if len(pending) > 0 {
		it, err := fragment.New(d.params.EdgeNodeDefaults.GlobalVSubnet, uint64(len(pending)))
		if err != nil {
			return fmt.Errorf("%w: fragmenting the global virtual subnet for %d edge nodes: %v", ErrExhaustion, len(pending), err)
		}
		for _, idx := range pending {
			if !it.Next() {
				return fmt.Errorf("%w: ran out of virtual subnet fragments for edge nodes", ErrExhaustion)
			}
			d.params.EdgeNodes[idx].VSubnet = it.Subnet()
			d.params.EdgeNodes[idx].VSubnetSpecified = true
		}
	}
	return nil
}

func (d *Driver) setupAddressSpace() error {
	avoid := make([]addr.Subnet, 0, len(d.params.EdgeNodes)+3)
	avoid = append(avoid, reservedSubnet(8), loopbackSubnet(), broadcastSubnet())
	for _, e := range d.params.EdgeNodes {
		avoid = append(avoid, e.VSubnet)
	}
	everything, _ := addr.NewSubnet(0, 0)
	d.intfIter = addriter.New(everything, false, avoid)

	var rootAddrs [2]addr.IPv4
	for i := 0; i < 2; i++ {
		a, ok := d.intfIter.Next()
		if !ok {
			return fmt.Errorf("%w: edge node subnets fill the unreserved address space; none left for the root namespace", ErrExhaustion)
		}
		rootAddrs[i] = a
	}
	if err := d.work.AddRoot(rootAddrs[0], rootAddrs[1]); err != nil {
		return fmt.Errorf("%w: adding root namespace: %v", ErrExternalFailure, err)
	}
	return nil
}

func reservedSubnet(prefixLen int) addr.Subnet {
	sn, _ := addr.NewSubnet(0, prefixLen) // 0.0.0.0/prefixLen
	return sn
}

func loopbackSubnet() addr.Subnet {
	sn, _ := addr.NewSubnet(addr.IPv4(0x7f000000), 8) // 127.0.0.0/8
	return sn
}

func broadcastSubnet() addr.Subnet {
	sn, _ := addr.NewSubnet(addr.IPv4(0xffffffff), 32) // 255.255.255.255/32
	return sn
}

func (d *Driver) plumbEdges() error {
	d.edgePorts = make([]uint32, len(d.params.EdgeNodes))
	for i := range d.params.EdgeNodes {
		e := &d.params.EdgeNodes[i]

		duplicate := false
		for j := 0; j < i; j++ {
			if d.params.EdgeNodes[j].Intf == e.Intf {
				d.edgePorts[i] = d.edgePorts[j]
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}

		port, err := d.work.AddEdgeInterface(e.Intf)
		if err != nil {
			return fmt.Errorf("%w: adding edge interface %q: %v", ErrExternalFailure, e.Intf, err)
		}
		d.edgePorts[i] = port

		localMac, err := d.work.GetLocalMac(e.Intf)
		if err != nil {
			return fmt.Errorf("%w: resolving local MAC for %q: %v", ErrExternalFailure, e.Intf, err)
		}
		if err := d.work.AddEdgeRoutes(e.VSubnet, port, localMac, e.MAC); err != nil {
			return fmt.Errorf("%w: adding edge routes for %q: %v", ErrExternalFailure, e.Intf, err)
		}
	}
	return nil
}

// stateFor resolves name to a node, creating one (with the next interface
// address) when create is true and the name is not yet known.
func (d *Driver) stateFor(name string, create bool, defaultClient bool) (*nodeState, error) {
	if id, ok := d.nodesByExternalID[name]; ok {
		return d.nodes[id], nil
	}
	if !create {
		return nil, fmt.Errorf("%w: reference to unknown node %q", ErrTopologyInconsistent, name)
	}
	a, ok := d.intfIter.Next()
	if !ok {
		return nil, fmt.Errorf("%w: interface address space exhausted", ErrExhaustion)
	}
	id := NodeID(len(d.nodes))
	st := &nodeState{id: id, externalID: name, addr: a, isClient: defaultClient}
	d.nodes = append(d.nodes, st)
	d.nodesByExternalID[name] = id
	return st, nil
}

func (d *Driver) onNode(n graphml.Node) error {
	if d.ignoreNodes {
		return nil
	}
	if d.finishedNodes {
		return fmt.Errorf("%w: node %q appears after edges have begun; enable two-pass mode if the file is not sorted", ErrTopologyInconsistent, n.ID)
	}

	st, err := d.stateFor(n.ID, true, n.IsClient)
	if err != nil {
		return err
	}
	st.isClient = n.IsClient

	if n.IsClient {
		var macs [ClientMacs]macaddr.Addr
		if !d.macIter.NextBatch(macs[:]) {
			return fmt.Errorf("%w: ran out of MAC addresses creating client node %q", ErrExhaustion, n.ID)
		}
		st.clientMacs = append([]macaddr.Addr(nil), macs[:]...)
		d.clientNodes++
	}

	if d.log.PassesThreshold(LevelDebug) {
		d.log.Logf(LevelDebug, "GraphML node %q assigned identifier %d and IP address %s", n.ID, st.id, st.addr)
	}

	return d.work.AddHost(st.id, st.addr, st.clientMacs, n.Attrs, n.IsClient)
}

func (d *Driver) onLink(l graphml.Link) error {
	if d.ignoreEdges {
		return nil
	}

	if !d.linksStarted {
		d.linksStarted = true
		d.finishedNodes = true

		if d.log.PassesThreshold(LevelInfo) {
			d.log.Logf(LevelInfo, "Host creation complete. Now adding virtual ethernet connections.")
		}
		if d.log.PassesThreshold(LevelDebug) {
			d.log.Logf(LevelDebug, "Encountered %d nodes (%d clients)", len(d.nodes), d.clientNodes)
		}
		if d.clientNodes < len(d.params.EdgeNodes) {
			return fmt.Errorf("%w: fewer client nodes in the topology (%d) than edge nodes (%d)", ErrTopologyInconsistent, d.clientNodes, len(d.params.EdgeNodes))
		}

		worstCase := uint64(len(d.nodes)) * uint64(len(d.nodes))
		if err := d.work.EnsureScaling(worstCase, len(d.nodes), d.clientNodes); err != nil {
			return fmt.Errorf("%w: ensuring system scaling: %v", ErrExternalFailure, err)
		}

		d.clientsPerEdge = float64(d.clientNodes) / float64(len(d.params.EdgeNodes))
		d.routes = routeplan.NewPlanner(len(d.nodes))
	}

	// During two-pass's second pass, node creation is finished: an edge
	// naming an id that pass 1 never registered is a topology error, not a
	// late placeholder (mirrors setup.c's gmlNameToState with node==NULL).
	createEndpoints := !(d.finishedNodes && d.ignoreNodes)

	source, err := d.stateFor(l.SourceID, createEndpoints, d.defaultIsClient)
	if err != nil {
		return err
	}
	target, err := d.stateFor(l.TargetID, createEndpoints, d.defaultIsClient)
	if err != nil {
		return err
	}

	if source.id == target.id {
		if source.isClient {
			if err := d.work.SetSelfLink(source.id, l.Attrs); err != nil {
				return fmt.Errorf("%w: setting self-link on node %d: %v", ErrExternalFailure, source.id, err)
			}
		}
		return nil
	}

	var macs [LinkMacs]macaddr.Addr
	if !d.macIter.NextBatch(macs[:]) {
		return fmt.Errorf("%w: ran out of MAC addresses adding link %q-%q", ErrExhaustion, l.SourceID, l.TargetID)
	}
	if err := d.work.AddLink(source.id, target.id, source.addr, target.addr, macs[:], l.Attrs); err != nil {
		return fmt.Errorf("%w: adding link %q-%q: %v", ErrExternalFailure, l.SourceID, l.TargetID, err)
	}
	if l.Weight < 0 {
		return fmt.Errorf("%w: link %q-%q has negative weight %v", ErrInvalidInput, l.SourceID, l.TargetID, l.Weight)
	}
	d.routes.SetWeight(source.id, target.id, l.Weight)
	d.routes.SetWeight(target.id, source.id, l.Weight)
	return nil
}

// nextEdge advances to (or, on the very first call, selects) the edge whose
// client subnets are currently being doled out, fragmenting its virtual
// subnet into exactly its rounded-cumulative share of client nodes.
func (d *Driver) nextEdge() bool {
	if d.clientIter == nil {
		d.currentEdgeIdx = 0
	} else {
		d.currentEdgeIdx++
		if d.currentEdgeIdx >= len(d.params.EdgeNodes) {
			d.clientIter = nil
			return false
		}
	}

	// Rounding each cumulative marker independently (rather than rounding
	// a per-edge share) guarantees the capacities sum to exactly
	// clientNodes regardless of floating-point error.
	prevMarker := math.Round(d.clientsPerEdge * float64(d.currentEdgeIdx))
	nextMarker := math.Round(d.clientsPerEdge * float64(d.currentEdgeIdx+1))
	capacity := uint64(nextMarker - prevMarker)

	edge := d.params.EdgeNodes[d.currentEdgeIdx]
	it, err := fragment.New(edge.VSubnet, capacity)
	if err != nil {
		d.clientIter = nil
		return false
	}
	d.clientIter = it

	if d.log.PassesThreshold(LevelDebug) {
		d.log.Logf(LevelDebug, "Now allocating %d client subnets for edge %s (range %s)", capacity, edge.IP, edge.VSubnet)
	}
	return it.Next()
}

func (d *Driver) nextClientSubnet() (addr.Subnet, bool) {
	if d.clientIter == nil || !d.clientIter.Next() {
		if !d.nextEdge() {
			return addr.Subnet{}, false
		}
	}
	return d.clientIter.Subnet(), true
}

func (d *Driver) assignClientSubnets() error {
	if d.log.PassesThreshold(LevelDebug) {
		d.log.Logf(LevelDebug, "Assigning %d client nodes to %d edge nodes", d.clientNodes, len(d.params.EdgeNodes))
	}
	for _, st := range d.nodes {
		if !st.isClient {
			continue
		}
		subnet, ok := d.nextClientSubnet()
		if !ok {
			return fmt.Errorf("%w: exhausted client subnet space while assigning node %d", ErrBug, st.id)
		}
		st.clientSubnet = subnet
		edgeIdx := d.currentEdgeIdx

		if d.log.PassesThreshold(LevelDebug) {
			d.log.Logf(LevelDebug, "Assigned client node %d to subnet %s owned by edge %d", st.id, subnet, edgeIdx)
		}
		if err := d.work.AddClientRoutes(st.id, st.clientMacs, subnet, d.edgePorts[edgeIdx]); err != nil {
			return fmt.Errorf("%w: adding client routes for node %d: %v", ErrExternalFailure, st.id, err)
		}
	}
	return nil
}

func (d *Driver) planRoutes() error {
	if d.log.PassesThreshold(LevelInfo) {
		d.log.Logf(LevelInfo, "Setting up static routing for the network")
	}
	if d.routes == nil {
		return fmt.Errorf("%w: network topology did not contain any links", ErrTopologyInconsistent)
	}
	d.routes.Plan()

	if d.log.PassesThreshold(LevelDebug) {
		d.log.Logf(LevelDebug, "Adding static routes along paths for all client node pairs")
	}

	seenUnroutable := false
	for i, start := range d.nodes {
		if !start.isClient {
			continue
		}
		for j := i + 1; j < len(d.nodes); j++ {
			end := d.nodes[j]
			if !end.isClient {
				continue
			}

			path, ok := d.routes.GetRoute(start.id, end.id)
			if !ok {
				if !seenUnroutable {
					if d.log.PassesThreshold(LevelWarning) {
						d.log.Logf(LevelWarning, "Topology contains unconnected client nodes (e.g., %d to %d is unroutable)", start.id, end.id)
					}
					seenUnroutable = true
				}
				continue
			}
			if len(path) < 2 {
				if d.log.PassesThreshold(LevelError) {
					d.log.Logf(LevelError, "BUG: route from client %d to %d has %d steps", start.id, end.id, len(path))
				}
				continue
			}

			prev := path[0]
			for step := 1; step < len(path); step++ {
				next := path[step]
				prevSt, nextSt := d.nodes[prev], d.nodes[next]
				if err := d.work.AddInternalRoutes(prev, next, prevSt.addr, nextSt.addr, start.clientSubnet, end.clientSubnet); err != nil {
					return fmt.Errorf("%w: adding internal routes %d -> %d: %v", ErrExternalFailure, prev, next, err)
				}
				prev = next
			}
		}
	}
	return nil
}
