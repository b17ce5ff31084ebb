package setup

import (
	"fmt"

	"github.com/walexzzy/netmirage/internal/addr"
	"github.com/walexzzy/netmirage/internal/graphml"
	"github.com/walexzzy/netmirage/internal/macaddr"
)

// Call records one invocation made against a Recorder, in the order it
// happened. Args holds the call's parameters rendered as strings, so a
// recorded trace can be compared or printed without depending on the
// concrete argument types.
type Call struct {
	Method string
	Args   []string
}

func (c Call) String() string {
	s := c.Method + "("
	for i, a := range c.Args {
		if i > 0 {
			s += ", "
		}
		s += a
	}
	return s + ")"
}

// Recorder is an in-memory Work implementation that performs no actual host
// mutation: it simply appends every call it receives to a trace. It backs
// dry-run planning (no privileged kernel operations required) and gives
// driver tests a deterministic, inspectable log of exactly what the driver
// would have asked the host to do.
type Recorder struct {
	Calls []Call

	nextPort    uint32
	nextMac     *macaddr.Iter
	deleteOnRun int
}

// NewRecorder constructs an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{nextPort: 1, nextMac: macaddr.NewIter()}
}

func (r *Recorder) record(method string, args ...any) {
	rendered := make([]string, len(args))
	for i, a := range args {
		rendered[i] = fmt.Sprint(a)
	}
	r.Calls = append(r.Calls, Call{Method: method, Args: rendered})
}

func (r *Recorder) Init() error {
	r.record("Init")
	return nil
}

func (r *Recorder) Cleanup() error {
	r.record("Cleanup")
	return nil
}

func (r *Recorder) DestroyHosts() (int, error) {
	r.record("DestroyHosts")
	return r.deleteOnRun, nil
}

// ResolveRemoteMac synthesizes a deterministic MAC for intf/ip rather than
// performing real ARP resolution, since the recorder never touches the
// host.
func (r *Recorder) ResolveRemoteMac(intf string, ip addr.IPv4) (macaddr.Addr, error) {
	r.record("ResolveRemoteMac", intf, ip)
	var a macaddr.Addr
	r.nextMac.Next(&a)
	return a, nil
}

func (r *Recorder) GetLocalMac(intf string) (macaddr.Addr, error) {
	r.record("GetLocalMac", intf)
	var a macaddr.Addr
	r.nextMac.Next(&a)
	return a, nil
}

func (r *Recorder) AddRoot(rootA, rootB addr.IPv4) error {
	r.record("AddRoot", rootA, rootB)
	return nil
}

func (r *Recorder) AddEdgeInterface(intf string) (uint32, error) {
	r.record("AddEdgeInterface", intf)
	port := r.nextPort
	r.nextPort++
	return port, nil
}

func (r *Recorder) AddEdgeRoutes(vsubnet addr.Subnet, port uint32, localMac, remoteMac macaddr.Addr) error {
	r.record("AddEdgeRoutes", vsubnet, port, localMac, remoteMac)
	return nil
}

func (r *Recorder) AddHost(id NodeID, ip addr.IPv4, clientMacs []macaddr.Addr, attrs graphml.NodeAttrs, isClient bool) error {
	r.record("AddHost", id, ip, len(clientMacs), isClient)
	return nil
}

func (r *Recorder) SetSelfLink(id NodeID, attrs graphml.LinkAttrs) error {
	r.record("SetSelfLink", id)
	return nil
}

func (r *Recorder) AddLink(source, target NodeID, sourceIP, targetIP addr.IPv4, macs []macaddr.Addr, attrs graphml.LinkAttrs) error {
	r.record("AddLink", source, target, sourceIP, targetIP)
	return nil
}

func (r *Recorder) AddClientRoutes(id NodeID, clientMacs []macaddr.Addr, subnet addr.Subnet, edgePort uint32) error {
	r.record("AddClientRoutes", id, subnet, edgePort)
	return nil
}

func (r *Recorder) AddInternalRoutes(prev, next NodeID, prevAddr, nextAddr addr.IPv4, srcClientSubnet, dstClientSubnet addr.Subnet) error {
	r.record("AddInternalRoutes", prev, next, srcClientSubnet, dstClientSubnet)
	return nil
}

func (r *Recorder) EnsureScaling(worstCaseLinkCount uint64, nodeCount, clientCount int) error {
	r.record("EnsureScaling", worstCaseLinkCount, nodeCount, clientCount)
	return nil
}

var _ Work = (*Recorder)(nil)
