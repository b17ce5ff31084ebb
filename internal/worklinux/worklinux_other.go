//go:build !linux

package worklinux

import (
	"errors"

	"github.com/walexzzy/netmirage/internal/addr"
	"github.com/walexzzy/netmirage/internal/graphml"
	"github.com/walexzzy/netmirage/internal/macaddr"
	"github.com/walexzzy/netmirage/internal/setup"
)

// ErrUnsupportedPlatform is returned by every Host method outside Linux,
// since network namespaces are a Linux-only kernel facility.
var ErrUnsupportedPlatform = errors.New("worklinux: network namespace plumbing requires Linux")

// Host is a stub on non-Linux platforms; every method reports
// ErrUnsupportedPlatform so the module still builds and links everywhere.
type Host struct{}

// New constructs a stub Host. nsPrefix is accepted for signature
// compatibility with the Linux build but otherwise unused.
func New(nsPrefix string) *Host { return &Host{} }

func (h *Host) Init() error                          { return ErrUnsupportedPlatform }
func (h *Host) Cleanup() error                        { return ErrUnsupportedPlatform }
func (h *Host) DestroyHosts() (int, error)            { return 0, ErrUnsupportedPlatform }

func (h *Host) ResolveRemoteMac(intf string, ip addr.IPv4) (macaddr.Addr, error) {
	return macaddr.Addr{}, ErrUnsupportedPlatform
}

func (h *Host) GetLocalMac(intf string) (macaddr.Addr, error) {
	return macaddr.Addr{}, ErrUnsupportedPlatform
}

func (h *Host) AddRoot(rootA, rootB addr.IPv4) error { return ErrUnsupportedPlatform }

func (h *Host) AddEdgeInterface(intf string) (uint32, error) { return 0, ErrUnsupportedPlatform }

func (h *Host) AddEdgeRoutes(vsubnet addr.Subnet, port uint32, localMac, remoteMac macaddr.Addr) error {
	return ErrUnsupportedPlatform
}

func (h *Host) AddHost(id setup.NodeID, ipAddr addr.IPv4, clientMacs []macaddr.Addr, attrs graphml.NodeAttrs, isClient bool) error {
	return ErrUnsupportedPlatform
}

func (h *Host) SetSelfLink(id setup.NodeID, attrs graphml.LinkAttrs) error {
	return ErrUnsupportedPlatform
}

func (h *Host) AddLink(source, target setup.NodeID, sourceIP, targetIP addr.IPv4, macs []macaddr.Addr, attrs graphml.LinkAttrs) error {
	return ErrUnsupportedPlatform
}

func (h *Host) AddClientRoutes(id setup.NodeID, clientMacs []macaddr.Addr, subnet addr.Subnet, edgePort uint32) error {
	return ErrUnsupportedPlatform
}

func (h *Host) AddInternalRoutes(prev, next setup.NodeID, prevAddr, nextAddr addr.IPv4, srcClientSubnet, dstClientSubnet addr.Subnet) error {
	return ErrUnsupportedPlatform
}

func (h *Host) EnsureScaling(worstCaseLinkCount uint64, nodeCount, clientCount int) error {
	return ErrUnsupportedPlatform
}

var _ setup.Work = (*Host)(nil)
