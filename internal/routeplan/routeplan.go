// Package routeplan computes all-pairs shortest paths over the small, dense,
// undirected weighted graph formed by a topology's nodes and links, and
// reconstructs hop sequences between routable pairs.
package routeplan

import "math"

// NodeID indexes into the planner's node set; ids are dense, starting at 0.
type NodeID uint32

// unreachable marks the "no edge" distance. Floyd-Warshall relaxation never
// produces a value below it unless a real path exists.
const unreachable = math.MaxFloat64

// Planner holds a dense nodeCount x nodeCount weight matrix. SetWeight calls
// must complete before Plan is invoked; Plan must complete before GetRoute is
// called.
type Planner struct {
	n    int
	dist [][]float64
	next [][]int32 // next[i][j] = next hop from i towards j, or -1
}

// NewPlanner constructs a Planner for exactly nodeCount nodes, with every
// off-diagonal distance initialised to the unreachable sentinel
// (math.MaxFloat64) and every diagonal to 0.
func NewPlanner(nodeCount int) *Planner {
	p := &Planner{
		n:    nodeCount,
		dist: make([][]float64, nodeCount),
		next: make([][]int32, nodeCount),
	}
	for i := 0; i < nodeCount; i++ {
		p.dist[i] = make([]float64, nodeCount)
		p.next[i] = make([]int32, nodeCount)
		for j := 0; j < nodeCount; j++ {
			if i == j {
				p.dist[i][j] = 0
			} else {
				p.dist[i][j] = unreachable
			}
			p.next[i][j] = -1
		}
	}
	return p
}

// SetWeight records a direct edge weight from a to b. Callers are
// responsible for calling it symmetrically for undirected edges; a
// duplicate edge between the same pair overwrites the previous weight
// rather than summing, matching a plain adjacency matrix.
func (p *Planner) SetWeight(a, b NodeID, weight float64) {
	p.dist[a][b] = weight
	p.next[a][b] = int32(b)
}

// Plan runs Floyd-Warshall, filling in the distance and successor matrices
// for every reachable pair. Ties during relaxation prefer the lower
// intermediate node id, since the outer loop visits candidates in ascending
// id order and only replaces on strict improvement.
func (p *Planner) Plan() {
	n := p.n
	for k := 0; k < n; k++ {
		for i := 0; i < n; i++ {
			dik := p.dist[i][k]
			if dik == unreachable {
				continue
			}
			for j := 0; j < n; j++ {
				dkj := p.dist[k][j]
				if dkj == unreachable {
					continue
				}
				through := dik + dkj
				if through < p.dist[i][j] {
					p.dist[i][j] = through
					p.next[i][j] = p.next[i][k]
				}
			}
		}
	}
}

// GetRoute reconstructs the path from s to t as a sequence of node ids
// including both endpoints. Returns false iff t is unreachable from s.
func (p *Planner) GetRoute(s, t NodeID) ([]NodeID, bool) {
	if p.dist[s][t] == unreachable {
		return nil, false
	}
	path := []NodeID{s}
	current := s
	for current != t {
		nextHop := p.next[current][t]
		if nextHop < 0 {
			return nil, false
		}
		current = NodeID(nextHop)
		path = append(path, current)
	}
	return path, true
}

// Distance reports the planned shortest-path distance between s and t, and
// whether one exists at all.
func (p *Planner) Distance(s, t NodeID) (float64, bool) {
	d := p.dist[s][t]
	return d, d != unreachable
}
