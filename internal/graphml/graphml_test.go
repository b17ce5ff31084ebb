package graphml

import (
	"strings"
	"testing"
)

func parseString(t *testing.T, doc string, opts Options) ([]Node, []Link, error) {
	t.Helper()
	var nodes []Node
	var links []Link
	r := NewReader(opts, func(n Node) error {
		nodes = append(nodes, n)
		return nil
	}, func(l Link) error {
		links = append(links, l)
		return nil
	})
	err := r.Parse(strings.NewReader(doc))
	return nodes, links, err
}

const sampleDoc = `<?xml version="1.0"?>
<graphml xmlns="http://graphml.graphdrawing.org/xmlns">
  <key id="d0" for="node" attr.name="type" attr.type="string"/>
  <key id="d1" for="node" attr.name="bandwidthup" attr.type="double"/>
  <key id="d2" for="edge" attr.name="latency" attr.type="double"/>
  <key id="d3" for="edge" attr.name="queue_len" attr.type="int"/>
  <key id="d4" for="node" attr.name="unused" attr.type="string"/>
  <graph edgedefault="undirected">
    <node id="n0">
      <data key="d0">client</data>
      <data key="d1">10.5</data>
      <data key="d4">ignored value</data>
    </node>
    <node id="n1">
      <data key="d0">router</data>
    </node>
    <edge source="n0" target="n1">
      <data key="d2">12.5</data>
      <data key="d3">64</data>
    </edge>
  </graph>
</graphml>`

func TestParsesNodesAndEdges(t *testing.T) {
	clientType := "client"
	nodes, links, err := parseString(t, sampleDoc, Options{ClientType: &clientType, WeightKey: "latency"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(nodes))
	}
	if nodes[0].ID != "n0" || !nodes[0].IsClient {
		t.Fatalf("expected n0 to be a client, got %+v", nodes[0])
	}
	if nodes[0].Attrs.BandwidthUp != 10.5 {
		t.Fatalf("expected bandwidthup 10.5, got %v", nodes[0].Attrs.BandwidthUp)
	}
	if nodes[1].ID != "n1" || nodes[1].IsClient {
		t.Fatalf("expected n1 to not be a client, got %+v", nodes[1])
	}
	if len(links) != 1 {
		t.Fatalf("expected 1 link, got %d", len(links))
	}
	l := links[0]
	if l.SourceID != "n0" || l.TargetID != "n1" {
		t.Fatalf("unexpected link endpoints: %+v", l)
	}
	if l.Attrs.Latency != 12.5 || l.Weight != 12.5 {
		t.Fatalf("expected latency/weight 12.5, got %+v", l)
	}
	if l.Attrs.QueueLen != 64 {
		t.Fatalf("expected queue_len 64, got %d", l.Attrs.QueueLen)
	}
}

func TestDefaultClientTrueWithoutDiscriminator(t *testing.T) {
	doc := `<graphml xmlns="http://graphml.graphdrawing.org/xmlns">
  <graph edgedefault="undirected">
    <node id="n0"/>
  </graph>
</graphml>`
	nodes, _, err := parseString(t, doc, Options{WeightKey: "latency"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !nodes[0].IsClient {
		t.Fatal("expected node to default to client when no clientType is configured")
	}
}

func TestDirectedEdgeIsFatal(t *testing.T) {
	doc := `<graphml xmlns="http://graphml.graphdrawing.org/xmlns">
  <graph edgedefault="directed">
    <node id="n0"/>
    <node id="n1"/>
    <edge source="n0" target="n1"/>
  </graph>
</graphml>`
	_, _, err := parseString(t, doc, Options{WeightKey: "latency"})
	if err == nil {
		t.Fatal("expected directed edge to be rejected")
	}
}

func TestPerEdgeDirectedOverridesGraphDefault(t *testing.T) {
	doc := `<graphml xmlns="http://graphml.graphdrawing.org/xmlns">
  <graph edgedefault="directed">
    <node id="n0"/>
    <node id="n1"/>
    <edge source="n0" target="n1" directed="false"/>
  </graph>
</graphml>`
	_, links, err := parseString(t, doc, Options{WeightKey: "latency"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("expected 1 link, got %d", len(links))
	}
}

func TestUnknownElementsAndKeysAreIgnored(t *testing.T) {
	doc := `<graphml xmlns="http://graphml.graphdrawing.org/xmlns">
  <desc>some unrelated metadata</desc>
  <key id="d0" for="node" attr.name="somethingelse" attr.type="string"/>
  <graph edgedefault="undirected">
    <node id="n0">
      <data key="d0">whatever</data>
      <extra><nested>stuff</nested></extra>
    </node>
  </graph>
</graphml>`
	nodes, _, err := parseString(t, doc, Options{WeightKey: "latency"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(nodes) != 1 || nodes[0].ID != "n0" {
		t.Fatalf("expected single node n0, got %+v", nodes)
	}
}

func TestWrongKeyTypeIsFatal(t *testing.T) {
	doc := `<graphml xmlns="http://graphml.graphdrawing.org/xmlns">
  <key id="d0" for="node" attr.name="bandwidthup" attr.type="string"/>
  <graph edgedefault="undirected">
    <node id="n0"/>
  </graph>
</graphml>`
	_, _, err := parseString(t, doc, Options{WeightKey: "latency"})
	if err == nil {
		t.Fatal("expected wrong key attr.type to be fatal")
	}
}

func TestMissingDataKeyAttributeIsFatal(t *testing.T) {
	doc := `<graphml xmlns="http://graphml.graphdrawing.org/xmlns">
  <graph edgedefault="undirected">
    <node id="n0"><data>no key here</data></node>
  </graph>
</graphml>`
	_, _, err := parseString(t, doc, Options{WeightKey: "latency"})
	if err == nil {
		t.Fatal("expected missing data key attribute to be fatal")
	}
}

func TestMissingNodeIDIsFatal(t *testing.T) {
	doc := `<graphml xmlns="http://graphml.graphdrawing.org/xmlns">
  <graph edgedefault="undirected">
    <node/>
  </graph>
</graphml>`
	_, _, err := parseString(t, doc, Options{WeightKey: "latency"})
	if err == nil {
		t.Fatal("expected missing node id to be fatal")
	}
}

func TestWrongNamespaceRejected(t *testing.T) {
	doc := `<graphml xmlns="http://example.com/not-graphml">
  <graph edgedefault="undirected">
    <node id="n0"/>
  </graph>
</graphml>`
	_, _, err := parseString(t, doc, Options{WeightKey: "latency"})
	if err == nil {
		t.Fatal("expected wrong namespace to be rejected")
	}
}

func TestNotGraphMLRootRejected(t *testing.T) {
	doc := `<notgraphml></notgraphml>`
	_, _, err := parseString(t, doc, Options{WeightKey: "latency"})
	if err == nil {
		t.Fatal("expected non-graphml root to be rejected")
	}
}
