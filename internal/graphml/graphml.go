// Package graphml implements a streaming, SAX-style GraphML reader. It is
// the Go analogue of the original project's libxml push-parser state
// machine (graphml.c): both read incrementally, without materializing a
// DOM, and invoke caller callbacks as soon as a <node> or <edge> element is
// fully parsed.
package graphml

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// Namespace is the only GraphML namespace this reader accepts.
const Namespace = "http://graphml.graphdrawing.org/xmlns"

// Errors, grouped per the project's InvalidInput / Bug taxonomy.
var (
	ErrNotGraphML       = errors.New("graphml: root element is not a graphml document")
	ErrWrongNamespace   = errors.New("graphml: unknown GraphML namespace")
	ErrDirectedEdge     = errors.New("graphml: directed edges are not supported")
	ErrMissingNodeID    = errors.New("graphml: node is missing an id attribute")
	ErrMissingEdgeEnds  = errors.New("graphml: edge is missing a source or target attribute")
	ErrMissingDataKey   = errors.New("graphml: data element is missing a key attribute")
	ErrKeyTypeMismatch  = errors.New("graphml: key declared with unexpected attr.type")
	ErrMalformedNumber  = errors.New("graphml: data value is not a valid number")
	ErrBadParserState   = errors.New("graphml: bug: unreachable parser state")
	ErrUnknownWeightKey = errors.New("graphml: weightKey does not name a recognized edge attribute")
)

// NodeAttrs carries the optional traffic-shaping data attributes of a node.
type NodeAttrs struct {
	PacketLoss    float64
	BandwidthUp   float64
	BandwidthDown float64
}

// Node is a fully-populated GraphML <node>, ready for the driver callback.
type Node struct {
	ID       string
	IsClient bool
	Attrs    NodeAttrs
}

// LinkAttrs carries the optional traffic-shaping data attributes of an edge.
type LinkAttrs struct {
	Latency    float64
	PacketLoss float64
	Jitter     float64
	QueueLen   uint64
}

// Link is a fully-populated GraphML <edge>, ready for the driver callback.
// Weight is derived from whichever of LinkAttrs' fields the reader was
// configured (via Options.WeightKey) to treat as the route-planning weight.
type Link struct {
	SourceID string
	TargetID string
	Attrs    LinkAttrs
	Weight   float64
}

// NewNodeFunc and NewLinkFunc are the driver callbacks invoked once per
// fully-parsed node/edge, in document order. A non-nil error aborts parsing.
type NewNodeFunc func(Node) error
type NewLinkFunc func(Link) error

// Options configures a Reader.
type Options struct {
	// ClientType, if non-nil, is the literal value of a node's "type" data
	// that marks it as a client node; nodes default to non-client. If nil,
	// every node defaults to being a client (no discriminator configured).
	ClientType *string
	// WeightKey names which recognized edge attribute (one of "latency",
	// "packetloss", "jitter", "queue_len") supplies Link.Weight.
	WeightKey string
}

func (o Options) isClient(typeValue string, typeSeen bool) bool {
	if o.ClientType == nil {
		return true
	}
	return typeSeen && typeValue == *o.ClientType
}

func (o Options) weight(a LinkAttrs) (float64, error) {
	switch o.WeightKey {
	case "latency":
		return a.Latency, nil
	case "packetloss":
		return a.PacketLoss, nil
	case "jitter":
		return a.Jitter, nil
	case "queue_len":
		return float64(a.QueueLen), nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownWeightKey, o.WeightKey)
	}
}

// mode is the parser's current state, mirroring GraphParserMode in graphml.c.
type mode int

const (
	modeInitial mode = iota
	modeTopLevel
	modeGraph
	modeNode
	modeEdge
	modeData
	modeUnknown
)

type keyTarget int

const (
	keyTargetNode keyTarget = iota
	keyTargetEdge
)

type keyValueKind int

const (
	kindString keyValueKind = iota
	kindNumber
	kindInt
)

type keyBinding struct {
	target keyTarget
	field  string // "type","packetloss","bandwidthup","bandwidthdown","latency","jitter","queue_len"
	kind   keyValueKind
}

// Reader drives the GraphML state machine over a stream of xml.Tokens.
type Reader struct {
	opts Options

	st            mode
	unknownDepth  int
	unknownReturn mode

	keys map[string]keyBinding // key id -> binding

	defaultUndirected bool

	pendingNode     Node
	nodeTypeValue   string
	nodeTypeSeen    bool
	pendingLink     Link
	pendingDirected bool

	dataKeyID  string
	dataBuf    []byte
	dataReturn mode

	onNode NewNodeFunc
	onLink NewLinkFunc
}

// NewReader constructs a Reader that will invoke onNode/onLink as elements
// complete.
func NewReader(opts Options, onNode NewNodeFunc, onLink NewLinkFunc) *Reader {
	return &Reader{
		st:     modeInitial,
		keys:   make(map[string]keyBinding),
		onNode: onNode,
		onLink: onLink,
		opts:   opts,
	}
}

// Parse streams GraphML from r, invoking the configured callbacks inline as
// nodes and edges complete. It returns the first error encountered, from
// either the XML tokenizer or a callback.
func (g *Reader) Parse(r io.Reader) error {
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("graphml: xml decode: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if err := g.startElement(t); err != nil {
				return err
			}
		case xml.EndElement:
			if err := g.endElement(t); err != nil {
				return err
			}
		case xml.CharData:
			if g.st == modeData {
				g.dataBuf = append(g.dataBuf, t...)
			}
		}
	}
}

func attrValue(se xml.StartElement, local string) (string, bool) {
	for _, a := range se.Attr {
		if a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}

func (g *Reader) goUnknown() {
	g.unknownReturn = g.st
	g.st = modeUnknown
	g.unknownDepth = 0
}

func (g *Reader) startElement(se xml.StartElement) error {
	switch g.st {
	case modeUnknown:
		g.unknownDepth++
		return nil

	case modeInitial:
		if se.Name.Local != "graphml" {
			return ErrNotGraphML
		}
		if se.Name.Space != "" && se.Name.Space != Namespace {
			return ErrWrongNamespace
		}
		g.st = modeTopLevel
		return nil

	case modeTopLevel:
		switch se.Name.Local {
		case "key":
			if err := g.recordKey(se); err != nil {
				return err
			}
			g.goUnknown()
		case "graph":
			edgedefault, _ := attrValue(se, "edgedefault")
			// Open question preserved from the original source: any value
			// other than the literal "undirected" is treated as directed.
			g.defaultUndirected = edgedefault == "undirected"
			g.st = modeGraph
		default:
			g.goUnknown()
		}
		return nil

	case modeGraph:
		switch se.Name.Local {
		case "node":
			id, ok := attrValue(se, "id")
			if !ok {
				return ErrMissingNodeID
			}
			g.nodeTypeSeen = false
			g.nodeTypeValue = ""
			g.pendingNode = Node{ID: id, IsClient: g.opts.isClient("", false)}
			g.st = modeNode
		case "edge":
			source, hasSource := attrValue(se, "source")
			target, hasTarget := attrValue(se, "target")
			if !hasSource || !hasTarget {
				return ErrMissingEdgeEnds
			}
			undirected := g.defaultUndirected
			if d, ok := attrValue(se, "directed"); ok {
				undirected = d == "false"
			}
			if !undirected {
				return fmt.Errorf("%w: from %q to %q", ErrDirectedEdge, source, target)
			}
			g.pendingLink = Link{SourceID: source, TargetID: target}
			g.pendingDirected = false
			g.st = modeEdge
		default:
			g.goUnknown()
		}
		return nil

	case modeNode, modeEdge:
		if se.Name.Local != "data" {
			g.goUnknown()
			return nil
		}
		key, ok := attrValue(se, "key")
		if !ok {
			return ErrMissingDataKey
		}
		g.dataKeyID = key
		g.dataBuf = g.dataBuf[:0]
		g.dataReturn = g.st
		g.st = modeData
		return nil

	case modeData:
		// <data> elements don't nest; treat any child as unknown content.
		g.goUnknown()
		return nil

	default:
		return fmt.Errorf("%w: startElement in mode %d", ErrBadParserState, g.st)
	}
}

func (g *Reader) recordKey(se xml.StartElement) error {
	name, hasName := attrValue(se, "attr.name")
	id, hasID := attrValue(se, "id")
	typ, hasType := attrValue(se, "attr.type")
	forWhat, hasFor := attrValue(se, "for")
	if !hasName || !hasID || !hasType || !hasFor {
		return nil
	}

	var target keyTarget
	switch forWhat {
	case "node":
		target = keyTargetNode
	case "edge":
		target = keyTargetEdge
	default:
		return nil
	}

	isNumericType := typ == "int" || typ == "long" || typ == "float" || typ == "double"
	isIntType := typ == "int" || typ == "long"
	isStringType := typ == "string"

	accept := func(field string, acceptInt, acceptFloat, acceptStr bool) (keyBinding, bool) {
		correct := (isIntType && acceptInt) || ((isNumericType && !isIntType) && acceptFloat) || (isStringType && acceptStr)
		if !correct {
			return keyBinding{}, false
		}
		kind := kindNumber
		if isIntType {
			kind = kindInt
		}
		if isStringType {
			kind = kindString
		}
		return keyBinding{target: target, field: field, kind: kind}, true
	}

	var b keyBinding
	var ok bool
	known := true
	if target == keyTargetNode {
		switch name {
		case "type":
			b, ok = accept("type", false, false, true)
		case "packetloss":
			b, ok = accept("packetloss", true, true, false)
		case "bandwidthup":
			b, ok = accept("bandwidthup", true, true, false)
		case "bandwidthdown":
			b, ok = accept("bandwidthdown", true, true, false)
		default:
			known = false
		}
	} else {
		switch name {
		case "latency":
			b, ok = accept("latency", true, true, false)
		case "packetloss":
			b, ok = accept("packetloss", true, true, false)
		case "jitter":
			b, ok = accept("jitter", true, true, false)
		case "queue_len":
			b, ok = accept("queue_len", true, false, false)
		default:
			known = false
		}
	}
	// Unknown attribute names are silently ignored: later <data> referencing
	// them just won't match any binding and will be dropped. A recognized
	// attribute name declared with an unaccepted attr.type is fatal.
	if !known {
		return nil
	}
	if !ok {
		return fmt.Errorf("%w: %s key %q declared as %q", ErrKeyTypeMismatch, forWhat, name, typ)
	}
	g.keys[id] = b
	return nil
}

func (g *Reader) endElement(xml.EndElement) error {
	switch g.st {
	case modeUnknown:
		if g.unknownDepth == 0 {
			g.st = g.unknownReturn
		} else {
			g.unknownDepth--
		}
		return nil

	case modeData:
		value := string(g.dataBuf)
		if err := g.applyData(value); err != nil {
			return err
		}
		g.st = g.dataReturn
		return nil

	case modeNode:
		g.pendingNode.IsClient = g.opts.isClient(g.nodeTypeValue, g.nodeTypeSeen)
		if g.onNode != nil {
			if err := g.onNode(g.pendingNode); err != nil {
				return err
			}
		}
		g.st = modeGraph
		return nil

	case modeEdge:
		w, err := g.opts.weight(g.pendingLink.Attrs)
		if err != nil {
			return err
		}
		g.pendingLink.Weight = w
		if g.onLink != nil {
			if err := g.onLink(g.pendingLink); err != nil {
				return err
			}
		}
		g.st = modeGraph
		return nil

	case modeGraph:
		g.st = modeTopLevel
		return nil

	case modeTopLevel:
		g.goUnknown()
		return nil

	default:
		return fmt.Errorf("%w: endElement in mode %d", ErrBadParserState, g.st)
	}
}

func (g *Reader) applyData(value string) error {
	b, bound := g.keys[g.dataKeyID]
	if !bound {
		return nil // unknown key id: silently ignored
	}

	switch b.target {
	case keyTargetNode:
		switch b.field {
		case "type":
			g.nodeTypeSeen = true
			g.nodeTypeValue = value
		case "packetloss":
			f, err := parseFloat(value)
			if err != nil {
				return err
			}
			g.pendingNode.Attrs.PacketLoss = f
		case "bandwidthup":
			f, err := parseFloat(value)
			if err != nil {
				return err
			}
			g.pendingNode.Attrs.BandwidthUp = f
		case "bandwidthdown":
			f, err := parseFloat(value)
			if err != nil {
				return err
			}
			g.pendingNode.Attrs.BandwidthDown = f
		}
	case keyTargetEdge:
		switch b.field {
		case "latency":
			f, err := parseFloat(value)
			if err != nil {
				return err
			}
			g.pendingLink.Attrs.Latency = f
		case "packetloss":
			f, err := parseFloat(value)
			if err != nil {
				return err
			}
			g.pendingLink.Attrs.PacketLoss = f
		case "jitter":
			f, err := parseFloat(value)
			if err != nil {
				return err
			}
			g.pendingLink.Attrs.Jitter = f
		case "queue_len":
			n, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				return fmt.Errorf("%w: %q", ErrMalformedNumber, value)
			}
			g.pendingLink.Attrs.QueueLen = n
		}
	}
	return nil
}

func parseFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedNumber, s)
	}
	return f, nil
}
