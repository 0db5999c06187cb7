package arqsim

// topo.go checks the shape of the simulated network before it is built.  The
// links of a SimCfg are turned into a directed graph whose vertices are nodes
// and whose edges are channels: every link contributes a forward edge
// (sender to receiver) and a reverse edge.  A node holds one ARQ engine, so
// it may take part in a single link only.

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// Topology is the channel graph of a simulation
type Topology struct {
	connGraph *simple.DirectedGraph
	idByName  map[string]int64
	nameByID  map[int64]string
	linkOf    map[string]string // node name -> link name
}

// BuildTopology constructs the channel graph of cfg, returning an error
// if a link joins a node to itself or a node appears on two links
func BuildTopology(cfg *SimCfg) (*Topology, error) {
	topo := new(Topology)
	topo.connGraph = simple.NewDirectedGraph()
	topo.idByName = make(map[string]int64)
	topo.nameByID = make(map[int64]string)
	topo.linkOf = make(map[string]string)

	errs := make([]error, 0)
	for _, ld := range cfg.Links {
		if ld.Sender == ld.Receiver {
			errs = append(errs, fmt.Errorf("%w: link %s joins %s to itself", ErrConfig, ld.Name, ld.Sender))
			continue
		}
		clash := false
		for _, nodeName := range []string{ld.Sender, ld.Receiver} {
			other, present := topo.linkOf[nodeName]
			if present {
				errs = append(errs, fmt.Errorf("%w: node %s is on links %s and %s", ErrConfig, nodeName, other, ld.Name))
				clash = true
			}
		}
		if clash {
			continue
		}
		from := topo.addNode(ld.Sender, ld.Name)
		to := topo.addNode(ld.Receiver, ld.Name)
		topo.connGraph.SetEdge(simple.Edge{F: from, T: to})
		topo.connGraph.SetEdge(simple.Edge{F: to, T: from})
	}
	if err := ReportErrs(errs); err != nil {
		return nil, err
	}
	return topo, nil
}

func (topo *Topology) addNode(name, linkName string) simple.Node {
	id := int64(len(topo.idByName))
	topo.idByName[name] = id
	topo.nameByID[id] = name
	topo.linkOf[name] = linkName
	node := simple.Node(id)
	topo.connGraph.AddNode(node)
	return node
}

// NumNodes returns the number of nodes in the topology
func (topo *Topology) NumNodes() int {
	return topo.connGraph.Nodes().Len()
}

// NumChannels returns the number of one-way channels in the topology
func (topo *Topology) NumChannels() int {
	return topo.connGraph.Edges().Len()
}

// HasChannel reports whether a channel runs from node src to node dst
func (topo *Topology) HasChannel(src, dst string) bool {
	srcID, present := topo.idByName[src]
	if !present {
		return false
	}
	dstID, present := topo.idByName[dst]
	if !present {
		return false
	}
	return topo.connGraph.HasEdgeFromTo(srcID, dstID)
}

// Path returns the names of the nodes visited going from src to dst, both
// included, or an error if dst cannot be reached
func (topo *Topology) Path(src, dst string) ([]string, error) {
	srcID, present := topo.idByName[src]
	if !present {
		return nil, fmt.Errorf("%w: no node %s", ErrConfig, src)
	}
	dstID, present := topo.idByName[dst]
	if !present {
		return nil, fmt.Errorf("%w: no node %s", ErrConfig, dst)
	}
	spTree := path.DijkstraFrom(topo.connGraph.Node(srcID), topo.connGraph)
	nodes, weight := spTree.To(dstID)
	if math.IsInf(weight, 1) || len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s cannot be reached from %s", ErrConfig, dst, src)
	}
	return topo.names(nodes), nil
}

func (topo *Topology) names(nodes []graph.Node) []string {
	rtn := make([]string, 0, len(nodes))
	for _, node := range nodes {
		rtn = append(rtn, topo.nameByID[node.ID()])
	}
	return rtn
}

// String lists every channel as "src->dst"
func (topo *Topology) String() string {
	edges := make([]string, 0)
	for id := int64(0); id < int64(len(topo.nameByID)); id++ {
		to := topo.connGraph.From(id)
		for to.Next() {
			edges = append(edges, topo.nameByID[id]+"->"+topo.nameByID[to.Node().ID()])
		}
	}
	return strings.Join(edges, ",")
}
