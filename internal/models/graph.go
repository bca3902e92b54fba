package models

// Node types appearing in a correlation graph.
const (
	NodeTypeEvent    = "event"
	NodeTypeAsset    = "asset"
	NodeTypeIdentity = "identity"
	NodeTypeProcess  = "process"
	NodeTypeNetwork  = "network"
)

// CorrelationNode is an entity in a correlation graph. NodeID is derived
// from entity kind and key ("asset:web-01") so graphs built from unrelated
// events referencing the same entity merge by identifier equality.
type CorrelationNode struct {
	NodeID   string `json:"node_id"`
	NodeType string `json:"node_type"`
	Label    string `json:"label"`
}

// CorrelationEdge relates two nodes in a correlation graph.
type CorrelationEdge struct {
	Source       string `json:"source"`
	Target       string `json:"target"`
	Relationship string `json:"relationship"`
}

// CorrelationGraph is the entity-relationship fragment built for one event.
type CorrelationGraph struct {
	Nodes []CorrelationNode `json:"nodes"`
	Edges []CorrelationEdge `json:"edges"`
}

// Merge combines another graph into this one, deduplicating nodes by
// NodeID and edges by (source, target, relationship).
func (g *CorrelationGraph) Merge(other *CorrelationGraph) {
	if other == nil {
		return
	}
	seen := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		seen[n.NodeID] = true
	}
	for _, n := range other.Nodes {
		if !seen[n.NodeID] {
			g.Nodes = append(g.Nodes, n)
			seen[n.NodeID] = true
		}
	}
	edgeSeen := make(map[[3]string]bool, len(g.Edges))
	for _, e := range g.Edges {
		edgeSeen[[3]string{e.Source, e.Target, e.Relationship}] = true
	}
	for _, e := range other.Edges {
		key := [3]string{e.Source, e.Target, e.Relationship}
		if !edgeSeen[key] {
			g.Edges = append(g.Edges, e)
			edgeSeen[key] = true
		}
	}
}
