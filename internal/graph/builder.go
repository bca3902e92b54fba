// Package graph builds correlation graph fragments linking an event to the
// entities it touches. Node identifiers are derived purely from entity type
// and key so that graphs from unrelated events referencing the same asset or
// identity can be merged by identifier equality downstream.
package graph

import (
	"fmt"

	"github.com/stratuswatch/detect-engine/internal/models"
)

// Edge relationships produced by the builder.
const (
	RelationOccurredOn       = "occurred_on"
	RelationInitiatedBy      = "initiated_by"
	RelationSpawned          = "spawned"
	RelationCommunicatedWith = "communicated_with"
)

// NodeID derives a stable node identifier from entity kind and key.
func NodeID(nodeType, key string) string {
	return fmt.Sprintf("%s:%s", nodeType, key)
}

// Build deterministically projects one event into a correlation graph.
// No network or storage I/O happens here.
func Build(event *models.NormalizedEvent) *models.CorrelationGraph {
	g := &models.CorrelationGraph{}
	if event == nil {
		return g
	}

	eventNode := models.CorrelationNode{
		NodeID:   NodeID(models.NodeTypeEvent, event.EventID),
		NodeType: models.NodeTypeEvent,
		Label:    event.EventType,
	}
	assetNode := models.CorrelationNode{
		NodeID:   NodeID(models.NodeTypeAsset, event.AssetID),
		NodeType: models.NodeTypeAsset,
		Label:    event.AssetID,
	}
	identityNode := models.CorrelationNode{
		NodeID:   NodeID(models.NodeTypeIdentity, event.IdentityID),
		NodeType: models.NodeTypeIdentity,
		Label:    event.IdentityID,
	}
	g.Nodes = append(g.Nodes, eventNode, assetNode, identityNode)
	g.Edges = append(g.Edges,
		models.CorrelationEdge{Source: eventNode.NodeID, Target: assetNode.NodeID, Relationship: RelationOccurredOn},
		models.CorrelationEdge{Source: eventNode.NodeID, Target: identityNode.NodeID, Relationship: RelationInitiatedBy},
	)

	if event.ProcessLineage != nil && event.ProcessLineage.ProcessName != "" {
		processNode := models.CorrelationNode{
			NodeID:   NodeID(models.NodeTypeProcess, event.ProcessLineage.ProcessName),
			NodeType: models.NodeTypeProcess,
			Label:    event.ProcessLineage.ProcessName,
		}
		g.Nodes = append(g.Nodes, processNode)
		g.Edges = append(g.Edges, models.CorrelationEdge{
			Source:       eventNode.NodeID,
			Target:       processNode.NodeID,
			Relationship: RelationSpawned,
		})
	}

	if event.NetworkFlow != nil && event.NetworkFlow.Destination != "" {
		networkNode := models.CorrelationNode{
			NodeID:   NodeID(models.NodeTypeNetwork, event.NetworkFlow.Destination),
			NodeType: models.NodeTypeNetwork,
			Label:    event.NetworkFlow.Destination,
		}
		g.Nodes = append(g.Nodes, networkNode)
		g.Edges = append(g.Edges, models.CorrelationEdge{
			Source:       eventNode.NodeID,
			Target:       networkNode.NodeID,
			Relationship: RelationCommunicatedWith,
		})
	}

	return g
}

// BuildMerged builds and merges graphs for a set of related events, such as
// the supporting events of a sequence match.
func BuildMerged(events []*models.NormalizedEvent) *models.CorrelationGraph {
	merged := &models.CorrelationGraph{}
	for _, event := range events {
		merged.Merge(Build(event))
	}
	return merged
}
