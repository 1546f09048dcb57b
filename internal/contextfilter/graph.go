// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package contextfilter

// RelationshipGraph is an undirected adjacency list of classified pairs.
type RelationshipGraph struct {
	edges map[string]map[string]Classification
}

// NewRelationshipGraph builds the graph from stored relationships.
func NewRelationshipGraph(rels []DeviceRelationship) *RelationshipGraph {
	g := &RelationshipGraph{edges: make(map[string]map[string]Classification)}
	for _, r := range rels {
		g.add(r.DeviceA, r.DeviceB, r.Classification)
		g.add(r.DeviceB, r.DeviceA, r.Classification)
	}
	return g
}

func (g *RelationshipGraph) add(from, to string, c Classification) {
	m, ok := g.edges[from]
	if !ok {
		m = make(map[string]Classification)
		g.edges[from] = m
	}
	m[to] = c
}

// Classification returns the label for a pair, or ClassUnknown.
func (g *RelationshipGraph) Classification(a, b string) Classification {
	if c, ok := g.edges[a][b]; ok {
		return c
	}
	return ClassUnknown
}

// TrustedComponent returns every device reachable from start over trusted
// edges within maxDepth hops, start included. The visited set makes cycles
// safe; maxDepth <= 0 means unbounded.
func (g *RelationshipGraph) TrustedComponent(start string, maxDepth int) map[string]bool {
	visited := map[string]bool{start: true}
	frontier := []string{start}

	for depth := 0; len(frontier) > 0 && (maxDepth <= 0 || depth < maxDepth); depth++ {
		var next []string
		for _, node := range frontier {
			for peer, c := range g.edges[node] {
				if !c.Trusted() || visited[peer] {
					continue
				}
				visited[peer] = true
				next = append(next, peer)
			}
		}
		frontier = next
	}
	return visited
}
