package services

import (
	"sort"

	"github.com/google/uuid"

	"github.com/varia-hq/varia-engine/pkg/models"
)

// RelationshipGraph is an undirected co-occurrence graph over entities.
// Nodes are entity ids; an edge connects two entities that appear as
// columns in the same sheet, weighted by how many sheets they share.
// The graph is built once per run and never mutated afterward.
type RelationshipGraph struct {
	adjacency map[uuid.UUID]map[uuid.UUID]int
	bySheet   map[string][]models.EntityMember
}

// BuildRelationshipGraph constructs the graph from the detector's output.
func BuildRelationshipGraph(entities []models.Entity, members []models.EntityMember) *RelationshipGraph {
	g := &RelationshipGraph{
		adjacency: make(map[uuid.UUID]map[uuid.UUID]int, len(entities)),
		bySheet:   make(map[string][]models.EntityMember),
	}
	for _, e := range entities {
		g.adjacency[e.ID] = make(map[uuid.UUID]int)
	}
	for _, m := range members {
		g.bySheet[m.SheetID] = append(g.bySheet[m.SheetID], m)
	}

	for sheetID, sheetMembers := range g.bySheet {
		sort.Slice(sheetMembers, func(i, j int) bool {
			return sheetMembers[i].ColumnIndex < sheetMembers[j].ColumnIndex
		})
		g.bySheet[sheetID] = sheetMembers

		// distinct entities in this sheet
		seen := make(map[uuid.UUID]struct{})
		var ids []uuid.UUID
		for _, m := range sheetMembers {
			if _, ok := seen[m.EntityID]; !ok {
				seen[m.EntityID] = struct{}{}
				ids = append(ids, m.EntityID)
			}
		}
		for i := range ids {
			for j := i + 1; j < len(ids); j++ {
				g.adjacency[ids[i]][ids[j]]++
				g.adjacency[ids[j]][ids[i]]++
			}
		}
	}
	return g
}

// RelatedEntities returns up to k neighbors of the given entity, ordered by
// descending edge weight with ids as the deterministic tie-break.
func (g *RelationshipGraph) RelatedEntities(entityID uuid.UUID, k int) []uuid.UUID {
	neighbors := g.adjacency[entityID]
	if len(neighbors) == 0 || k <= 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(neighbors))
	for id := range neighbors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		wi, wj := neighbors[ids[i]], neighbors[ids[j]]
		if wi != wj {
			return wi > wj
		}
		return ids[i].String() < ids[j].String()
	})
	if len(ids) > k {
		ids = ids[:k]
	}
	return ids
}

// Degree returns the number of distinct neighbors an entity has.
func (g *RelationshipGraph) Degree(entityID uuid.UUID) int {
	return len(g.adjacency[entityID])
}

// MembersInSheet returns the entity columns known for a sheet, ordered by
// column position. Used to resolve the nearest entity for a text match.
func (g *RelationshipGraph) MembersInSheet(sheetID string) []models.EntityMember {
	return g.bySheet[sheetID]
}
