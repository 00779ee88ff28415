package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varia-hq/varia-engine/pkg/models"
)

func member(id uuid.UUID, sheetID string, index int) models.EntityMember {
	return models.EntityMember{EntityID: id, SheetID: sheetID, ColumnName: "c", ColumnIndex: index}
}

func TestRelatedEntitiesOrderedByWeight(t *testing.T) {
	a := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	b := uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	c := uuid.MustParse("00000000-0000-0000-0000-00000000000c")
	entities := []models.Entity{{ID: a}, {ID: b}, {ID: c}}

	// a and b share two sheets, a and c share one
	members := []models.EntityMember{
		member(a, "s1", 0), member(b, "s1", 1),
		member(a, "s2", 0), member(b, "s2", 1),
		member(a, "s3", 0), member(c, "s3", 1),
	}
	g := BuildRelationshipGraph(entities, members)

	related := g.RelatedEntities(a, 5)
	require.Equal(t, []uuid.UUID{b, c}, related)

	assert.Equal(t, []uuid.UUID{a}, g.RelatedEntities(b, 5))
	assert.Equal(t, 2, g.Degree(a))
	assert.Equal(t, 1, g.Degree(c))
}

func TestRelatedEntitiesLimitAndTies(t *testing.T) {
	a := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	b := uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	c := uuid.MustParse("00000000-0000-0000-0000-00000000000c")
	d := uuid.MustParse("00000000-0000-0000-0000-00000000000d")
	entities := []models.Entity{{ID: a}, {ID: b}, {ID: c}, {ID: d}}

	members := []models.EntityMember{
		member(a, "s1", 0), member(b, "s1", 1), member(c, "s1", 2), member(d, "s1", 3),
	}
	g := BuildRelationshipGraph(entities, members)

	// equal weights resolve by id order, and k truncates
	assert.Equal(t, []uuid.UUID{b, c, d}, g.RelatedEntities(a, 5))
	assert.Equal(t, []uuid.UUID{b, c}, g.RelatedEntities(a, 2))
	assert.Nil(t, g.RelatedEntities(a, 0))
}

func TestMembersInSheetOrderedByColumn(t *testing.T) {
	a := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	b := uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	entities := []models.Entity{{ID: a}, {ID: b}}

	members := []models.EntityMember{
		member(b, "s1", 3), member(a, "s1", 0),
	}
	g := BuildRelationshipGraph(entities, members)

	got := g.MembersInSheet("s1")
	require.Len(t, got, 2)
	assert.Equal(t, a, got[0].EntityID)
	assert.Equal(t, b, got[1].EntityID)
	assert.Empty(t, g.MembersInSheet("unseen"))
}

func TestGraphUnknownEntity(t *testing.T) {
	g := BuildRelationshipGraph(nil, nil)
	assert.Nil(t, g.RelatedEntities(uuid.New(), 3))
	assert.Zero(t, g.Degree(uuid.New()))
}
