package firestore

import (
	"testing"

	"cloud.google.com/go/firestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func docRef(coll, docID string) *firestore.DocumentRef {
	parent := &firestore.CollectionRef{ID: coll, Path: "projects/p/databases/(default)/documents/" + coll}
	return &firestore.DocumentRef{Parent: parent, ID: docID, Path: parent.Path + "/" + docID}
}

func TestTxState_StageKeepsCreateFlag(t *testing.T) {
	s := newTxState(nil, false)
	ref := docRef("lots", "a")

	s.stage(staged{ref: ref, value: lotDoc{ID: "a", Version: 1}, version: 1, create: true})
	s.stage(staged{ref: ref, value: lotDoc{ID: "a", Version: 2}, version: 2})

	require.Len(t, s.order, 1)
	w := s.writes[ref.Path]
	assert.True(t, w.create, "a document created in this transaction stays a create")
	assert.Equal(t, 2, w.version)
	assert.Equal(t, 2, w.value.(lotDoc).Version)
}

func TestTxState_RestoreDropsNestedWrites(t *testing.T) {
	s := newTxState(nil, false)
	outer := docRef("lots", "outer")
	inner := docRef("lots", "inner")

	s.stage(staged{ref: outer, value: lotDoc{ID: "outer"}, version: 1, create: true})
	save := s.snapshot()
	s.stage(staged{ref: inner, value: lotDoc{ID: "inner"}, version: 1, create: true})
	s.seen[inner.Path] = 3

	s.restore(save)

	assert.Equal(t, []string{outer.Path}, s.order)
	assert.Contains(t, s.writes, outer.Path)
	assert.NotContains(t, s.writes, inner.Path)
	assert.NotContains(t, s.seen, inner.Path)
}

func TestTxState_CurrentVersionPrefersStagedWrites(t *testing.T) {
	s := newTxState(nil, false)
	ref := docRef("products", "p1")
	s.seen[ref.Path] = 4

	v, ok, err := s.currentVersion(ref)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 4, v)

	s.stage(staged{ref: ref, value: productDoc{ID: "p1", Version: 5}, version: 5})
	v, ok, err = s.currentVersion(ref)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 5, v)
}
