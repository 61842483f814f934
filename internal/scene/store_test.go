package scene

import (
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func zOrder(st *Store) []string {
	var ids []string
	for _, el := range st.SortedByZ() {
		ids = append(ids, el.ID)
	}
	return ids
}

func TestAddAssignsVersionAndTopZ(t *testing.T) {
	st := NewStore(NewScene(800, 600), 0)

	a := st.AddElement(&Element{Type: TypeRect})
	b := st.AddElement(&Element{Type: TypeCircle})

	assert.Equal(t, a.Version, int64(1))
	assert.Equal(t, a.ZIndex, 0)
	assert.Equal(t, b.ZIndex, 1)
	assert.Equal(t, a.ID != "", true)
	assert.Equal(t, a.ID != b.ID, true)
}

func TestUpdateBumpsVersionOnce(t *testing.T) {
	st := NewStore(NewScene(800, 600), 0)
	el := st.AddElement(&Element{Type: TypeRect})

	updates, ok := st.UpdateElement(el.ID, map[string]any{"x": 50.0, "fill": "#ff0000"})
	assert.Equal(t, ok, true)
	assert.Equal(t, updates["version"], int64(2))

	got := st.Element(el.ID)
	assert.Equal(t, got.Version, int64(2))
	assert.Equal(t, got.X, 50.0)
	assert.Equal(t, got.Fill, "#ff0000")
}

func TestUpdateUnknownElement(t *testing.T) {
	st := NewStore(NewScene(800, 600), 0)
	_, ok := st.UpdateElement("ghost", map[string]any{"x": 1.0})
	assert.Equal(t, ok, false)
}

func TestRemoveSelectedClearsSelection(t *testing.T) {
	st := NewStore(NewScene(800, 600), 0)
	el := st.AddElement(&Element{Type: TypeRect})
	st.Select(el.ID)

	assert.Equal(t, st.RemoveElement(el.ID), true)
	assert.Equal(t, st.Selected(), "")
	assert.Equal(t, st.RemoveElement(el.ID), false)
}

func TestDuplicateOffsetsAndStacksOnTop(t *testing.T) {
	st := NewStore(NewScene(800, 600), 0)
	src := st.AddElement(&Element{Type: TypeRect, X: 100, Y: 40})
	st.AddElement(&Element{Type: TypeCircle})

	dup := st.Duplicate(src.ID)
	assert.Equal(t, dup.ID != src.ID, true)
	assert.Equal(t, dup.X, 120.0)
	assert.Equal(t, dup.Y, 60.0)
	assert.Equal(t, dup.ZIndex, 2)
	assert.Equal(t, dup.Version, int64(1))
}

func TestZOrderOps(t *testing.T) {
	st := NewStore(NewScene(800, 600), 0)
	a := st.AddElement(&Element{Type: TypeRect})    // z 0
	b := st.AddElement(&Element{Type: TypeCircle})  // z 1
	c := st.AddElement(&Element{Type: TypeText})    // z 2

	assert.Equal(t, st.ApplyZ(a.ID, ZFront), true)
	assert.Equal(t, zOrder(st), []string{b.ID, c.ID, a.ID})

	assert.Equal(t, st.ApplyZ(a.ID, ZBack), true)
	assert.Equal(t, zOrder(st), []string{a.ID, b.ID, c.ID})

	assert.Equal(t, st.ApplyZ(b.ID, ZForward), true)
	assert.Equal(t, zOrder(st), []string{a.ID, c.ID, b.ID})

	assert.Equal(t, st.ApplyZ(b.ID, ZBackward), true)
	assert.Equal(t, zOrder(st), []string{a.ID, b.ID, c.ID})
}

func TestZOrderBoundaryNoOps(t *testing.T) {
	st := NewStore(NewScene(800, 600), 0)
	a := st.AddElement(&Element{Type: TypeRect})
	b := st.AddElement(&Element{Type: TypeCircle})

	// b is already at the front.
	assert.Equal(t, st.ApplyZ(b.ID, ZFront), false)
	assert.Equal(t, st.ApplyZ(b.ID, ZForward), false)
	// a is already at the back.
	assert.Equal(t, st.ApplyZ(a.ID, ZBack), false)
	assert.Equal(t, st.ApplyZ(a.ID, ZBackward), false)
	// And unknown ids never move anything.
	assert.Equal(t, st.ApplyZ("ghost", ZFront), false)
}

func TestUpdateCannotRewriteIdentity(t *testing.T) {
	st := NewStore(NewScene(800, 600), 0)
	st.InsertRemote(&Element{ID: "e1", Type: TypeRect, Version: 1})
	st.InsertRemote(&Element{ID: "e2", Type: TypeCircle, Version: 1})

	// A remote update that tries to take over another element's id patches
	// the rest of the map and leaves both identities intact.
	ok := st.PatchRemote("e1", map[string]any{"id": "e2", "fill": "#fff", "version": 2})
	assert.Equal(t, ok, true)
	assert.Equal(t, st.Element("e1").Fill, "#fff")
	assert.Equal(t, st.Element("e2").Fill, "")
	assert.Equal(t, len(st.Scene().Elements), 2)

	// The local path discards the key before broadcasting too.
	out, ok := st.UpdateElement("e1", map[string]any{"id": "zzz", "x": 5.0})
	assert.Equal(t, ok, true)
	_, leaked := out["id"]
	assert.Equal(t, leaked, false)
	assert.Equal(t, st.Element("e1").X, 5.0)
	assert.Equal(t, st.Element("zzz") == nil, true)
}

func TestBringToFrontResolvesTopTie(t *testing.T) {
	st := NewStore(NewScene(800, 600), 0)
	st.InsertRemote(&Element{ID: "a", Type: TypeRect, ZIndex: 0})
	st.InsertRemote(&Element{ID: "b", Type: TypeCircle, ZIndex: 1})
	st.InsertRemote(&Element{ID: "c", Type: TypeText, ZIndex: 2})

	// Bring-forward lands a on c's zIndex.
	assert.Equal(t, st.ApplyZ("a", ZForward), true)
	assert.Equal(t, st.Element("a").ZIndex, 2)

	// Tied at the top but painted below its partner; front still raises it.
	assert.Equal(t, st.ApplyZ("a", ZFront), true)
	assert.Equal(t, st.Element("a").ZIndex, 3)

	// Strictly on top now, so front is back to a no-op.
	assert.Equal(t, st.ApplyZ("a", ZFront), false)
}

func TestSendToBackResolvesBottomTie(t *testing.T) {
	st := NewStore(NewScene(800, 600), 0)
	st.InsertRemote(&Element{ID: "x", Type: TypeRect, ZIndex: 0})
	st.InsertRemote(&Element{ID: "y", Type: TypeCircle, ZIndex: 0})

	assert.Equal(t, st.ApplyZ("y", ZBack), true)
	assert.Equal(t, st.Element("y").ZIndex, -1)
	assert.Equal(t, st.ApplyZ("y", ZBack), false)
}

func TestSliceOrderMatchesZOrder(t *testing.T) {
	st := NewStore(NewScene(800, 600), 0)
	a := st.AddElement(&Element{Type: TypeRect})
	b := st.AddElement(&Element{Type: TypeCircle})
	st.ApplyZ(a.ID, ZFront)

	// Legacy consumers that iterate in slice order must see the same
	// ordering as a zIndex sort.
	sc := st.Scene()
	assert.Equal(t, sc.Elements[0].ID, b.ID)
	assert.Equal(t, sc.Elements[1].ID, a.ID)
}

func TestInsertRemoteIsIdempotent(t *testing.T) {
	st := NewStore(NewScene(800, 600), 0)
	el := &Element{ID: "r1", Type: TypeRect, Version: 7, ZIndex: 3}

	assert.Equal(t, st.InsertRemote(el), true)
	assert.Equal(t, st.InsertRemote(el), false)

	sc := st.Scene()
	assert.Equal(t, len(sc.Elements), 1)
	// The embedded version is trusted as the baseline.
	assert.Equal(t, sc.Elements[0].Version, int64(7))
}

func TestPatchRemoteTrustsSenderCounters(t *testing.T) {
	st := NewStore(NewScene(800, 600), 0)
	st.InsertRemote(&Element{ID: "r1", Type: TypeRect, Version: 1})

	ok := st.PatchRemote("r1", map[string]any{"x": 10.0, "version": 2})
	assert.Equal(t, ok, true)

	got := st.Element("r1")
	assert.Equal(t, got.X, 10.0)
	assert.Equal(t, got.Version, int64(2))

	assert.Equal(t, st.PatchRemote("ghost", map[string]any{"x": 1.0}), false)
}

func TestRemoteMutationsRecordHistory(t *testing.T) {
	st := NewStore(NewScene(800, 600), 0)
	st.InsertRemote(&Element{ID: "r1", Type: TypeRect, Version: 1})
	st.PatchRemote("r1", map[string]any{"x": 5.0, "version": 2})

	// Undo can reverse remotely-originated edits too.
	assert.Equal(t, st.Undo(), true)
	assert.Equal(t, st.Element("r1").X, 0.0)
	assert.Equal(t, st.Undo(), true)
	assert.Equal(t, st.Element("r1") == nil, true)
}

func TestTouchUsesInjectedClock(t *testing.T) {
	st := NewStore(NewScene(800, 600), 0)
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	st.Now = func() time.Time { return fixed }

	el := st.AddElement(&Element{Type: TypeRect})
	assert.Equal(t, el.LastModified, fixed)
}
