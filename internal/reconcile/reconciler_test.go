package reconcile

import (
	"context"
	"sync"
	"testing"

	"github.com/go-playground/assert/v2"

	"go-canvas/internal/design"
	"go-canvas/internal/protocol"
	"go-canvas/internal/scene"
)

// fakeChannel records outbound messages and lets tests inject inbound ones,
// standing in for the websocket relay.
type fakeChannel struct {
	mu       sync.Mutex
	sent     []any
	messages chan []byte
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{messages: make(chan []byte, 64)}
}

func (f *fakeChannel) Connect(_ context.Context) error { return nil }

func (f *fakeChannel) Send(msg any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeChannel) Messages() <-chan []byte { return f.messages }
func (f *fakeChannel) Close() error            { close(f.messages); return nil }

// ops returns the element operations sent so far.
func (f *fakeChannel) ops() []*protocol.Operation {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*protocol.Operation
	for _, msg := range f.sent {
		if op, ok := msg.(*protocol.Operation); ok {
			out = append(out, op)
		}
	}
	return out
}

func newPeer(userID string) (*Reconciler, *fakeChannel) {
	ch := newFakeChannel()
	st := scene.NewStore(scene.NewScene(1920, 1080), 0)
	return NewReconciler("d1", userID, "user "+userID, st, ch), ch
}

// deliver feeds another peer's operation through the wire encoding, as the
// relay would.
func deliver(r *Reconciler, op *protocol.Operation) {
	r.HandleMessage(protocol.Encode(op))
}

func zOrder(r *Reconciler) []string {
	var ids []string
	for _, el := range r.Store().SortedByZ() {
		ids = append(ids, el.ID)
	}
	return ids
}

func TestLocalEditIsBroadcast(t *testing.T) {
	a, ch := newPeer("u1")

	el := a.AddElement(&scene.Element{Type: scene.TypeRect})
	a.UpdateElement(el.ID, map[string]any{"fill": "#112233"})

	ops := ch.ops()
	assert.Equal(t, len(ops), 2)
	assert.Equal(t, ops[0].Type, protocol.MsgElementAdded)
	assert.Equal(t, ops[0].UserID, "u1")
	assert.Equal(t, ops[0].Element.ID, el.ID)
	assert.Equal(t, ops[1].Type, protocol.MsgElementUpdated)
	assert.Equal(t, ops[1].Updates["fill"], "#112233")
	// Origin and send time are stamped on every outbound operation.
	assert.Equal(t, ops[1].Timestamp > 0, true)
}

func TestEchoSuppression(t *testing.T) {
	a, ch := newPeer("u1")
	a.AddElement(&scene.Element{Type: scene.TypeRect})

	histBefore := a.Store().HistoryLen()
	sceneBefore := a.Store().Scene()

	// The relay fans our own operation back to us.
	deliver(a, ch.ops()[0])

	assert.Equal(t, a.Store().HistoryLen(), histBefore)
	assert.Equal(t, len(a.Store().Scene().Elements), len(sceneBefore.Elements))
}

func TestIdempotentAdd(t *testing.T) {
	a, _ := newPeer("u1")
	op := protocol.NewOperation(protocol.MsgElementAdded, "d1", "e1", "u2")
	op.Element = &scene.Element{ID: "e1", Type: scene.TypeRect, Version: 1}

	deliver(a, op)
	deliver(a, op)

	assert.Equal(t, len(a.Store().Scene().Elements), 1)
}

func TestConvergenceUnderReorderedDelivery(t *testing.T) {
	a, chA := newPeer("u1")
	b, _ := newPeer("u2")

	r1 := a.AddElement(&scene.Element{Type: scene.TypeRect})
	c1 := a.AddElement(&scene.Element{Type: scene.TypeCircle})
	a.UpdateElement(r1.ID, map[string]any{"fill": "#aa0000"})
	a.MoveElement(c1.ID, 300, 200)

	// B receives the same operations shuffled; updates and adds for
	// different elements commute.
	ops := chA.ops()
	deliver(b, ops[1]) // add c1
	deliver(b, ops[3]) // move c1
	deliver(b, ops[0]) // add r1
	deliver(b, ops[2]) // update r1

	sceneA := a.Store().SortedByZ()
	sceneB := b.Store().SortedByZ()
	assert.Equal(t, len(sceneB), len(sceneA))
	for i := range sceneA {
		assert.Equal(t, sceneB[i].ID, sceneA[i].ID)
		assert.Equal(t, sceneB[i].X, sceneA[i].X)
		assert.Equal(t, sceneB[i].Fill, sceneA[i].Fill)
		assert.Equal(t, sceneB[i].Version, sceneA[i].Version)
	}
}

func TestUpdateForUnknownElementIsDropped(t *testing.T) {
	a, _ := newPeer("u1")

	op := protocol.NewOperation(protocol.MsgElementUpdated, "d1", "ghost", "u2")
	op.Updates = map[string]any{"x": 9.0}
	deliver(a, op) // must not panic, must not create the element

	assert.Equal(t, len(a.Store().Scene().Elements), 0)

	// Deleting something we never had is a clean no-op too.
	deliver(a, protocol.NewOperation(protocol.MsgElementDeleted, "d1", "ghost", "u2"))
	assert.Equal(t, len(a.Store().Scene().Elements), 0)
}

func TestZDirectivesConvergeAcrossBaselines(t *testing.T) {
	// Same relative order [x, y, z] on both peers, different absolute
	// zIndex values.
	build := func(r *Reconciler, base int) {
		r.Store().InsertRemote(&scene.Element{ID: "x", Type: scene.TypeRect, ZIndex: base, Version: 1})
		r.Store().InsertRemote(&scene.Element{ID: "y", Type: scene.TypeRect, ZIndex: base + 2, Version: 1})
		r.Store().InsertRemote(&scene.Element{ID: "z", Type: scene.TypeRect, ZIndex: base + 5, Version: 1})
	}
	a, chA := newPeer("u1")
	b, _ := newPeer("u2")
	build(a, 0)
	build(b, 10)

	a.ZOrder("x", scene.ZFront)
	a.ZOrder("y", scene.ZForward)
	for _, op := range chA.ops() {
		deliver(b, op)
	}

	assert.Equal(t, zOrder(a), []string{"z", "x", "y"})
	assert.Equal(t, zOrder(b), zOrder(a))
}

func TestZOrderBoundaryNotBroadcast(t *testing.T) {
	a, ch := newPeer("u1")
	el := a.AddElement(&scene.Element{Type: scene.TypeRect})

	sent := len(ch.ops())
	assert.Equal(t, a.ZOrder(el.ID, scene.ZFront), false)
	assert.Equal(t, len(ch.ops()), sent)
}

func TestUndoIsLocalOnly(t *testing.T) {
	a, chA := newPeer("u1")
	b, _ := newPeer("u2")

	r1 := a.AddElement(&scene.Element{Type: scene.TypeRect})
	a.AddElement(&scene.Element{Type: scene.TypeCircle})
	a.ZOrder(r1.ID, scene.ZFront)
	for _, op := range chA.ops() {
		deliver(b, op)
	}
	assert.Equal(t, zOrder(b), zOrder(a))

	// Undo reverts A alone; nothing goes out on the wire.
	sent := len(chA.ops())
	assert.Equal(t, a.Undo(), true)
	assert.Equal(t, len(chA.ops()), sent)
	assert.NotEqual(t, zOrder(a), zOrder(b))

	// The divergence heals at the next snapshot sync, where B's state
	// (higher element version) plays the role of the persisted truth.
	serverElements := b.Store().Scene().Elements
	a.ApplySync(&design.SyncResponse{
		NeedsFullSync: true,
		Design: &design.Design{
			ID:           "d1",
			CanvasWidth:  1920,
			CanvasHeight: 1080,
			Elements:     serverElements,
			Version:      2,
		},
	})
	assert.Equal(t, zOrder(a), zOrder(b))
}

func TestPresenceRoster(t *testing.T) {
	a, _ := newPeer("u1")

	a.HandleMessage(protocol.Encode(&protocol.JoinedDesign{
		Type:     protocol.MsgJoinedDesign,
		DesignID: "d1",
		Users: []protocol.UserPresence{
			{ID: "u1", DisplayName: "me"},
			{ID: "u2", DisplayName: "bo"},
		},
	}))
	// Self is not part of the peer roster.
	assert.Equal(t, len(a.Roster()), 1)

	a.HandleMessage(protocol.Encode(&protocol.UserJoined{
		Type: protocol.MsgUserJoined, UserID: "u3", UserName: "chen",
	}))
	a.HandleMessage(protocol.Encode(&protocol.UserCursor{
		Type: protocol.MsgUserCursor, UserID: "u3", UserName: "chen",
		Cursor: scene.Point{X: 5, Y: 6},
	}))
	assert.Equal(t, len(a.Roster()), 2)

	a.HandleMessage(protocol.Encode(&protocol.UserLeft{
		Type: protocol.MsgUserLeft, UserID: "u2",
	}))
	roster := a.Roster()
	assert.Equal(t, len(roster), 1)
	assert.Equal(t, roster[0].ID, "u3")
	assert.Equal(t, roster[0].Cursor.X, 5.0)
}

func TestRefreshSignalTriggersCallback(t *testing.T) {
	a, _ := newPeer("u1")
	fired := 0
	a.OnRefresh = func() { fired++ }

	a.HandleMessage(protocol.Encode(&protocol.RefreshSignal{
		Type: protocol.MsgRefreshSignal, DesignID: "d1", UserID: "u2", UserName: "bo",
	}))
	// Our own refresh signal echoed back must not re-trigger a fetch.
	a.HandleMessage(protocol.Encode(&protocol.RefreshSignal{
		Type: protocol.MsgRefreshSignal, DesignID: "d1", UserID: "u1", UserName: "me",
	}))

	assert.Equal(t, fired, 1)
}
