package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"go-canvas/internal/protocol"
	"go-canvas/internal/scene"
)

// joinTimeout bounds the wait for a joined_design acknowledgment.
const joinTimeout = 10 * time.Second

var ErrJoinTimeout = errors.New("no join acknowledgment from relay")

// Reconciler is the client-side heart of collaboration. Local edits are
// applied optimistically and broadcast best-effort; remote operations are
// applied through the same store so history stays consistent; self-echoes
// are discarded. It also keeps the presence roster for the room.
type Reconciler struct {
	designID string
	userID   string
	userName string

	store *scene.Store
	ch    Channel

	mu     sync.Mutex
	roster map[string]*protocol.UserPresence
	ack    chan *protocol.JoinedDesign

	// OnRefresh fires when a peer asks the room to re-fetch persisted
	// state after a save.
	OnRefresh func()
}

func NewReconciler(designID, userID, userName string, store *scene.Store, ch Channel) *Reconciler {
	return &Reconciler{
		designID: designID,
		userID:   userID,
		userName: userName,
		store:    store,
		ch:       ch,
		roster:   make(map[string]*protocol.UserPresence),
		ack:      make(chan *protocol.JoinedDesign, 1),
	}
}

func (r *Reconciler) Store() *scene.Store { return r.store }
func (r *Reconciler) UserID() string      { return r.userID }

// Join announces the session to the room and waits for the roster. Without
// an acknowledgment within the timeout the caller must retry or surface a
// connection error.
func (r *Reconciler) Join(ctx context.Context) ([]protocol.UserPresence, error) {
	err := r.ch.Send(&protocol.JoinDesign{
		Type:        protocol.MsgJoinDesign,
		DesignID:    r.designID,
		DisplayName: r.userName,
	})
	if err != nil {
		return nil, fmt.Errorf("join %s: %w", r.designID, err)
	}

	select {
	case joined := <-r.ack:
		return joined.Users, nil
	case <-time.After(joinTimeout):
		return nil, ErrJoinTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run consumes the channel until it closes. HandleMessage is also usable
// directly when the owner drives its own loop.
func (r *Reconciler) Run(ctx context.Context) {
	for {
		select {
		case data, ok := <-r.ch.Messages():
			if !ok {
				return
			}
			r.HandleMessage(data)
		case <-ctx.Done():
			return
		}
	}
}

// ---------------------------------------------
// Local edits: optimistic apply, then broadcast
// ---------------------------------------------

// AddElement applies a local add and broadcasts element_added with the full
// element payload.
func (r *Reconciler) AddElement(el *scene.Element) *scene.Element {
	added := r.store.AddElement(el)
	op := protocol.NewOperation(protocol.MsgElementAdded, r.designID, added.ID, r.userID)
	op.Element = added
	r.sendOp(op)
	return added
}

// UpdateElement applies a local attribute edit and broadcasts the partial
// update map the store produced (including the bumped version).
func (r *Reconciler) UpdateElement(id string, updates map[string]any) bool {
	applied, ok := r.store.UpdateElement(id, updates)
	if !ok {
		return false
	}
	op := protocol.NewOperation(protocol.MsgElementUpdated, r.designID, id, r.userID)
	op.Updates = applied
	r.sendOp(op)
	return true
}

// MoveElement is a position drag.
func (r *Reconciler) MoveElement(id string, x, y float64) bool {
	applied, ok := r.store.MoveElement(id, x, y)
	if !ok {
		return false
	}
	op := protocol.NewOperation(protocol.MsgElementMoved, r.designID, id, r.userID)
	op.Updates = applied
	r.sendOp(op)
	return true
}

// TransformElement covers rotation/scale edits.
func (r *Reconciler) TransformElement(id string, updates map[string]any) bool {
	applied, ok := r.store.UpdateElement(id, updates)
	if !ok {
		return false
	}
	op := protocol.NewOperation(protocol.MsgElementTransformed, r.designID, id, r.userID)
	op.Updates = applied
	r.sendOp(op)
	return true
}

// DeleteElement removes locally and broadcasts element_deleted.
func (r *Reconciler) DeleteElement(id string) bool {
	if !r.store.RemoveElement(id) {
		return false
	}
	r.sendOp(protocol.NewOperation(protocol.MsgElementDeleted, r.designID, id, r.userID))
	return true
}

// ZOrder applies a z-order directive locally and broadcasts it symbolically,
// so every peer recomputes the same relative order. Boundary no-ops are not
// broadcast.
func (r *Reconciler) ZOrder(id string, dir scene.ZDirective) bool {
	if !r.store.ApplyZ(id, dir) {
		return false
	}
	op := protocol.NewOperation(protocol.MsgElementMoved, r.designID, id, r.userID)
	op.Updates = map[string]any{"zIndex": string(dir)}
	r.sendOp(op)
	return true
}

// Duplicate clones an element locally; the clone is broadcast as a plain add.
func (r *Reconciler) Duplicate(id string) *scene.Element {
	dup := r.store.Duplicate(id)
	if dup == nil {
		return nil
	}
	op := protocol.NewOperation(protocol.MsgElementAdded, r.designID, dup.ID, r.userID)
	op.Element = dup
	r.sendOp(op)
	return dup
}

// Undo and Redo are local-only: there is no undo message type, so the revert
// is visible to peers only after the next snapshot sync.
func (r *Reconciler) Undo() bool { return r.store.Undo() }
func (r *Reconciler) Redo() bool { return r.store.Redo() }

// SendCursor publishes an ephemeral cursor position.
func (r *Reconciler) SendCursor(x, y float64) {
	r.send(&protocol.CursorMove{
		Type:     protocol.MsgCursorMove,
		DesignID: r.designID,
		X:        x,
		Y:        y,
	})
}

// SendSelection publishes the local selection for presence UI. nil clears it.
func (r *Reconciler) SendSelection(elementID *string) {
	r.send(&protocol.UserSelection{
		Type:      protocol.MsgUserSelection,
		DesignID:  r.designID,
		ElementID: elementID,
		UserID:    r.userID,
		UserName:  r.userName,
	})
}

// SendRefreshSignal tells peers to re-fetch persisted state after a save.
func (r *Reconciler) SendRefreshSignal() {
	r.send(&protocol.RefreshSignal{
		Type:     protocol.MsgRefreshSignal,
		DesignID: r.designID,
		UserID:   r.userID,
		UserName: r.userName,
	})
}

// sendOp is a single best-effort attempt. A lost operation is recovered by
// snapshot sync, never retransmitted.
func (r *Reconciler) sendOp(op *protocol.Operation) {
	r.send(op)
}

func (r *Reconciler) send(msg any) {
	if err := r.ch.Send(msg); err != nil {
		log.Printf("reconcile: send failed (will heal via sync): %v", err)
	}
}

// ---------------------------------------------
// Inbound
// ---------------------------------------------

// HandleMessage processes one relayed message. Errors are isolated per
// message; a bad payload never takes down the session.
func (r *Reconciler) HandleMessage(data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		log.Printf("reconcile: dropping message: %v", err)
		return
	}

	switch m := msg.(type) {
	case *protocol.Operation:
		r.applyRemote(m)

	case *protocol.JoinedDesign:
		r.seedRoster(m.Users)
		select {
		case r.ack <- m:
		default:
		}

	case *protocol.UserJoined:
		r.mu.Lock()
		r.roster[m.UserID] = &protocol.UserPresence{ID: m.UserID, DisplayName: m.UserName}
		r.mu.Unlock()

	case *protocol.UserLeft:
		r.mu.Lock()
		delete(r.roster, m.UserID)
		r.mu.Unlock()

	case *protocol.UserCursor:
		r.mu.Lock()
		p, ok := r.roster[m.UserID]
		if !ok {
			p = &protocol.UserPresence{ID: m.UserID, DisplayName: m.UserName}
			r.roster[m.UserID] = p
		}
		cursor := m.Cursor
		p.Cursor = &cursor
		r.mu.Unlock()

	case *protocol.UserSelection:
		r.mu.Lock()
		if p, ok := r.roster[m.UserID]; ok {
			p.SelectedElementID = m.ElementID
		}
		r.mu.Unlock()

	case *protocol.RefreshSignal:
		if m.UserID != r.userID && r.OnRefresh != nil {
			r.OnRefresh()
		}

	case *protocol.ErrorMessage:
		log.Printf("reconcile: relay error %s: %s", m.Code, m.Message)
	}
}

// applyRemote applies a peer's operation. The echo check is mandatory: the
// relay can legitimately fan a client's own operation back to it (multi
// instance bus), and double-application would corrupt history.
func (r *Reconciler) applyRemote(op *protocol.Operation) {
	if op.UserID == r.userID {
		return
	}

	switch op.Type {
	case protocol.MsgElementAdded:
		if op.Element == nil {
			log.Printf("reconcile: element_added without payload, dropped")
			return
		}
		r.store.InsertRemote(op.Element)

	case protocol.MsgElementDeleted:
		// Deleting an id we never had (or already deleted) is a no-op.
		r.store.RemoveRemote(op.ElementID)

	case protocol.MsgElementUpdated, protocol.MsgElementMoved, protocol.MsgElementTransformed:
		if dir, ok := op.ZDirective(); ok {
			r.store.ApplyZRemote(op.ElementID, dir)
			return
		}
		if !r.store.PatchRemote(op.ElementID, op.Updates) {
			// Likely a lost add; snapshot sync will heal it.
			log.Printf("reconcile: %s for unknown element %s, dropped", op.Type, op.ElementID)
		}
	}
}

func (r *Reconciler) seedRoster(users []protocol.UserPresence) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roster = make(map[string]*protocol.UserPresence, len(users))
	for i := range users {
		u := users[i]
		if u.ID == r.userID {
			continue
		}
		r.roster[u.ID] = &u
	}
}

// Roster returns a copy of the known peers.
func (r *Reconciler) Roster() []protocol.UserPresence {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]protocol.UserPresence, 0, len(r.roster))
	for _, p := range r.roster {
		out = append(out, *p)
	}
	return out
}
