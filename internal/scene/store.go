package scene

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ZDirective is a symbolic z-order instruction. It is broadcast instead of an
// absolute zIndex so that every peer recomputes the same relative order even
// when absolute values differ across peers.
type ZDirective string

const (
	ZFront    ZDirective = "front"
	ZBack     ZDirective = "back"
	ZForward  ZDirective = "forward"
	ZBackward ZDirective = "backward"
)

// DuplicateOffset is applied to both axes when duplicating an element.
const DuplicateOffset = 20

// Store owns the scene for one editing session. Every mutation, local or
// remote, flows through it so that version/timestamp bumping and history
// bookkeeping cannot be bypassed. Local mutations return the change to
// broadcast; remote applications never re-broadcast.
type Store struct {
	mu      sync.Mutex
	scene   *Scene
	history *History

	// Now is swappable for tests.
	Now func() time.Time
}

func NewStore(sc *Scene, maxHistory int) *Store {
	if sc == nil {
		sc = NewScene(0, 0)
	}
	return &Store{
		scene:   sc,
		history: NewHistory(sc, maxHistory),
		Now:     time.Now,
	}
}

// Scene returns a deep copy for reading. Mutation goes through the Store.
func (s *Store) Scene() *Scene {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scene.Clone()
}

// Element returns a copy of one element, or nil if absent.
func (s *Store) Element(id string) *Element {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el := s.scene.Find(id); el != nil {
		return el.Clone()
	}
	return nil
}

// SortedByZ returns the elements in paint order. Ties are broken by id so
// the order is identical on every peer regardless of local slice layout.
func (s *Store) SortedByZ() []*Element {
	sc := s.Scene()
	sortByZ(sc.Elements)
	return sc.Elements
}

func sortByZ(els []*Element) {
	sort.SliceStable(els, func(i, j int) bool {
		if els[i].ZIndex != els[j].ZIndex {
			return els[i].ZIndex < els[j].ZIndex
		}
		return els[i].ID < els[j].ID
	})
}

func (s *Store) HistoryLen() int    { s.mu.Lock(); defer s.mu.Unlock(); return s.history.Len() }
func (s *Store) HistoryCursor() int { s.mu.Lock(); defer s.mu.Unlock(); return s.history.Cursor() }

// touch bumps the version/timestamp of a mutated element. This is the only
// place versions are incremented.
func (s *Store) touch(el *Element) {
	el.Version++
	el.LastModified = s.Now()
}

// resortByZ keeps slice order consistent with zIndex order for legacy
// consumers that iterate instead of sorting.
func (s *Store) resortByZ() {
	sortByZ(s.scene.Elements)
}

func (s *Store) snapshot() {
	s.history.Push(s.scene)
}

// ---------------------------------------------
// Local mutations (optimistic, to be broadcast)
// ---------------------------------------------

// AddElement inserts a locally created element, assigning id, version 1 and a
// top zIndex. The returned copy is the payload for the element_added
// broadcast.
func (s *Store) AddElement(el *Element) *Element {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el.ID == "" {
		el.ID = uuid.NewString()
	}
	if len(s.scene.Elements) > 0 {
		el.ZIndex = s.scene.maxZ() + 1
	} else {
		el.ZIndex = 0
	}
	el.Version = 1
	el.LastModified = s.Now()
	s.scene.Elements = append(s.scene.Elements, el)
	s.snapshot()
	return el.Clone()
}

// UpdateElement merge-patches a local edit onto an element and returns the
// broadcastable updates map, augmented with the bumped version and timestamp
// so peers converge on the same counters. ok is false if the id is unknown.
func (s *Store) UpdateElement(id string, updates map[string]any) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el := s.scene.Find(id)
	if el == nil {
		return nil, false
	}
	if err := el.Patch(updates); err != nil {
		log.Printf("scene: bad update for %s: %v", id, err)
		return nil, false
	}
	s.touch(el)
	s.snapshot()

	out := make(map[string]any, len(updates)+2)
	for k, v := range updates {
		if k == "id" {
			// Patch discarded it; don't relay it either.
			continue
		}
		out[k] = v
	}
	out["version"] = el.Version
	out["lastModified"] = el.LastModified
	return out, true
}

// MoveElement is a position-only update.
func (s *Store) MoveElement(id string, x, y float64) (map[string]any, bool) {
	return s.UpdateElement(id, map[string]any{"x": x, "y": y})
}

// RemoveElement deletes by id. Deleting the selected element clears the
// selection (inside Scene.remove).
func (s *Store) RemoveElement(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.scene.remove(id) {
		return false
	}
	s.snapshot()
	return true
}

// Duplicate copies an element under a new id, offset by a fixed delta and
// placed on top. Returns the new element for broadcast as element_added.
func (s *Store) Duplicate(id string) *Element {
	s.mu.Lock()
	defer s.mu.Unlock()

	src := s.scene.Find(id)
	if src == nil {
		return nil
	}
	dup := src.Clone()
	dup.ID = uuid.NewString()
	dup.X += DuplicateOffset
	dup.Y += DuplicateOffset
	dup.ZIndex = s.scene.maxZ() + 1
	dup.Version = 1
	dup.LastModified = s.Now()
	s.scene.Elements = append(s.scene.Elements, dup)
	s.snapshot()
	return dup.Clone()
}

// ApplyZ performs a local z-order mutation. Returns false when the directive
// is a boundary no-op (already at front/back) or the id is unknown; a false
// result must not be broadcast.
func (s *Store) ApplyZ(id string, dir ZDirective) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyZ(id, dir)
}

// applyZ recomputes zIndex relative to the current max/min or the immediate
// neighbor by zIndex, never by slice position.
func (s *Store) applyZ(id string, dir ZDirective) bool {
	el := s.scene.Find(id)
	if el == nil {
		return false
	}

	switch dir {
	case ZFront:
		// Bound is taken over the other elements so a tie at the top (a
		// bring-forward collision) can still be raised past its partner.
		top, ok := s.maxZOther(el)
		if !ok || el.ZIndex > top {
			return false
		}
		el.ZIndex = top + 1
	case ZBack:
		bottom, ok := s.minZOther(el)
		if !ok || el.ZIndex < bottom {
			return false
		}
		el.ZIndex = bottom - 1
	case ZForward:
		above, ok := s.nextAbove(el)
		if !ok {
			return false
		}
		el.ZIndex = above + 1
	case ZBackward:
		below, ok := s.nextBelow(el)
		if !ok {
			return false
		}
		el.ZIndex = below - 1
	default:
		return false
	}

	s.touch(el)
	s.resortByZ()
	s.snapshot()
	return true
}

// maxZOther returns the highest zIndex among the elements other than el.
func (s *Store) maxZOther(el *Element) (int, bool) {
	best, found := 0, false
	for _, other := range s.scene.Elements {
		if other.ID == el.ID {
			continue
		}
		if !found || other.ZIndex > best {
			best = other.ZIndex
			found = true
		}
	}
	return best, found
}

func (s *Store) minZOther(el *Element) (int, bool) {
	best, found := 0, false
	for _, other := range s.scene.Elements {
		if other.ID == el.ID {
			continue
		}
		if !found || other.ZIndex < best {
			best = other.ZIndex
			found = true
		}
	}
	return best, found
}

// nextAbove returns the zIndex of the nearest element strictly above el.
func (s *Store) nextAbove(el *Element) (int, bool) {
	best, found := 0, false
	for _, other := range s.scene.Elements {
		if other.ID == el.ID || other.ZIndex <= el.ZIndex {
			continue
		}
		if !found || other.ZIndex < best {
			best = other.ZIndex
			found = true
		}
	}
	return best, found
}

func (s *Store) nextBelow(el *Element) (int, bool) {
	best, found := 0, false
	for _, other := range s.scene.Elements {
		if other.ID == el.ID || other.ZIndex >= el.ZIndex {
			continue
		}
		if !found || other.ZIndex > best {
			best = other.ZIndex
			found = true
		}
	}
	return best, found
}

// Select marks an element as selected locally. Selection is never broadcast
// as part of the scene; presence messages carry it separately.
func (s *Store) Select(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != "" && s.scene.Find(id) == nil {
		return
	}
	s.scene.SelectedID = id
}

func (s *Store) Selected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scene.SelectedID
}

// ---------------------------------------------
// Undo / redo (local-only, never broadcast)
// ---------------------------------------------

func (s *Store) Undo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, ok := s.history.Undo()
	if !ok {
		return false
	}
	sc.SelectedID = ""
	s.scene = sc
	return true
}

func (s *Store) Redo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, ok := s.history.Redo()
	if !ok {
		return false
	}
	sc.SelectedID = ""
	s.scene = sc
	return true
}

// ---------------------------------------------
// Remote applications (same mutation path, no re-broadcast)
// ---------------------------------------------

// InsertRemote applies an element_added from a peer. The embedded version is
// trusted as the baseline. Insert-if-absent makes duplicate delivery a no-op.
func (s *Store) InsertRemote(el *Element) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scene.Find(el.ID) != nil {
		return false
	}
	s.scene.Elements = append(s.scene.Elements, el.Clone())
	s.resortByZ()
	s.snapshot()
	return true
}

// PatchRemote applies a partial update from a peer. The updates map carries
// the sender's bumped version/lastModified, so the element is not re-touched
// here. An unknown id is reported as false; the caller drops the operation.
func (s *Store) PatchRemote(id string, updates map[string]any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	el := s.scene.Find(id)
	if el == nil {
		return false
	}
	if err := el.Patch(updates); err != nil {
		log.Printf("scene: bad remote update for %s: %v", id, err)
		return false
	}
	s.snapshot()
	return true
}

// RemoveRemote deletes by id; unknown ids are a no-op.
func (s *Store) RemoveRemote(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.scene.remove(id) {
		return false
	}
	s.snapshot()
	return true
}

// ApplyZRemote translates a symbolic z-order directive from a peer into the
// same recomputation used locally. The version bump mirrors the sender's, so
// counters stay converged.
func (s *Store) ApplyZRemote(id string, dir ZDirective) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyZ(id, dir)
}

// ReplaceScene swaps in a reconciled scene after a snapshot sync and records
// it in history as one step.
func (s *Store) ReplaceScene(sc *Scene) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc = sc.Clone()
	sc.SelectedID = ""
	s.scene = sc
	s.snapshot()
}
