package scene

// DefaultMaxHistory caps the undo history ring.
const DefaultMaxHistory = 50

// History is a bounded list of full Scene snapshots plus a cursor.
// snapshots[cursor] is always the currently materialized scene. A fresh edit
// truncates the redo branch; exceeding the cap evicts the oldest snapshot and
// shifts the cursor.
type History struct {
	snapshots []*Scene
	cursor    int
	max       int
}

func NewHistory(initial *Scene, max int) *History {
	if max <= 0 {
		max = DefaultMaxHistory
	}
	return &History{
		snapshots: []*Scene{initial.Clone()},
		cursor:    0,
		max:       max,
	}
}

// Push records a new snapshot after a mutation, discarding any redo branch.
func (h *History) Push(s *Scene) {
	h.snapshots = append(h.snapshots[:h.cursor+1], s.Clone())
	if len(h.snapshots) > h.max {
		h.snapshots = h.snapshots[1:]
	}
	h.cursor = len(h.snapshots) - 1
}

// Undo moves the cursor back and returns the re-materialized scene.
// At the oldest snapshot it is a no-op, not an error.
func (h *History) Undo() (*Scene, bool) {
	if h.cursor == 0 {
		return nil, false
	}
	h.cursor--
	return h.snapshots[h.cursor].Clone(), true
}

// Redo moves the cursor forward. No-op at the newest snapshot.
func (h *History) Redo() (*Scene, bool) {
	if h.cursor >= len(h.snapshots)-1 {
		return nil, false
	}
	h.cursor++
	return h.snapshots[h.cursor].Clone(), true
}

func (h *History) Len() int    { return len(h.snapshots) }
func (h *History) Cursor() int { return h.cursor }
