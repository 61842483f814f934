package reconcile

import (
	"sort"
	"time"

	"go-canvas/internal/design"
	"go-canvas/internal/scene"
)

// ConflictWindow is how close two equal-version timestamps must be before a
// divergence counts as a genuine conflict instead of a clean last-write.
const ConflictWindow = time.Second

type Resolution string

const (
	ResolutionServer Resolution = "server"
	ResolutionLocal  Resolution = "local"
)

// Conflict is a genuine concurrent edit surfaced for visibility. No
// field-level merge is attempted; the default resolution is server-wins.
type Conflict struct {
	ElementID  string         `json:"elementId"`
	Local      *scene.Element `json:"local"`
	Server     *scene.Element `json:"server"`
	Resolution Resolution     `json:"resolution"`
}

// Reconcile merges local and server element sets after a disconnect or on a
// periodic sync. Rules, per element:
//   - only local: kept (the server has not seen this addition yet)
//   - only server: adopted
//   - both, differing versions: higher version wins
//   - equal versions: later lastModified wins; within ConflictWindow the
//     divergence is reported as a Conflict and the server copy is taken.
func Reconcile(local, server []*scene.Element) ([]*scene.Element, []Conflict) {
	serverByID := make(map[string]*scene.Element, len(server))
	for _, el := range server {
		serverByID[el.ID] = el
	}

	merged := make([]*scene.Element, 0, len(local)+len(server))
	var conflicts []Conflict
	seen := make(map[string]bool, len(local))

	for _, loc := range local {
		seen[loc.ID] = true
		srv, ok := serverByID[loc.ID]
		if !ok {
			merged = append(merged, loc.Clone())
			continue
		}

		switch {
		case loc.Version < srv.Version:
			merged = append(merged, srv.Clone())
		case loc.Version > srv.Version:
			merged = append(merged, loc.Clone())
		default:
			merged = append(merged, resolveEqualVersions(loc, srv, &conflicts))
		}
	}

	for _, srv := range server {
		if !seen[srv.ID] {
			merged = append(merged, srv.Clone())
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].ZIndex != merged[j].ZIndex {
			return merged[i].ZIndex < merged[j].ZIndex
		}
		return merged[i].ID < merged[j].ID
	})
	return merged, conflicts
}

func resolveEqualVersions(loc, srv *scene.Element, conflicts *[]Conflict) *scene.Element {
	delta := loc.LastModified.Sub(srv.LastModified)
	if delta < 0 {
		delta = -delta
	}
	if delta <= ConflictWindow {
		*conflicts = append(*conflicts, Conflict{
			ElementID:  loc.ID,
			Local:      loc.Clone(),
			Server:     srv.Clone(),
			Resolution: ResolutionServer,
		})
		return srv.Clone()
	}
	if loc.LastModified.After(srv.LastModified) {
		return loc.Clone()
	}
	return srv.Clone()
}

// ApplySync folds a sync response into the store. It is advisory and
// defensive: the live relay keeps peers converged in normal operation, and
// this path catches up after disconnects. Returns any genuine conflicts.
func (r *Reconciler) ApplySync(resp *design.SyncResponse) []Conflict {
	if !resp.NeedsFullSync || resp.Design == nil {
		return nil
	}

	local := r.store.Scene()
	merged, conflicts := Reconcile(local.Elements, resp.Design.Elements)

	sc := scene.NewScene(resp.Design.CanvasWidth, resp.Design.CanvasHeight)
	sc.Elements = merged
	r.store.ReplaceScene(sc)
	return conflicts
}
