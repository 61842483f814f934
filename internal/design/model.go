package design

import (
	"errors"
	"time"

	"go-canvas/internal/scene"
)

var (
	ErrNotFound        = errors.New("design not found")
	ErrVersionConflict = errors.New("design version conflict")
)

// Design is the persisted form of one canvas. Version is bumped on every
// successful save; concurrent saves detect conflicts through it instead of a
// lock.
type Design struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	OwnerID      int              `json:"ownerId"`
	CanvasWidth  float64          `json:"canvasWidth"`
	CanvasHeight float64          `json:"canvasHeight"`
	Elements     []*scene.Element `json:"elements"`
	Version      int64            `json:"version"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

// ElementVersion is the per-element digest used during reconciliation, so
// divergence can be resolved without shipping full payloads.
type ElementVersion struct {
	ID           string    `json:"id"`
	Version      int64     `json:"version"`
	LastModified time.Time `json:"lastModified"`
}

// Digest summarizes elements for the sync response.
func Digest(elements []*scene.Element) []ElementVersion {
	out := make([]ElementVersion, 0, len(elements))
	for _, el := range elements {
		out = append(out, ElementVersion{
			ID:           el.ID,
			Version:      el.Version,
			LastModified: el.LastModified,
		})
	}
	return out
}

type SyncResponse struct {
	DesignID        string           `json:"designId"`
	Version         int64            `json:"version"`
	LastSyncAt      time.Time        `json:"lastSyncAt"`
	NeedsFullSync   bool             `json:"needsFullSync"`
	Design          *Design          `json:"design,omitempty"`
	ElementVersions []ElementVersion `json:"elementVersions,omitempty"`
}

// BuildSyncResponse implements the server side of snapshot sync: no prior
// version means a full sync; a matching version means nothing to do; a
// mismatch returns both the digest list and the full design so the client
// can reconcile field-by-field instead of overwriting unconditionally.
func BuildSyncResponse(d *Design, clientVersion *int64, now time.Time) *SyncResponse {
	resp := &SyncResponse{
		DesignID:   d.ID,
		Version:    d.Version,
		LastSyncAt: now,
	}
	if clientVersion == nil {
		resp.NeedsFullSync = true
		resp.Design = d
		return resp
	}
	if *clientVersion == d.Version {
		return resp
	}
	resp.NeedsFullSync = true
	resp.Design = d
	resp.ElementVersions = Digest(d.Elements)
	return resp
}

type SaveRequest struct {
	Elements     []*scene.Element `json:"elements"`
	CanvasWidth  float64          `json:"canvasWidth"`
	CanvasHeight float64          `json:"canvasHeight"`
	BaseVersion  int64            `json:"baseVersion"`
}

type SaveResponse struct {
	DesignID  string    `json:"designId"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type CreateRequest struct {
	Name         string  `json:"name"`
	CanvasWidth  float64 `json:"canvasWidth"`
	CanvasHeight float64 `json:"canvasHeight"`
}

// Comment is a design comment. The comment UI itself lives elsewhere; this is
// just its storage.
type Comment struct {
	ID        int       `json:"id"`
	DesignID  string    `json:"designId"`
	UserID    int       `json:"userId"`
	Username  string    `json:"username"` // Denormalized for UI speed (fetched via JOIN)
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}
