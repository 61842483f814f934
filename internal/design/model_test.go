package design

import (
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"go-canvas/internal/scene"
)

func sampleDesign() *Design {
	return &Design{
		ID:      "d1",
		Name:    "poster",
		Version: 7,
		Elements: []*scene.Element{
			{ID: "e1", Type: scene.TypeRect, Version: 3, LastModified: time.Unix(100, 0)},
			{ID: "e2", Type: scene.TypeText, Version: 1, LastModified: time.Unix(200, 0)},
		},
	}
}

func TestSyncWithoutClientVersionIsFull(t *testing.T) {
	d := sampleDesign()
	resp := BuildSyncResponse(d, nil, time.Unix(500, 0))

	assert.Equal(t, resp.NeedsFullSync, true)
	assert.Equal(t, resp.Design, d)
	assert.Equal(t, resp.Version, int64(7))
	assert.Equal(t, len(resp.ElementVersions), 0)
}

func TestSyncWithMatchingVersionIsEmpty(t *testing.T) {
	v := int64(7)
	resp := BuildSyncResponse(sampleDesign(), &v, time.Unix(500, 0))

	assert.Equal(t, resp.NeedsFullSync, false)
	assert.Equal(t, resp.Design == nil, true)
	assert.Equal(t, len(resp.ElementVersions), 0)
}

func TestSyncWithStaleVersionReturnsDigests(t *testing.T) {
	v := int64(4)
	d := sampleDesign()
	resp := BuildSyncResponse(d, &v, time.Unix(500, 0))

	assert.Equal(t, resp.NeedsFullSync, true)
	assert.Equal(t, resp.Design, d)
	assert.Equal(t, len(resp.ElementVersions), 2)
	assert.Equal(t, resp.ElementVersions[0].ID, "e1")
	assert.Equal(t, resp.ElementVersions[0].Version, int64(3))
	assert.Equal(t, resp.ElementVersions[1].LastModified, time.Unix(200, 0))
}

func TestDigestCarriesNoPayload(t *testing.T) {
	d := Digest(sampleDesign().Elements)
	assert.Equal(t, len(d), 2)
	assert.Equal(t, d[0], ElementVersion{
		ID:           "e1",
		Version:      3,
		LastModified: time.Unix(100, 0),
	})
}
