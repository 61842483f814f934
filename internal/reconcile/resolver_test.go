package reconcile

import (
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"go-canvas/internal/scene"
)

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func el(id string, version int64, modified time.Time) *scene.Element {
	return &scene.Element{
		ID: id, Type: scene.TypeRect,
		Version: version, LastModified: modified,
	}
}

func findEl(els []*scene.Element, id string) *scene.Element {
	for _, e := range els {
		if e.ID == id {
			return e
		}
	}
	return nil
}

func TestLocalOnlyElementIsKept(t *testing.T) {
	merged, conflicts := Reconcile(
		[]*scene.Element{el("mine", 1, baseTime)},
		nil,
	)
	assert.Equal(t, len(merged), 1)
	assert.Equal(t, merged[0].ID, "mine")
	assert.Equal(t, len(conflicts), 0)
}

func TestServerOnlyElementIsAdopted(t *testing.T) {
	merged, _ := Reconcile(
		nil,
		[]*scene.Element{el("theirs", 3, baseTime)},
	)
	assert.Equal(t, len(merged), 1)
	assert.Equal(t, merged[0].ID, "theirs")
	assert.Equal(t, merged[0].Version, int64(3))
}

func TestHigherVersionWins(t *testing.T) {
	local := el("e1", 2, baseTime)
	local.X = 10
	server := el("e1", 5, baseTime)
	server.X = 99

	merged, conflicts := Reconcile([]*scene.Element{local}, []*scene.Element{server})
	assert.Equal(t, findEl(merged, "e1").X, 99.0)
	assert.Equal(t, len(conflicts), 0)

	// And the other way around.
	local.Version, server.Version = 5, 2
	merged, conflicts = Reconcile([]*scene.Element{local}, []*scene.Element{server})
	assert.Equal(t, findEl(merged, "e1").X, 10.0)
	assert.Equal(t, len(conflicts), 0)
}

func TestEqualVersionsLaterTimestampWins(t *testing.T) {
	local := el("e1", 3, baseTime.Add(10*time.Second))
	local.Fill = "#local"
	server := el("e1", 3, baseTime)
	server.Fill = "#server"

	merged, conflicts := Reconcile([]*scene.Element{local}, []*scene.Element{server})
	assert.Equal(t, findEl(merged, "e1").Fill, "#local")
	assert.Equal(t, len(conflicts), 0)

	merged, conflicts = Reconcile(
		[]*scene.Element{el("e1", 3, baseTime)},
		[]*scene.Element{local},
	)
	assert.Equal(t, findEl(merged, "e1").Fill, "#local")
	assert.Equal(t, len(conflicts), 0)
}

func TestNearSimultaneousEditIsAConflict(t *testing.T) {
	local := el("e1", 3, baseTime.Add(400*time.Millisecond))
	local.Fill = "#local"
	server := el("e1", 3, baseTime)
	server.Fill = "#server"

	merged, conflicts := Reconcile([]*scene.Element{local}, []*scene.Element{server})

	// Default resolution is server-wins, but the conflict is surfaced.
	assert.Equal(t, findEl(merged, "e1").Fill, "#server")
	assert.Equal(t, len(conflicts), 1)
	assert.Equal(t, conflicts[0].ElementID, "e1")
	assert.Equal(t, conflicts[0].Resolution, ResolutionServer)
	assert.Equal(t, conflicts[0].Local.Fill, "#local")
	assert.Equal(t, conflicts[0].Server.Fill, "#server")
}

func TestMergedOutputIsInPaintOrder(t *testing.T) {
	a := el("a", 1, baseTime)
	a.ZIndex = 5
	b := el("b", 1, baseTime)
	b.ZIndex = 1
	c := el("c", 1, baseTime)
	c.ZIndex = 3

	merged, _ := Reconcile([]*scene.Element{a, b}, []*scene.Element{c})
	assert.Equal(t, merged[0].ID, "b")
	assert.Equal(t, merged[1].ID, "c")
	assert.Equal(t, merged[2].ID, "a")
}
