package closure

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cpscan/engine/internal/logging"
	"github.com/cpscan/engine/internal/types"
)

type fakeProbe struct {
	resources map[types.ElementID]map[string]types.Resource
}

func (p fakeProbe) HasResource(elem types.ElementID, path string) (types.Resource, bool) {
	m, ok := p.resources[elem]
	if !ok {
		return types.Resource{}, false
	}
	r, ok := m[path]
	return r, ok
}

type collectHandle struct{ added []types.WorkUnit }

func (h *collectHandle) Add(units ...types.WorkUnit) { h.added = append(h.added, units...) }

func TestResourcePathMapping(t *testing.T) {
	assert.Equal(t, "com/x/B.class", ResourcePath("com.x.B"))
}

func TestReferencedTypeNamesExcludesObjectAndDedups(t *testing.T) {
	rec := &types.UnlinkedRecord{
		SuperclassName: "java.lang.Object",
		Interfaces:     []string{"com.x.I", "com.x.I"},
		Annotations:    []types.Annotation{{TypeName: "com.x.Ann"}},
	}
	names := ReferencedTypeNames(rec)
	assert.Equal(t, []string{"com.x.I", "com.x.Ann"}, names)
}

func TestScheduleEnqueuesFromExternalElement(t *testing.T) {
	sched := NewScheduler(nil)
	rec := &types.UnlinkedRecord{OwningElement: 0, SuperclassName: "x.B"}
	probe := fakeProbe{resources: map[types.ElementID]map[string]types.Resource{
		1: {"x/B.class": {LogicalPath: "x/B.class"}},
	}}
	h := &collectHandle{}

	Schedule(rec, sched, []types.ElementID{0, 1}, probe, h, logging.NewNop())

	assert.Len(t, h.added, 1)
	assert.Equal(t, types.ElementID(1), h.added[0].OwningElement)
	assert.True(t, h.added[0].IsExternal)
}

func TestScheduleSkipsAlreadyScheduled(t *testing.T) {
	sched := NewScheduler([]string{"x.B"})
	rec := &types.UnlinkedRecord{OwningElement: 0, SuperclassName: "x.B"}
	h := &collectHandle{}
	Schedule(rec, sched, nil, fakeProbe{}, h, logging.NewNop())
	assert.Empty(t, h.added)
}
