package reco

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewArrayEvent_InitialisesLevels(t *testing.T) {
	e := NewArrayEvent(42, 7)
	assert.EqualValues(t, 42, e.EventID)
	assert.EqualValues(t, 7, e.RunID)
	assert.NotNil(t, e.R0)
	assert.NotNil(t, e.R1)
	assert.NotNil(t, e.DL0)
	assert.NotNil(t, e.DL1)
	assert.Nil(t, e.DL2)
	assert.Empty(t, e.TelescopeIDs())
}

func TestArrayEvent_TelescopeIDsUnionsAndSorts(t *testing.T) {
	e := NewArrayEvent(1, 1)
	e.R0[5] = &R0Camera{}
	e.R1[2] = &R1Camera{}
	e.DL0[9] = &DL0Camera{}
	e.DL1[2] = &DL1Camera{} // overlaps with R1's telescope 2

	assert.Equal(t, []int{2, 5, 9}, e.TelescopeIDs())
}

func TestNewDL2_InitialisesMaps(t *testing.T) {
	dl2 := NewDL2()
	assert.NotNil(t, dl2.Geometry)
	assert.NotNil(t, dl2.ImpactParameter)
	assert.NotNil(t, dl2.Energy)
	assert.Empty(t, dl2.Geometry)
}
