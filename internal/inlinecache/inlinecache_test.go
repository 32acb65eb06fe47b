package inlinecache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSiteStartsUninitialized(t *testing.T) {
	s := NewSite(1)
	assert.Equal(t, Uninitialized, s.State())
}

func TestFirstMissGoesMonomorphic(t *testing.T) {
	s := NewSite(1)
	st := s.Miss(100, "handlerA")
	assert.Equal(t, Monomorphic, st)
	h, ok := s.Lookup(100)
	assert.True(t, ok)
	assert.Equal(t, "handlerA", h)
}

func TestSecondShapeUpgradesToPolymorphic(t *testing.T) {
	s := NewSite(1)
	s.Miss(100, "a")
	st := s.Miss(200, "b")
	assert.Equal(t, Polymorphic, st)
	_, ok := s.Lookup(100)
	assert.True(t, ok)
	_, ok = s.Lookup(200)
	assert.True(t, ok)
}

func TestFifthShapeGoesMegamorphic(t *testing.T) {
	s := NewSite(1)
	for i := uint32(0); i < 4; i++ {
		s.Miss(i, i)
	}
	assert.Equal(t, Polymorphic, s.State())
	st := s.Miss(999, 999)
	assert.Equal(t, Megamorphic, st)
	_, ok := s.Lookup(0)
	assert.False(t, ok, "megamorphic sites never cache")
}

func TestMissCountAccumulates(t *testing.T) {
	s := NewSite(1)
	s.Miss(1, "a")
	s.Miss(2, "b")
	s.Miss(3, "c")
	assert.Equal(t, uint64(3), s.MissCount())
}

func TestIsOscillatingRequiresMegamorphicAndThreshold(t *testing.T) {
	s := NewSite(1)
	for i := uint32(0); i < 10; i++ {
		s.Miss(i, i)
	}
	assert.True(t, s.IsOscillating(5))
	assert.False(t, s.IsOscillating(50))
}

func TestTableCreatesSiteOnFirstReference(t *testing.T) {
	tbl := NewTable()
	s1 := tbl.Site(42)
	s2 := tbl.Site(42)
	assert.Same(t, s1, s2)
}
