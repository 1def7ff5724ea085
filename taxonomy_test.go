package cocoyolo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupCategory(t *testing.T) {
	tests := []struct {
		id    int
		label Label
		ok    bool
	}{
		{0, Person, true},
		{1, Vehicle, true},
		{2, Vehicle, true},
		{3, Vehicle, true},
		{4, "", false},
		{5, Vehicle, true},
		{6, Vehicle, true},
		{7, Vehicle, true},
		{16, "", false},
		{-1, "", false},
	}
	for _, tt := range tests {
		label, ok := LookupCategory(tt.id)
		assert.Equal(t, tt.ok, ok, "category %d", tt.id)
		assert.Equal(t, tt.label, label, "category %d", tt.id)
	}
}

func TestClassTable(t *testing.T) {
	assert.Equal(t, []string{"person", "vehicle", "animal", "equipment", "debris"}, ClassNames())
	assert.Equal(t, 5, NumClasses())

	for i, name := range ClassNames() {
		assert.Equal(t, i, ClassIndex(Label(name)))
	}
	assert.Equal(t, -1, ClassIndex("bird"))

	// Every mapped category resolves to a valid class index.
	for id, label := range categoryMapping {
		idx := ClassIndex(label)
		assert.True(t, idx >= 0 && idx < NumClasses(), "category %d", id)
	}

	// ClassNames returns a copy.
	names := ClassNames()
	names[0] = "changed"
	assert.Equal(t, "person", ClassNames()[0])
}
