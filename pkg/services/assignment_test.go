package services

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-mapper/pkg/models"
)

func newTestTable(headers ...string) *MappingTable {
	table := NewMappingTable()
	table.Rebuild(headers)
	return table
}

func selectTarget(t *testing.T, table *MappingTable, header, target string) {
	t.Helper()
	row, ok := table.Row(header)
	require.True(t, ok, "row %q", header)
	row.SelectedTarget = target
}

func TestMappingTable_Rebuild(t *testing.T) {
	table := newTestTable("Tag", "Qty", "Desc")

	require.Equal(t, 3, table.Len())
	for i, h := range []string{"Tag", "Qty", "Desc"} {
		row := table.Rows()[i]
		assert.Equal(t, h, row.SourceHeader)
		assert.Empty(t, row.SelectedTarget)
		assert.Equal(t, models.SuggestionOriginNone, row.SuggestionOrigin)
	}

	selectTarget(t, table, "Tag", "Tag Number")
	table.Rebuild([]string{"A"})
	assert.Equal(t, 1, table.Len())
	_, ok := table.Row("Tag")
	assert.False(t, ok)

	table.Clear()
	assert.Equal(t, 0, table.Len())
}

func TestMappingTable_RecomputeDuplicates(t *testing.T) {
	tests := []struct {
		name       string
		selections map[string]string
		wantDup    []string
	}{
		{
			name:       "no selections",
			selections: map[string]string{},
		},
		{
			name:       "distinct targets",
			selections: map[string]string{"A": "Tag Number", "B": "Quantity"},
		},
		{
			name:       "shared target",
			selections: map[string]string{"A": "Tag Number", "B": "Tag Number", "C": "Quantity"},
			wantDup:    []string{"A", "B"},
		},
		{
			name:       "N/A never duplicates",
			selections: map[string]string{"A": "N/A", "B": "N/A", "C": "n/a"},
		},
		{
			name:       "comparison is exact",
			selections: map[string]string{"A": "Tag Number", "B": "tag number"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := newTestTable("A", "B", "C")
			for h, target := range tt.selections {
				selectTarget(t, table, h, target)
			}

			got := table.RecomputeDuplicates()

			assert.Equal(t, len(tt.wantDup) > 0, got)
			for _, row := range table.Rows() {
				assert.Equal(t, slices.Contains(tt.wantDup, row.SourceHeader), row.IsDuplicate, row.SourceHeader)
			}
		})
	}
}

func TestMappingTable_DuplicatesClearedWhenResolved(t *testing.T) {
	table := newTestTable("A", "B")
	selectTarget(t, table, "A", "Tag Number")
	selectTarget(t, table, "B", "Tag Number")
	require.True(t, table.RecomputeDuplicates())

	selectTarget(t, table, "B", "Quantity")
	assert.False(t, table.RecomputeDuplicates())
	for _, row := range table.Rows() {
		assert.False(t, row.IsDuplicate)
	}
}

func TestMappingTable_ClaimsAndSelections(t *testing.T) {
	table := newTestTable("A", "B", "C", "D")
	selectTarget(t, table, "A", "Tag Number")
	selectTarget(t, table, "B", "N/A")
	selectTarget(t, table, "D", "Quantity")

	claims := table.ClaimedTargets()
	assert.True(t, claims.Has("Tag Number"))
	assert.True(t, claims.Has("Quantity"))
	assert.False(t, claims.Has("N/A"))
	assert.Len(t, claims, 2)

	assert.True(t, table.HasDefiniteMapping())
	assert.Equal(t, map[string]string{"A": "Tag Number", "B": "N/A", "D": "Quantity"}, table.Selections())

	var unresolved []string
	for _, r := range table.Unresolved() {
		unresolved = append(unresolved, r.SourceHeader)
	}
	assert.Equal(t, []string{"B", "C"}, unresolved)
}

func TestMappingTable_HasDefiniteMapping(t *testing.T) {
	table := newTestTable("A", "B")
	assert.False(t, table.HasDefiniteMapping())

	selectTarget(t, table, "A", "N/A")
	assert.False(t, table.HasDefiniteMapping())

	selectTarget(t, table, "B", "Unit")
	assert.True(t, table.HasDefiniteMapping())
}

func TestMappingTable_SnapshotIsCopy(t *testing.T) {
	table := newTestTable("A")
	snap := table.Snapshot()
	snap[0].SelectedTarget = "Unit"

	row, _ := table.Row("A")
	assert.Empty(t, row.SelectedTarget)
}
