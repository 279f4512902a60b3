package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/werkpilot/cost-model-service/models"
	"github.com/werkpilot/cost-model-service/utils"
)

func testIndexSnapshot() map[string]*models.Index {
	return map[string]*models.Index{
		"Stahl HRB [€/t] (SteelBenchmarker)": {
			ID:           1,
			Name:         "Stahl HRB [€/t] (SteelBenchmarker)",
			Value:        540.0,
			ValuePerGram: utils.ToPtr(0.00054),
		},
		"Kupfer [€/t]": {
			ID:           2,
			Name:         "Kupfer [€/t]",
			Value:        9200.0,
			ValuePerGram: utils.ToPtr(0.0092),
		},
		"PP [€/kg] (Plasticker)": {
			ID:           3,
			Name:         "PP [€/kg] (Plasticker)",
			Value:        1.25,
			ValuePerGram: utils.ToPtr(0.00125),
		},
		"Holz [€/t] (finanzen.net)": {
			ID:    4,
			Name:  "Holz [€/t] (finanzen.net)",
			Value: 120.0,
			// no per-gram value, so this series must never be matched
		},
		"Gold [€/g] (Heraeus)": {
			ID:           5,
			Name:         "Gold [€/g] (Heraeus)",
			Value:        71.3,
			ValuePerGram: utils.ToPtr(71.3),
		},
	}
}

func TestResolveIndex(t *testing.T) {
	snapshot := testIndexSnapshot()

	tests := []struct {
		name     string
		material string
		wantID   uint
	}{
		{
			name:     "alias in free text",
			material: "Stainless Steel 304",
			wantID:   1,
		},
		{
			name:     "alias with surrounding noise",
			material: "cold-rolled carbon steel sheet",
			wantID:   1,
		},
		{
			name:     "copper wins over the shorter pp alias",
			material: "Copper",
			wantID:   2,
		},
		{
			name:     "plastic abbreviation",
			material: "PP (polypropylene)",
			wantID:   3,
		},
		{
			name:     "canonical name passthrough",
			material: "Kupfer [€/t]",
			wantID:   2,
		},
		{
			name:     "precious metal alias",
			material: "gold plating",
			wantID:   5,
		},
		{
			name:     "unknown material",
			material: "unobtainium",
			wantID:   0,
		},
		{
			name:     "match without per-gram value is dropped",
			material: "wood",
			wantID:   0,
		},
		{
			name:     "empty input",
			material: "",
			wantID:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := ResolveIndex(tt.material, snapshot)
			if tt.wantID == 0 {
				assert.Nil(t, idx)
			} else {
				require.NotNil(t, idx)
				assert.Equal(t, tt.wantID, idx.ID)
			}
		})
	}
}

func TestBuildCostModelParts(t *testing.T) {
	snapshot := testIndexSnapshot()

	tests := []struct {
		name      string
		materials []MaterialShare
		want      []CostModelPart
	}{
		{
			name: "fractions renormalize to one",
			materials: []MaterialShare{
				{Material: "steel", Percentage: 0.5},
				{Material: "copper", Percentage: 0.25},
			},
			want: []CostModelPart{
				{IndexID: 1, Fraction: 0.666667},
				{IndexID: 2, Fraction: 0.333333},
			},
		},
		{
			name: "already normalized input is preserved",
			materials: []MaterialShare{
				{Material: "steel", Percentage: 0.7},
				{Material: "copper", Percentage: 0.3},
			},
			want: []CostModelPart{
				{IndexID: 1, Fraction: 0.7},
				{IndexID: 2, Fraction: 0.3},
			},
		},
		{
			name: "unknown material is dropped and the rest renormalized",
			materials: []MaterialShare{
				{Material: "steel", Percentage: 0.6},
				{Material: "unobtainium", Percentage: 0.4},
			},
			want: []CostModelPart{
				{IndexID: 1, Fraction: 1.0},
			},
		},
		{
			name: "non-positive share is dropped",
			materials: []MaterialShare{
				{Material: "steel", Percentage: 0},
				{Material: "copper", Percentage: -0.2},
				{Material: "pp", Percentage: 0.5},
			},
			want: []CostModelPart{
				{IndexID: 3, Fraction: 1.0},
			},
		},
		{
			name: "share above one is dropped",
			materials: []MaterialShare{
				{Material: "steel", Percentage: 1.4},
				{Material: "copper", Percentage: 0.5},
			},
			want: []CostModelPart{
				{IndexID: 2, Fraction: 1.0},
			},
		},
		{
			name: "no survivors",
			materials: []MaterialShare{
				{Material: "unobtainium", Percentage: 0.5},
				{Material: "wood", Percentage: 0.5},
			},
			want: nil,
		},
		{
			name:      "empty input",
			materials: nil,
			want:      nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildCostModelParts(tt.materials, snapshot)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildCostModelPartsFractionsSumToOne(t *testing.T) {
	snapshot := testIndexSnapshot()

	materials := []MaterialShare{
		{Material: "steel", Percentage: 0.31},
		{Material: "copper", Percentage: 0.17},
		{Material: "pp", Percentage: 0.09},
		{Material: "gold", Percentage: 0.02},
	}

	parts := BuildCostModelParts(materials, snapshot)
	require.Len(t, parts, 4)

	sum := 0.0
	for _, p := range parts {
		sum += p.Fraction
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
}
