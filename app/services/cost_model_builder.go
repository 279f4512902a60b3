// Package services provides external service integrations and the article
// analysis pipeline built on top of them.
package services

import (
	"strings"

	"github.com/werkpilot/cost-model-service/models"
	"github.com/werkpilot/cost-model-service/utils"
)

// MaterialShare is one material reported by the extraction together with its
// share of the article's total mass.
type MaterialShare struct {
	Material   string
	Percentage float64
}

// CostModelPart references a price index with a normalized mass fraction.
type CostModelPart struct {
	IndexID  uint
	Fraction float64
}

// indexAliases maps lowercase material keywords to the canonical series names
// under which their prices are tracked. Matching walks the table in order and
// the first alias contained in the normalized material text wins, so the
// order is part of the matching behavior.
var indexAliases = []struct {
	alias     string
	indexName string
}{
	{"steel", "Stahl HRB [€/t] (SteelBenchmarker)"},
	{"stainless steel", "Stahl HRB [€/t] (SteelBenchmarker)"},
	{"carbon steel", "Stahl HRB [€/t] (SteelBenchmarker)"},
	{"aluminum", "Aluminium [€/t] (Finanzen.net)"},
	{"aluminium", "Aluminium [€/t] (Finanzen.net)"},
	{"nickel", "Nickel [€/t] (Finanzen.net)"},
	{"copper", "Kupfer [€/t]"},
	{"zinc", "Zink [€/t] (Finanzen,net)"},
	{"lead", "Blei [€/t] (Finanzen.net)"},
	{"iron", "Eisenerz [€/t] (Finanzen.net)"},
	{"iron ore", "Eisenerz [€/t] (Finanzen.net)"},
	{"abs", "ABS Granulat [€/kg] (Plasticker)"},
	{"abs plastic", "ABS Granulat [€/kg] (Plasticker)"},
	{"polycarbonate", "PC Granulat [€/kg] (Plasticker)"},
	{"pc", "PC Granulat [€/kg] (Plasticker)"},
	{"pbt", "PBT Granulat [€/kg] (Plasticker)"},
	{"pa6", "PA 6 Granulat [€/kg] (Plasticker)"},
	{"pa 6", "PA 6 Granulat [€/kg] (Plasticker)"},
	{"pa66", "PA 6.6 Granulat [€/kg] (Plasticker)"},
	{"pa 6.6", "PA 6.6 Granulat [€/kg] (Plasticker)"},
	{"pom", "POM Granulat [€/kg] (Plasticker)"},
	{"pehd", "PE-HD Granulat [€/kg] (Plasticker)"},
	{"pe hd", "PE-HD Granulat [€/kg] (Plasticker)"},
	{"peld", "PE-LD [€/kg] (Plasticker)"},
	{"pe ld", "PE-LD [€/kg] (Plasticker)"},
	{"pp", "PP [€/kg] (Plasticker)"},
	{"ps", "PS [€/kg] (Plasticker)"},
	{"wood", "Holz [€/t] (finanzen.net)"},
	{"brass", "Messing MS 58 1. V. Stufe [€/kg] (Westmetall)"},
	{"gold", "Gold [€/g] (Heraeus)"},
	{"silver", "Silber [€/kg] (Heraeus)"},
	{"platinum", "Platinum [€/g] (Heraeus)"},
	{"palladium", "Palladium [€/g] (Heraeus)"},
	{"rhodium", "Rhodium [€/g] (Heraeus)"},
	{"iridium", "Iridium [€/g] (Heraeus)"},
	{"ruthenium", "Ruthenium [€/g] (Heraeus)"},
}

// ResolveIndex maps a free-text material name onto an index row from the
// latest-per-name snapshot. Alias keywords are tried first against the
// normalized text; the raw name is then looked up directly for materials
// already reported by their canonical series name. Only indices carrying a
// per-gram value qualify, since the caller prices the match by mass.
func ResolveIndex(material string, latestByName map[string]*models.Index) *models.Index {
	normalized := utils.NormalizeText(material)
	for _, a := range indexAliases {
		if !strings.Contains(normalized, a.alias) {
			continue
		}
		if idx := latestByName[a.indexName]; idx != nil && idx.ValuePerGram != nil {
			return idx
		}
	}
	if idx := latestByName[material]; idx != nil && idx.ValuePerGram != nil {
		return idx
	}
	return nil
}

// BuildCostModelParts converts extracted material shares into index-backed
// fractions that sum to 1.0. Entries are dropped when the share lies outside
// (0, 1] or no index resolves; the surviving shares are renormalized so the
// dropped entries do not leave a gap. An empty result means there is nothing
// to persist and callers skip the write.
func BuildCostModelParts(materials []MaterialShare, latestByName map[string]*models.Index) []CostModelPart {
	if len(materials) == 0 {
		return nil
	}

	raw := make([]CostModelPart, 0, len(materials))
	for _, m := range materials {
		if m.Material == "" {
			continue
		}
		if m.Percentage <= 0 || m.Percentage > 1 {
			continue
		}
		idx := ResolveIndex(m.Material, latestByName)
		if idx == nil {
			continue
		}
		raw = append(raw, CostModelPart{IndexID: idx.ID, Fraction: m.Percentage})
	}
	if len(raw) == 0 {
		return nil
	}

	total := 0.0
	for _, p := range raw {
		total += p.Fraction
	}
	if total <= 0 {
		return nil
	}

	parts := make([]CostModelPart, 0, len(raw))
	for _, p := range raw {
		parts = append(parts, CostModelPart{
			IndexID:  p.IndexID,
			Fraction: utils.Round6(p.Fraction / total),
		})
	}
	return parts
}
