package similarity

import (
	"fmt"

	"github.com/shaymcgreal/datatransformer/app/config"
	"github.com/shaymcgreal/datatransformer/app/models"
)

// FieldScore is the raw comparator score of one field that both records
// carry.
type FieldScore struct {
	Field string
	Score float64
}

type weightedField struct {
	name   string
	weight float64
	cmp    Comparator
}

// Scorer computes the weighted similarity of two normalized records over
// the configured duplicate fields.
type Scorer struct {
	fields []weightedField
}

func NewScorer(cfg *config.LinkageCfg) (*Scorer, error) {
	s := &Scorer{fields: make([]weightedField, 0, len(cfg.DuplicateFields))}
	for _, f := range cfg.DuplicateFields {
		cmp, err := ComparatorFor(f.Comparator)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		s.fields = append(s.fields, weightedField{name: f.Name, weight: float64(f.Weight), cmp: cmp})
	}
	return s, nil
}

// Similarity returns the weighted score in [0,100] and the per-field
// breakdown in configured order. Fields empty on either side add nothing
// and are left out of the breakdown.
func (s *Scorer) Similarity(a, b models.NormalizedRecord) (float64, []FieldScore) {
	var total float64
	breakdown := make([]FieldScore, 0, len(s.fields))
	for _, f := range s.fields {
		va, vb := a[f.name], b[f.name]
		if va == "" || vb == "" {
			continue
		}
		score := f.cmp(va, vb)
		total += score / 100 * f.weight
		breakdown = append(breakdown, FieldScore{Field: f.name, Score: score})
	}
	return total, breakdown
}
