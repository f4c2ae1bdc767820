// Package linkage links each record to its most similar earlier record in
// a single forward pass and labels the resulting chains with match keys.
package linkage

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/shaymcgreal/datatransformer/app/config"
	"github.com/shaymcgreal/datatransformer/app/models"
	"github.com/shaymcgreal/datatransformer/internal/blocking"
	"github.com/shaymcgreal/datatransformer/internal/similarity"
)

// Row is one input record as seen by the assigner.
type Row struct {
	UniqueID string
	Record   models.NormalizedRecord
}

// Match is the best earlier record a row was linked to.
type Match struct {
	RowIndex  int
	RowNumber int
	UniqueID  string
	Score     float64
	Breakdown []similarity.FieldScore
}

// Result is the state after the last row has been added.
type Result struct {
	Rows        int
	DuplicateOf []*Match            // per row, nil when unmatched
	MatchedBy   [][]models.MatchRef // per row, later rows pointing here
	MatchKey    []int               // per row, 0 when in no group
	Comparisons int
}

// Groups returns the number of match keys issued.
func (r *Result) Groups() int {
	n := 0
	for _, k := range r.MatchKey {
		if k > n {
			n = k
		}
	}
	return n
}

// Assigner is single-use and must see rows in their original order;
// each row can only be linked to rows added before it.
type Assigner struct {
	keyer     *blocking.Keyer
	scorer    *similarity.Scorer
	index     *blocking.Index
	threshold float64
	logger    *zap.Logger

	n           int
	duplicateOf []*Match
	matchedBy   [][]models.MatchRef
	matchKey    []int
	nextKey     int
	comparisons int
}

func NewAssigner(cfg *config.LinkageCfg, logger *zap.Logger) (*Assigner, error) {
	keyer, err := blocking.NewKeyer(cfg)
	if err != nil {
		return nil, fmt.Errorf("build blocking keyer: %w", err)
	}
	scorer, err := similarity.NewScorer(cfg)
	if err != nil {
		return nil, fmt.Errorf("build similarity scorer: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assigner{
		keyer:     keyer,
		scorer:    scorer,
		index:     blocking.NewIndex(),
		threshold: cfg.Threshold,
		logger:    logger,
		nextKey:   1,
	}, nil
}

// Add matches row against the earlier rows sharing a block key, records
// the link when the best score reaches the threshold, then makes row
// visible to later rows. It returns the link or nil.
func (a *Assigner) Add(row Row) *Match {
	i := a.n
	a.n++
	a.duplicateOf = append(a.duplicateOf, nil)
	a.matchedBy = append(a.matchedBy, nil)
	a.matchKey = append(a.matchKey, 0)

	keys := a.keyer.Keys(row.Record)
	var best *Match
	bestScore := 0.0
	for _, c := range a.index.Candidates(keys, i) {
		score, breakdown := a.scorer.Similarity(row.Record, c.Record)
		a.comparisons++
		if score > bestScore {
			bestScore = score
			best = &Match{RowIndex: c.RowIndex, RowNumber: c.RowNumber, UniqueID: c.UniqueID, Score: score, Breakdown: breakdown}
		}
	}

	var linked *Match
	if best != nil && bestScore >= a.threshold {
		linked = best
		a.link(i, row.UniqueID, best)
	}

	a.index.Insert(keys, blocking.Entry{RowIndex: i, RowNumber: i + 1, UniqueID: row.UniqueID, Record: row.Record})
	return linked
}

func (a *Assigner) link(i int, uniqueID string, m *Match) {
	a.duplicateOf[i] = m
	a.matchedBy[m.RowIndex] = append(a.matchedBy[m.RowIndex], models.MatchRef{
		RowNumber: i + 1,
		UniqueID:  uniqueID,
		Score:     int(m.Score),
	})
	if k := a.matchKey[m.RowIndex]; k != 0 {
		a.matchKey[i] = k
	} else {
		a.matchKey[m.RowIndex] = a.nextKey
		a.matchKey[i] = a.nextKey
		a.nextKey++
	}
	a.logger.Debug("Duplicate found",
		zap.Int("row", i+1),
		zap.Int("match_row", m.RowNumber),
		zap.Float64("score", m.Score),
		zap.Int("match_key", a.matchKey[i]))
}

// Result returns the links gathered so far.
func (a *Assigner) Result() *Result {
	return &Result{
		Rows:        a.n,
		DuplicateOf: a.duplicateOf,
		MatchedBy:   a.matchedBy,
		MatchKey:    a.matchKey,
		Comparisons: a.comparisons,
	}
}

// IndexStats reports blocking index size.
func (a *Assigner) IndexStats() (buckets, records int) {
	return a.index.Stats()
}
