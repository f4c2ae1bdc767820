package report

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/shaymcgreal/datatransformer/app/models"
	"github.com/shaymcgreal/datatransformer/internal/linkage"
	"github.com/shaymcgreal/datatransformer/internal/quality"
)

// Assembler merges quality scores and linkage results into output rows.
type Assembler struct {
	plan     []quality.Column
	uniqueID string
	logger   *zap.Logger
}

func NewAssembler(plan []quality.Column, uniqueID string, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{plan: plan, uniqueID: uniqueID, logger: logger}
}

// Row builds output row i of ds. Fields scoring 0 are logged at debug
// level with the reason.
func (a *Assembler) Row(ds *models.Dataset, i int, res *linkage.Result) models.OutputRow {
	values := ds.View(i)
	q := quality.ScoreRow(a.plan, values)

	out := models.OutputRow{
		RowNumber:     i + 1,
		UniqueID:      ds.Value(i, a.uniqueID),
		Values:        values,
		FieldScores:   make([]int, len(q.Fields)),
		TotalRowScore: q.Total,
		FinalStatus:   string(q.Status),
	}
	for j, f := range q.Fields {
		out.FieldScores[j] = f.Score
		if f.Reason != "" && a.logger.Core().Enabled(zap.DebugLevel) {
			a.logger.Debug("Field failed",
				zap.Int("row", i+1),
				zap.String("field", a.plan[j].Header),
				zap.String("reason", f.Reason))
		}
	}

	if m := res.DuplicateOf[i]; m != nil {
		score := int(m.Score)
		out.DuplicateScore = &score
		out.DuplicateDetails = DuplicateDetails(m)
	}
	if refs := res.MatchedBy[i]; len(refs) > 0 {
		out.MatchedBy = refs
		out.IsMatchedTo = MatchedByDetails(refs)
	}
	out.Involved = out.DuplicateScore != nil || len(out.MatchedBy) > 0
	out.MatchKey = res.MatchKey[i]
	return out
}

// Assemble builds every output row in input order. onRow, when set, is
// called with the number of rows built so far.
func (a *Assembler) Assemble(ds *models.Dataset, res *linkage.Result, profile string, onRow func(done int)) *models.Report {
	rep := &models.Report{
		Header:  ds.Header,
		Rows:    make([]models.OutputRow, ds.Len()),
		Profile: profile,
	}
	for i := range rep.Rows {
		rep.Rows[i] = a.Row(ds, i, res)
		if onRow != nil {
			onRow(i + 1)
		}
	}
	return rep
}

// DuplicateDetails explains a link, e.g.
// "Best match with row 1 [ID: 001] (Name:100, Phone:100)".
func DuplicateDetails(m *linkage.Match) string {
	parts := make([]string, len(m.Breakdown))
	for i, fs := range m.Breakdown {
		parts[i] = fmt.Sprintf("%s:%d", capitalize(fs.Field), int(fs.Score))
	}
	return fmt.Sprintf("Best match with row %d [ID: %s] (%s)", m.RowNumber, m.UniqueID, strings.Join(parts, ", "))
}

// MatchedByDetails lists the rows that linked to a row.
func MatchedByDetails(refs []models.MatchRef) string {
	parts := make([]string, len(refs))
	for i, r := range refs {
		parts[i] = fmt.Sprintf("Matched by row %d [ID: %s] (Score: %d)", r.RowNumber, r.UniqueID, r.Score)
	}
	return strings.Join(parts, "; ")
}

// capitalize upper-cases the first rune and lower-cases the rest.
func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}
