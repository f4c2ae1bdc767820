// Package quality scores individual field values and whole rows for
// completeness and plausibility.
package quality

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/shaymcgreal/datatransformer/app/config"
)

// Status is the row-level verdict.
type Status string

const (
	Pass Status = "Pass"
	Fail Status = "Fail"
)

// Failure reasons reported for fields that score 0.
const (
	ReasonEmpty       = "Value is empty."
	ReasonSymbols     = "Value contains only symbols."
	ReasonPhoneDigits = "Phone number has fewer than 5 digits."
	ReasonWebsite     = "Website does not look like a valid domain."
	ReasonPostcode    = "Does not match UK postcode format."
)

// GradeCritical marks fields whose failure fails the whole row.
const GradeCritical = "a"

var (
	reAlnum      = regexp.MustCompile(`[a-zA-Z0-9]`)
	reDomainTail = regexp.MustCompile(`\.[a-zA-Z]{2,}`)
	reUKPostcode = regexp.MustCompile(`^(?:([Gg][Ii][Rr] 0[Aa]{2})|((([A-Za-z][0-9]{1,2})|(([A-Za-z][A-Ha-hJ-Yj-y][0-9]{1,2})|(([A-Za-z][0-9][A-Za-z])|([A-Za-z][A-Ha-hJ-Yj-y][0-9][A-Za-z]?))))\s?[0-9][A-Za-z]{2}))$`)
)

// ScoreField returns 1 when value is usable for the column, otherwise 0
// and the reason. Rules are checked in order and the first failure wins.
func ScoreField(column, value string) (int, string) {
	if strings.TrimSpace(value) == "" {
		return 0, ReasonEmpty
	}
	if !reAlnum.MatchString(value) {
		return 0, ReasonSymbols
	}
	col := strings.ToLower(column)
	switch {
	case strings.Contains(col, "phone") && countDigits(value) < 5:
		return 0, ReasonPhoneDigits
	case strings.Contains(col, "website") && !reDomainTail.MatchString(value):
		return 0, ReasonWebsite
	case strings.Contains(col, "postalcode") && !reUKPostcode.MatchString(strings.TrimSpace(value)):
		return 0, ReasonPostcode
	}
	return 1, ""
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n
}

// Column is the resolved grade and weight of one header.
type Column struct {
	Header string
	Grade  string
	Weight int
}

// Scorer holds the grade rules of a linkage configuration.
type Scorer struct {
	rules        []config.GradeRule
	weights      map[string]int
	defaultGrade string
}

func NewScorer(cfg *config.LinkageCfg) *Scorer {
	return &Scorer{
		rules:        cfg.Grades,
		weights:      cfg.GradeWeights,
		defaultGrade: cfg.DefaultGrade,
	}
}

// Grade resolves a column's grade: an exact keyword match first, then
// the longest keyword contained in the column name, then the default.
// Equal-length matches go to the earliest rule.
func (s *Scorer) Grade(column string) string {
	col := strings.ToLower(strings.TrimSpace(column))
	best, bestLen := "", 0
	for _, r := range s.rules {
		kw := strings.ToLower(r.Keyword)
		if kw == col {
			return r.Grade
		}
		if strings.Contains(col, kw) && len(kw) > bestLen {
			best, bestLen = r.Grade, len(kw)
		}
	}
	if bestLen == 0 {
		return s.defaultGrade
	}
	return best
}

// Plan resolves every header once, before any row is scored.
func (s *Scorer) Plan(headers []string) ([]Column, error) {
	cols := make([]Column, len(headers))
	for i, h := range headers {
		g := s.Grade(h)
		w, ok := s.weights[g]
		if !ok {
			return nil, fmt.Errorf("%w: grade %q of column %q has no weight", config.ErrInvalidConfig, g, h)
		}
		cols[i] = Column{Header: h, Grade: g, Weight: w}
	}
	return cols, nil
}

// FieldResult is the weighted score of one cell.
type FieldResult struct {
	Score  int // base score times grade weight
	Reason string
}

// RowQuality is the quality verdict of one row.
type RowQuality struct {
	Fields []FieldResult
	Total  int
	Status Status
}

// ScoreRow scores values positionally against plan. Missing trailing
// values count as empty.
func ScoreRow(plan []Column, values []string) RowQuality {
	q := RowQuality{Fields: make([]FieldResult, len(plan)), Status: Pass}
	for i, c := range plan {
		v := ""
		if i < len(values) {
			v = values[i]
		}
		base, reason := ScoreField(c.Header, v)
		if base == 0 && c.Grade == GradeCritical {
			q.Status = Fail
		}
		q.Fields[i] = FieldResult{Score: base * c.Weight, Reason: reason}
		q.Total += base * c.Weight
	}
	return q
}
