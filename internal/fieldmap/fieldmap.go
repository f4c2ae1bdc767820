// Package fieldmap binds the logical duplicate fields of a configuration
// to concrete CSV headers, once, before any row is processed.
package fieldmap

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/shaymcgreal/datatransformer/app/config"
)

var (
	ErrColumnNotFound  = errors.New("column not found")
	ErrAmbiguousColumn = errors.New("ambiguous column")
)

// Binding is the header chosen for one logical field.
type Binding struct {
	Field  config.FieldSpec
	Header string // empty when an optional field is absent
	How    string // explicit, exact or keyword
}

// Mapping is the validated field -> header mapping of one dataset.
type Mapping struct {
	Bindings []Binding
}

// Header returns the header bound to field, or "".
func (m *Mapping) Header(field string) string {
	for _, b := range m.Bindings {
		if b.Field.Name == field {
			return b.Header
		}
	}
	return ""
}

// Resolve binds every duplicate field of cfg to one header. An explicit
// column must exist. Otherwise a case-insensitive exact match wins, then a
// unique header containing the field name. Absent fields fail unless
// optional, and several keyword matches always fail.
func Resolve(cfg *config.LinkageCfg, header []string) (*Mapping, error) {
	m := &Mapping{Bindings: make([]Binding, 0, len(cfg.DuplicateFields))}
	for _, f := range cfg.DuplicateFields {
		h, how, err := resolveOne(f, header)
		if err != nil {
			return nil, err
		}
		m.Bindings = append(m.Bindings, Binding{Field: f, Header: h, How: how})
	}
	return m, nil
}

func resolveOne(f config.FieldSpec, header []string) (string, string, error) {
	if f.Column != "" {
		for _, h := range header {
			if h == f.Column {
				return h, "explicit", nil
			}
		}
		if f.Optional {
			return "", "", nil
		}
		return "", "", fmt.Errorf("%w: field %q wants column %q%s", ErrColumnNotFound, f.Name, f.Column, hint(f.Column, header))
	}

	kw := strings.ToLower(f.Name)
	var exact, partial []string
	for _, h := range header {
		lh := strings.ToLower(strings.TrimSpace(h))
		switch {
		case lh == kw:
			exact = appendUnique(exact, h)
		case strings.Contains(lh, kw):
			partial = appendUnique(partial, h)
		}
	}

	switch {
	case len(exact) == 1:
		return exact[0], "exact", nil
	case len(exact) > 1:
		return "", "", ambiguous(f.Name, exact)
	case len(partial) == 1:
		return partial[0], "keyword", nil
	case len(partial) > 1:
		return "", "", ambiguous(f.Name, partial)
	case f.Optional:
		return "", "", nil
	default:
		return "", "", fmt.Errorf("%w: no header contains %q%s", ErrColumnNotFound, f.Name, hint(kw, header))
	}
}

func ambiguous(field string, headers []string) error {
	sorted := append([]string(nil), headers...)
	sort.Strings(sorted)
	return fmt.Errorf("%w: field %q matches %s; set column explicitly", ErrAmbiguousColumn, field, strings.Join(quoteAll(sorted), ", "))
}

func appendUnique(list []string, s string) []string {
	for _, x := range list {
		if x == s {
			return list
		}
	}
	return append(list, s)
}

func quoteAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = fmt.Sprintf("%q", s)
	}
	return out
}

// hint suggests the closest header by edit distance.
func hint(want string, header []string) string {
	want = strings.ToLower(want)
	best, bestDist := "", -1
	for _, h := range header {
		d := levenshtein.ComputeDistance(want, strings.ToLower(h))
		if bestDist < 0 || d < bestDist {
			best, bestDist = h, d
		}
	}
	limit := len(want) / 3
	if limit < 2 {
		limit = 2
	}
	if best == "" || bestDist > limit {
		return ""
	}
	return fmt.Sprintf(" (did you mean %q?)", best)
}
