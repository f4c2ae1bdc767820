package normalizer

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/shaymcgreal/datatransformer/app/config"
	"github.com/shaymcgreal/datatransformer/internal/external"
)

var (
	reScheme = regexp.MustCompile(`(?i)^https?://`)
	reWord   = regexp.MustCompile(`[\p{L}\p{N}_]+`)
	reDots   = regexp.MustCompile(`\.+`)
)

// punctuation removed from names and companies
const namePunct = ".,/#!$%^&*;:{}=-_`~()"

// Normalizer canonicalizes raw field text per field type.
// It is immutable after construction and safe for concurrent use.
type Normalizer struct {
	synonyms      map[string]string
	expandStreets bool
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithStreetExpansion expands street abbreviations with libpostal when it
// is compiled in.
func WithStreetExpansion(on bool) Option {
	return func(n *Normalizer) { n.expandStreets = on && external.LibpostalAvailable }
}

// New builds a Normalizer from the embedded rule tables.
func New(opts ...Option) (*Normalizer, error) {
	rules, err := LoadRulesConfig()
	if err != nil {
		return nil, err
	}
	syn, err := rules.SynonymMap()
	if err != nil {
		return nil, err
	}
	n := &Normalizer{synonyms: syn}
	for _, o := range opts {
		o(n)
	}
	return n, nil
}

var defaultNormalizer = func() *Normalizer {
	n, err := New()
	if err != nil {
		panic(err)
	}
	return n
}()

// Normalize uses the default rule tables.
func Normalize(fieldType, raw string) string {
	return defaultNormalizer.Normalize(fieldType, raw)
}

// NormalizeField applies a field's options before the type rules.
func (n *Normalizer) NormalizeField(f config.FieldSpec, raw string) string {
	if f.FoldAccents {
		raw = FoldAccents(raw)
	}
	return n.Normalize(f.Type, raw)
}

// Normalize returns the lowercase trimmed canonical form of raw, or ""
// for blank input. Every rule is idempotent.
func (n *Normalizer) Normalize(fieldType, raw string) string {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" {
		return ""
	}
	switch fieldType {
	case config.TypePhone:
		return digitsOnly(v)
	case config.TypeWebsite:
		return website(v)
	case config.TypeEmail:
		return email(v)
	case config.TypeName, config.TypeCompany:
		return n.businessName(v)
	case config.TypeStreet:
		if n.expandStreets {
			v = strings.ToLower(external.ExpandStreet(v))
		}
		return strings.Join(strings.Fields(v), " ")
	default:
		return v
	}
}

func digitsOnly(v string) string {
	var b strings.Builder
	for _, r := range v {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// website strips leading schemes, a literal "www." and trailing slashes
// until nothing changes.
func website(v string) string {
	for {
		prev := v
		v = reScheme.ReplaceAllString(v, "")
		v = strings.TrimPrefix(v, "www.")
		v = strings.TrimRight(v, "/")
		v = strings.TrimSpace(v)
		if v == prev {
			return v
		}
	}
}

func email(v string) string {
	local, domain, _ := strings.Cut(v, "@")
	local = reDots.ReplaceAllString(local, "")
	domain = reDots.ReplaceAllString(domain, ".")
	return local + "@" + domain
}

func (n *Normalizer) businessName(v string) string {
	v = strings.Map(func(r rune) rune {
		if strings.ContainsRune(namePunct, r) {
			return -1
		}
		return r
	}, v)
	v = strings.Join(strings.Fields(v), " ")
	return reWord.ReplaceAllStringFunc(v, func(w string) string {
		if c, ok := n.synonyms[w]; ok {
			return c
		}
		return w
	})
}
