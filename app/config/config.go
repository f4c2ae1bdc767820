package config

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed profiles/*.yaml
var profilesFS embed.FS

// DefaultProfile is used when no profile or config file is given.
const DefaultProfile = "contact"

// Field types understood by the normalizer.
const (
	TypeName    = "name"
	TypeCompany = "company"
	TypePhone   = "phone"
	TypeEmail   = "email"
	TypeWebsite = "website"
	TypeStreet  = "street"
	TypeText    = "text"
)

// Comparators usable per duplicate field.
const (
	ComparatorTokenSet    = "token_set"
	ComparatorJaroWinkler = "jaro_winkler"
	ComparatorLevenshtein = "levenshtein"
)

// Phonetic encoders and code selections for name blocking.
const (
	EncoderDoubleMetaphone = "double_metaphone"
	EncoderSoundex         = "soundex"

	CodesBoth    = "both"
	CodesPrimary = "primary"
)

var (
	// ErrWeightSum is returned when duplicate weights do not add up to 100.
	ErrWeightSum = errors.New("duplicate field weights must sum to 100")
	// ErrInvalidConfig wraps every other validation failure.
	ErrInvalidConfig = errors.New("invalid linkage config")
)

var knownTypes = map[string]bool{
	TypeName: true, TypeCompany: true, TypePhone: true, TypeEmail: true,
	TypeWebsite: true, TypeStreet: true, TypeText: true,
}

// FieldSpec describes one logical field used for duplicate matching.
type FieldSpec struct {
	Name        string `yaml:"name" json:"name"`                                     // logical name, also the header keyword
	Type        string `yaml:"type,omitempty" json:"type,omitempty"`                 // normalization type
	Column      string `yaml:"column,omitempty" json:"column,omitempty"`             // explicit header, skips keyword lookup
	Weight      int    `yaml:"weight" json:"weight"`                                 // share of the 100 point similarity budget
	Comparator  string `yaml:"comparator,omitempty" json:"comparator,omitempty"`     // token_set when empty
	Optional    bool   `yaml:"optional,omitempty" json:"optional,omitempty"`         // absent column is not fatal
	FoldAccents bool   `yaml:"fold_accents,omitempty" json:"fold_accents,omitempty"` // transliterate before normalizing
}

// GradeRule assigns an importance grade to columns containing Keyword.
type GradeRule struct {
	Keyword string `yaml:"keyword" json:"keyword"`
	Grade   string `yaml:"grade" json:"grade"`
}

// LinkageCfg is the full data quality and duplicate detection configuration.
type LinkageCfg struct {
	Profile         string         `yaml:"profile" json:"profile"`
	UniqueIDColumn  string         `yaml:"unique_id_column" json:"unique_id_column"`
	DefaultGrade    string         `yaml:"default_grade" json:"default_grade"`
	GradeWeights    map[string]int `yaml:"grade_weights" json:"grade_weights"`
	Grades          []GradeRule    `yaml:"grades" json:"grades"`
	DuplicateFields []FieldSpec    `yaml:"duplicate_fields" json:"duplicate_fields"`
	BlockingFields  []string       `yaml:"blocking_fields" json:"blocking_fields"`
	PhoneticEncoder string         `yaml:"phonetic_encoder" json:"phonetic_encoder"`
	PhoneticCodes   string         `yaml:"phonetic_codes" json:"phonetic_codes"`
	Threshold       float64        `yaml:"similarity_threshold" json:"similarity_threshold"`
}

// Load reads a YAML config file and validates it.
func Load(path string) (*LinkageCfg, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(b)
}

// LoadProfile returns one of the embedded profiles.
func LoadProfile(name string) (*LinkageCfg, error) {
	if name == "" {
		name = DefaultProfile
	}
	b, err := profilesFS.ReadFile("profiles/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("%w: unknown profile %q (available: %s)", ErrInvalidConfig, name, strings.Join(Profiles(), ", "))
	}
	return Parse(b)
}

// Resolve loads ref as a YAML file when it names one (a .yaml/.yml
// extension or a path separator), otherwise as an embedded profile. A
// file without a profile name is named after the file.
func Resolve(ref string) (*LinkageCfg, error) {
	ext := filepath.Ext(ref)
	if ext != ".yaml" && ext != ".yml" && !strings.ContainsRune(ref, filepath.Separator) {
		return LoadProfile(ref)
	}
	c, err := Load(ref)
	if err != nil {
		return nil, err
	}
	if c.Profile == "" {
		c.Profile = strings.TrimSuffix(filepath.Base(ref), ext)
	}
	return c, nil
}

// Profiles lists the embedded profile names.
func Profiles() []string {
	entries, err := profilesFS.ReadDir("profiles")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

// Parse decodes YAML bytes, applies defaults and validates.
func Parse(b []byte) (*LinkageCfg, error) {
	var c LinkageCfg
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *LinkageCfg) applyDefaults() {
	if c.UniqueIDColumn == "" {
		c.UniqueIDColumn = "Id"
	}
	if c.DefaultGrade == "" {
		c.DefaultGrade = "c"
	}
	if len(c.GradeWeights) == 0 {
		c.GradeWeights = map[string]int{"a": 3, "b": 2, "c": 1}
	}
	if c.PhoneticEncoder == "" {
		c.PhoneticEncoder = EncoderDoubleMetaphone
	}
	if c.PhoneticCodes == "" {
		c.PhoneticCodes = CodesBoth
	}
	for i := range c.DuplicateFields {
		f := &c.DuplicateFields[i]
		if f.Type == "" {
			if knownTypes[f.Name] {
				f.Type = f.Name
			} else {
				f.Type = TypeText
			}
		}
		if f.Comparator == "" {
			f.Comparator = ComparatorTokenSet
		}
	}
}

// Validate checks the invariants that must hold before any row is read.
func (c *LinkageCfg) Validate() error {
	sum := 0
	for _, f := range c.DuplicateFields {
		sum += f.Weight
	}
	if sum != 100 {
		return fmt.Errorf("%w, but they sum to %d", ErrWeightSum, sum)
	}

	var problems []string
	if c.Threshold < 0 || c.Threshold > 100 {
		problems = append(problems, fmt.Sprintf("similarity_threshold %v outside [0,100]", c.Threshold))
	}
	if _, ok := c.GradeWeights[c.DefaultGrade]; !ok {
		problems = append(problems, fmt.Sprintf("default grade %q has no weight", c.DefaultGrade))
	}
	for _, g := range c.Grades {
		if strings.TrimSpace(g.Keyword) == "" {
			problems = append(problems, "grade rule with empty keyword")
		}
		if _, ok := c.GradeWeights[g.Grade]; !ok {
			problems = append(problems, fmt.Sprintf("grade %q for keyword %q has no weight", g.Grade, g.Keyword))
		}
	}

	seen := make(map[string]bool, len(c.DuplicateFields))
	for _, f := range c.DuplicateFields {
		if f.Name == "" {
			problems = append(problems, "duplicate field with empty name")
			continue
		}
		if seen[f.Name] {
			problems = append(problems, fmt.Sprintf("duplicate field %q listed twice", f.Name))
		}
		seen[f.Name] = true
		if f.Weight < 0 {
			problems = append(problems, fmt.Sprintf("field %q has negative weight", f.Name))
		}
		if !knownTypes[f.Type] {
			problems = append(problems, fmt.Sprintf("field %q has unknown type %q", f.Name, f.Type))
		}
		switch f.Comparator {
		case ComparatorTokenSet, ComparatorJaroWinkler, ComparatorLevenshtein:
		default:
			problems = append(problems, fmt.Sprintf("field %q has unknown comparator %q", f.Name, f.Comparator))
		}
	}
	for _, b := range c.BlockingFields {
		if !seen[b] {
			problems = append(problems, fmt.Sprintf("blocking field %q is not a duplicate field", b))
		}
	}
	switch c.PhoneticEncoder {
	case EncoderDoubleMetaphone, EncoderSoundex:
	default:
		problems = append(problems, fmt.Sprintf("unknown phonetic_encoder %q", c.PhoneticEncoder))
	}
	switch c.PhoneticCodes {
	case CodesBoth, CodesPrimary:
	default:
		problems = append(problems, fmt.Sprintf("unknown phonetic_codes %q", c.PhoneticCodes))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Field returns the duplicate field spec with the given logical name.
func (c *LinkageCfg) Field(name string) (FieldSpec, bool) {
	for _, f := range c.DuplicateFields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Fingerprint identifies the effective configuration for cache keys.
func (c *LinkageCfg) Fingerprint() string {
	b, err := yaml.Marshal(c)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:8])
}

// YAML renders the effective configuration.
func (c *LinkageCfg) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
