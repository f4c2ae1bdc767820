// Package blocking narrows duplicate candidates to records that share at
// least one coarse key with the record being matched.
package blocking

import (
	"fmt"
	"sort"

	"github.com/shaymcgreal/datatransformer/app/config"
	"github.com/shaymcgreal/datatransformer/app/models"
)

// Entry is a record already inserted into the index.
type Entry struct {
	RowIndex  int
	RowNumber int
	UniqueID  string
	Record    models.NormalizedRecord
}

type blockField struct {
	name      string
	fieldType string
}

// Keyer derives block keys from a normalized record.
type Keyer struct {
	fields  []blockField
	encoder Encoder
}

// NewKeyer builds a Keyer for the configured blocking fields. Name-typed
// fields are keyed phonetically, every other type by exact value.
func NewKeyer(cfg *config.LinkageCfg) (*Keyer, error) {
	enc, err := NewEncoder(cfg.PhoneticEncoder, cfg.PhoneticCodes)
	if err != nil {
		return nil, err
	}
	k := &Keyer{encoder: enc}
	for _, name := range cfg.BlockingFields {
		f, ok := cfg.Field(name)
		if !ok {
			return nil, fmt.Errorf("%w: blocking field %q is not a duplicate field", config.ErrInvalidConfig, name)
		}
		k.fields = append(k.fields, blockField{name: f.Name, fieldType: f.Type})
	}
	return k, nil
}

// Keys returns the sorted, distinct block keys of rec. Empty values
// contribute nothing.
func (k *Keyer) Keys(rec models.NormalizedRecord) []string {
	set := make(map[string]struct{}, 4)
	for _, f := range k.fields {
		v := rec[f.name]
		if v == "" {
			continue
		}
		if f.fieldType == config.TypeName {
			p, s := k.encoder.Encode(v)
			if p != "" {
				set["name:"+p] = struct{}{}
			}
			if s != "" {
				set["name:"+s] = struct{}{}
			}
			continue
		}
		set[f.fieldType+":"+v] = struct{}{}
	}
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Index is an append-only map from block key to the entries filed under
// it, in insertion order. It is owned by a single linkage pass and is not
// safe for concurrent use.
type Index struct {
	buckets map[string][]Entry
	entries int
}

func NewIndex() *Index {
	return &Index{buckets: make(map[string][]Entry)}
}

// Candidates returns the union of the buckets under keys, one entry per
// row index, excluding self, sorted by ascending row index.
func (ix *Index) Candidates(keys []string, self int) []Entry {
	seen := make(map[int]struct{})
	var out []Entry
	for _, key := range keys {
		for _, e := range ix.buckets[key] {
			if e.RowIndex == self {
				continue
			}
			if _, dup := seen[e.RowIndex]; dup {
				continue
			}
			seen[e.RowIndex] = struct{}{}
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RowIndex < out[j].RowIndex })
	return out
}

// Insert files e under every key. A record without keys is not stored.
func (ix *Index) Insert(keys []string, e Entry) {
	if len(keys) == 0 {
		return
	}
	for _, key := range keys {
		ix.buckets[key] = append(ix.buckets[key], e)
	}
	ix.entries++
}

// Stats reports the number of buckets and of indexed records.
func (ix *Index) Stats() (buckets, records int) {
	return len(ix.buckets), ix.entries
}
