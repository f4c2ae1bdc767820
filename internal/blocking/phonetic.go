package blocking

import (
	"fmt"

	"github.com/antzucaro/matchr"
	"github.com/xrash/smetrics"

	"github.com/shaymcgreal/datatransformer/app/config"
)

// Encoder turns a normalized name into up to two phonetic codes.
type Encoder interface {
	Encode(s string) (primary, secondary string)
}

type doubleMetaphone struct{ primaryOnly bool }

func (d doubleMetaphone) Encode(s string) (string, string) {
	p, sec := matchr.DoubleMetaphone(s)
	if d.primaryOnly {
		return p, ""
	}
	return p, sec
}

type soundex struct{}

func (soundex) Encode(s string) (string, string) {
	return smetrics.Soundex(s), ""
}

// NewEncoder returns the configured phonetic encoder.
func NewEncoder(name, codes string) (Encoder, error) {
	switch name {
	case config.EncoderDoubleMetaphone, "":
		return doubleMetaphone{primaryOnly: codes == config.CodesPrimary}, nil
	case config.EncoderSoundex:
		return soundex{}, nil
	default:
		return nil, fmt.Errorf("unknown phonetic encoder %q", name)
	}
}
