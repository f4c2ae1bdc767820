//go:build libpostal

package external

import (
	"github.com/openvenues/gopostal/expand"
)

// LibpostalAvailable reports whether street expansion is compiled in.
const LibpostalAvailable = true

// ExpandStreet returns libpostal's first English expansion of raw
// ("10 high st" -> "10 high street"), or raw when nothing is produced.
func ExpandStreet(raw string) string {
	opts := expand.DefaultOptions()
	opts.Languages = []string{"en"}
	exps := expand.ExpandAddress(raw, opts)
	if len(exps) == 0 {
		return raw
	}
	return exps[0]
}
