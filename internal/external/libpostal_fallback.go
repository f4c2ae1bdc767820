//go:build !libpostal

package external

const LibpostalAvailable = false

// ExpandStreet is the identity without libpostal.
func ExpandStreet(raw string) string { return raw }
