// Package hashing provides deterministic user bucketing for experiments.
// A user's hash attribute value is mapped onto the unit interval [0,1);
// variation weights partition that interval into contiguous ranges. The
// same (seed, value, version) always produces the same bucket, so
// assignments are stable across processes and restarts.
package hashing

import (
	"hash/fnv"
	"strconv"
)

// Hash maps (seed, value) deterministically onto [0,1). The hash version is
// carried in the payload so definitions authored for different versions can
// coexist; versions are not cross-compatible. Unknown versions return nil
// and the caller must treat the user as not bucketed.
func Hash(seed, value string, version int) *float64 {
	switch version {
	case 2:
		n := fnv1a32(strconv.FormatUint(uint64(fnv1a32(seed+value)), 10))
		v := float64(n%10000) / 10000
		return &v
	case 1:
		n := fnv1a32(value + seed)
		v := float64(n%1000) / 1000
		return &v
	default:
		return nil
	}
}

func fnv1a32(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}
