package experiment

import "hash/fnv"

// Hasher maps a string to a 32-bit bucket key. Only determinism matters;
// collisions and mild bias are acceptable for traffic splitting.
type Hasher interface {
	Sum32(s string) uint32
}

// FNVHasher is 32-bit FNV-1a, the default.
type FNVHasher struct{}

func (FNVHasher) Sum32(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

// LegacyHasher reproduces the rolling hash (h<<5)-h+c over UTF-16 code
// units used by the marketing site before bucketing moved server-side, so
// visitors bucketed there keep their variant.
type LegacyHasher struct{}

func (LegacyHasher) Sum32(s string) uint32 {
	var h int32
	for _, u := range utf16Units(s) {
		h = (h << 5) - h + int32(u)
	}
	if h < 0 {
		return uint32(-int64(h))
	}
	return uint32(h)
}

func utf16Units(s string) []uint16 {
	units := make([]uint16, 0, len(s))
	for _, r := range s {
		if r >= 0x10000 {
			r -= 0x10000
			units = append(units, uint16(0xD800+(r>>10)), uint16(0xDC00+(r&0x3FF)))
			continue
		}
		units = append(units, uint16(r))
	}
	return units
}

// bucket returns a value in [0, 100).
func bucket(h Hasher, s string) int {
	return int(h.Sum32(s) % 100)
}
