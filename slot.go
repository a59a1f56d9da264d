package redex

// slotCount is the fixed size of a Redis Cluster's hash slot space
// (spec.md §4.7).
const slotCount = 16384

// keySlot computes the cluster hash slot for key, honoring the `{...}`
// hash-tag convention: if key contains a non-empty `{...}` substring, only
// the bytes between the braces are hashed, so related keys can be pinned
// to the same slot. The hash-tag extraction is grounded on
// zhvala-goredis/conn.go's hash() function; the slot space itself is
// Redis Cluster's real 16384, not that repo's smaller connSlots table.
func keySlot(key string) int {
	tag := hashTag(key)
	return int(crc16(tag) % slotCount)
}

// hashTag returns the substring to hash for key: the bytes strictly
// between the first `{` and the next `}` after it, if that span is
// non-empty, or key itself otherwise.
func hashTag(key string) string {
	start := -1
	for i := 0; i < len(key); i++ {
		if key[i] == '{' {
			start = i
			break
		}
	}
	if start == -1 {
		return key
	}

	end := -1
	for i := start + 1; i < len(key); i++ {
		if key[i] == '}' {
			end = i
			break
		}
	}
	if end == -1 || end == start+1 {
		return key
	}

	return key[start+1 : end]
}

// slotsMatch reports whether every key in keys maps to the same cluster
// slot; a single-key or empty command trivially matches (spec.md §4.7,
// "CrossSlot").
func slotsMatch(keys []string) (int, bool) {
	if len(keys) == 0 {
		return -1, true
	}
	slot := keySlot(keys[0])
	for _, k := range keys[1:] {
		if keySlot(k) != slot {
			return -1, false
		}
	}
	return slot, true
}

// crc16 is the CRC16/XMODEM checksum Redis Cluster uses for slot
// assignment (polynomial 0x1021, initial value 0).
func crc16(data string) uint16 {
	var crc uint16
	for i := 0; i < len(data); i++ {
		crc ^= uint16(data[i]) << 8
		for b := 0; b < 8; b++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
