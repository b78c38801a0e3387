package reminder

import (
	"strconv"

	"github.com/dukerupert/daybook/internal/model"
)

// radix is prime and larger than any offset, so within one kind distinct
// (id, offset) pairs map to distinct values.
const radix = 10007

// MaxOffset bounds the offsets Key accepts without collisions.
const MaxOffset = radix - 1

// MaxEntityID is the largest numeric id whose keys stay unique within its
// kind. Above it the id and offset value wraps the 29 bits left after the
// kind code. Keys of different kinds never collide.
const MaxEntityID = (1<<29)/radix - 1

// kindCode numbers each alarm kind. The code occupies the two low bits of
// every key.
func kindCode(k model.AlarmKind) uint32 {
	switch k {
	case model.AlarmNote:
		return 1
	case model.AlarmSchedule:
		return 2
	case model.AlarmRoutine:
		return 3
	}
	return 0
}

// Key derives the stable alarm key for an entity and offset. The same
// inputs always produce the same non-negative key, and Key(k, ...) % 4 is
// the code of kind k.
func Key(kind model.AlarmKind, id int64, offset int) int32 {
	h := uint32(id)*radix + uint32(offset)
	h = h<<2 | kindCode(kind)
	return int32(h & 0x7fffffff)
}

// StringID reduces an opaque string identifier to a numeric id with a
// base-31 polynomial hash.
func StringID(s string) int64 {
	var h uint32
	for i := 0; i < len(s); i++ {
		h = h*31 + uint32(s[i])
	}
	return int64(h & 0x7fffffff)
}

// EntityKey returns the numeric id used for keying an entity whose id is
// stored as text. Numeric ids are used as is.
func EntityKey(kind model.AlarmKind, entityID string) int64 {
	if kind != model.AlarmNote {
		if n, err := strconv.ParseInt(entityID, 10, 64); err == nil {
			return n
		}
	}
	return StringID(entityID)
}
