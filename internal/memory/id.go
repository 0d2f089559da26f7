package memory

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/rcliao/emotion-memory/internal/model"
)

// behaviorBuckets is the number of buckets behavioral content hashes into.
const behaviorBuckets = 1000

// entryID derives the id for a new entry: type, the first eight hex digits
// of the content's MD5, and the creation time in milliseconds. taken reports
// ids already in use; the smallest free "_<n>" suffix resolves collisions.
func entryID(t model.MemoryType, content string, at time.Time, taken func(string) bool) string {
	sum := md5.Sum([]byte(content))
	base := fmt.Sprintf("%s_%s_%d", t, hex.EncodeToString(sum[:])[:8], at.UnixMilli())
	if !taken(base) {
		return base
	}
	for n := 1; ; n++ {
		id := fmt.Sprintf("%s_%d", base, n)
		if !taken(id) {
			return id
		}
	}
}

// behaviorBucket maps content onto a stable bucket with FNV-1a. Different
// contents may share a bucket.
func behaviorBucket(content string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(content))
	return h.Sum32() % behaviorBuckets
}

func emotionPatternID(e model.Emotion) string {
	return "emotion_" + string(e)
}

func behaviorPatternID(content string) string {
	return fmt.Sprintf("behavior_%d", behaviorBucket(content))
}
