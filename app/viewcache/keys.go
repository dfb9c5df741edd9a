package viewcache

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/minio/highwayhash"
)

// keySeed is the per-process HighwayHash key. Keys never persist beyond the
// process, so a random seed per run is fine and keeps keys unguessable.
var keySeed = func() []byte {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("viewcache: seeding hash key: %v", err))
	}
	return b
}()

// Key builds a cache key for a computed view of one table. The table id
// stays in cleartext as the invalidation prefix; the view parameters
// (paging, sort, filter) collapse into a 64-bit HighwayHash.
func Key(tableID string, parts ...string) string {
	h, err := highwayhash.New64(keySeed)
	if err != nil {
		// New64 only fails on a bad key length, which the seed guarantees.
		panic(err)
	}
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("table:%s|%s", tableID, hex.EncodeToString(h.Sum(nil)))
}

// tablePrefix is the invalidation prefix shared by every key of a table.
func tablePrefix(tableID string) string {
	return fmt.Sprintf("table:%s|", tableID)
}

// keyTableID extracts the table id from a cache key, or "".
func keyTableID(key string) string {
	if !strings.HasPrefix(key, "table:") {
		return ""
	}
	rest := strings.TrimPrefix(key, "table:")
	if i := strings.IndexByte(rest, '|'); i >= 0 {
		return rest[:i]
	}
	return ""
}
