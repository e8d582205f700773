package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"sort"
	"strconv"
)

// KeyInput is the evaluation tuple a decision depends on.
type KeyInput struct {
	Subject      string
	Action       string
	ResourceType string
	ResourceID   string
	Attributes   map[string]string
	Context      map[string]string
}

// Key returns a stable hex digest of the tuple. Every field is length
// prefixed so that distinct tuples cannot collide by concatenation, and
// maps are hashed in key order.
func Key(in KeyInput) string {
	h := sha256.New()
	writeField(h, "s", in.Subject)
	writeField(h, "a", in.Action)
	writeField(h, "rt", in.ResourceType)
	writeField(h, "ri", in.ResourceID)
	writeMap(h, "attr", in.Attributes)
	writeMap(h, "ctx", in.Context)
	return hex.EncodeToString(h.Sum(nil))
}

func writeField(h hash.Hash, tag, value string) {
	h.Write([]byte(tag))
	h.Write([]byte(strconv.Itoa(len(value))))
	h.Write([]byte{':'})
	h.Write([]byte(value))
}

func writeMap(h hash.Hash, tag string, m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	writeField(h, tag, strconv.Itoa(len(keys)))
	for _, k := range keys {
		writeField(h, "k", k)
		writeField(h, "v", m[k])
	}
}
