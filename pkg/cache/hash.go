package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// hashKey builds "kind:<sha256>" from the input hash and the JSON encoding
// of the options. Options structs use omitempty so adding a field does not
// invalidate existing entries.
func hashKey(kind, inputHash string, opts any) string {
	h := sha256.New()
	h.Write([]byte(inputHash))
	h.Write([]byte{0})
	if b, err := json.Marshal(opts); err == nil {
		h.Write(b)
	}
	return kind + ":" + hex.EncodeToString(h.Sum(nil))
}

// Hash returns the hex SHA-256 digest of a document.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
