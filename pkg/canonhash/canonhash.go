// Package canonhash fingerprints documents and request payloads.
package canonhash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

const prefix = "sha256:"

// Sum hashes the JSON encoding of v. Map keys are encoded sorted, so maps
// with equal contents hash equally; slices keep their order.
func Sum(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return SumBytes(b), nil
}

func SumBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return prefix + hex.EncodeToString(sum[:])
}
