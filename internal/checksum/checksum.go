// Package checksum provides the integrity hash used throughout taskdeck.
// The hash detects out-of-band changes to the store, it is not a security
// boundary, so a fast non-cryptographic hash is the right tradeoff.
package checksum

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Sum returns the hash of data as a fixed-width hex string. Nil and empty
// input hash identically, so a missing file can be treated as empty content.
func Sum(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}
