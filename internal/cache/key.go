package cache

import (
	"encoding/hex"
	"fmt"

	"lukechampine.com/blake3"

	"github.com/kilupskalvis/skedits/internal/models"
)

// Key identifies one cached artifact: what was computed (Artifact), for which
// segment, and under which ordering parameters.
type Key struct {
	Artifact  string
	Segment   models.SegmentID
	Scheme    string
	Parameter string
	Seed      int64
}

func (k Key) String() string {
	return fmt.Sprintf("%s/segment=%d-scheme=%s-param=%s-seed=%d", k.Artifact, k.Segment, k.Scheme, k.Parameter, k.Seed)
}

// Fingerprint returns the hex BLAKE3-256 digest of the key's string form.
func (k Key) Fingerprint() string {
	sum := blake3.Sum256([]byte(k.String()))
	return hex.EncodeToString(sum[:])
}
