package trigger

import (
	"encoding/hex"
	"strconv"

	"lukechampine.com/blake3"

	"marginrisk/pkg/identity"
)

// IdempotencyKey derives a stable, collision-resistant key for one trigger
// execution attempt from the (account, TCS index, round) tuple, so a
// resubmitted transaction after a timeout doesn't double-execute the same
// trigger. blake3 is used the same way the teacher reaches for it when it
// needs a fast content hash that isn't part of consensus-critical state.
func IdempotencyKey(account identity.Address, tcsIndex int, round uint64) string {
	h := blake3.New(32, nil)
	_, _ = h.Write(account.Bytes())
	_, _ = h.Write([]byte{':'})
	_, _ = h.Write([]byte(strconv.Itoa(tcsIndex)))
	_, _ = h.Write([]byte{':'})
	_, _ = h.Write([]byte(strconv.FormatUint(round, 10)))
	return hex.EncodeToString(h.Sum(nil))
}
