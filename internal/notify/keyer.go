package notify

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Key computes the deterministic notification id for one logical occurrence.
// Two identical occurrences, no matter which process instance triggers them
// or how often a scan is retried, hash to the same id — the id doubles as the
// storage primary key, so the conditional write on it is the entire dedup
// mechanism.
func Key(ownerID, subjectID, notifType, targetDate string) string {
	h := sha256.New()
	// 0x1f (unit separator) cannot occur in ids, type tags or ISO dates,
	// so the concatenation is unambiguous.
	for i, part := range []string{ownerID, subjectID, notifType, targetDate} {
		if i > 0 {
			h.Write([]byte{0x1f})
		}
		h.Write([]byte(part))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// DayBucket renders the UTC calendar day used as the date component for
// occurrences that dedup per day rather than per deadline.
func DayBucket(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
