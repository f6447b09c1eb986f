package execution

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
)

// sign computes HMAC-SHA256 over q.Encode(), matching the teacher's
// binance_broker.go sign() exactly. q.Encode() orders parameters by key and
// joins them with "&"; insertion order is not preserved. The caller adds the
// result as the "signature" parameter, and when the request is encoded that
// parameter also sits in key order, not necessarily last.
func sign(secret string, q url.Values) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(q.Encode()))
	return hex.EncodeToString(mac.Sum(nil))
}
