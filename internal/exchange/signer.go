package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strconv"
	"time"
)

// Signer produces the HMAC-SHA256 signature Binance expects on private
// endpoints. The go-binance client signs internally once given the API
// secret; this type exists so the canonical-query construction is
// independently testable and so callers building raw requests (e.g.
// endpoints the vendored client doesn't cover) can sign them the same way.
type Signer struct {
	APIKey     string
	APISecret  string
	RecvWindow int
}

// Sign appends timestamp and recvWindow to params, builds the canonical
// query string (params sorted by key, '&'-joined "key=value"), and returns
// that string plus its hex-encoded HMAC-SHA256 signature.
func (s Signer) Sign(params url.Values, now time.Time) (query string, signature string) {
	params = cloneValues(params)
	params.Set("timestamp", strconv.FormatInt(now.UnixMilli(), 10))
	params.Set("recvWindow", strconv.Itoa(s.RecvWindow))

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	canonical := ""
	for i, k := range keys {
		if i > 0 {
			canonical += "&"
		}
		canonical += k + "=" + params.Get(k)
	}

	mac := hmac.New(sha256.New, []byte(s.APISecret))
	mac.Write([]byte(canonical))
	return canonical, hex.EncodeToString(mac.Sum(nil))
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		cp := make([]string, len(vals))
		copy(cp, vals)
		out[k] = cp
	}
	return out
}
