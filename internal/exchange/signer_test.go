package exchange

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSigner_DeterministicForFixedInput(t *testing.T) {
	s := Signer{APIKey: "key", APISecret: "secret", RecvWindow: 5000}
	params := url.Values{"symbol": {"BTCUSDT"}}
	now := time.UnixMilli(1700000000000)

	query1, sig1 := s.Sign(params, now)
	query2, sig2 := s.Sign(params, now)

	require.Equal(t, query1, query2)
	require.Equal(t, sig1, sig2)
	require.Contains(t, query1, "recvWindow=5000")
	require.Contains(t, query1, "timestamp=1700000000000")
}

func TestSigner_DifferentSecretsDifferentSignatures(t *testing.T) {
	params := url.Values{"symbol": {"BTCUSDT"}}
	now := time.UnixMilli(1700000000000)

	_, sigA := Signer{APIKey: "k", APISecret: "secretA", RecvWindow: 5000}.Sign(params, now)
	_, sigB := Signer{APIKey: "k", APISecret: "secretB", RecvWindow: 5000}.Sign(params, now)

	require.NotEqual(t, sigA, sigB)
}
