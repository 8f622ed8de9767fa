package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/ndax-gateway/errs"
)

func TestSignMatchesHMACOfConcatenation(t *testing.T) {
	mac := hmac.New(sha256.New, []byte("s3cret"))
	mac.Write([]byte("1717171717000" + "42" + "key-abc"))
	want := hex.EncodeToString(mac.Sum(nil))

	require.Equal(t, want, Sign("1717171717000", "42", "key-abc", "s3cret"))
	require.Len(t, want, 64)
}

func TestSignIsDeterministicAndInputSensitive(t *testing.T) {
	base := Sign("1000", "7", "key", "secret")
	require.Equal(t, base, Sign("1000", "7", "key", "secret"))

	variants := []string{
		Sign("1001", "7", "key", "secret"),
		Sign("1000", "8", "key", "secret"),
		Sign("1000", "7", "kez", "secret"),
		Sign("1000", "7", "key", "secreT"),
	}
	for i, v := range variants {
		require.NotEqual(t, base, v, "variant %d collided", i)
	}
}

func TestSignerHeadersUseFreshNonce(t *testing.T) {
	now := time.UnixMilli(1717171717000)
	clock := func() time.Time {
		current := now
		now = now.Add(time.Millisecond)
		return current
	}
	signer, err := NewSigner(Credentials{APIKey: "key", Secret: "secret", UserID: "7"}, clock)
	require.NoError(t, err)

	first := signer.Headers()
	second := signer.Headers()

	require.Equal(t, "1717171717000", first.Nonce)
	require.Equal(t, "1717171717001", second.Nonce)
	require.Equal(t, Sign(first.Nonce, "7", "key", "secret"), first.Signature)
	require.NotEqual(t, first.Signature, second.Signature)
	require.Equal(t, "key", first.APIKey)
	require.Equal(t, "7", first.UserID)

	header := http.Header{}
	first.Apply(header)
	require.Equal(t, first.Nonce, header.Get(HeaderNonce))
	require.Equal(t, "key", header.Get(HeaderAPIKey))
	require.Equal(t, first.Signature, header.Get(HeaderSignature))
	require.Equal(t, "7", header.Get(HeaderUserID))
}

func TestNewSignerRejectsIncompleteCredentials(t *testing.T) {
	_, err := NewSigner(Credentials{APIKey: "key", UserID: "7"}, nil)
	require.Error(t, err)
	require.True(t, errs.HasCode(err, errs.CodeSigning))
	require.Contains(t, err.Error(), "secret")
}

func TestDefaultClockProducesMillisecondNonce(t *testing.T) {
	signer, err := NewSigner(Credentials{APIKey: "key", Secret: "secret", UserID: "7"}, nil)
	require.NoError(t, err)

	before := time.Now().UnixMilli()
	nonce, err := strconv.ParseInt(signer.Nonce(), 10, 64)
	after := time.Now().UnixMilli()

	require.NoError(t, err)
	require.GreaterOrEqual(t, nonce, before)
	require.LessOrEqual(t, nonce, after)
}
