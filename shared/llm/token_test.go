package llm

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestSignedTokenShape(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tok, err := SignedToken("myid.mysecret", now)
	require.NoError(t, err)

	parts := strings.Split(tok, ".")
	require.Len(t, parts, 3)

	header, err := base64.RawURLEncoding.DecodeString(parts[0])
	require.NoError(t, err)
	assert.Equal(t, "HS256", gjson.GetBytes(header, "alg").String())
	assert.Equal(t, "SIGN", gjson.GetBytes(header, "sign_type").String())

	claims, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	assert.Equal(t, "myid", gjson.GetBytes(claims, "api_key").String())
	assert.Equal(t, now.UnixMilli(), gjson.GetBytes(claims, "timestamp").Int())
	assert.Equal(t, now.Add(time.Hour).UnixMilli(), gjson.GetBytes(claims, "exp").Int())
}

func TestSignedTokenSignatureVerifies(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tok, err := SignedToken("myid.mysecret", now)
	require.NoError(t, err)

	idx := strings.LastIndex(tok, ".")
	input, sig := tok[:idx], tok[idx+1:]

	mac := hmac.New(sha256.New, []byte("mysecret"))
	mac.Write([]byte(input))
	want := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	assert.Equal(t, want, sig)
}

func TestSignedTokenIsDeterministicForFixedClock(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	a, err := SignedToken("id.sec", now)
	require.NoError(t, err)
	b, err := SignedToken("id.sec", now)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSignedTokenRejectsNonCompoundKey(t *testing.T) {
	_, err := SignedToken("plainkey", time.Now())
	assert.Error(t, err)

	_, err = SignedToken(".secretonly", time.Now())
	assert.Error(t, err)

	_, err = SignedToken("idonly.", time.Now())
	assert.Error(t, err)
}
