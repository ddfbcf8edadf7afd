package mqtt

import (
	"context"
	"crypto/hmac"
	"encoding/base64"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/pbkdf2"
)

func scramTestLookup(username string, creds *SCRAMCredentials) SCRAMCredentialLookup {
	return SCRAMCredentialLookupFunc(func(_ context.Context, name string) (*SCRAMCredentials, error) {
		if name == username {
			return creds, nil
		}
		return nil, nil
	})
}

// scramClientProof computes the client-final-message the way a real client
// would, from the server-first challenge.
func scramClientProof(t *testing.T, hashType SCRAMHash, password, clientFirstBare, serverFirst string) (clientFinal string) {
	t.Helper()

	var serverNonce, saltB64 string
	var iterations int
	for _, part := range strings.Split(serverFirst, ",") {
		switch {
		case strings.HasPrefix(part, "r="):
			serverNonce = part[2:]
		case strings.HasPrefix(part, "s="):
			saltB64 = part[2:]
		case strings.HasPrefix(part, "i="):
			fmt.Sscanf(part[2:], "%d", &iterations)
		}
	}
	salt, err := base64.StdEncoding.DecodeString(saltB64)
	require.NoError(t, err)

	hashFunc := hashType.hashFunc()
	saltedPassword := pbkdf2.Key([]byte(password), salt, iterations, hashType.keySize(), hashFunc)

	clientKeyHMAC := hmac.New(hashFunc, saltedPassword)
	clientKeyHMAC.Write([]byte("Client Key"))
	clientKey := clientKeyHMAC.Sum(nil)

	h := hashFunc()
	h.Write(clientKey)
	storedKey := h.Sum(nil)

	clientFinalWithoutProof := "c=biws,r=" + serverNonce
	authMessage := clientFirstBare + "," + serverFirst + "," + clientFinalWithoutProof

	clientSigHMAC := hmac.New(hashFunc, storedKey)
	clientSigHMAC.Write([]byte(authMessage))
	clientSignature := clientSigHMAC.Sum(nil)

	proof := make([]byte, len(clientKey))
	for i := range clientKey {
		proof[i] = clientKey[i] ^ clientSignature[i]
	}

	return clientFinalWithoutProof + ",p=" + base64.StdEncoding.EncodeToString(proof)
}

func TestSCRAMFullExchange(t *testing.T) {
	ctx := context.Background()

	salt, err := GenerateSalt()
	require.NoError(t, err)
	creds := ComputeSCRAMCredentials(SCRAMHashSHA256, "hunter2", salt, 4096)

	auth := NewSCRAMAuthenticator(scramTestLookup("alice", creds))
	require.True(t, auth.SupportsMethod("SCRAM-SHA-256"))
	require.False(t, auth.SupportsMethod("SCRAM-SHA-512"))

	clientFirstBare := "n=alice,r=client-nonce-123"
	start, err := auth.AuthStart(ctx, &EnhancedAuthContext{
		AuthMethod: "SCRAM-SHA-256",
		AuthData:   []byte("n,," + clientFirstBare),
	})
	require.NoError(t, err)
	require.True(t, start.Continue)
	assert.Equal(t, ReasonContinueAuth, start.ReasonCode)

	serverFirst := string(start.AuthData)
	assert.True(t, strings.HasPrefix(serverFirst, "r=client-nonce-123"))
	assert.Contains(t, serverFirst, "i=4096")

	clientFinal := scramClientProof(t, SCRAMHashSHA256, "hunter2", clientFirstBare, serverFirst)
	final, err := auth.AuthContinue(ctx, &EnhancedAuthContext{
		AuthMethod: "SCRAM-SHA-256",
		AuthData:   []byte(clientFinal),
		State:      start.State,
	})
	require.NoError(t, err)
	assert.True(t, final.Success)
	assert.Equal(t, ReasonSuccess, final.ReasonCode)

	// Mutual authentication: the server proves it holds the server key.
	serverFinal := string(final.AuthData)
	require.True(t, strings.HasPrefix(serverFinal, "v="))

	hashFunc := SCRAMHashSHA256.hashFunc()
	var serverNonce string
	for _, part := range strings.Split(serverFirst, ",") {
		if strings.HasPrefix(part, "r=") {
			serverNonce = part[2:]
		}
	}
	authMessage := clientFirstBare + "," + serverFirst + ",c=biws,r=" + serverNonce
	wantHMAC := hmac.New(hashFunc, creds.ServerKey)
	wantHMAC.Write([]byte(authMessage))
	assert.Equal(t, "v="+base64.StdEncoding.EncodeToString(wantHMAC.Sum(nil)), serverFinal)
}

func TestSCRAMWrongPassword(t *testing.T) {
	ctx := context.Background()

	salt, err := GenerateSalt()
	require.NoError(t, err)
	creds := ComputeSCRAMCredentials(SCRAMHashSHA256, "correct", salt, 4096)

	auth := NewSCRAMAuthenticator(scramTestLookup("alice", creds))

	clientFirstBare := "n=alice,r=nonce-abc"
	start, err := auth.AuthStart(ctx, &EnhancedAuthContext{
		AuthMethod: "SCRAM-SHA-256",
		AuthData:   []byte("n,," + clientFirstBare),
	})
	require.NoError(t, err)
	require.True(t, start.Continue)

	clientFinal := scramClientProof(t, SCRAMHashSHA256, "wrong", clientFirstBare, string(start.AuthData))
	final, err := auth.AuthContinue(ctx, &EnhancedAuthContext{
		AuthMethod: "SCRAM-SHA-256",
		AuthData:   []byte(clientFinal),
		State:      start.State,
	})
	require.NoError(t, err)
	assert.False(t, final.Success)
	assert.Equal(t, ReasonNotAuthorized, final.ReasonCode)
}

func TestSCRAMStartRejections(t *testing.T) {
	ctx := context.Background()

	salt, _ := GenerateSalt()
	creds := ComputeSCRAMCredentials(SCRAMHashSHA256, "pw", salt, 4096)
	auth := NewSCRAMAuthenticator(scramTestLookup("alice", creds))

	t.Run("unknown user", func(t *testing.T) {
		res, err := auth.AuthStart(ctx, &EnhancedAuthContext{
			AuthMethod: "SCRAM-SHA-256",
			AuthData:   []byte("n,,n=mallory,r=nonce"),
		})
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Equal(t, ReasonNotAuthorized, res.ReasonCode)
	})

	t.Run("unsupported method", func(t *testing.T) {
		res, err := auth.AuthStart(ctx, &EnhancedAuthContext{
			AuthMethod: "SCRAM-SHA-512",
			AuthData:   []byte("n,,n=alice,r=nonce"),
		})
		require.NoError(t, err)
		assert.False(t, res.Success)
	})

	t.Run("garbled first message", func(t *testing.T) {
		res, err := auth.AuthStart(ctx, &EnhancedAuthContext{
			AuthMethod: "SCRAM-SHA-256",
			AuthData:   []byte("not a scram message"),
		})
		require.NoError(t, err)
		assert.False(t, res.Success)
	})
}

func TestSCRAMContinueRejections(t *testing.T) {
	ctx := context.Background()

	salt, _ := GenerateSalt()
	creds := ComputeSCRAMCredentials(SCRAMHashSHA256, "pw", salt, 4096)
	auth := NewSCRAMAuthenticator(scramTestLookup("alice", creds))

	t.Run("missing state", func(t *testing.T) {
		res, err := auth.AuthContinue(ctx, &EnhancedAuthContext{
			AuthMethod: "SCRAM-SHA-256",
			AuthData:   []byte("c=biws,r=nonce,p=cHJvb2Y="),
		})
		require.NoError(t, err)
		assert.False(t, res.Success)
	})

	t.Run("nonce mismatch", func(t *testing.T) {
		start, err := auth.AuthStart(ctx, &EnhancedAuthContext{
			AuthMethod: "SCRAM-SHA-256",
			AuthData:   []byte("n,,n=alice,r=nonce-1"),
		})
		require.NoError(t, err)
		require.True(t, start.Continue)

		res, err := auth.AuthContinue(ctx, &EnhancedAuthContext{
			AuthMethod: "SCRAM-SHA-256",
			AuthData:   []byte("c=biws,r=tampered-nonce,p=cHJvb2Y="),
			State:      start.State,
		})
		require.NoError(t, err)
		assert.False(t, res.Success)
	})
}

func TestSCRAMSHA512(t *testing.T) {
	ctx := context.Background()

	salt, err := GenerateSalt()
	require.NoError(t, err)
	creds := ComputeSCRAMCredentials(SCRAMHashSHA512, "secret", salt, 4096)

	auth := NewSCRAMAuthenticator(scramTestLookup("bob", creds), SCRAMHashSHA512)
	require.True(t, auth.SupportsMethod("SCRAM-SHA-512"))

	clientFirstBare := "n=bob,r=nonce-512"
	start, err := auth.AuthStart(ctx, &EnhancedAuthContext{
		AuthMethod: "SCRAM-SHA-512",
		AuthData:   []byte("n,," + clientFirstBare),
	})
	require.NoError(t, err)
	require.True(t, start.Continue)

	clientFinal := scramClientProof(t, SCRAMHashSHA512, "secret", clientFirstBare, string(start.AuthData))
	final, err := auth.AuthContinue(ctx, &EnhancedAuthContext{
		AuthMethod: "SCRAM-SHA-512",
		AuthData:   []byte(clientFinal),
		State:      start.State,
	})
	require.NoError(t, err)
	assert.True(t, final.Success)
}

func TestComputeSCRAMCredentials(t *testing.T) {
	salt := []byte("fixed-salt-16byte")

	a := ComputeSCRAMCredentials(SCRAMHashSHA256, "pw", salt, 4096)
	b := ComputeSCRAMCredentials(SCRAMHashSHA256, "pw", salt, 4096)
	assert.Equal(t, a.StoredKey, b.StoredKey)
	assert.Equal(t, a.ServerKey, b.ServerKey)
	assert.Len(t, a.StoredKey, 32)

	c := ComputeSCRAMCredentials(SCRAMHashSHA256, "other", salt, 4096)
	assert.NotEqual(t, a.StoredKey, c.StoredKey)

	d := ComputeSCRAMCredentials(SCRAMHashSHA512, "pw", salt, 4096)
	assert.Len(t, d.StoredKey, 64)
}

func TestGenerateSalt(t *testing.T) {
	a, err := GenerateSalt()
	require.NoError(t, err)
	b, err := GenerateSalt()
	require.NoError(t, err)

	assert.Len(t, a, 16)
	assert.NotEqual(t, a, b)
}
