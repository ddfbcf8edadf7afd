package mqtt

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"hash"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// SCRAMHash selects the hash algorithm for SCRAM authentication.
type SCRAMHash int

const (
	// SCRAMHashSHA256 uses SHA-256 (recommended).
	SCRAMHashSHA256 SCRAMHash = iota
	// SCRAMHashSHA512 uses SHA-512.
	SCRAMHashSHA512
)

// String returns the MQTT auth method name for this hash.
func (h SCRAMHash) String() string {
	if h == SCRAMHashSHA512 {
		return "SCRAM-SHA-512"
	}
	return "SCRAM-SHA-256"
}

func (h SCRAMHash) hashFunc() func() hash.Hash {
	if h == SCRAMHashSHA512 {
		return sha512.New
	}
	return sha256.New
}

func (h SCRAMHash) keySize() int {
	if h == SCRAMHashSHA512 {
		return 64
	}
	return 32
}

// SCRAMCredentials are the pre-computed verifier values for one user,
// computed once when the password is set and stored instead of it.
type SCRAMCredentials struct {
	// Hash is the algorithm these credentials were derived with.
	Hash SCRAMHash

	// Salt is the per-user random salt.
	Salt []byte

	// Iterations is the PBKDF2 iteration count (at least 4096).
	Iterations int

	// StoredKey is H(ClientKey).
	StoredKey []byte

	// ServerKey is HMAC(SaltedPassword, "Server Key").
	ServerKey []byte
}

// SCRAMCredentialLookup resolves a username to its stored credentials.
type SCRAMCredentialLookup interface {
	// LookupCredentials returns nil when the user does not exist.
	LookupCredentials(ctx context.Context, username string) (*SCRAMCredentials, error)
}

// SCRAMCredentialLookupFunc is a function adapter for SCRAMCredentialLookup.
type SCRAMCredentialLookupFunc func(ctx context.Context, username string) (*SCRAMCredentials, error)

// LookupCredentials implements SCRAMCredentialLookup.
func (f SCRAMCredentialLookupFunc) LookupCredentials(ctx context.Context, username string) (*SCRAMCredentials, error) {
	return f(ctx, username)
}

// scramState carries the exchange between AuthStart and AuthContinue.
type scramState struct {
	username    string
	clientNonce string
	serverNonce string
	authMessage string
	credentials *SCRAMCredentials
	hashType    SCRAMHash
}

// SCRAMAuthenticator implements SCRAM over the v5 AUTH exchange. It
// handles the protocol; embedders only supply credential lookup.
type SCRAMAuthenticator struct {
	lookup SCRAMCredentialLookup
	hashes []SCRAMHash
}

// NewSCRAMAuthenticator creates an authenticator for the given hash
// algorithms, defaulting to SCRAM-SHA-256.
func NewSCRAMAuthenticator(lookup SCRAMCredentialLookup, hashes ...SCRAMHash) *SCRAMAuthenticator {
	if len(hashes) == 0 {
		hashes = []SCRAMHash{SCRAMHashSHA256}
	}
	return &SCRAMAuthenticator{lookup: lookup, hashes: hashes}
}

// SupportsMethod reports whether the method name is one of the configured
// SCRAM variants.
func (a *SCRAMAuthenticator) SupportsMethod(method string) bool {
	for _, h := range a.hashes {
		if h.String() == method {
			return true
		}
	}
	return false
}

func (a *SCRAMAuthenticator) hashForMethod(method string) (SCRAMHash, bool) {
	for _, h := range a.hashes {
		if h.String() == method {
			return h, true
		}
	}
	return SCRAMHashSHA256, false
}

func scramDenied() *EnhancedAuthResult {
	return &EnhancedAuthResult{Success: false, ReasonCode: ReasonNotAuthorized}
}

// AuthStart processes the client-first-message and returns the server
// challenge.
func (a *SCRAMAuthenticator) AuthStart(ctx context.Context, authCtx *EnhancedAuthContext) (*EnhancedAuthResult, error) {
	hashType, ok := a.hashForMethod(authCtx.AuthMethod)
	if !ok {
		return scramDenied(), nil
	}

	// client-first-message: n,,n=<username>,r=<client-nonce>
	clientFirst := string(authCtx.AuthData)
	username, clientNonce := parseScramClientFirst(clientFirst)
	if username == "" || clientNonce == "" {
		return scramDenied(), nil
	}

	creds, err := a.lookup.LookupCredentials(ctx, username)
	if err != nil {
		return nil, err
	}
	if creds == nil || creds.Hash != hashType {
		return scramDenied(), nil
	}

	serverNonce := clientNonce + generateScramNonce()
	saltB64 := base64.StdEncoding.EncodeToString(creds.Salt)
	serverFirst := fmt.Sprintf("r=%s,s=%s,i=%d", serverNonce, saltB64, creds.Iterations)

	authMessage := fmt.Sprintf("%s,%s", extractScramBareMessage(clientFirst), serverFirst)

	return &EnhancedAuthResult{
		Continue:   true,
		ReasonCode: ReasonContinueAuth,
		AuthData:   []byte(serverFirst),
		State: &scramState{
			username:    username,
			clientNonce: clientNonce,
			serverNonce: serverNonce,
			authMessage: authMessage,
			credentials: creds,
			hashType:    hashType,
		},
	}, nil
}

// AuthContinue verifies the client proof from the client-final-message
// and returns the server signature for mutual authentication.
func (a *SCRAMAuthenticator) AuthContinue(_ context.Context, authCtx *EnhancedAuthContext) (*EnhancedAuthResult, error) {
	state, ok := authCtx.State.(*scramState)
	if !ok || state == nil {
		return scramDenied(), nil
	}

	hashFunc := state.hashType.hashFunc()

	// client-final-message: c=<channel-binding>,r=<nonce>,p=<proof>
	channelBinding, nonce, proofB64 := parseScramClientFinal(string(authCtx.AuthData))
	if nonce != state.serverNonce {
		return scramDenied(), nil
	}

	clientProof, err := base64.StdEncoding.DecodeString(proofB64)
	if err != nil {
		return scramDenied(), nil
	}

	clientFinalWithoutProof := fmt.Sprintf("c=%s,r=%s", channelBinding, nonce)
	fullAuthMessage := fmt.Sprintf("%s,%s", state.authMessage, clientFinalWithoutProof)

	// ClientSignature = HMAC(StoredKey, AuthMessage)
	clientSigHMAC := hmac.New(hashFunc, state.credentials.StoredKey)
	clientSigHMAC.Write([]byte(fullAuthMessage))
	clientSignature := clientSigHMAC.Sum(nil)

	// ClientKey = ClientProof XOR ClientSignature
	if len(clientProof) != len(clientSignature) {
		return scramDenied(), nil
	}
	clientKey := make([]byte, len(clientProof))
	for i := range clientProof {
		clientKey[i] = clientProof[i] ^ clientSignature[i]
	}

	// H(ClientKey) must equal StoredKey.
	h := hashFunc()
	h.Write(clientKey)
	if !hmac.Equal(h.Sum(nil), state.credentials.StoredKey) {
		return scramDenied(), nil
	}

	serverSigHMAC := hmac.New(hashFunc, state.credentials.ServerKey)
	serverSigHMAC.Write([]byte(fullAuthMessage))
	serverFinal := "v=" + base64.StdEncoding.EncodeToString(serverSigHMAC.Sum(nil))

	return &EnhancedAuthResult{
		Success:    true,
		ReasonCode: ReasonSuccess,
		AuthData:   []byte(serverFinal),
	}, nil
}

// ComputeSCRAMCredentials derives stored credentials from a plaintext
// password. The salt must be random and unique per user.
func ComputeSCRAMCredentials(hashType SCRAMHash, password string, salt []byte, iterations int) *SCRAMCredentials {
	hashFunc := hashType.hashFunc()

	saltedPassword := pbkdf2.Key([]byte(password), salt, iterations, hashType.keySize(), hashFunc)

	clientKeyHMAC := hmac.New(hashFunc, saltedPassword)
	clientKeyHMAC.Write([]byte("Client Key"))
	clientKey := clientKeyHMAC.Sum(nil)

	h := hashFunc()
	h.Write(clientKey)
	storedKey := h.Sum(nil)

	serverKeyHMAC := hmac.New(hashFunc, saltedPassword)
	serverKeyHMAC.Write([]byte("Server Key"))
	serverKey := serverKeyHMAC.Sum(nil)

	return &SCRAMCredentials{
		Hash:       hashType,
		Salt:       salt,
		Iterations: iterations,
		StoredKey:  storedKey,
		ServerKey:  serverKey,
	}
}

// GenerateSalt generates a random salt for credential computation.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return salt, nil
}

func parseScramClientFirst(msg string) (username, nonce string) {
	for _, part := range strings.Split(msg, ",") {
		if len(part) < 2 {
			continue
		}
		switch part[:2] {
		case "n=":
			username = part[2:]
		case "r=":
			nonce = part[2:]
		}
	}
	return
}

// extractScramBareMessage strips the GS2 header from the
// client-first-message.
func extractScramBareMessage(msg string) string {
	if idx := strings.Index(msg, "n="); idx >= 0 {
		return msg[idx:]
	}
	return msg
}

func parseScramClientFinal(msg string) (channelBinding, nonce, proof string) {
	for _, part := range strings.Split(msg, ",") {
		if len(part) < 2 {
			continue
		}
		switch part[:2] {
		case "c=":
			channelBinding = part[2:]
		case "r=":
			nonce = part[2:]
		case "p=":
			proof = part[2:]
		}
	}
	return
}

func generateScramNonce() string {
	b := make([]byte, 18)
	if _, err := rand.Read(b); err != nil {
		return "fallback-nonce"
	}
	return base64.StdEncoding.EncodeToString(b)
}
