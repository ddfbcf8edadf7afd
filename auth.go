package mqtt

import (
	"context"
	"net"
)

// AuthResult is the outcome of an authentication attempt.
type AuthResult struct {
	// Success indicates whether authentication was successful.
	Success bool

	// ReasonCode is the reason code to return to the client.
	ReasonCode ReasonCode

	// Properties are additional properties for CONNACK or AUTH.
	Properties Properties

	// ContinueAuth indicates the enhanced exchange should continue.
	ContinueAuth bool

	// AuthData is authentication data to send back to the client.
	AuthData []byte
}

// AuthContext describes the connection attempting to authenticate.
type AuthContext struct {
	ClientID   string
	Username   string
	Password   []byte
	RemoteAddr net.Addr

	// AuthMethod and AuthData come from the CONNECT properties on 5.0.
	AuthMethod string
	AuthData   []byte
}

// Authenticator decides whether a CONNECT is allowed.
type Authenticator interface {
	Authenticate(ctx context.Context, authCtx *AuthContext) (*AuthResult, error)
}

// EnhancedAuthContext carries one step of an AUTH exchange.
type EnhancedAuthContext struct {
	ClientID   string
	AuthMethod string
	AuthData   []byte
	ReasonCode ReasonCode
	RemoteAddr net.Addr

	// State holds authenticator-specific state between exchanges.
	State any
}

// EnhancedAuthResult is the outcome of one AUTH exchange step.
type EnhancedAuthResult struct {
	// Success indicates authentication completed.
	Success bool

	// Continue indicates another exchange is needed.
	Continue bool

	ReasonCode ReasonCode
	AuthData   []byte
	Properties Properties

	// State is threaded into the next exchange step.
	State any
}

// EnhancedAuthenticator runs multi-step authentication over AUTH packets,
// a 5.0-only feature.
type EnhancedAuthenticator interface {
	// SupportsMethod reports whether the method name is handled.
	SupportsMethod(method string) bool

	// AuthStart begins the exchange from a CONNECT carrying an
	// authentication-method property.
	AuthStart(ctx context.Context, authCtx *EnhancedAuthContext) (*EnhancedAuthResult, error)

	// AuthContinue advances the exchange on each AUTH packet.
	AuthContinue(ctx context.Context, authCtx *EnhancedAuthContext) (*EnhancedAuthResult, error)
}

// AllowAllAuthenticator accepts every connection.
type AllowAllAuthenticator struct{}

// Authenticate always succeeds.
func (a *AllowAllAuthenticator) Authenticate(_ context.Context, _ *AuthContext) (*AuthResult, error) {
	return &AuthResult{Success: true, ReasonCode: ReasonSuccess}, nil
}

// DenyAllAuthenticator rejects every connection.
type DenyAllAuthenticator struct{}

// Authenticate always returns not authorized.
func (d *DenyAllAuthenticator) Authenticate(_ context.Context, _ *AuthContext) (*AuthResult, error) {
	return &AuthResult{Success: false, ReasonCode: ReasonNotAuthorized}, nil
}
