package authsync

import (
	"encoding/json"
	"net/http"
	"sync"
)

// Session is the authenticated identity held by the manager. It is always
// replaced wholesale, never mutated in place; consumers get defensive
// copies.
type Session struct {
	ID               string       `json:"id"`
	Email            string       `json:"email"`
	DisplayName      string       `json:"displayName"`
	Verified         bool         `json:"isVerified"`
	Roles            []string     `json:"roles"`
	TwoFactorEnabled bool         `json:"twoFactorEnabled"`
	Preferences      *Preferences `json:"preferences,omitempty"`
}

// HasRole reports whether the session carries the given role.
func (s *Session) HasRole(role string) bool {
	if s == nil {
		return false
	}
	for _, r := range s.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Roles = append([]string(nil), s.Roles...)
	if s.Preferences != nil {
		prefs := *s.Preferences
		out.Preferences = &prefs
	}
	return &out
}

// Preferences holds the user's locale and theme choices. Both are
// nullable server-side; empty strings mean unset.
type Preferences struct {
	Locale string `json:"locale,omitempty"`
	Theme  string `json:"theme,omitempty"`
}

// LoginStatus classifies the outcome of Login and CompleteTwoFactor.
type LoginStatus uint8

const (
	// LoginFailed covers transport and server errors; the caller may
	// retry.
	LoginFailed LoginStatus = iota
	// LoginOK means a verified identity was installed.
	LoginOK
	// LoginTwoFactorRequired means credentials were accepted but a
	// one-time code must be exchanged; no session was installed.
	LoginTwoFactorRequired
	// LoginVerificationRequired means the account exists but the email is
	// not verified; no session was installed.
	LoginVerificationRequired
	// LoginInvalidCredentials means the server rejected the credentials.
	LoginInvalidCredentials
)

// LoginResult is the typed outcome of a login-shaped operation. Transport
// failures are represented here too; the error return of Login is reserved
// for misuse (closed manager, empty input).
type LoginResult struct {
	Status LoginStatus
	// Session is set only for LoginOK.
	Session *Session
	// ChallengeID identifies the pending two-factor exchange when Status
	// is LoginTwoFactorRequired.
	ChallengeID string
	// Message carries the server's display text for validation errors.
	Message string
}

// RegisterStatus classifies the outcome of Register.
type RegisterStatus uint8

const (
	// RegisterFailed covers transport and server errors.
	RegisterFailed RegisterStatus = iota
	// RegisterPendingVerification means the account was created and a
	// verification email is on its way; no session is installed until
	// the verification event arrives.
	RegisterPendingVerification
	// RegisterRejected means the server refused the request (duplicate
	// email, weak password); Message explains.
	RegisterRejected
)

// RegisterRequest is the payload for Register.
type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName,omitempty"`
	Locale      string `json:"locale,omitempty"`
}

// RegisterResult is the typed outcome of Register.
type RegisterResult struct {
	Status  RegisterStatus
	Message string
}

// Request describes one authenticated API call issued through Do.
type Request struct {
	Method string
	Path   string
	// Body is JSON-encoded when non-nil.
	Body any
	// Header entries are added to the outgoing request.
	Header http.Header
	// NoCache bypasses the response cache for a GET.
	NoCache bool
}

// Response is the buffered result of an authenticated API call.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports whether the status code is in the 2xx range.
func (r *Response) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Decode unmarshals the buffered body into v.
func (r *Response) Decode(v any) error {
	return json.Unmarshal(r.Body, v)
}

// PreferenceStore persists the one durable client-side value: the locale
// preference. No credential material ever goes through it.
type PreferenceStore interface {
	Locale() string
	SetLocale(locale string) error
	// Clear removes session-scoped state. Called on logout and forced
	// logout.
	Clear() error
}

// MemoryPreferenceStore is the default PreferenceStore: process-local,
// safe for concurrent use, empty after restart.
type MemoryPreferenceStore struct {
	mu     sync.Mutex
	locale string
}

// Locale returns the stored locale, or "".
func (m *MemoryPreferenceStore) Locale() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locale
}

// SetLocale stores the locale.
func (m *MemoryPreferenceStore) SetLocale(locale string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locale = locale
	return nil
}

// Clear resets the store. The locale survives logout so the login screen
// keeps the user's language.
func (m *MemoryPreferenceStore) Clear() error {
	return nil
}
