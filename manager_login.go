package authsync

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/driftlock/authsync/realtime"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type twoFactorRequest struct {
	ChallengeID string `json:"challengeId"`
	Code        string `json:"code"`
}

// loginResponse is the wire shape shared by /auth/login and
// /auth/2fa/login.
type loginResponse struct {
	TwoFactorRequired    bool     `json:"twoFactorRequired"`
	ChallengeID          string   `json:"challengeId"`
	VerificationRequired bool     `json:"verificationRequired"`
	User                 *Session `json:"user"`
	Message              string   `json:"message"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// Login posts credentials and, for a verified non-2FA identity, installs
// the session. All flow outcomes (two-factor pending, verification
// pending, rejected credentials, transport failure) come back as a typed
// result; the error return fires only on misuse.
func (m *Manager) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if m.closed.Load() {
		return nil, ErrManagerClosed
	}
	email = realtime.NormalizeEmail(email)

	resp, err := m.send(ctx, Request{
		Method: http.MethodPost,
		Path:   "/auth/login",
		Body:   loginRequest{Email: email, Password: password},
	})
	if err != nil {
		m.metrics.Inc(MetricLoginFailure)
		m.log.Warn("login transport failure", zap.Error(err))
		return &LoginResult{Status: LoginFailed}, nil
	}
	return m.loginOutcome(resp), nil
}

// CompleteTwoFactor exchanges a pending challenge and one-time code for a
// confirmed identity. Installation rules match Login.
func (m *Manager) CompleteTwoFactor(ctx context.Context, challengeID, code string) (*LoginResult, error) {
	if m.closed.Load() {
		return nil, ErrManagerClosed
	}
	resp, err := m.send(ctx, Request{
		Method: http.MethodPost,
		Path:   "/auth/2fa/login",
		Body:   twoFactorRequest{ChallengeID: challengeID, Code: code},
	})
	if err != nil {
		m.metrics.Inc(MetricLoginFailure)
		m.log.Warn("2fa transport failure", zap.Error(err))
		return &LoginResult{Status: LoginFailed}, nil
	}
	return m.loginOutcome(resp), nil
}

// loginOutcome applies the shared installation rules to a login-shaped
// response. An unverified identity never becomes the active session, no
// matter what the endpoint returned.
func (m *Manager) loginOutcome(resp *Response) *LoginResult {
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		m.metrics.Inc(MetricLoginFailure)
		var body messageResponse
		_ = resp.Decode(&body)
		return &LoginResult{Status: LoginInvalidCredentials, Message: body.Message}

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// Validation errors carry a display message; surface it verbatim.
		m.metrics.Inc(MetricLoginFailure)
		var body messageResponse
		_ = resp.Decode(&body)
		return &LoginResult{Status: LoginFailed, Message: body.Message}

	case !resp.OK():
		m.metrics.Inc(MetricLoginFailure)
		return &LoginResult{Status: LoginFailed}
	}

	var body loginResponse
	if err := resp.Decode(&body); err != nil {
		m.metrics.Inc(MetricLoginFailure)
		m.log.Warn("login response decode failed", zap.Error(err))
		return &LoginResult{Status: LoginFailed}
	}

	if body.TwoFactorRequired {
		return &LoginResult{Status: LoginTwoFactorRequired, ChallengeID: body.ChallengeID}
	}
	if body.VerificationRequired || (body.User != nil && !body.User.Verified) {
		return &LoginResult{Status: LoginVerificationRequired, Message: body.Message}
	}
	if body.User == nil || !m.installSession(body.User) {
		m.metrics.Inc(MetricLoginFailure)
		return &LoginResult{Status: LoginFailed}
	}

	m.metrics.Inc(MetricLoginSuccess)
	m.joinOwnVerificationRoom(body.User.ID)
	return &LoginResult{Status: LoginOK, Session: m.Session()}
}

// Register creates an account. The account starts pending verification;
// no session is installed until the verification completion event
// arrives. When the realtime layer is up the pending-verification room is
// joined automatically so the completion is observed even if it happens
// in another tab.
func (m *Manager) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	if m.closed.Load() {
		return nil, ErrManagerClosed
	}
	req.Email = realtime.NormalizeEmail(req.Email)

	resp, err := m.send(ctx, Request{
		Method: http.MethodPost,
		Path:   "/auth/register",
		Body:   req,
	})
	if err != nil {
		m.log.Warn("register transport failure", zap.Error(err))
		return &RegisterResult{Status: RegisterFailed}, nil
	}

	switch {
	case resp.OK():
		if m.conn != nil {
			if err := m.conn.JoinPendingVerificationRoom(ctx, req.Email); err != nil {
				m.log.Warn("pending verification room join failed", zap.Error(err))
			}
		}
		return &RegisterResult{Status: RegisterPendingVerification}, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		var body messageResponse
		_ = resp.Decode(&body)
		return &RegisterResult{Status: RegisterRejected, Message: body.Message}, nil
	default:
		return &RegisterResult{Status: RegisterFailed}, nil
	}
}
