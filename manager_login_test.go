package authsync

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
)

func TestLoginInstallsVerifiedSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body loginRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decoding login body: %v", err)
		}
		if body.Email != "alice@example.com" {
			t.Errorf("email not normalized: %q", body.Email)
		}
		writeJSON(w, http.StatusOK, loginResponse{User: verifiedUser()})
	})
	m := newTestManager(t, mux)

	updates, cancel := m.Watch()
	defer cancel()

	res, err := m.Login(context.Background(), "  Alice@Example.COM ", "hunter2")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if res.Status != LoginOK {
		t.Fatalf("expected LoginOK, got %v (%s)", res.Status, res.Message)
	}
	if res.Session == nil || res.Session.ID != "user-1" {
		t.Fatalf("result carries wrong session: %+v", res.Session)
	}
	if !m.Authenticated() {
		t.Fatal("manager not authenticated after login")
	}
	if got := <-updates; got == nil || got.Email != "alice@example.com" {
		t.Fatalf("watcher received %+v", got)
	}
	if m.Metrics().Get(MetricLoginSuccess) != 1 {
		t.Fatal("login success metric did not move")
	}
}

func TestLoginNeverInstallsUnverifiedIdentity(t *testing.T) {
	user := verifiedUser()
	user.Verified = false
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, loginResponse{User: user})
	})
	m := newTestManager(t, mux)

	res, err := m.Login(context.Background(), "alice@example.com", "hunter2")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if res.Status != LoginVerificationRequired {
		t.Fatalf("expected LoginVerificationRequired, got %v", res.Status)
	}
	if m.Session() != nil {
		t.Fatal("unverified identity must never become the active session")
	}
}

func TestLoginTwoFactorFlow(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, loginResponse{TwoFactorRequired: true, ChallengeID: "ch-42"})
	})
	mux.HandleFunc("POST /auth/2fa/login", func(w http.ResponseWriter, r *http.Request) {
		var body twoFactorRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decoding 2fa body: %v", err)
		}
		if body.ChallengeID != "ch-42" || body.Code != "123456" {
			writeJSON(w, http.StatusUnauthorized, messageResponse{Message: "bad code"})
			return
		}
		writeJSON(w, http.StatusOK, loginResponse{User: verifiedUser()})
	})
	m := newTestManager(t, mux)

	ctx := context.Background()
	res, err := m.Login(ctx, "alice@example.com", "hunter2")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if res.Status != LoginTwoFactorRequired || res.ChallengeID != "ch-42" {
		t.Fatalf("expected two-factor challenge, got %+v", res)
	}
	if m.Session() != nil {
		t.Fatal("no session may be installed before the second factor")
	}

	res, err = m.CompleteTwoFactor(ctx, res.ChallengeID, "123456")
	if err != nil {
		t.Fatalf("2fa completion failed: %v", err)
	}
	if res.Status != LoginOK {
		t.Fatalf("expected LoginOK, got %v", res.Status)
	}
	if !m.Authenticated() {
		t.Fatal("session not installed after 2fa completion")
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, messageResponse{Message: "invalid email or password"})
	})
	m := newTestManager(t, mux)

	res, err := m.Login(context.Background(), "alice@example.com", "wrong")
	if err != nil {
		t.Fatalf("login returned error for a flow outcome: %v", err)
	}
	if res.Status != LoginInvalidCredentials {
		t.Fatalf("expected LoginInvalidCredentials, got %v", res.Status)
	}
	if res.Message != "invalid email or password" {
		t.Fatalf("server message not surfaced: %q", res.Message)
	}
}

func TestLoginSurfacesValidationMessageVerbatim(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, messageResponse{Message: "email is required"})
	})
	m := newTestManager(t, mux)

	res, err := m.Login(context.Background(), "", "")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if res.Status != LoginFailed || res.Message != "email is required" {
		t.Fatalf("expected verbatim validation message, got %+v", res)
	}
}

func TestLoginTransportFailureIsTypedNotError(t *testing.T) {
	m, err := New().WithBaseURL("http://127.0.0.1:1").Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer m.Close()

	res, err := m.Login(context.Background(), "alice@example.com", "hunter2")
	if err != nil {
		t.Fatalf("transport failure must map to a typed result, got error %v", err)
	}
	if res.Status != LoginFailed {
		t.Fatalf("expected LoginFailed, got %v", res.Status)
	}
	if m.Metrics().Get(MetricLoginFailure) != 1 {
		t.Fatal("login failure metric did not move")
	}
}

func TestRegisterReportsPendingVerification(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/register", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, messageResponse{Message: "check your inbox"})
	})
	m := newTestManager(t, mux)

	res, err := m.Register(context.Background(), RegisterRequest{
		Email:       "Bob@Example.com",
		Password:    "hunter2",
		DisplayName: "Bob",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if res.Status != RegisterPendingVerification {
		t.Fatalf("expected RegisterPendingVerification, got %v", res.Status)
	}
	if m.Session() != nil {
		t.Fatal("registration must not install a session")
	}
}

func TestRegisterRejectedCarriesMessage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/register", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, messageResponse{Message: "email already registered"})
	})
	m := newTestManager(t, mux)

	res, err := m.Register(context.Background(), RegisterRequest{Email: "bob@example.com", Password: "x"})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if res.Status != RegisterRejected || res.Message != "email already registered" {
		t.Fatalf("expected rejection with message, got %+v", res)
	}
}
