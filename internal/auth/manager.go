// Package auth owns the brokerage login session: the multi-round
// challenge/verification workflow, the persisted credential record, and the
// logged-in gate every trading operation checks.
package auth

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"rhbridge/internal/brokerage"
	"rhbridge/internal/metrics"
	"rhbridge/internal/types"
)

// Session is the externally visible auth state. The pending login payload
// is deliberately absent; it holds the account password.
type Session struct {
	Status          types.SessionStatus `json:"status"`
	LoggedIn        bool                `json:"logged_in"`
	MFARequired     bool                `json:"mfa_required"`
	Error           string              `json:"error,omitempty"`
	LastLogin       string              `json:"last_login,omitempty"`
	WorkflowID      string              `json:"workflow_id,omitempty"`
	DeviceToken     string              `json:"device_token,omitempty"`
	MachineID       string              `json:"machine_id,omitempty"`
	ChallengeID     string              `json:"challenge_id,omitempty"`
	ChallengeType   string              `json:"challenge_type,omitempty"`
	ChallengeStatus string              `json:"challenge_status,omitempty"`
	PromptValidated bool                `json:"prompt_validated"`
}

type Manager struct {
	client   *brokerage.Client
	store    *CredStore
	username string
	password string

	mu      sync.Mutex
	session Session
	pending *brokerage.LoginPayload
}

func NewManager(client *brokerage.Client, store *CredStore, username, password string) *Manager {
	return &Manager{
		client:   client,
		store:    store,
		username: username,
		password: password,
		session:  Session{Status: types.SessionInit},
	}
}

// Snapshot returns a point-in-time copy; callers never observe the session
// mid-mutation and the lock is never held across network I/O.
func (m *Manager) Snapshot() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

func (m *Manager) update(fn func(*Session)) {
	m.mu.Lock()
	fn(&m.session)
	m.mu.Unlock()
}

// EnsureLoggedIn gates every trading operation.
func (m *Manager) EnsureLoggedIn() error {
	if !m.Snapshot().LoggedIn {
		return types.ErrNotLoggedIn
	}
	return nil
}

// Restore tries the persisted credential: decode, reject an already-expired
// access token without a network call, install the header, validate with a
// cheap authenticated read. Any failure leaves the client logged out and
// reports false; Restore never fails outward.
func (m *Manager) Restore(ctx context.Context) bool {
	creds, err := m.store.Load()
	if err != nil {
		return false
	}
	if tokenExpired(creds.AccessToken) {
		return false
	}
	m.client.SetAuthorization(creds.TokenType, creds.AccessToken)
	if err := m.client.ValidateSession(ctx); err != nil {
		m.client.ClearAuthorization()
		return false
	}
	m.update(func(s *Session) {
		s.Status = types.SessionLoggedInCached
		s.LoggedIn = true
		s.MFARequired = false
		s.Error = ""
		s.DeviceToken = creds.DeviceToken
		s.LastLogin = time.Now().UTC().Format(time.RFC3339)
	})
	metrics.Login("cached")
	return true
}

// tokenExpired peeks at the access token's registered claims without
// verifying the signature. Tokens that are not JWTs pass through to the
// network validation instead.
func tokenExpired(accessToken string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(time.Now())
}

// Login runs one credential exchange. Three outcomes: tokens (persist and
// go logged_in), a verification workflow (park in verification_required and
// pull the challenge), or an error state. A later Login retries from
// scratch; error is not terminal.
func (m *Manager) Login(ctx context.Context) {
	if m.username == "" || m.password == "" {
		m.update(func(s *Session) {
			s.Status = types.SessionError
			s.LoggedIn = false
			s.MFARequired = false
			s.Error = types.ErrMissingCredentials.Error()
		})
		return
	}

	m.mu.Lock()
	m.session.Status = types.SessionLoggingIn
	m.session.Error = ""
	deviceToken := m.session.DeviceToken
	if deviceToken == "" {
		deviceToken = uuid.NewString()
		m.session.DeviceToken = deviceToken
	}
	if m.pending == nil {
		payload := brokerage.NewLoginPayload(m.username, m.password, deviceToken)
		m.pending = &payload
	}
	payload := *m.pending
	m.mu.Unlock()

	data, err := m.client.Login(ctx, payload)
	if err != nil {
		m.update(func(s *Session) {
			s.Status = types.SessionError
			s.LoggedIn = false
			s.MFARequired = false
			s.Error = types.ErrLoginFailed.Error()
		})
		metrics.Login("error")
		return
	}

	if workflow, ok := data["verification_workflow"].(map[string]any); ok {
		workflowID, _ := workflow["id"].(string)
		m.update(func(s *Session) {
			s.Status = types.SessionVerificationRequired
			s.LoggedIn = false
			s.MFARequired = true
			s.Error = types.ErrVerificationRequired.Error()
			s.WorkflowID = workflowID
		})
		metrics.Login("verification")
		m.RefreshChallenge(ctx)
		return
	}

	if access, ok := data["access_token"].(string); ok && access != "" {
		tokenType, _ := data["token_type"].(string)
		refresh, _ := data["refresh_token"].(string)
		m.client.SetAuthorization(tokenType, access)
		if err := m.store.Save(Credentials{
			TokenType:    tokenType,
			AccessToken:  access,
			RefreshToken: refresh,
			DeviceToken:  deviceToken,
		}); err != nil {
			log.Printf("[auth] credential persist failed: %v", err)
		}
		m.update(func(s *Session) {
			s.Status = types.SessionLoggedIn
			s.LoggedIn = true
			s.MFARequired = false
			s.Error = ""
			s.LastLogin = time.Now().UTC().Format(time.RFC3339)
		})
		metrics.Login("logged_in")
		return
	}

	m.update(func(s *Session) {
		s.Status = types.SessionError
		s.LoggedIn = false
		s.MFARequired = false
		s.Error = types.ErrLoginFailed.Error()
	})
	metrics.Login("error")
}

// RefreshChallenge resolves the workflow machine id, pulls the current
// challenge descriptor, and for push prompts polls the approval once,
// completing the workflow step immediately if the user already approved.
func (m *Manager) RefreshChallenge(ctx context.Context) {
	m.mu.Lock()
	workflowID := m.session.WorkflowID
	deviceToken := m.session.DeviceToken
	machineID := m.session.MachineID
	m.mu.Unlock()
	if workflowID == "" || deviceToken == "" {
		return
	}

	if machineID == "" {
		id, err := m.client.UserMachine(ctx, deviceToken, workflowID)
		if err != nil || id == "" {
			return
		}
		machineID = id
		m.update(func(s *Session) { s.MachineID = machineID })
	}

	challenge, err := m.client.InquiryChallenge(ctx, machineID)
	if err != nil || challenge == nil {
		return
	}
	m.update(func(s *Session) {
		s.ChallengeID = challenge.ID
		s.ChallengeType = challenge.Type
		s.ChallengeStatus = challenge.Status
		switch challenge.Type {
		case "prompt":
			s.Status = types.SessionApprovalRequired
			s.MFARequired = true
		case "sms", "email":
			s.Status = types.SessionMFARequired
			s.MFARequired = true
		}
	})

	if challenge.Type == "prompt" && challenge.ID != "" {
		status, err := m.client.PromptStatus(ctx, challenge.ID)
		if err == nil && status == "validated" {
			if err := m.client.ContinueInquiry(ctx, machineID); err == nil {
				m.update(func(s *Session) {
					s.ChallengeStatus = "validated"
					s.PromptValidated = true
					s.Status = types.SessionPromptValidated
					s.MFARequired = false
					s.Error = ""
				})
			}
		}
	}
}

// SubmitCode answers an SMS/email challenge. An invalid code drops back to
// mfa_required with the workflow intact; a validated one completes the
// workflow step and retries the login.
func (m *Manager) SubmitCode(ctx context.Context, code string) error {
	m.RefreshChallenge(ctx)
	m.mu.Lock()
	challengeID := m.session.ChallengeID
	machineID := m.session.MachineID
	hasPayload := m.pending != nil
	m.mu.Unlock()
	if challengeID == "" || machineID == "" || !hasPayload {
		return types.ErrNoChallenge
	}

	status, err := m.client.RespondChallenge(ctx, challengeID, code)
	if err != nil || status != "validated" {
		m.update(func(s *Session) {
			s.Status = types.SessionMFARequired
			s.Error = types.ErrInvalidCode.Error()
		})
		return nil
	}
	if err := m.client.ContinueInquiry(ctx, machineID); err != nil {
		log.Printf("[auth] inquiry continue failed: %v", err)
	}
	m.Login(ctx)
	return nil
}

// Status reports the session, nudging the workflow along first: a pending
// verification refreshes its challenge, and an approved prompt that has not
// logged in yet triggers the follow-up login.
func (m *Manager) Status(ctx context.Context) Session {
	snap := m.Snapshot()
	switch snap.Status {
	case types.SessionVerificationRequired, types.SessionMFARequired, types.SessionApprovalRequired:
		m.RefreshChallenge(ctx)
		snap = m.Snapshot()
	}
	if snap.PromptValidated && !snap.LoggedIn {
		m.Login(ctx)
		snap = m.Snapshot()
	}
	return snap
}

// StartAutoLogin restores the cached session after a startup delay and
// falls back to a fresh login. The goroutine stops with ctx.
func (m *Manager) StartAutoLogin(ctx context.Context, delay time.Duration) {
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		if m.Restore(ctx) {
			return
		}
		m.Login(ctx)
	}()
}
