package oauth

import (
	"crypto/subtle"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"agentauth/internal/audit"
	"agentauth/pkg/logging"
)

// SecurityManager drives PKCE authorization-code flows. It owns the
// active-flow registry; flows are only reachable through the operations
// below, which enforce one-shot consumption and the concurrency ceiling
// at the API boundary.
type SecurityManager struct {
	mu    sync.RWMutex
	flows map[string]*AuthorizationFlow

	maxConcurrentFlows int
	auditor            audit.Auditor

	// now is the clock; overridden in tests.
	now func() time.Time
}

// NewSecurityManager creates a flow manager with the given concurrency
// ceiling. A ceiling <= 0 uses DefaultMaxConcurrentFlows. The auditor may
// be nil, in which case no audit events are emitted.
func NewSecurityManager(maxConcurrentFlows int, auditor audit.Auditor) *SecurityManager {
	if maxConcurrentFlows <= 0 {
		maxConcurrentFlows = DefaultMaxConcurrentFlows
	}

	return &SecurityManager{
		flows:              make(map[string]*AuthorizationFlow),
		maxConcurrentFlows: maxConcurrentFlows,
		auditor:            auditor,
		now:                time.Now,
	}
}

// StartFlow begins a new authorization flow for the given client. It
// generates the PKCE verifier/challenge pair, the anti-CSRF state and the
// replay nonce, and records the flow with a 10-minute expiry.
//
// Expired flows are swept here, not on a timer, so the sweep cost is
// bounded by the concurrency ceiling.
func (m *SecurityManager) StartFlow(clientID, redirectURI string) (string, error) {
	verifier, challenge, err := GeneratePKCE()
	if err != nil {
		return "", err
	}
	state, err := GenerateState()
	if err != nil {
		return "", err
	}
	nonce, err := GenerateNonce()
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	now := m.now()
	m.sweepExpiredLocked(now)

	if len(m.flows) >= m.maxConcurrentFlows {
		active := len(m.flows)
		m.mu.Unlock()
		m.emit(audit.Event{
			Category:     audit.CategoryOAuthStart,
			ClientID:     clientID,
			Success:      false,
			ErrorMessage: "too many concurrent flows",
			Severity:     audit.SeverityWarning,
		})
		return "", &TooManyConcurrentFlowsError{Active: active, Max: m.maxConcurrentFlows}
	}

	flow := &AuthorizationFlow{
		ID:                  uuid.NewString(),
		ClientID:            clientID,
		RedirectURI:         redirectURI,
		CodeVerifier:        verifier,
		CodeChallenge:       challenge,
		CodeChallengeMethod: "S256",
		State:               state,
		Nonce:               nonce,
		CreatedAt:           now,
		ExpiresAt:           now.Add(FlowTTL),
	}
	m.flows[flow.ID] = flow
	m.mu.Unlock()

	m.emit(audit.Event{
		Category:  audit.CategoryOAuthStart,
		ClientID:  clientID,
		SessionID: flow.ID,
		Success:   true,
		Severity:  audit.SeverityInfo,
	})

	logging.Debug("OAuth", "Started flow=%s for client=%s", logging.TruncateSessionID(flow.ID), clientID)
	return flow.ID, nil
}

// GenerateAuthorizationURL builds the provider authorization URL for a
// flow. Parameters are encoded deterministically (sorted keys, URL
// escaping) so the same flow always produces the same URL.
func (m *SecurityManager) GenerateAuthorizationURL(flowID, authEndpoint string, scopes []string) (*AuthorizationURL, error) {
	m.mu.RLock()
	flow, exists := m.flows[flowID]
	m.mu.RUnlock()

	if !exists {
		return nil, ErrFlowNotFound
	}
	if flow.Expired(m.now()) {
		return nil, ErrFlowExpired
	}

	endpoint, err := url.Parse(authEndpoint)
	if err != nil {
		return nil, err
	}

	query := endpoint.Query()
	query.Set("response_type", "code")
	query.Set("client_id", flow.ClientID)
	query.Set("redirect_uri", flow.RedirectURI)
	query.Set("scope", strings.Join(scopes, " "))
	query.Set("state", flow.State)
	query.Set("nonce", flow.Nonce)
	query.Set("code_challenge", flow.CodeChallenge)
	query.Set("code_challenge_method", flow.CodeChallengeMethod)
	query.Set("response_mode", "query")
	query.Set("prompt", "consent")

	// url.Values.Encode sorts keys, which gives the deterministic ordering.
	endpoint.RawQuery = query.Encode()

	return &AuthorizationURL{
		URL:       endpoint.String(),
		State:     flow.State,
		Challenge: flow.CodeChallenge,
		Nonce:     flow.Nonce,
	}, nil
}

// ValidateCallback consumes a flow with the provider's callback values.
// On success it removes the flow from the active set (one-shot: a second
// callback for the same flow gets ErrFlowNotFound) and returns the data
// the external HTTP collaborator needs for the token exchange. No network
// interaction happens under the manager's lock.
func (m *SecurityManager) ValidateCallback(flowID, code, state, errorParam, errorDescription string) (*TokenExchangeRequest, error) {
	if errorParam != "" {
		authErr := &AuthorizationError{Code: errorParam, Description: errorDescription}
		m.emit(audit.Event{
			Category:     audit.CategoryOAuthError,
			SessionID:    flowID,
			Success:      false,
			ErrorMessage: authErr.Error(),
			Severity:     audit.SeverityWarning,
		})
		return nil, authErr
	}

	m.mu.Lock()
	flow, exists := m.flows[flowID]
	if !exists {
		m.mu.Unlock()
		m.emit(audit.Event{
			Category:     audit.CategoryOAuthCallback,
			SessionID:    flowID,
			Success:      false,
			ErrorMessage: "flow not found",
			Severity:     audit.SeverityWarning,
		})
		return nil, ErrFlowNotFound
	}

	if flow.Expired(m.now()) {
		delete(m.flows, flowID)
		m.mu.Unlock()
		return nil, ErrFlowExpired
	}

	// Byte-for-byte, constant-time state comparison.
	if subtle.ConstantTimeCompare([]byte(flow.State), []byte(state)) != 1 {
		m.mu.Unlock()
		m.emit(audit.Event{
			Category:     audit.CategorySecurityViolation,
			ClientID:     flow.ClientID,
			SessionID:    flowID,
			Success:      false,
			ErrorMessage: "state parameter mismatch",
			Severity:     audit.SeverityCritical,
		})
		return nil, ErrInvalidState
	}

	if len(code) < minCodeLength {
		m.mu.Unlock()
		m.emit(audit.Event{
			Category:     audit.CategoryOAuthCallback,
			ClientID:     flow.ClientID,
			SessionID:    flowID,
			Success:      false,
			ErrorMessage: "authorization code missing or too short",
			Severity:     audit.SeverityWarning,
		})
		return nil, ErrInvalidCode
	}

	// Valid - consume the flow to prevent replay.
	delete(m.flows, flowID)
	m.mu.Unlock()

	m.emit(audit.Event{
		Category:  audit.CategoryOAuthCallback,
		ClientID:  flow.ClientID,
		SessionID: flowID,
		Success:   true,
		Severity:  audit.SeverityInfo,
	})

	logging.Debug("OAuth", "Validated callback for flow=%s client=%s",
		logging.TruncateSessionID(flowID), flow.ClientID)

	return &TokenExchangeRequest{
		Code:         code,
		RedirectURI:  flow.RedirectURI,
		CodeVerifier: flow.CodeVerifier,
	}, nil
}

// VerifyPKCE recomputes the challenge from the supplied verifier and
// compares it to the flow's stored challenge. The flow is left untouched;
// this check is independent of callback consumption so it can back an
// out-of-process verifier.
func (m *SecurityManager) VerifyPKCE(flowID, codeVerifier string) error {
	m.mu.RLock()
	flow, exists := m.flows[flowID]
	m.mu.RUnlock()

	if !exists {
		return ErrFlowNotFound
	}

	if !VerifyChallenge(codeVerifier, flow.CodeChallenge) {
		m.emit(audit.Event{
			Category:     audit.CategorySecurityViolation,
			ClientID:     flow.ClientID,
			SessionID:    flowID,
			Success:      false,
			ErrorMessage: "PKCE verification failed",
			Severity:     audit.SeverityCritical,
		})
		return ErrPKCEVerificationFailed
	}

	return nil
}

// CancelFlow discards an in-progress flow. Cancelling an unknown flow is
// ErrFlowNotFound.
func (m *SecurityManager) CancelFlow(flowID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.flows[flowID]; !exists {
		return ErrFlowNotFound
	}
	delete(m.flows, flowID)
	return nil
}

// ActiveFlows returns the number of flows currently in the active set,
// including any that have expired but not yet been swept.
func (m *SecurityManager) ActiveFlows() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.flows)
}

// sweepExpiredLocked removes expired flows. Caller must hold the write lock.
func (m *SecurityManager) sweepExpiredLocked(now time.Time) {
	count := 0
	for id, flow := range m.flows {
		if flow.Expired(now) {
			delete(m.flows, id)
			count++
		}
	}

	if count > 0 {
		logging.Debug("OAuth", "Swept %d expired flows", count)
	}
}

// emit sends an audit event if an auditor is configured. Must not be
// called with m.mu held; auditors run outside the registry lock.
func (m *SecurityManager) emit(event audit.Event) {
	if m.auditor != nil {
		m.auditor.LogEvent(event)
	}
}
