package session

import (
	"crypto/subtle"
	"sync"
	"time"

	"github.com/google/uuid"

	"agentauth/internal/audit"
	"agentauth/pkg/logging"
)

// Manager issues, validates, rotates and destroys sessions. It owns the
// session registry; per-session operations are totally ordered by the
// registry lock, so two concurrent CreateSession calls for the same user
// always see a consistent concurrent-session count.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	config  Config
	auditor audit.Auditor

	// now is the clock; overridden in tests.
	now func() time.Time
}

// NewManager creates a session manager with the given policy. Zero config
// fields take the package defaults. The auditor may be nil.
func NewManager(cfg Config, auditor audit.Auditor) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		config:   cfg.withDefaults(),
		auditor:  auditor,
		now:      time.Now,
	}
}

// CreateSession mints a session for a user who has just completed
// authorization. The session ID, access token and refresh token are
// independent 32-byte random values.
func (m *Manager) CreateSession(userID, clientID string, scopes []string, binding Context) (*Session, error) {
	accessToken, err := generateToken()
	if err != nil {
		return nil, err
	}
	refreshToken, err := generateToken()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	now := m.now()

	current := m.userSessionCountLocked(userID, now)
	if current >= m.config.MaxSessionsPerUser {
		m.mu.Unlock()
		m.emit(audit.Event{
			Category:     audit.CategorySessionCreated,
			UserID:       userID,
			ClientID:     clientID,
			Success:      false,
			ErrorMessage: "concurrent session limit exceeded",
			Severity:     audit.SeverityWarning,
		})
		return nil, &ConcurrentLimitExceededError{UserID: userID, Current: current, Max: m.config.MaxSessionsPerUser}
	}

	s := &Session{
		ID:               uuid.NewString(),
		UserID:           userID,
		ClientID:         clientID,
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		Scopes:           append([]string(nil), scopes...),
		CreatedAt:        now,
		LastAccessed:     now,
		ExpiresAt:        now.Add(m.config.AccessTokenTTL),
		RefreshExpiresAt: now.Add(m.config.RefreshTokenTTL),
		Binding:          binding,
	}
	m.sessions[s.ID] = s
	result := s.clone()
	m.mu.Unlock()

	m.emit(audit.Event{
		Category:  audit.CategorySessionCreated,
		UserID:    userID,
		SessionID: s.ID,
		ClientID:  clientID,
		Success:   true,
		Severity:  audit.SeverityInfo,
	})

	logging.Debug("Session", "Created session=%s for user=%s", logging.TruncateSessionID(s.ID), userID)
	return result, nil
}

// ValidateSession checks a presented (session ID, access token) pair.
// Checks run in a fixed order: existence, access expiry, token match,
// binding context and suspicion, then rotation policy. When rotation is
// due the call fails with ErrRotationRequired instead of rotating
// silently; callers rotate and retry once. On success LastAccessed is
// updated.
func (m *Manager) ValidateSession(sessionID, accessToken string, callCtx Context) (*Session, error) {
	m.mu.Lock()
	s, exists := m.sessions[sessionID]
	if !exists {
		m.mu.Unlock()
		return nil, ErrSessionNotFound
	}

	now := m.now()
	if !now.Before(s.ExpiresAt) {
		m.mu.Unlock()
		return nil, ErrSessionExpired
	}

	if subtle.ConstantTimeCompare([]byte(s.AccessToken), []byte(accessToken)) != 1 {
		m.mu.Unlock()
		return nil, ErrInvalidToken
	}

	if violation := m.checkViolationLocked(s, callCtx); violation != nil {
		userID, clientID := s.UserID, s.ClientID
		m.mu.Unlock()
		m.emit(audit.Event{
			Category:     audit.CategorySecurityViolation,
			UserID:       userID,
			SessionID:    sessionID,
			ClientID:     clientID,
			Success:      false,
			ErrorMessage: violation.Reason,
			Severity:     audit.SeverityCritical,
		})
		return nil, violation
	}

	if m.shouldRotateLocked(s, now) {
		m.mu.Unlock()
		return nil, ErrRotationRequired
	}

	s.LastAccessed = now
	result := s.clone()
	m.mu.Unlock()

	return result, nil
}

// RotateTokens replaces the session's token pair. The old access token is
// invalid for ValidateSession the moment this returns. Rotation clears
// the suspicious and force-rotation flags and increments the monotonic
// rotation count.
func (m *Manager) RotateTokens(sessionID, refreshToken string, callCtx Context) (*RotationResult, error) {
	newAccess, err := generateToken()
	if err != nil {
		return nil, err
	}
	newRefresh, err := generateToken()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	s, exists := m.sessions[sessionID]
	if !exists {
		m.mu.Unlock()
		return nil, ErrSessionNotFound
	}

	if subtle.ConstantTimeCompare([]byte(s.RefreshToken), []byte(refreshToken)) != 1 {
		m.mu.Unlock()
		return nil, ErrInvalidToken
	}

	now := m.now()
	if now.After(s.RefreshExpiresAt) {
		m.mu.Unlock()
		return nil, ErrSessionExpired
	}

	if m.config.EnforceBinding && !bindingMatches(s.Binding, callCtx) {
		userID, clientID := s.UserID, s.ClientID
		m.mu.Unlock()
		violation := &SecurityViolationError{Reason: "binding context mismatch"}
		m.emit(audit.Event{
			Category:     audit.CategorySecurityViolation,
			UserID:       userID,
			SessionID:    sessionID,
			ClientID:     clientID,
			Success:      false,
			ErrorMessage: violation.Reason,
			Severity:     audit.SeverityCritical,
		})
		return nil, violation
	}

	if s.RotationCount >= m.config.MaxRotationCount {
		m.mu.Unlock()
		return nil, &SecurityViolationError{Reason: "rotation count cap reached"}
	}

	// Replace the pair wholesale.
	s.AccessToken = newAccess
	s.RefreshToken = newRefresh
	s.LastAccessed = now
	s.ExpiresAt = now.Add(m.config.AccessTokenTTL)
	s.RefreshExpiresAt = now.Add(m.config.RefreshTokenTTL)
	s.RotationCount++
	s.IsSuspicious = false
	s.ForceRotation = false

	result := &RotationResult{
		AccessToken:   newAccess,
		RefreshToken:  newRefresh,
		ExpiresAt:     s.ExpiresAt,
		RotationCount: s.RotationCount,
	}
	userID, clientID := s.UserID, s.ClientID
	m.mu.Unlock()

	m.emit(audit.Event{
		Category:  audit.CategoryTokenRefresh,
		UserID:    userID,
		SessionID: sessionID,
		ClientID:  clientID,
		Success:   true,
		Severity:  audit.SeverityInfo,
	})

	logging.Debug("Session", "Rotated tokens for session=%s (count=%d)",
		logging.TruncateSessionID(sessionID), result.RotationCount)
	return result, nil
}

// MarkSuspicious flags a session; validation fails until the session is
// rotated or destroyed.
func (m *Manager) MarkSuspicious(sessionID, reason string) error {
	m.mu.Lock()
	s, exists := m.sessions[sessionID]
	if !exists {
		m.mu.Unlock()
		return ErrSessionNotFound
	}

	s.IsSuspicious = true
	s.ForceRotation = true
	userID, clientID := s.UserID, s.ClientID
	m.mu.Unlock()

	m.emit(audit.Event{
		Category:     audit.CategorySecurityViolation,
		UserID:       userID,
		SessionID:    sessionID,
		ClientID:     clientID,
		Success:      false,
		ErrorMessage: reason,
		Severity:     audit.SeverityCritical,
	})

	logging.Warn("Session", "Marked session=%s suspicious: %s", logging.TruncateSessionID(sessionID), reason)
	return nil
}

// SetHighPrivilege marks or unmarks a session as high-privilege, which
// tightens its rotation deadline.
func (m *Manager) SetHighPrivilege(sessionID string, highPrivilege bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, exists := m.sessions[sessionID]
	if !exists {
		return ErrSessionNotFound
	}
	s.HighPrivilege = highPrivilege
	return nil
}

// DestroySession removes one session. Destroying an unknown session ID is
// ErrSessionNotFound, not a panic.
func (m *Manager) DestroySession(sessionID string) error {
	m.mu.Lock()
	s, exists := m.sessions[sessionID]
	if !exists {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(m.sessions, sessionID)
	userID, clientID := s.UserID, s.ClientID
	m.mu.Unlock()

	m.emit(audit.Event{
		Category:  audit.CategorySessionDestroyed,
		UserID:    userID,
		SessionID: sessionID,
		ClientID:  clientID,
		Success:   true,
		Severity:  audit.SeverityInfo,
	})

	return nil
}

// DestroyUserSessions removes all sessions for a user and returns how
// many were removed.
func (m *Manager) DestroyUserSessions(userID string) int {
	m.mu.Lock()
	count := 0
	for id, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, id)
			count++
		}
	}
	m.mu.Unlock()

	if count > 0 {
		m.emit(audit.Event{
			Category: audit.CategorySessionDestroyed,
			UserID:   userID,
			Success:  true,
			Severity: audit.SeverityInfo,
			Metadata: map[string]any{"destroyed": count},
		})
		logging.Debug("Session", "Destroyed %d sessions for user=%s", count, userID)
	}

	return count
}

// SweepExpired removes sessions whose refresh lifetime has passed and
// returns the count removed. Run periodically by the runtime.
func (m *Manager) SweepExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	count := 0
	for id, s := range m.sessions {
		if now.After(s.RefreshExpiresAt) {
			delete(m.sessions, id)
			count++
		}
	}

	if count > 0 {
		logging.Debug("Session", "Swept %d expired sessions", count)
	}
	return count
}

// GetSession returns a copy of a session for read-only inspection.
func (m *Manager) GetSession(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, exists := m.sessions[sessionID]
	if !exists {
		return nil, ErrSessionNotFound
	}
	return s.clone(), nil
}

// SessionCount returns the total number of sessions in the registry.
func (m *Manager) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// UserSessionCount returns the number of live sessions held by a user.
func (m *Manager) UserSessionCount(userID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.userSessionCountLocked(userID, m.now())
}

// userSessionCountLocked counts sessions still within their refresh
// lifetime. Caller must hold the lock.
func (m *Manager) userSessionCountLocked(userID string, now time.Time) int {
	count := 0
	for _, s := range m.sessions {
		if s.UserID == userID && !now.After(s.RefreshExpiresAt) {
			count++
		}
	}
	return count
}

// checkViolationLocked applies the suspicion and binding checks. Caller
// must hold the lock.
func (m *Manager) checkViolationLocked(s *Session, callCtx Context) *SecurityViolationError {
	if s.IsSuspicious {
		return &SecurityViolationError{Reason: "session flagged suspicious"}
	}
	if m.config.EnforceBinding && !bindingMatches(s.Binding, callCtx) {
		return &SecurityViolationError{Reason: "binding context mismatch"}
	}
	return nil
}

// shouldRotateLocked applies the rotation policy. Caller must hold the lock.
func (m *Manager) shouldRotateLocked(s *Session, now time.Time) bool {
	if s.ForceRotation {
		return true
	}

	elapsed := now.Sub(s.LastAccessed)
	if elapsed > m.config.RotationThreshold {
		return true
	}
	if s.HighPrivilege && elapsed > m.config.HighPrivilegeRotationThreshold {
		return true
	}
	return false
}

// bindingMatches compares binding contexts field by field. Empty stored
// fields are wildcards so sessions created without context still validate.
func bindingMatches(stored, presented Context) bool {
	if stored.IPAddress != "" && stored.IPAddress != presented.IPAddress {
		return false
	}
	if stored.UserAgent != "" && stored.UserAgent != presented.UserAgent {
		return false
	}
	return true
}

// emit sends an audit event if an auditor is configured. Must not be
// called with m.mu held.
func (m *Manager) emit(event audit.Event) {
	if m.auditor != nil {
		m.auditor.LogEvent(event)
	}
}
