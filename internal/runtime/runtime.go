package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"agentauth/internal/audit"
	"agentauth/internal/config"
	"agentauth/internal/credstore"
	"agentauth/internal/oauth"
	"agentauth/internal/quota"
	"agentauth/internal/session"
	"agentauth/pkg/logging"
)

const (
	credentialFileName = "credential.json"
	secretKeyFileName  = "secret.key"
)

// Runtime wires the authentication components together: the OAuth flow
// manager, the session manager, the credential store and the quota
// coordinator, all sharing one audit pipeline. It also owns the
// background sweep loops.
type Runtime struct {
	cfg     config.Config
	auditor audit.Auditor

	Credentials *credstore.Store
	Flows       *oauth.SecurityManager
	Sessions    *session.Manager
	Quotas      *quota.Coordinator
	Exchanger   *TokenExchanger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	group   *errgroup.Group
}

// Option configures a Runtime.
type Option func(*options)

type options struct {
	extraAuditors []audit.Auditor
	httpClient    *http.Client
}

// WithAuditSink adds an audit sink alongside the default log auditor.
func WithAuditSink(a audit.Auditor) Option {
	return func(o *options) {
		o.extraAuditors = append(o.extraAuditors, a)
	}
}

// WithHTTPClient overrides the HTTP client used for token exchange.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// New builds a runtime from configuration. It creates the credential
// store directory but performs no network I/O.
func New(cfg config.Config, opts ...Option) (*Runtime, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	auditor := audit.Auditor(audit.NewLogAuditor())
	if len(o.extraAuditors) > 0 {
		auditor = append(audit.Multi{auditor}, o.extraAuditors...)
	}

	if err := os.MkdirAll(cfg.Store.Directory, 0700); err != nil {
		return nil, fmt.Errorf("failed to create credential directory %s: %w", cfg.Store.Directory, err)
	}

	keySource := credstore.NewFileKeySource(filepath.Join(cfg.Store.Directory, secretKeyFileName))
	store := credstore.NewStore(
		filepath.Join(cfg.Store.Directory, credentialFileName),
		keySource,
		credstore.WithShredPasses(cfg.Store.ShredPasses),
		credstore.WithAuditor(auditor),
	)

	return &Runtime{
		cfg:         cfg,
		auditor:     auditor,
		Credentials: store,
		Flows:       oauth.NewSecurityManager(cfg.OAuth.MaxConcurrentFlows, auditor),
		Sessions:    session.NewManager(cfg.SessionManagerConfig(), auditor),
		Quotas: quota.NewCoordinator(
			cfg.Quota.Providers,
			quota.WithQuotaTTL(cfg.Quota.QuotaTTL.Std()),
			quota.WithAuditor(auditor),
		),
		Exchanger: NewTokenExchanger(cfg.OAuth.TokenEndpoint, cfg.OAuth.ClientID, o.httpClient),
	}, nil
}

// Config returns the configuration the runtime was built from.
func (r *Runtime) Config() config.Config {
	return r.cfg
}

// Start launches the background sweep loops. It returns immediately;
// Stop shuts the loops down.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	group, loopCtx := errgroup.WithContext(loopCtx)
	r.cancel = cancel
	r.group = group
	r.running = true

	group.Go(func() error {
		return sweepLoop(loopCtx, r.cfg.Runtime.SessionSweepInterval.Std(), func() {
			if n := r.Sessions.SweepExpired(); n > 0 {
				logging.Info("Runtime", "Swept %d expired sessions", n)
			}
		})
	})
	group.Go(func() error {
		return sweepLoop(loopCtx, r.cfg.Runtime.QuotaSweepInterval.Std(), func() {
			if n := r.Quotas.CleanupExpiredQuotas(); n > 0 {
				logging.Info("Runtime", "Reclaimed %d expired agent quotas", n)
			}
		})
	})

	logging.Info("Runtime", "Started background sweep loops")
	return nil
}

// Stop cancels the sweep loops and waits for them to finish.
func (r *Runtime) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return nil
	}
	r.running = false
	r.cancel()
	err := r.group.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	logging.Info("Runtime", "Stopped background sweep loops")
	return err
}

// IsRunning reports whether the sweep loops are active.
func (r *Runtime) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func sweepLoop(ctx context.Context, interval time.Duration, sweep func()) error {
	if interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			sweep()
		}
	}
}

// SweepOnce runs both sweeps immediately and reports what was removed.
func (r *Runtime) SweepOnce() (sessions, quotas int) {
	return r.Sessions.SweepExpired(), r.Quotas.CleanupExpiredQuotas()
}

// LoginResult is the outcome of a completed login.
type LoginResult struct {
	Session    *session.Session
	Credential *credstore.Credential
}

// BeginLogin starts a PKCE authorization flow and returns its ID together
// with the URL the user must open.
func (r *Runtime) BeginLogin() (flowID string, authURL *oauth.AuthorizationURL, err error) {
	flowID, err = r.Flows.StartFlow(r.cfg.OAuth.ClientID, r.cfg.OAuth.RedirectURI)
	if err != nil {
		return "", nil, err
	}

	authURL, err = r.Flows.GenerateAuthorizationURL(flowID, r.cfg.OAuth.AuthorizationEndpoint, r.cfg.OAuth.Scopes)
	if err != nil {
		// The flow is unusable without its URL.
		_ = r.Flows.CancelFlow(flowID)
		return "", nil, err
	}
	return flowID, authURL, nil
}

// CompleteLogin validates the authorization callback, redeems the code,
// persists the credential and mints a session for the user. The provider
// names which upstream the credential belongs to.
func (r *Runtime) CompleteLogin(ctx context.Context, flowID, code, state, errorParam, errorDescription, userID, provider string, binding session.Context) (*LoginResult, error) {
	exchangeReq, err := r.Flows.ValidateCallback(flowID, code, state, errorParam, errorDescription)
	if err != nil {
		return nil, err
	}

	token, err := r.Exchanger.Exchange(ctx, exchangeReq)
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}

	cred := credstore.FromOAuth2Token(token, provider, userID)
	if err := r.Credentials.Store(cred); err != nil {
		return nil, fmt.Errorf("failed to persist credential: %w", err)
	}

	sess, err := r.Sessions.CreateSession(userID, r.cfg.OAuth.ClientID, r.cfg.OAuth.Scopes, binding)
	if err != nil {
		return nil, err
	}

	r.emit(audit.Event{
		Category:  audit.CategoryLogin,
		UserID:    userID,
		SessionID: sess.ID,
		ClientID:  r.cfg.OAuth.ClientID,
		Success:   true,
		Severity:  audit.SeverityInfo,
		Metadata:  map[string]any{"provider": provider},
	})

	return &LoginResult{Session: sess, Credential: cred}, nil
}

// Logout destroys the user's sessions and shreds the stored credential.
// It reports how many sessions were destroyed.
func (r *Runtime) Logout(userID string) (int, error) {
	destroyed := r.Sessions.DestroyUserSessions(userID)

	if err := r.Credentials.Delete(); err != nil {
		return destroyed, fmt.Errorf("failed to remove stored credential: %w", err)
	}

	r.emit(audit.Event{
		Category: audit.CategoryLogout,
		UserID:   userID,
		Success:  true,
		Severity: audit.SeverityInfo,
		Metadata: map[string]any{"sessionsDestroyed": destroyed},
	})

	return destroyed, nil
}

// AgentAdmission is the outcome of admitting an agent: its quota and the
// session it will present on subsequent calls.
type AgentAdmission struct {
	Quota   *quota.AgentQuota
	Session *session.Session
}

// AdmitAgent admits an agent against a provider pool and mints a session
// bound to the quota. If the session cannot be created the quota is
// released again so the admission is all-or-nothing.
func (r *Runtime) AdmitAgent(agentID string, estimatedTokens uint64, preferredProvider string, binding session.Context) (*AgentAdmission, error) {
	agentQuota, err := r.Quotas.AuthenticateAgent(agentID, estimatedTokens, preferredProvider)
	if err != nil {
		return nil, err
	}

	sess, err := r.Sessions.CreateSession(agentID, r.cfg.OAuth.ClientID, nil, binding)
	if err != nil {
		if _, releaseErr := r.Quotas.ReleaseAgentQuota(agentID); releaseErr != nil {
			logging.Warn("Runtime", "Failed to release quota after session failure for agent %s: %v", agentID, releaseErr)
		}
		return nil, err
	}

	if err := r.Quotas.BindSession(agentID, sess.ID); err != nil {
		logging.Warn("Runtime", "Failed to bind session to quota for agent %s: %v", agentID, err)
	}

	return &AgentAdmission{Quota: agentQuota, Session: sess}, nil
}

// ReleaseAgent tears an agent down: quota released, session destroyed.
// It reports the agent's final token usage.
func (r *Runtime) ReleaseAgent(agentID string) (uint64, error) {
	agentQuota, err := r.Quotas.GetAgentQuota(agentID)
	if err != nil {
		return 0, err
	}

	used, err := r.Quotas.ReleaseAgentQuota(agentID)
	if err != nil {
		return 0, err
	}

	if agentQuota.SessionID != "" {
		if err := r.Sessions.DestroySession(agentQuota.SessionID); err != nil && !errors.Is(err, session.ErrSessionNotFound) {
			return used, err
		}
	}
	return used, nil
}

// Status is a point-in-time snapshot for the status command.
type Status struct {
	Credential        *credstore.Credential
	CredentialPresent bool
	ActiveSessions    int
	ActiveFlows       int
	ActiveAgents      int
	Providers         []quota.ProviderStats
}

// Status gathers a snapshot across all components. A missing credential
// is not an error; any other load failure is.
func (r *Runtime) Status() (*Status, error) {
	status := &Status{
		ActiveSessions: r.Sessions.SessionCount(),
		ActiveFlows:    r.Flows.ActiveFlows(),
		ActiveAgents:   r.Quotas.ActiveAgents(),
		Providers:      r.Quotas.GetUsageStats(),
	}

	cred, err := r.Credentials.Load()
	if err != nil {
		return nil, err
	}
	if cred != nil {
		status.Credential = cred
		status.CredentialPresent = true
	}

	return status, nil
}

func (r *Runtime) emit(event audit.Event) {
	if r.auditor == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	r.auditor.LogEvent(event)
}
