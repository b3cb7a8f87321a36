package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/clubspace/clubspace/internal/identity"
	"github.com/clubspace/clubspace/internal/platform/db"
	"github.com/clubspace/clubspace/internal/platform/httpx"
	"github.com/clubspace/clubspace/internal/rbac"
	"github.com/clubspace/clubspace/internal/shared"
)

// ErrInvalidCredentials is returned when the provider rejects a login.
var ErrInvalidCredentials = shared.ErrInvalidCredentials

// IdentityProvider is the subset of identity.Client used for sessions.
type IdentityProvider interface {
	SignIn(ctx context.Context, email, password string) (identity.Token, error)
	Refresh(ctx context.Context, refreshToken string) (identity.Token, error)
	SignOut(ctx context.Context, accessToken string) error
}

// TokenVerifier validates access tokens.
type TokenVerifier interface {
	Verify(token string) (*identity.Claims, error)
}

// ServiceConfig wires the Service dependencies.
type ServiceConfig struct {
	Repo         Repository
	Provider     IdentityProvider
	Verifier     TokenVerifier
	Permissions  *rbac.Service
	Events       *identity.EventBus
	Logger       *slog.Logger
	CacheSize    int
	PrincipalTTL time.Duration
	DefaultRole  rbac.Role
	Clock        func() time.Time
}

// Service bootstraps principals from identity tokens.
type Service struct {
	repo        Repository
	provider    IdentityProvider
	verifier    TokenVerifier
	perms       *rbac.Service
	events      *identity.EventBus
	logger      *slog.Logger
	principals  *expirable.LRU[string, *Principal]
	defaultRole rbac.Role
	now         func() time.Time
}

// NewService constructs a Service and subscribes it to identity events.
func NewService(cfg ServiceConfig) *Service {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 4096
	}
	if cfg.PrincipalTTL <= 0 {
		cfg.PrincipalTTL = 5 * time.Minute
	}
	if cfg.DefaultRole == "" {
		cfg.DefaultRole = rbac.RoleMember
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = func() time.Time { return time.Now().UTC() }
	}
	s := &Service{
		repo:        cfg.Repo,
		provider:    cfg.Provider,
		verifier:    cfg.Verifier,
		perms:       cfg.Permissions,
		events:      cfg.Events,
		logger:      cfg.Logger,
		principals:  expirable.NewLRU[string, *Principal](cfg.CacheSize, nil, cfg.PrincipalTTL),
		defaultRole: cfg.DefaultRole,
		now:         cfg.Clock,
	}
	if s.events != nil {
		s.events.Subscribe(s.onIdentityEvent, identity.EventSignedIn, identity.EventSignedOut, identity.EventTokenRefreshed, identity.EventRoleChanged)
	}
	return s
}

// Login signs in with the provider and bootstraps the principal.
func (s *Service) Login(ctx context.Context, email, password string) (*Principal, shared.SessionTokens, error) {
	tok, err := s.provider.SignIn(ctx, strings.TrimSpace(email), password)
	if err != nil {
		if errors.Is(err, identity.ErrRejected) {
			return nil, shared.SessionTokens{}, ErrInvalidCredentials
		}
		return nil, shared.SessionTokens{}, err
	}
	claims, err := s.verifier.Verify(tok.AccessToken)
	if err != nil {
		return nil, shared.SessionTokens{}, fmt.Errorf("auth: provider issued unverifiable token: %w", err)
	}
	s.publish(ctx, identity.EventSignedIn, claims.Subject)
	p, err := s.principal(ctx, claims)
	if err != nil {
		return nil, shared.SessionTokens{}, err
	}
	return p, toSessionTokens(tok), nil
}

// Logout revokes the provider session and drops cached state.
func (s *Service) Logout(ctx context.Context, userID, accessToken string) {
	if accessToken != "" {
		if err := s.provider.SignOut(ctx, accessToken); err != nil {
			s.logger.Warn("identity sign out", slog.String("user_id", userID), slog.Any("error", err))
		}
	}
	if userID != "" {
		s.publish(ctx, identity.EventSignedOut, userID)
	}
}

// Authenticate resolves tokens to a principal. Expired access tokens are
// refreshed when a refresh token is present; the returned tokens differ
// from the input only then.
func (s *Service) Authenticate(ctx context.Context, tokens shared.SessionTokens) (*Principal, shared.SessionTokens, error) {
	claims, err := s.verifier.Verify(tokens.AccessToken)
	if errors.Is(err, identity.ErrTokenExpired) && tokens.RefreshToken != "" {
		tok, rerr := s.provider.Refresh(ctx, tokens.RefreshToken)
		if rerr != nil {
			if errors.Is(rerr, identity.ErrRejected) {
				return nil, tokens, fmt.Errorf("%w: session expired", httpx.ErrUnauthorized)
			}
			return nil, tokens, rerr
		}
		claims, err = s.verifier.Verify(tok.AccessToken)
		if err == nil {
			tokens = toSessionTokens(tok)
			s.publish(ctx, identity.EventTokenRefreshed, claims.Subject)
		}
	}
	if err != nil {
		return nil, tokens, fmt.Errorf("%w: %v", httpx.ErrUnauthorized, err)
	}
	p, err := s.principal(ctx, claims)
	if err != nil {
		return nil, tokens, err
	}
	return p, tokens, nil
}

// Principal returns the cached principal for userID, loading it if needed.
func (s *Service) Principal(ctx context.Context, userID string) (*Principal, error) {
	if p, ok := s.principals.Get(userID); ok {
		return p, nil
	}
	return s.bootstrap(ctx, userID, "")
}

func (s *Service) principal(ctx context.Context, claims *identity.Claims) (*Principal, error) {
	if p, ok := s.principals.Get(claims.Subject); ok {
		return p, nil
	}
	return s.bootstrap(ctx, claims.Subject, claims.Email)
}

// bootstrap loads the profile, provisioning a default one on first sight,
// and merges role and granted permissions.
func (s *Service) bootstrap(ctx context.Context, userID, email string) (*Principal, error) {
	profile, err := s.repo.GetProfile(ctx, userID)
	if errors.Is(err, shared.ErrNotFound) {
		profile, err = s.provision(ctx, userID, email)
	}
	if err != nil {
		return nil, fmt.Errorf("auth: load profile: %w", err)
	}
	set, err := s.perms.EffectivePermissions(ctx, rbac.Subject{ID: profile.ID, Role: profile.Role})
	if err != nil {
		return nil, fmt.Errorf("auth: load permissions: %w", err)
	}
	now := s.now()
	p := &Principal{
		UserID:      profile.ID,
		Email:       profile.Email,
		FullName:    profile.FullName,
		Role:        profile.Role,
		Permissions: set.Names(now),
		LoadedAt:    now,
	}
	s.principals.Add(userID, p)
	return p, nil
}

func (s *Service) provision(ctx context.Context, userID, email string) (Profile, error) {
	created, err := s.repo.CreateProfile(ctx, Profile{ID: userID, Email: email, FullName: displayName(email), Role: s.defaultRole})
	if err == nil {
		s.logger.Info("provisioned profile", slog.String("user_id", userID), slog.String("role", string(s.defaultRole)))
		return created, nil
	}
	if db.IsUniqueViolation(err) {
		// Another request created it first.
		return s.repo.GetProfile(ctx, userID)
	}
	return Profile{}, err
}

// Forget drops the cached principal for userID.
func (s *Service) Forget(userID string) {
	s.principals.Remove(userID)
}

func (s *Service) onIdentityEvent(ctx context.Context, e identity.Event) error {
	s.principals.Remove(e.UserID)
	s.perms.Invalidate(e.UserID)
	switch e.Kind {
	case identity.EventSignedOut, identity.EventSignedIn:
		// Login loads the fresh principal itself so first sign-ins keep the email.
		return nil
	}
	_, err := s.bootstrap(ctx, e.UserID, "")
	return err
}

func (s *Service) publish(ctx context.Context, kind identity.EventKind, userID string) {
	s.events.Publish(ctx, identity.Event{Kind: kind, UserID: userID, At: s.now()})
}

func toSessionTokens(tok identity.Token) shared.SessionTokens {
	return shared.SessionTokens{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken, ExpiresAt: tok.ExpiresAt}
}

func displayName(email string) string {
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return email
}
