package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/redmonkez12/printcost-auth/internal/logging"
	"github.com/redmonkez12/printcost-auth/internal/user"
)

const maxEmailLength = 254

// TokenTTLs holds the lifetimes of everything the service issues.
type TokenTTLs struct {
	Session           time.Duration
	EmailVerification time.Duration
	PasswordReset     time.Duration
}

// Service handles authentication business logic
type Service struct {
	users         UserRepository
	verifications OneTimeTokenRepository
	resets        OneTimeTokenRepository
	sessions      SessionRepository
	tokens        TokenService
	emailService  EmailService
	hasher        *PasswordHasher
	logger        *logging.Logger
	ttls          TokenTTLs
	now           func() time.Time
	tokenGen      TokenGenerator
}

// Option customizes a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithTokenGenerator replaces the crypto/rand one-time token source.
func WithTokenGenerator(g TokenGenerator) Option {
	return func(s *Service) { s.tokenGen = g }
}

func NewService(
	users UserRepository,
	verifications OneTimeTokenRepository,
	resets OneTimeTokenRepository,
	sessions SessionRepository,
	tokens TokenService,
	emailService EmailService,
	hasher *PasswordHasher,
	logger *logging.Logger,
	ttls TokenTTLs,
	opts ...Option,
) *Service {
	s := &Service{
		users:         users,
		verifications: verifications,
		resets:        resets,
		sessions:      sessions,
		tokens:        tokens,
		emailService:  emailService,
		hasher:        hasher,
		logger:        logger,
		ttls:          ttls,
		now:           time.Now,
		tokenGen:      RandomTokenGenerator{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Signup creates an unverified account and sends the verification email.
func (s *Service) Signup(ctx context.Context, name, email, password string) error {
	name = strings.TrimSpace(name)
	email = user.NormalizeEmail(email)

	if name == "" {
		return ErrNameRequired
	}
	if email == "" {
		return ErrEmailRequired
	}
	if password == "" {
		return ErrPasswordRequired
	}
	if !validEmail(email) {
		return ErrInvalidEmailFormat
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return ErrEmailTaken
	} else if !errors.Is(err, user.ErrNotFound) {
		return fmt.Errorf("failed to check existing user: %w", err)
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}

	newUser, err := s.users.Create(ctx, name, email, passwordHash)
	if err != nil {
		if errors.Is(err, user.ErrDuplicateEmail) {
			return ErrEmailTaken
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	token, err := s.issueToken(ctx, s.verifications, newUser.ID, s.ttls.EmailVerification)
	if err != nil {
		return fmt.Errorf("failed to issue verification token: %w", err)
	}

	s.sendVerification(ctx, newUser, token)

	return nil
}

// VerifyEmail consumes a verification token and marks its owner verified.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	if token == "" {
		return ErrTokenRequired
	}

	t, err := s.checkToken(ctx, s.verifications, token)
	if err != nil {
		return err
	}

	if err := s.consume(ctx, s.verifications, t); err != nil {
		return err
	}

	if err := s.users.MarkEmailAsVerified(ctx, t.UserID); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return ErrInvalidToken
		}
		return fmt.Errorf("failed to verify email: %w", err)
	}

	return nil
}

// ResendVerification issues a fresh verification token for an unverified
// account. The result never depends on whether the account exists.
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	email = user.NormalizeEmail(email)
	if email == "" {
		return ErrEmailRequired
	}

	logger := logging.FromContext(ctx, s.logger)

	existingUser, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			logger.Warn("failed to get user for resend verification", "error", err)
		}
		return nil
	}

	if existingUser.EmailVerified {
		return nil
	}

	token, err := s.issueToken(ctx, s.verifications, existingUser.ID, s.ttls.EmailVerification)
	if err != nil {
		logger.Warn("failed to issue verification token", "user_id", existingUser.ID, "error", err)
		return nil
	}

	s.sendVerification(ctx, existingUser, token)

	return nil
}

// Login checks credentials and opens a new session.
func (s *Service) Login(ctx context.Context, email, password string, client ClientInfo) (*LoginResult, error) {
	email = user.NormalizeEmail(email)
	if email == "" {
		return nil, ErrEmailRequired
	}
	if password == "" {
		return nil, ErrPasswordRequired
	}

	existingUser, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			s.hasher.CompareDummy(password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !s.hasher.Compare(existingUser.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	if !existingUser.EmailVerified {
		return nil, ErrEmailNotVerified
	}

	now := s.now()
	session := &Session{
		ID:        uuid.New(),
		UserID:    existingUser.ID,
		ExpiresAt: now.Add(s.ttls.Session),
		IP:        client.IP,
		UserAgent: client.UserAgent,
		CreatedAt: now,
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	token, err := s.tokens.CreateToken(SessionClaims{
		UserID:    existingUser.ID.String(),
		SessionID: session.ID.String(),
		Email:     existingUser.Email,
		IssuedAt:  now,
		ExpiresAt: session.ExpiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign session token: %w", err)
	}

	return &LoginResult{
		User:      existingUser.Public(),
		Token:     token,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// ForgotPassword sends a reset link if the account exists.
// The result never depends on whether the account exists.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = user.NormalizeEmail(email)
	if email == "" {
		return ErrEmailRequired
	}

	logger := logging.FromContext(ctx, s.logger)

	existingUser, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			logger.Warn("failed to get user for password reset", "error", err)
		}
		return nil
	}

	token, err := s.issueToken(ctx, s.resets, existingUser.ID, s.ttls.PasswordReset)
	if err != nil {
		logger.Warn("failed to issue password reset token", "user_id", existingUser.ID, "error", err)
		return nil
	}

	if err := s.emailService.SendPasswordResetEmail(ctx, existingUser.Email, existingUser.Name, token); err != nil {
		logger.Warn("failed to send password reset email", "user_id", existingUser.ID, "error", err)
	}

	return nil
}

// ResetPassword sets a new password and signs the user out everywhere.
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	if token == "" {
		return ErrTokenRequired
	}
	if password == "" {
		return ErrPasswordRequired
	}
	if len(password) > maxPasswordBytes {
		return ErrPasswordTooLong
	}

	t, err := s.checkToken(ctx, s.resets, token)
	if err != nil {
		return err
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}

	if err := s.consume(ctx, s.resets, t); err != nil {
		return err
	}

	// Sessions go first: if this fails the old password stays in place.
	now := s.now()
	if err := s.sessions.RevokeAllForUser(ctx, t.UserID, now); err != nil {
		return fmt.Errorf("failed to revoke sessions before password reset: %w", err)
	}

	if err := s.users.UpdatePassword(ctx, t.UserID, passwordHash); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return ErrInvalidToken
		}
		return fmt.Errorf("failed to update password: %w", err)
	}

	if err := s.resets.InvalidateUnused(ctx, t.UserID, now); err != nil {
		logging.FromContext(ctx, s.logger).Warn("failed to invalidate remaining reset tokens", "user_id", t.UserID, "error", err)
	}

	return nil
}

// ValidateSession resolves an Authorization header to a live session.
// The token signature and the session row must both check out.
func (s *Service) ValidateSession(ctx context.Context, authHeader string) (*Principal, error) {
	raw, ok := bearerToken(authHeader)
	if !ok {
		return nil, ErrUnauthorized
	}

	claims, err := s.tokens.VerifyToken(raw)
	if err != nil {
		return nil, ErrUnauthorized
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, ErrUnauthorized
	}
	sessionID, err := uuid.Parse(claims.SessionID)
	if err != nil {
		return nil, ErrUnauthorized
	}

	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	if session.UserID != userID || !session.IsValid(s.now()) {
		return nil, ErrUnauthorized
	}

	return &Principal{UserID: userID, SessionID: sessionID, Email: claims.Email}, nil
}

// Me returns the sanitized user behind a session.
func (s *Service) Me(ctx context.Context, p *Principal) (*user.Public, error) {
	u, err := s.users.GetByID(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	public := u.Public()
	return &public, nil
}

// Logout revokes only the calling session.
func (s *Service) Logout(ctx context.Context, p *Principal) error {
	err := s.sessions.Revoke(ctx, p.SessionID, s.now())
	if err != nil && !errors.Is(err, ErrSessionNotFound) {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	// A concurrent logout already revoked it; the outcome is the same.
	return nil
}

// issueToken invalidates the user's outstanding tokens of this kind and
// stores a new one.
func (s *Service) issueToken(ctx context.Context, repo OneTimeTokenRepository, userID uuid.UUID, ttl time.Duration) (string, error) {
	now := s.now()

	if err := repo.InvalidateUnused(ctx, userID, now); err != nil {
		return "", err
	}

	token, err := s.tokenGen.NewToken()
	if err != nil {
		return "", err
	}

	if err := repo.Store(ctx, userID, token, now.Add(ttl)); err != nil {
		return "", err
	}

	return token, nil
}

func (s *Service) checkToken(ctx context.Context, repo OneTimeTokenRepository, token string) (*OneTimeToken, error) {
	t, err := repo.Get(ctx, token)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}

	if t.IsUsed() {
		return nil, ErrTokenAlreadyUsed
	}
	if t.IsExpired(s.now()) {
		return nil, ErrTokenExpired
	}

	return t, nil
}

func (s *Service) consume(ctx context.Context, repo OneTimeTokenRepository, t *OneTimeToken) error {
	if err := repo.Consume(ctx, t.ID, s.now()); err != nil {
		if errors.Is(err, ErrTokenConsumed) {
			return ErrTokenAlreadyUsed
		}
		return fmt.Errorf("failed to consume token: %w", err)
	}
	return nil
}

func (s *Service) sendVerification(ctx context.Context, u *user.User, token string) {
	if err := s.emailService.SendVerificationEmail(ctx, u.Email, u.Name, token); err != nil {
		logging.FromContext(ctx, s.logger).Warn("failed to send verification email", "user_id", u.ID, "error", err)
	}
}

func validEmail(email string) bool {
	if len(email) > maxEmailLength {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// bearerToken extracts the token from "Bearer <token>".
func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
