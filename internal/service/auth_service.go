package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"projectflow/internal/domain"
	"projectflow/internal/email"
	"projectflow/internal/repository"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// TokenSigner es lo que AuthService necesita del firmador de JWT.
type TokenSigner interface {
	Issue(userID, email string) (TokenPair, error)
	Verify(token string, kind TokenKind) (Claims, error)
	RefreshTTL() time.Duration
}

// AuthPolicy agrupa los limites del ciclo de vida de credenciales.
type AuthPolicy struct {
	MinPasswordLength     int
	MaxFailedLogins       int64
	FailedLoginWindow     time.Duration
	ResetTicketTTL        time.Duration
	VerificationTicketTTL time.Duration
	// RevokeSessionsOnCredentialChange borra el refresh token vigente al
	// cambiar la contraseña o desactivar la cuenta.
	RevokeSessionsOnCredentialChange bool
}

func DefaultAuthPolicy() AuthPolicy {
	return AuthPolicy{
		MinPasswordLength:     8,
		MaxFailedLogins:       5,
		FailedLoginWindow:     15 * time.Minute,
		ResetTicketTTL:        time.Hour,
		VerificationTicketTTL: 24 * time.Hour,
	}
}

type AuthOption func(*AuthService)

func WithPolicy(p AuthPolicy) AuthOption {
	return func(s *AuthService) { s.policy = p }
}

func WithHasher(h PasswordHasher) AuthOption {
	return func(s *AuthService) { s.hasher = h }
}

func WithClock(now func() time.Time) AuthOption {
	return func(s *AuthService) { s.now = now }
}

// WithMailTimeout acota cada envio de correo en segundo plano.
func WithMailTimeout(d time.Duration) AuthOption {
	return func(s *AuthService) { s.mailTimeout = d }
}

const defaultMailTimeout = 30 * time.Second

// AuthService orquesta registro, login, rotacion de sesiones y reseteo de contraseña.
// No guarda estado propio entre requests: todo vive en el repositorio y el registry.
type AuthService struct {
	logger   *zap.Logger
	users    repository.UserRepository
	sessions SessionRegistry
	tokens   TokenSigner
	mailer   email.Sender
	hasher   PasswordHasher
	policy   AuthPolicy
	now      func() time.Time

	mailTimeout time.Duration
	mailWG      sync.WaitGroup

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(
	logger *zap.Logger,
	users repository.UserRepository,
	sessions SessionRegistry,
	tokens TokenSigner,
	mailer email.Sender,
	opts ...AuthOption,
) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if mailer == nil {
		mailer = email.NewDisabledSender("")
	}
	s := &AuthService{
		logger:   logger,
		users:    users,
		sessions: sessions,
		tokens:   tokens,
		mailer:   mailer,
		hasher:   BcryptHasher{},
		policy:   DefaultAuthPolicy(),
		now:      time.Now,

		mailTimeout: defaultMailTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.mailTimeout <= 0 {
		s.mailTimeout = defaultMailTimeout
	}
	return s
}

type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

type LoginResult struct {
	User   domain.User `json:"user"`
	Tokens TokenPair   `json:"tokens"`
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (domain.User, error) {
	emailAddr := normalizeEmail(in.Email)
	if !emailPattern.MatchString(emailAddr) {
		return domain.User{}, InvalidInput("Invalid email format", map[string]string{"email": "must be a valid email address"})
	}
	if err := s.checkPassword(in.Password, "password"); err != nil {
		return domain.User{}, err
	}

	_, err := s.users.GetByEmail(ctx, emailAddr)
	switch {
	case err == nil:
		return domain.User{}, ErrEmailRegistered
	case !errors.Is(err, repository.ErrUserNotFound):
		return domain.User{}, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	now := s.now().UTC()
	user := domain.User{
		ID:           uuid.NewString(),
		Email:        emailAddr,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return domain.User{}, ErrEmailRegistered
		}
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}

	token, err := randomToken()
	if err != nil {
		return domain.User{}, fmt.Errorf("verification token: %w", err)
	}
	ttl := s.policy.VerificationTicketTTL
	if err := s.sessions.SetVerificationTicket(ctx, token, user.ID, ttl); err != nil {
		return domain.User{}, fmt.Errorf("store verification ticket: %w", err)
	}
	expiresAt := now.Add(ttl)
	s.deliver(ctx, "verification", user.ID, func(ctx context.Context) error {
		return s.mailer.SendVerification(ctx, user.Email, token, expiresAt)
	})

	s.logger.Info("user registered", zap.String("user_id", user.ID))
	return user, nil
}

// Login valida credenciales. Un email bloqueado falla con ErrAccountLocked aun
// con la contraseña correcta; email inexistente e inactivo responden igual que
// una contraseña incorrecta.
func (s *AuthService) Login(ctx context.Context, emailAddr, password string) (LoginResult, error) {
	emailAddr = normalizeEmail(emailAddr)

	failures, err := s.sessions.FailedLogins(ctx, emailAddr)
	if err != nil {
		return LoginResult{}, fmt.Errorf("read failed logins: %w", err)
	}
	if failures >= s.policy.MaxFailedLogins {
		return LoginResult{}, ErrAccountLocked
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
		return LoginResult{}, fmt.Errorf("lookup user: %w", err)
	}
	if err != nil || !user.IsActive {
		_ = s.hasher.Compare(s.dummyPasswordHash(), password)
		return LoginResult{}, ErrInvalidCredentials
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		count, incErr := s.sessions.IncrFailedLogin(ctx, emailAddr, s.policy.FailedLoginWindow)
		if incErr != nil {
			return LoginResult{}, fmt.Errorf("count failed login: %w", incErr)
		}
		if count >= s.policy.MaxFailedLogins {
			s.logger.Warn("account locked after failed logins", zap.String("user_id", user.ID), zap.Int64("attempts", count))
			return LoginResult{}, ErrAccountLocked
		}
		return LoginResult{}, ErrInvalidCredentials
	}

	if err := s.sessions.ResetFailedLogin(ctx, emailAddr); err != nil {
		return LoginResult{}, fmt.Errorf("reset failed logins: %w", err)
	}
	pair, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue tokens: %w", err)
	}
	if err := s.sessions.SetRefreshToken(ctx, user.ID, pair.RefreshToken, s.tokens.RefreshTTL()); err != nil {
		return LoginResult{}, fmt.Errorf("store refresh token: %w", err)
	}
	return LoginResult{User: user, Tokens: pair}, nil
}

// Refresh rota el par de tokens. Solo el refresh token vigente del usuario es
// aceptado; al rotar, el anterior deja de servir.
func (s *AuthService) Refresh(ctx context.Context, identity domain.Identity, presented string) (TokenPair, error) {
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return TokenPair{}, InvalidInput("Refresh token required", nil)
	}

	stored, ok, err := s.sessions.GetRefreshToken(ctx, identity.UserID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("read refresh token: %w", err)
	}
	if !ok || subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) != 1 {
		return TokenPair{}, ErrInvalidRefreshToken
	}

	pair, err := s.tokens.Issue(identity.UserID, identity.Email)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue tokens: %w", err)
	}
	swapped, err := s.sessions.SwapRefreshToken(ctx, identity.UserID, presented, pair.RefreshToken, s.tokens.RefreshTTL())
	if err != nil {
		return TokenPair{}, fmt.Errorf("rotate refresh token: %w", err)
	}
	if !swapped {
		return TokenPair{}, ErrInvalidRefreshToken
	}
	return pair, nil
}

func (s *AuthService) Logout(ctx context.Context, userID string) error {
	if err := s.sessions.DeleteRefreshToken(ctx, userID); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}

// RequestPasswordReset responde igual exista o no la cuenta.
func (s *AuthService) RequestPasswordReset(ctx context.Context, emailAddr string) error {
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" {
		return nil
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}

	token, err := randomToken()
	if err != nil {
		return fmt.Errorf("reset token: %w", err)
	}
	ttl := s.policy.ResetTicketTTL
	if err := s.sessions.SetResetTicket(ctx, digestToken(token), user.ID, ttl); err != nil {
		return fmt.Errorf("store reset ticket: %w", err)
	}
	expiresAt := s.now().UTC().Add(ttl)
	s.deliver(ctx, "password reset", user.ID, func(ctx context.Context) error {
		return s.mailer.SendPasswordReset(ctx, user.Email, token, expiresAt)
	})
	return nil
}

func (s *AuthService) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	token = strings.TrimSpace(token)
	if token == "" || newPassword == "" {
		return InvalidInput("Token and new password are required", nil)
	}
	if err := s.checkPassword(newPassword, "password"); err != nil {
		return err
	}

	digest := digestToken(token)
	userID, ok, err := s.sessions.GetResetTicket(ctx, digest)
	if err != nil {
		return fmt.Errorf("read reset ticket: %w", err)
	}
	if !ok {
		return ErrInvalidOrExpiredToken
	}

	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if err := s.sessions.DeleteResetTicket(ctx, digest); err != nil {
		return fmt.Errorf("delete reset ticket: %w", err)
	}
	if err := s.sessions.DeleteRefreshToken(ctx, user.ID); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	s.logger.Info("password reset", zap.String("user_id", user.ID))
	return nil
}

func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.hasher.Compare(user.PasswordHash, currentPassword); err != nil {
		return ErrWrongCurrentPassword
	}
	if err := s.checkPassword(newPassword, "newPassword"); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return s.revokeOnCredentialChange(ctx, user.ID)
}

func (s *AuthService) DeactivateAccount(ctx context.Context, userID, password string) error {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		return ErrWrongPassword
	}
	if err := s.users.SetActive(ctx, user.ID, false); err != nil {
		return fmt.Errorf("deactivate user: %w", err)
	}
	s.logger.Info("account deactivated", zap.String("user_id", user.ID))
	return s.revokeOnCredentialChange(ctx, user.ID)
}

func (s *AuthService) Profile(ctx context.Context, userID string) (domain.User, error) {
	return s.loadUser(ctx, userID)
}

func (s *AuthService) UpdateProfile(ctx context.Context, userID string, update domain.ProfileUpdate) (domain.User, error) {
	user, err := s.users.UpdateProfile(ctx, userID, update)
	if errors.Is(err, repository.ErrUserNotFound) {
		return domain.User{}, ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("update profile: %w", err)
	}
	return user, nil
}

// Authenticate resuelve un access token a la identidad del usuario activo.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (domain.Identity, error) {
	claims, err := s.tokens.Verify(accessToken, AccessToken)
	if err != nil {
		return domain.Identity{}, ErrInvalidToken
	}
	user, err := s.users.GetByEmail(ctx, normalizeEmail(claims.Email))
	if errors.Is(err, repository.ErrUserNotFound) {
		return domain.Identity{}, ErrInactiveUser
	}
	if err != nil {
		return domain.Identity{}, fmt.Errorf("lookup user: %w", err)
	}
	if !user.IsActive || user.ID != claims.UserID {
		return domain.Identity{}, ErrInactiveUser
	}
	return domain.Identity{UserID: user.ID, Email: user.Email}, nil
}

func (s *AuthService) loadUser(ctx context.Context, userID string) (domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return domain.User{}, ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("lookup user: %w", err)
	}
	return user, nil
}

func (s *AuthService) revokeOnCredentialChange(ctx context.Context, userID string) error {
	if !s.policy.RevokeSessionsOnCredentialChange {
		return nil
	}
	if err := s.sessions.DeleteRefreshToken(ctx, userID); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return nil
}

func (s *AuthService) checkPassword(password, field string) error {
	if utf8.RuneCountInString(password) < s.policy.MinPasswordLength {
		msg := fmt.Sprintf("Password must be at least %d characters long", s.policy.MinPasswordLength)
		return InvalidInput(msg, map[string]string{field: msg})
	}
	return nil
}

// deliver envia el correo en segundo plano con su propio timeout; el request
// no espera al SMTP.
func (s *AuthService) deliver(ctx context.Context, kind, userID string, send func(context.Context) error) {
	s.mailWG.Add(1)
	go func() {
		defer s.mailWG.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.mailTimeout)
		defer cancel()
		if err := send(ctx); err != nil {
			s.logger.Warn("send email failed", zap.Error(err), zap.String("kind", kind), zap.String("user_id", userID))
		}
	}()
}

// FlushMail espera los envios pendientes o hasta que ctx termine.
func (s *AuthService) FlushMail(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.mailWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dummyPasswordHash se compara cuando no hay usuario, asi el tiempo de
// respuesta no delata si el email existe.
func (s *AuthService) dummyPasswordHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(uuid.NewString())
		if err != nil {
			s.logger.Warn("dummy password hash failed", zap.Error(err))
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// randomToken devuelve 256 bits aleatorios en hex.
func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func digestToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
