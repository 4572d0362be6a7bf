package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/prodtrack/prodtrack-api/internal/logging"
	"github.com/prodtrack/prodtrack-api/internal/metrics"
	"github.com/prodtrack/prodtrack-api/internal/user"
)

const (
	minPasswordLength = 6
	maxEmailLength    = 254

	// deliveryTimeout bounds one asynchronous reset email, SMTP exchange included.
	deliveryTimeout = 30 * time.Second
)

// AuthTokens is returned on successful login.
type AuthTokens struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// RegisterInput carries the registration form.
type RegisterInput struct {
	Nome           string
	NumeroRegistro string
	Email          string
	Senha          string
}

// Service handles authentication business logic
type Service struct {
	users    UserStore
	tokens   TokenService
	hasher   PasswordHasher
	delivery ResetDelivery
	logger   *logging.Logger
	metrics  *metrics.Metrics

	accessTokenDuration time.Duration
	resetTokenDuration  time.Duration
	now                 func() time.Time

	dummyOnce sync.Once
	dummyHash string

	pending sync.WaitGroup
}

func NewService(
	users UserStore,
	tokens TokenService,
	hasher PasswordHasher,
	delivery ResetDelivery,
	logger *logging.Logger,
	m *metrics.Metrics,
	accessTokenDuration time.Duration,
	resetTokenDuration time.Duration,
) *Service {
	return &Service{
		users:               users,
		tokens:              tokens,
		hasher:              hasher,
		delivery:            delivery,
		logger:              logger,
		metrics:             m,
		accessTokenDuration: accessTokenDuration,
		resetTokenDuration:  resetTokenDuration,
		now:                 time.Now,
	}
}

// Register validates the form, hashes the password and creates the user.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*user.User, error) {
	in.Nome = strings.TrimSpace(in.Nome)
	in.NumeroRegistro = strings.TrimSpace(in.NumeroRegistro)
	in.Email = normalizeEmail(in.Email)

	if err := validateRegistration(in); err != nil {
		s.metrics.Registration(metrics.OutcomeFailure)
		return nil, err
	}

	passwordHash, err := s.hasher.Hash(ctx, in.Senha)
	if err != nil {
		s.metrics.Registration(metrics.OutcomeError)
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	newUser, err := s.users.Create(ctx, &user.User{
		Nome:           in.Nome,
		NumeroRegistro: in.NumeroRegistro,
		Email:          in.Email,
		PasswordHash:   passwordHash,
	})
	if err != nil {
		if errors.Is(err, user.ErrDuplicate) {
			s.metrics.Registration(metrics.OutcomeFailure)
			return nil, err
		}
		s.metrics.Registration(metrics.OutcomeError)
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.metrics.Registration(metrics.OutcomeSuccess)
	return newUser, nil
}

// Login checks the password of the user with the given registration number
// and issues a session token. Callers facing the network should not reveal
// whether ErrUserNotFound or ErrInvalidCredentials occurred.
func (s *Service) Login(ctx context.Context, numeroRegistro, senha string) (*AuthTokens, error) {
	numeroRegistro = strings.TrimSpace(numeroRegistro)
	if numeroRegistro == "" || senha == "" {
		s.metrics.Login(metrics.OutcomeFailure)
		return nil, ErrInvalidCredentials
	}

	existingUser, err := s.users.GetByRegistrationNumber(ctx, numeroRegistro)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			s.burnVerify(ctx, senha)
			s.metrics.Login(metrics.OutcomeFailure)
			return nil, ErrUserNotFound
		}
		s.metrics.Login(metrics.OutcomeError)
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	ok, err := s.hasher.Verify(ctx, senha, existingUser.PasswordHash)
	if err != nil {
		s.metrics.Login(metrics.OutcomeError)
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		s.metrics.Login(metrics.OutcomeFailure)
		return nil, ErrInvalidCredentials
	}

	accessToken, err := s.tokens.CreateToken(existingUser.ID, s.accessTokenDuration)
	if err != nil {
		s.metrics.Login(metrics.OutcomeError)
		return nil, fmt.Errorf("failed to create access token: %w", err)
	}

	s.metrics.Login(metrics.OutcomeSuccess)
	return &AuthTokens{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.accessTokenDuration.Seconds()),
	}, nil
}

// burnVerify spends the same hashing work as a real verification so that
// unknown registration numbers are not revealed by response time.
func (s *Service) burnVerify(ctx context.Context, senha string) {
	// Not tied to ctx: a cancelled first caller must not leave the hash unset.
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash(context.Background(), "prodtrack-timing-equalizer")
		if err != nil {
			s.logger.Error("failed to build timing equalizer hash", "error", err)
			return
		}
		s.dummyHash = h
	})
	if s.dummyHash != "" {
		_, _ = s.hasher.Verify(ctx, senha, s.dummyHash)
	}
}

// Authenticate resolves a bearer token to the user it was issued for.
func (s *Service) Authenticate(tokenStr string) (uuid.UUID, error) {
	if tokenStr == "" {
		return uuid.Nil, ErrUnauthenticated
	}
	claims, err := s.tokens.VerifyToken(tokenStr)
	if err != nil {
		return uuid.Nil, err
	}
	return claims.UserID, nil
}

// GetProfile returns the user without any secret fields populated.
func (s *Service) GetProfile(ctx context.Context, userID uuid.UUID) (*user.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.PasswordHash = ""
	u.ResetToken = nil
	u.ResetExpires = nil
	return u, nil
}

// ChangePassword replaces the password of an authenticated user after
// re-checking the current one.
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to get user: %w", err)
	}

	ok, err := s.hasher.Verify(ctx, currentPassword, u.PasswordHash)
	if err != nil {
		return fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		return ErrInvalidCredentials
	}

	passwordHash, err := s.hasher.Hash(ctx, newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, passwordHash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

// RequestPasswordReset issues a reset token for the account with this email
// and hands it to the delivery channel in the background. It returns nil in
// every case so callers cannot learn whether the email is registered.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return nil
	}

	existingUser, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			s.logger.Warn("failed to get user for password reset", "error", err)
			s.metrics.PasswordReset("request", metrics.OutcomeError)
		} else {
			s.metrics.PasswordReset("request", metrics.OutcomeFailure)
		}
		return nil
	}

	token, digest, err := generateResetToken()
	if err != nil {
		s.logger.Warn("failed to generate password reset token", "error", err)
		s.metrics.PasswordReset("request", metrics.OutcomeError)
		return nil
	}

	expiresAt := s.now().Add(s.resetTokenDuration)
	if err := s.users.SetResetToken(ctx, existingUser.ID, digest, expiresAt); err != nil {
		s.logger.Warn("failed to store password reset token", "user_id", existingUser.ID, "error", err)
		s.metrics.PasswordReset("request", metrics.OutcomeError)
		return nil
	}

	s.metrics.PasswordReset("request", metrics.OutcomeSuccess)

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		deliveryCtx, cancel := context.WithTimeout(logging.WithLogger(context.Background(), s.logger), deliveryTimeout)
		defer cancel()

		if err := s.delivery.SendPasswordResetEmail(deliveryCtx, email, token); err != nil {
			s.logger.Warn("failed to send password reset email", "user_id", existingUser.ID, "error", err)
		}
	}()

	return nil
}

// ResetPassword sets a new password for the holder of a valid reset token
// and invalidates the token. Unknown, expired and reused tokens all yield
// ErrInvalidOrExpiredResetToken.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		s.metrics.PasswordReset("confirm", metrics.OutcomeFailure)
		return ErrInvalidOrExpiredResetToken
	}

	digest := hashResetToken(token)

	holder, err := s.users.GetByResetToken(ctx, digest, s.now())
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			s.metrics.PasswordReset("confirm", metrics.OutcomeFailure)
			return ErrInvalidOrExpiredResetToken
		}
		s.metrics.PasswordReset("confirm", metrics.OutcomeError)
		return fmt.Errorf("failed to look up reset token: %w", err)
	}

	passwordHash, err := s.hasher.Hash(ctx, newPassword)
	if err != nil {
		s.metrics.PasswordReset("confirm", metrics.OutcomeError)
		return fmt.Errorf("failed to hash password: %w", err)
	}

	// The token may have been consumed or lapsed while hashing.
	if err := s.users.ConsumeResetToken(ctx, holder.ID, digest, passwordHash, s.now()); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			s.metrics.PasswordReset("confirm", metrics.OutcomeFailure)
			return ErrInvalidOrExpiredResetToken
		}
		s.metrics.PasswordReset("confirm", metrics.OutcomeError)
		return fmt.Errorf("failed to update password: %w", err)
	}

	s.metrics.PasswordReset("confirm", metrics.OutcomeSuccess)
	return nil
}

// Wait blocks until background reset deliveries have finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

func validateRegistration(in RegisterInput) error {
	if in.Nome == "" {
		return ErrNameRequired
	}
	if in.NumeroRegistro == "" {
		return ErrRegistrationNumberRequired
	}
	if in.Email == "" {
		return ErrEmailRequired
	}
	if len(in.Email) > maxEmailLength {
		return ErrInvalidEmailFormat
	}
	if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != in.Email {
		return ErrInvalidEmailFormat
	}
	return validatePassword(in.Senha)
}

func validatePassword(password string) error {
	if password == "" {
		return ErrPasswordRequired
	}
	if len([]rune(password)) < minPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
