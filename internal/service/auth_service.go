package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/bvc-digitalhub/digitalhub-api/internal/config"
	"github.com/bvc-digitalhub/digitalhub-api/internal/domain"
	"github.com/bvc-digitalhub/digitalhub-api/internal/observability"
	"github.com/bvc-digitalhub/digitalhub-api/internal/repository"
	"github.com/bvc-digitalhub/digitalhub-api/internal/security"
)

type EnrollmentInput struct {
	Name     string
	Email    string
	Password string
	Code     string
}

type AuthResult struct {
	Token     string                `json:"token"`
	ExpiresAt time.Time             `json:"expires_at"`
	Account   domain.AccountSummary `json:"user"`
}

type AuthService struct {
	accounts repository.AccountRepository
	codes    repository.OneTimeCodeRepository
	tokens   *TokenService
	notifier Notifier
	logger   *slog.Logger
	codeTTL  time.Duration
	newCode  security.CodeGenerator
	now      func() time.Time
}

func NewAuthService(
	cfg *config.Config,
	accounts repository.AccountRepository,
	codes repository.OneTimeCodeRepository,
	tokens *TokenService,
	notifier Notifier,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		accounts: accounts,
		codes:    codes,
		tokens:   tokens,
		notifier: notifier,
		logger:   logger,
		codeTTL:  cfg.OTPTTL,
		newCode:  security.NewOneTimeCode,
		now:      time.Now,
	}
}

// WithCodeGenerator replaces the random code source.
func (s *AuthService) WithCodeGenerator(gen security.CodeGenerator) *AuthService {
	s.newCode = gen
	return s
}

func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	s.now = now
	return s
}

// BeginEnrollment issues (or replaces) the one-time code for email and hands the
// email off to the notifier. Delivery problems never fail the call.
func (s *AuthService) BeginEnrollment(ctx context.Context, email string) error {
	outcome := "error"
	defer func() { observability.RecordEnrollmentEvent(ctx, "begin", outcome) }()

	email, err := normalizeEmail(email)
	if err != nil {
		outcome = "invalid"
		return err
	}
	exists, err := s.accounts.ExistsByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("check account: %w", err)
	}
	if exists {
		outcome = "duplicate"
		return ErrDuplicateAccount
	}

	code, err := s.newCode()
	if err != nil {
		return err
	}
	if err := s.codes.Upsert(ctx, email, code, s.now().UTC()); err != nil {
		return fmt.Errorf("store code: %w", err)
	}

	msg, err := enrollmentCodeMessage(email, code, s.codeTTL)
	if err != nil {
		s.logger.ErrorContext(ctx, "enrollment email not rendered", "email", email, "error", err)
	} else {
		s.notifier.Notify(ctx, msg)
	}
	outcome = "accepted"
	return nil
}

// VerifyEnrollmentCode checks a code without consuming it.
func (s *AuthService) VerifyEnrollmentCode(ctx context.Context, email, code string) error {
	outcome := "error"
	defer func() { observability.RecordEnrollmentEvent(ctx, "verify", outcome) }()

	email, err := normalizeEmail(email)
	if err != nil {
		outcome = "invalid"
		return err
	}
	if strings.TrimSpace(code) == "" {
		outcome = "invalid"
		return fmt.Errorf("%w: otp is required", ErrValidation)
	}
	if err := s.checkCode(ctx, email, code); err != nil {
		outcome = codeOutcome(err)
		return err
	}
	outcome = "success"
	return nil
}

func (s *AuthService) CompleteEnrollment(ctx context.Context, in EnrollmentInput) (*AuthResult, error) {
	outcome := "error"
	defer func() { observability.RecordEnrollmentEvent(ctx, "complete", outcome) }()

	name := strings.TrimSpace(in.Name)
	if name == "" || strings.TrimSpace(in.Email) == "" || in.Password == "" || strings.TrimSpace(in.Code) == "" {
		outcome = "invalid"
		return nil, fmt.Errorf("%w: name, email, password and otp are required", ErrValidation)
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		outcome = "invalid"
		return nil, err
	}

	if err := s.checkCode(ctx, email, in.Code); err != nil {
		outcome = codeOutcome(err)
		return nil, err
	}

	exists, err := s.accounts.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("check account: %w", err)
	}
	if exists {
		outcome = "duplicate"
		return nil, ErrDuplicateAccount
	}

	hash, err := security.HashPassword(in.Password)
	if err != nil {
		if errors.Is(err, security.ErrPasswordTooLong) {
			outcome = "invalid"
			return nil, fmt.Errorf("%w: password must be at most 72 bytes", ErrValidation)
		}
		return nil, err
	}

	account := &domain.Account{Name: name, Email: email, PasswordHash: hash, IsVerified: true}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicateAccount) {
			outcome = "duplicate"
			return nil, ErrDuplicateAccount
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	result, err := s.issue(account)
	if err != nil {
		return nil, err
	}

	if err := s.codes.Delete(ctx, email); err != nil {
		s.logger.WarnContext(ctx, "consumed enrollment code not deleted", "email", email, "error", err)
	}
	outcome = "success"
	return result, nil
}

// Login checks verification before the password so unverified accounts never
// reach the hash comparison.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	status := "error"
	defer func() { observability.RecordAuthLogin(ctx, status) }()

	email, err := normalizeEmail(email)
	if err != nil {
		status = "invalid"
		return nil, err
	}
	if password == "" {
		status = "invalid"
		return nil, fmt.Errorf("%w: password is required", ErrValidation)
	}

	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			status = "not_found"
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	if !account.IsVerified {
		status = "not_verified"
		return nil, ErrAccountNotVerified
	}
	ok, err := security.VerifyPassword(account.PasswordHash, password)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		status = "invalid_credentials"
		return nil, ErrInvalidCredentials
	}

	result, err := s.issue(account)
	if err != nil {
		return nil, err
	}
	status = "success"
	return result, nil
}

func (s *AuthService) checkCode(ctx context.Context, email, submitted string) error {
	stored, err := s.codes.Find(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrCodeNotFound) {
			return ErrCodeNotFound
		}
		return fmt.Errorf("find code: %w", err)
	}
	if stored.ExpiredAt(s.now(), s.codeTTL) {
		if err := s.codes.Delete(ctx, email); err != nil {
			s.logger.WarnContext(ctx, "expired enrollment code not deleted", "email", email, "error", err)
		}
		return ErrCodeNotFound
	}
	if !security.CodesEqual(stored.Code, submitted) {
		return ErrCodeMismatch
	}
	return nil
}

func (s *AuthService) issue(account *domain.Account) (*AuthResult, error) {
	token, expiresAt, err := s.tokens.Issue(account)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &AuthResult{Token: token, ExpiresAt: expiresAt, Account: account.Summary()}, nil
}

func codeOutcome(err error) string {
	switch {
	case errors.Is(err, ErrCodeNotFound):
		return "code_not_found"
	case errors.Is(err, ErrCodeMismatch):
		return "code_mismatch"
	default:
		return "error"
	}
}

func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return "", fmt.Errorf("%w: email is required", ErrValidation)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid email", ErrValidation)
	}
	return email, nil
}
