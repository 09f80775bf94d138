package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/bvc-digitalhub/digitalhub-api/internal/config"
	"github.com/bvc-digitalhub/digitalhub-api/internal/domain"
	"github.com/bvc-digitalhub/digitalhub-api/internal/repository"
	repogomock "github.com/bvc-digitalhub/digitalhub-api/internal/repository/gomock"
	"github.com/bvc-digitalhub/digitalhub-api/internal/security"
)

const testJWTSecret = "abcdefghijklmnopqrstuvwxyz123456"

func TestAuthServiceEnrollmentScenario(t *testing.T) {
	fx := newAuthServiceFixture(t)
	ctx := context.Background()

	if err := fx.auth.BeginEnrollment(ctx, " Ada@Example.com "); err != nil {
		t.Fatalf("begin enrollment: %v", err)
	}
	msgs := fx.notifier.sent()
	if len(msgs) != 1 || msgs[0].To[0] != "ada@example.com" {
		t.Fatalf("expected one message to normalized email, got %+v", msgs)
	}
	if !strings.Contains(msgs[0].HTML, "482913") || msgs[0].Subject != enrollmentCodeSubject {
		t.Fatalf("unexpected message content: %+v", msgs[0])
	}

	if err := fx.auth.VerifyEnrollmentCode(ctx, "ada@example.com", "000000"); !errors.Is(err, ErrCodeMismatch) {
		t.Fatalf("expected ErrCodeMismatch, got %v", err)
	}
	if err := fx.auth.VerifyEnrollmentCode(ctx, "ada@example.com", "482913"); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if _, ok := fx.codes.rows["ada@example.com"]; !ok {
		t.Fatal("verify must not consume the code")
	}

	res, err := fx.auth.CompleteEnrollment(ctx, EnrollmentInput{Name: "Ada", Email: "ada@example.com", Password: "s3cret!", Code: "482913"})
	if err != nil {
		t.Fatalf("complete enrollment: %v", err)
	}
	if res.Token == "" || res.Account.Email != "ada@example.com" || res.Account.Name != "Ada" {
		t.Fatalf("unexpected auth result: %+v", res)
	}
	if sub, err := fx.tokens.Validate(res.Token); err != nil || sub != res.Account.ID {
		t.Fatalf("token subject mismatch: sub=%q err=%v", sub, err)
	}
	stored := fx.accounts.byEmail["ada@example.com"]
	if stored == nil || !stored.IsVerified || stored.PasswordHash == "s3cret!" {
		t.Fatalf("unexpected stored account: %+v", stored)
	}
	if _, ok := fx.codes.rows["ada@example.com"]; ok {
		t.Fatal("expected code to be consumed after enrollment")
	}

	login, err := fx.auth.Login(ctx, "ADA@example.com", "s3cret!")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if login.Account.ID != res.Account.ID {
		t.Fatalf("login returned different account: %+v", login.Account)
	}
	if _, err := fx.auth.Login(ctx, "ada@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := fx.auth.BeginEnrollment(ctx, "ada@example.com"); !errors.Is(err, ErrDuplicateAccount) {
		t.Fatalf("expected ErrDuplicateAccount on re-enroll, got %v", err)
	}
}

func TestAuthServiceBeginEnrollmentReplacesOutstandingCode(t *testing.T) {
	fx := newAuthServiceFixture(t)
	ctx := context.Background()
	codes := []string{"111111", "222222"}
	fx.auth.WithCodeGenerator(func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	})

	for range 2 {
		if err := fx.auth.BeginEnrollment(ctx, "grace@example.com"); err != nil {
			t.Fatalf("begin: %v", err)
		}
	}
	if len(fx.codes.rows) != 1 {
		t.Fatalf("expected a single code row, got %d", len(fx.codes.rows))
	}
	if err := fx.auth.VerifyEnrollmentCode(ctx, "grace@example.com", "111111"); !errors.Is(err, ErrCodeMismatch) {
		t.Fatalf("expected first code to be superseded, got %v", err)
	}
	if err := fx.auth.VerifyEnrollmentCode(ctx, "grace@example.com", "222222"); err != nil {
		t.Fatalf("expected latest code to verify, got %v", err)
	}
}

func TestAuthServiceExpiredCodeIsDiscarded(t *testing.T) {
	fx := newAuthServiceFixture(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	fx.auth.WithClock(func() time.Time { return now })

	if err := fx.auth.BeginEnrollment(ctx, "late@example.com"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	now = now.Add(fx.cfg.OTPTTL + time.Second)

	if err := fx.auth.VerifyEnrollmentCode(ctx, "late@example.com", "482913"); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound for expired code, got %v", err)
	}
	if _, ok := fx.codes.rows["late@example.com"]; ok {
		t.Fatal("expected expired code to be deleted")
	}
	_, err := fx.auth.CompleteEnrollment(ctx, EnrollmentInput{Name: "Late", Email: "late@example.com", Password: "pw", Code: "482913"})
	if !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound on complete, got %v", err)
	}
	if len(fx.accounts.byEmail) != 0 {
		t.Fatal("no account may be created from an expired code")
	}
}

func TestAuthServiceValidationMatrix(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name string
		run  func(*AuthService) error
		want error
	}{
		{"begin empty email", func(s *AuthService) error { return s.BeginEnrollment(ctx, "  ") }, ErrValidation},
		{"begin malformed email", func(s *AuthService) error { return s.BeginEnrollment(ctx, "not-an-email") }, ErrValidation},
		{"verify missing code", func(s *AuthService) error { return s.VerifyEnrollmentCode(ctx, "a@b.com", " ") }, ErrValidation},
		{"verify unknown email", func(s *AuthService) error { return s.VerifyEnrollmentCode(ctx, "nobody@b.com", "482913") }, ErrCodeNotFound},
		{"complete missing name", func(s *AuthService) error {
			_, err := s.CompleteEnrollment(ctx, EnrollmentInput{Email: "a@b.com", Password: "pw", Code: "482913"})
			return err
		}, ErrValidation},
		{"complete without code row", func(s *AuthService) error {
			_, err := s.CompleteEnrollment(ctx, EnrollmentInput{Name: "A", Email: "a@b.com", Password: "pw", Code: "482913"})
			return err
		}, ErrCodeNotFound},
		{"login unknown account", func(s *AuthService) error {
			_, err := s.Login(ctx, "ghost@b.com", "pw")
			return err
		}, ErrAccountNotFound},
		{"login missing password", func(s *AuthService) error {
			_, err := s.Login(ctx, "ghost@b.com", "")
			return err
		}, ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newAuthServiceFixture(t)
			if err := tc.run(fx.auth); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestAuthServiceCompleteEnrollmentRejectsOverlongPassword(t *testing.T) {
	fx := newAuthServiceFixture(t)
	ctx := context.Background()
	if err := fx.auth.BeginEnrollment(ctx, "long@example.com"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	_, err := fx.auth.CompleteEnrollment(ctx, EnrollmentInput{
		Name: "Long", Email: "long@example.com", Password: strings.Repeat("x", 73), Code: "482913",
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if _, ok := fx.codes.rows["long@example.com"]; !ok {
		t.Fatal("code must survive a rejected completion")
	}
}

func TestAuthServiceCompleteEnrollmentLosesCreateRace(t *testing.T) {
	fx := newAuthServiceFixture(t)
	ctx := context.Background()
	if err := fx.auth.BeginEnrollment(ctx, "race@example.com"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	fx.accounts.createErr = repository.ErrDuplicateAccount

	_, err := fx.auth.CompleteEnrollment(ctx, EnrollmentInput{Name: "R", Email: "race@example.com", Password: "pw", Code: "482913"})
	if !errors.Is(err, ErrDuplicateAccount) {
		t.Fatalf("expected ErrDuplicateAccount, got %v", err)
	}
}

func TestAuthServiceLoginRejectsUnverifiedBeforePassword(t *testing.T) {
	fx := newAuthServiceFixture(t)
	hash, err := security.HashPassword("right")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	fx.accounts.byEmail["pending@example.com"] = &domain.Account{ID: "acc-pending", Email: "pending@example.com", PasswordHash: hash}

	for _, pw := range []string{"right", "wrong"} {
		if _, err := fx.auth.Login(context.Background(), "pending@example.com", pw); !errors.Is(err, ErrAccountNotVerified) {
			t.Fatalf("password %q: expected ErrAccountNotVerified, got %v", pw, err)
		}
	}
}

func TestAuthServiceBeginEnrollmentDoesNotWaitForSlowDelivery(t *testing.T) {
	fx := newAuthServiceFixture(t)
	sender := &blockingSender{release: make(chan struct{}), err: errors.New("provider down")}
	notifier := NewAsyncNotifier(sender, "test", time.Minute, discardLogger())
	fx.auth.notifier = notifier

	start := time.Now()
	if err := fx.auth.BeginEnrollment(context.Background(), "fast@example.com"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("begin enrollment waited on delivery: %v", elapsed)
	}
	if _, ok := fx.codes.rows["fast@example.com"]; !ok {
		t.Fatal("code must be stored even when delivery fails")
	}

	close(sender.release)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := notifier.Close(ctx); err != nil {
		t.Fatalf("close notifier: %v", err)
	}
}

func TestAuthServiceCodeStoreFailureSurfaces(t *testing.T) {
	fx := newAuthServiceFixture(t)
	fx.codes.upsertErr = errors.New("disk full")
	if err := fx.auth.BeginEnrollment(context.Background(), "x@example.com"); err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected store error, got %v", err)
	}
	if len(fx.notifier.sent()) != 0 {
		t.Fatal("no email may be sent when the code was not stored")
	}
}

func FuzzNormalizeEmailNeverReturnsUppercase(f *testing.F) {
	for _, seed := range []string{"A@B.com", " x@y.z ", "bad", "", "Ada Lovelace <ada@example.com>"} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, raw string) {
		got, err := normalizeEmail(raw)
		if err != nil {
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("unexpected error type: %v", err)
			}
			return
		}
		if got != strings.ToLower(got) || strings.TrimSpace(got) != got {
			t.Fatalf("email not normalized: %q", got)
		}
	})
}

type authServiceFixture struct {
	cfg      *config.Config
	auth     *AuthService
	tokens   *TokenService
	accounts *accountRepoState
	codes    *codeRepoState
	notifier *recordingNotifier
}

func newAuthServiceFixture(t *testing.T) *authServiceFixture {
	t.Helper()
	cfg := &config.Config{OTPTTL: 5 * time.Minute, JWTAccessTTL: time.Hour}

	ctrl := gomock.NewController(t)
	accounts := newAccountRepoState()
	codes := newCodeRepoState()
	accountMock := repogomock.NewMockAccountRepository(ctrl)
	codeMock := repogomock.NewMockOneTimeCodeRepository(ctrl)

	accountMock.EXPECT().Create(gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(accounts.Create)
	accountMock.EXPECT().FindByID(gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(accounts.FindByID)
	accountMock.EXPECT().FindByEmail(gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(accounts.FindByEmail)
	accountMock.EXPECT().ExistsByEmail(gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(accounts.ExistsByEmail)

	codeMock.EXPECT().Upsert(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(codes.Upsert)
	codeMock.EXPECT().Find(gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(codes.Find)
	codeMock.EXPECT().Delete(gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(codes.Delete)

	tokens := NewTokenService(security.NewJWTManager("digitalhub-test", "digitalhub-test", testJWTSecret), cfg.JWTAccessTTL)
	notifier := &recordingNotifier{}
	auth := NewAuthService(cfg, accountMock, codeMock, tokens, notifier, discardLogger()).
		WithCodeGenerator(security.FixedCode("482913"))

	return &authServiceFixture{cfg: cfg, auth: auth, tokens: tokens, accounts: accounts, codes: codes, notifier: notifier}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type accountRepoState struct {
	mu        sync.Mutex
	byEmail   map[string]*domain.Account
	nextID    int
	createErr error
}

func newAccountRepoState() *accountRepoState {
	return &accountRepoState{byEmail: map[string]*domain.Account{}}
}

func (r *accountRepoState) Create(_ context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	if _, ok := r.byEmail[account.Email]; ok {
		return repository.ErrDuplicateAccount
	}
	r.nextID++
	account.ID = fmt.Sprintf("acc-%d", r.nextID)
	cp := *account
	r.byEmail[account.Email] = &cp
	return nil
}

func (r *accountRepoState) FindByID(_ context.Context, id string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.byEmail {
		if a.ID == id {
			cp := *a
			return &cp, nil
		}
	}
	return nil, repository.ErrAccountNotFound
}

func (r *accountRepoState) FindByEmail(_ context.Context, email string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byEmail[email]
	if !ok {
		return nil, repository.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *accountRepoState) ExistsByEmail(_ context.Context, email string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byEmail[email]
	return ok, nil
}

type codeRepoState struct {
	mu        sync.Mutex
	rows      map[string]domain.OneTimeCode
	upsertErr error
}

func newCodeRepoState() *codeRepoState {
	return &codeRepoState{rows: map[string]domain.OneTimeCode{}}
}

func (r *codeRepoState) Upsert(_ context.Context, email, code string, createdAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upsertErr != nil {
		return r.upsertErr
	}
	r.rows[email] = domain.OneTimeCode{Email: email, Code: code, CreatedAt: createdAt}
	return nil
}

func (r *codeRepoState) Find(_ context.Context, email string) (*domain.OneTimeCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[email]
	if !ok {
		return nil, repository.ErrCodeNotFound
	}
	return &row, nil
}

func (r *codeRepoState) Delete(_ context.Context, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, email)
	return nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []Message
}

func (n *recordingNotifier) Notify(_ context.Context, msg Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
}

func (n *recordingNotifier) sent() []Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Message(nil), n.msgs...)
}

type blockingSender struct {
	release chan struct{}
	err     error
}

func (s *blockingSender) Send(ctx context.Context, _ Message) error {
	select {
	case <-s.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.err
}
