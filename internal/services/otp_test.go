package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"studypal/internal/crypto"
	"studypal/internal/mailer"
	"studypal/internal/models"
)

type fakeMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

type fakeLimiter struct {
	allow bool
	err   error
}

func (l fakeLimiter) Allow(context.Context, string) (bool, error) { return l.allow, l.err }

type clock struct{ t time.Time }

func newClock() *clock { return &clock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)} }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func mustSealer(t *testing.T) *crypto.Sealer {
	t.Helper()
	enc := make([]byte, 32)
	dig := make([]byte, 32)
	for i := range enc {
		enc[i] = byte(i)
		dig[i] = byte(255 - i)
	}
	s, err := crypto.NewSealer(enc, dig)
	require.NoError(t, err)
	return s
}

type otpFixture struct {
	repo  *fakeRepo
	mail  *fakeMailer
	clock *clock
	svc   *OTPService
}

func newOTPFixture(t *testing.T) *otpFixture {
	t.Helper()
	f := &otpFixture{repo: newFakeRepo(), mail: &fakeMailer{}, clock: newClock()}
	f.svc = NewOTPService(f.repo, mustSealer(t), f.mail, nil, 10*time.Minute, 5, zap.NewNop())
	f.svc.now = f.clock.now
	f.svc.hashCost = bcrypt.MinCost
	f.svc.newCode = func() (string, error) { return "123456", nil }
	return f
}

func (f *otpFixture) issue(t *testing.T, email string) {
	t.Helper()
	require.NoError(t, f.svc.Issue(context.Background(), IssueRequest{Email: email, Password: "hunter2"}))
}

func TestOTP_HappyPathCreatesExactlyOneUser(t *testing.T) {
	f := newOTPFixture(t)
	f.issue(t, "alice@example.com")

	require.Len(t, f.mail.sent, 1)
	assert.Equal(t, "alice@example.com", f.mail.sent[0].To)
	assert.Equal(t, "Your OTP for Sign Up", f.mail.sent[0].Subject)
	assert.Equal(t, "Your OTP code is: 123456", f.mail.sent[0].Text)

	stored := f.repo.otps["alice@example.com"]
	assert.NotContains(t, stored.CodeDigest, "123456")
	assert.Equal(t, f.clock.now().Add(10*time.Minute), stored.ExpiresAt)

	u, err := f.svc.Verify(context.Background(), VerifyRequest{Email: "alice@example.com", OTP: "123456", Password: "hunter2", Name: "Alice"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, u.Role)
	require.NotNil(t, u.Name)
	assert.Equal(t, "Alice", *u.Name)
	require.NotNil(t, u.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(*u.PasswordHash), []byte("hunter2")))

	assert.Equal(t, 1, f.repo.userCount())
	_, stillThere := f.repo.otps["alice@example.com"]
	assert.False(t, stillThere, "code must be consumed")
}

func TestOTP_CodeIsSingleUse(t *testing.T) {
	f := newOTPFixture(t)
	f.issue(t, "alice@example.com")
	_, err := f.svc.Verify(context.Background(), VerifyRequest{Email: "alice@example.com", OTP: "123456", Password: "pw"})
	require.NoError(t, err)

	_, err = f.svc.Verify(context.Background(), VerifyRequest{Email: "alice@example.com", OTP: "123456", Password: "pw"})
	assert.ErrorIs(t, err, ErrOTPNotFound)
	assert.Equal(t, 1, f.repo.userCount())
}

func TestOTP_WrongCodeCreatesNoUser(t *testing.T) {
	f := newOTPFixture(t)
	f.issue(t, "alice@example.com")

	_, err := f.svc.Verify(context.Background(), VerifyRequest{Email: "alice@example.com", OTP: "654321", Password: "pw"})
	assert.ErrorIs(t, err, ErrOTPInvalid)
	assert.Equal(t, 0, f.repo.userCount())
	assert.Equal(t, 1, f.repo.otps["alice@example.com"].Attempts)
}

func TestOTP_ExpiredAfterElevenMinutes(t *testing.T) {
	f := newOTPFixture(t)
	f.issue(t, "alice@example.com")
	f.clock.advance(11 * time.Minute)

	_, err := f.svc.Verify(context.Background(), VerifyRequest{Email: "alice@example.com", OTP: "123456", Password: "pw"})
	assert.ErrorIs(t, err, ErrOTPInvalid)
	assert.Equal(t, 0, f.repo.userCount())
}

func TestOTP_ExpiryBoundary(t *testing.T) {
	f := newOTPFixture(t)
	f.issue(t, "alice@example.com")

	f.clock.advance(10*time.Minute + time.Second)
	_, err := f.svc.Verify(context.Background(), VerifyRequest{Email: "alice@example.com", OTP: "123456", Password: "pw"})
	assert.ErrorIs(t, err, ErrOTPInvalid)

	f.clock.advance(-time.Second)
	_, err = f.svc.Verify(context.Background(), VerifyRequest{Email: "alice@example.com", OTP: "123456", Password: "pw"})
	assert.NoError(t, err, "a code is still valid at its expiry instant")
}

func TestOTP_AttemptBudget(t *testing.T) {
	f := newOTPFixture(t)
	f.issue(t, "alice@example.com")

	for i := 0; i < 5; i++ {
		_, err := f.svc.Verify(context.Background(), VerifyRequest{Email: "alice@example.com", OTP: "000000", Password: "pw"})
		require.ErrorIs(t, err, ErrOTPInvalid)
	}
	_, err := f.svc.Verify(context.Background(), VerifyRequest{Email: "alice@example.com", OTP: "123456", Password: "pw"})
	assert.ErrorIs(t, err, ErrOTPInvalid)
	assert.Equal(t, 0, f.repo.userCount())
}

// gatedRepo holds every GetOTP caller until all of them have read the row.
type gatedRepo struct {
	*fakeRepo
	readers sync.WaitGroup
}

func (g *gatedRepo) GetOTP(ctx context.Context, email string) (*models.OneTimeCode, error) {
	c, err := g.fakeRepo.GetOTP(ctx, email)
	g.readers.Done()
	g.readers.Wait()
	return c, err
}

func TestOTP_ConcurrentGuessesShareOneBudget(t *testing.T) {
	f := newOTPFixture(t)
	f.issue(t, "alice@example.com")

	const guesses = 50
	gated := &gatedRepo{fakeRepo: f.repo}
	gated.readers.Add(guesses)
	f.svc.repo = gated

	var wg sync.WaitGroup
	errs := make(chan error, guesses)
	for i := 0; i < guesses; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.Verify(context.Background(), VerifyRequest{
				Email:    "alice@example.com",
				OTP:      fmt.Sprintf("%06d", 900000+i),
				Password: "pw",
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.ErrorIs(t, err, ErrOTPInvalid)
	}
	assert.Equal(t, 5, f.repo.otps["alice@example.com"].Attempts)

	f.svc.repo = f.repo
	_, err := f.svc.Verify(context.Background(), VerifyRequest{Email: "alice@example.com", OTP: "123456", Password: "pw"})
	assert.ErrorIs(t, err, ErrOTPInvalid, "budget is spent")
	assert.Equal(t, 0, f.repo.userCount())
}

func TestOTP_ReissueReplacesCode(t *testing.T) {
	f := newOTPFixture(t)
	f.issue(t, "alice@example.com")
	f.svc.newCode = func() (string, error) { return "222222", nil }
	f.issue(t, "alice@example.com")

	_, err := f.svc.Verify(context.Background(), VerifyRequest{Email: "alice@example.com", OTP: "123456", Password: "pw"})
	assert.ErrorIs(t, err, ErrOTPInvalid)
	_, err = f.svc.Verify(context.Background(), VerifyRequest{Email: "alice@example.com", OTP: "222222", Password: "pw"})
	assert.NoError(t, err)
}

func TestOTP_NotFound(t *testing.T) {
	f := newOTPFixture(t)
	_, err := f.svc.Verify(context.Background(), VerifyRequest{Email: "ghost@example.com", OTP: "123456", Password: "pw"})
	assert.ErrorIs(t, err, ErrOTPNotFound)
}

func TestOTP_IssueRejectsExistingUser(t *testing.T) {
	f := newOTPFixture(t)
	require.NoError(t, f.repo.CreateUser(context.Background(), &models.User{Email: "alice@example.com", Role: models.RoleStudent}))

	err := f.svc.Issue(context.Background(), IssueRequest{Email: "Alice@Example.com ", Password: "pw"})
	assert.ErrorIs(t, err, ErrUserExists)
	assert.Empty(t, f.mail.sent)
}

func TestOTP_IssueFailures(t *testing.T) {
	t.Run("database", func(t *testing.T) {
		f := newOTPFixture(t)
		f.repo.fail["UpsertOTP"] = errors.New("connection reset")
		err := f.svc.Issue(context.Background(), IssueRequest{Email: "a@example.com", Password: "pw"})
		assert.ErrorIs(t, err, ErrStore)
		assert.Empty(t, f.mail.sent)
	})
	t.Run("mail", func(t *testing.T) {
		f := newOTPFixture(t)
		f.mail.err = errors.New("535 auth")
		err := f.svc.Issue(context.Background(), IssueRequest{Email: "a@example.com", Password: "pw"})
		assert.ErrorIs(t, err, ErrMailDelivery)
	})
	t.Run("validation", func(t *testing.T) {
		f := newOTPFixture(t)
		err := f.svc.Issue(context.Background(), IssueRequest{Email: "a@example.com"})
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestOTP_RateLimit(t *testing.T) {
	f := newOTPFixture(t)
	f.svc.limiter = fakeLimiter{allow: false}
	err := f.svc.Issue(context.Background(), IssueRequest{Email: "a@example.com", Password: "pw"})
	assert.ErrorIs(t, err, ErrRateLimited)

	f.svc.limiter = fakeLimiter{err: errors.New("redis down")}
	assert.NoError(t, f.svc.Issue(context.Background(), IssueRequest{Email: "a@example.com", Password: "pw"}))
}

func TestOTP_FailedCreateKeepsCode(t *testing.T) {
	f := newOTPFixture(t)
	f.issue(t, "alice@example.com")
	f.repo.fail["CreateUser"] = errors.New("disk full")

	_, err := f.svc.Verify(context.Background(), VerifyRequest{Email: "alice@example.com", OTP: "123456", Password: "pw"})
	assert.ErrorIs(t, err, ErrStore)
	_, ok := f.repo.otps["alice@example.com"]
	assert.True(t, ok, "rolled back transaction must not consume the code")
}

func TestGenerateCode_Range(t *testing.T) {
	for i := 0; i < 500; i++ {
		code, err := generateCode()
		require.NoError(t, err)
		require.Len(t, code, 6)
		n, err := strconv.Atoi(code)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, otpMin)
		assert.LessOrEqual(t, n, otpMax)
	}
}
