package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"studypal/internal/auth"
	"studypal/internal/models"
)

func newAuthService(repo *fakeRepo) (*AuthService, *auth.TokenIssuer) {
	tokens := auth.NewTokenIssuer([]byte("test-secret"), time.Hour)
	svc := NewAuthService(repo, tokens, zap.NewNop())
	svc.hashCost = bcrypt.MinCost
	return svc, tokens
}

func TestSignup(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newAuthService(repo)

	u, err := svc.Signup(context.Background(), SignupRequest{Email: " Bob@Example.com", Password: "pw", Name: "Bob", Role: "teacher"})
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", u.Email)
	assert.Equal(t, models.RoleTeacher, u.Role)

	_, err = svc.Signup(context.Background(), SignupRequest{Email: "bob@example.com", Password: "pw"})
	assert.ErrorIs(t, err, ErrUserExists)
}

func TestSignup_DefaultsToStudent(t *testing.T) {
	svc, _ := newAuthService(newFakeRepo())
	u, err := svc.Signup(context.Background(), SignupRequest{Email: "c@example.com", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, u.Role)
}

func TestSignup_Validation(t *testing.T) {
	svc, _ := newAuthService(newFakeRepo())

	_, err := svc.Signup(context.Background(), SignupRequest{Email: "c@example.com", Password: "pw", Role: "ADMIN"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Signup(context.Background(), SignupRequest{Email: "", Password: "pw"})
	assert.ErrorIs(t, err, ErrValidation)

	long := make([]byte, 73)
	for i := range long {
		long[i] = 'x'
	}
	_, err = svc.Signup(context.Background(), SignupRequest{Email: "c@example.com", Password: string(long)})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestLogin(t *testing.T) {
	repo := newFakeRepo()
	svc, tokens := newAuthService(repo)
	created, err := svc.Signup(context.Background(), SignupRequest{Email: "bob@example.com", Password: "s3cret", Role: "TEACHER"})
	require.NoError(t, err)

	u, token, err := svc.Login(context.Background(), "BOB@example.com", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, created.ID, u.ID)

	claims, err := tokens.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, models.RoleTeacher, claims.Role)
	assert.Equal(t, created.ID.String(), claims.Subject)
}

func TestLogin_GenericFailure(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newAuthService(repo)
	_, err := svc.Signup(context.Background(), SignupRequest{Email: "bob@example.com", Password: "s3cret"})
	require.NoError(t, err)
	require.NoError(t, repo.CreateUser(context.Background(), &models.User{Email: "oauth@example.com", Role: models.RoleStudent}))

	for _, tc := range []struct{ email, password string }{
		{"bob@example.com", "wrong"},
		{"nobody@example.com", "s3cret"},
		{"oauth@example.com", "anything"},
	} {
		_, _, err := svc.Login(context.Background(), tc.email, tc.password)
		assert.ErrorIs(t, err, ErrInvalidCredentials, tc.email)
	}
}

func TestLogin_StoreError(t *testing.T) {
	repo := newFakeRepo()
	repo.fail["GetUserByEmail"] = errors.New("db down")
	svc, _ := newAuthService(repo)

	_, _, err := svc.Login(context.Background(), "bob@example.com", "pw")
	assert.ErrorIs(t, err, ErrStore)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginWithGoogle_FindOrCreate(t *testing.T) {
	repo := newFakeRepo()
	svc, tokens := newAuthService(repo)
	p := &auth.GoogleProfile{Email: "g@example.com", EmailVerified: true, Name: "Gee", Picture: "https://example.com/g.png"}

	first, token, err := svc.LoginWithGoogle(context.Background(), p)
	require.NoError(t, err)
	assert.Nil(t, first.PasswordHash)
	assert.Equal(t, models.RoleStudent, first.Role)
	require.NotNil(t, first.Image)
	_, err = tokens.Parse(token)
	require.NoError(t, err)

	second, _, err := svc.LoginWithGoogle(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, repo.userCount())
}

func TestCurrentUser(t *testing.T) {
	repo := newFakeRepo()
	svc, tokens := newAuthService(repo)
	u, err := svc.Signup(context.Background(), SignupRequest{Email: "bob@example.com", Password: "pw"})
	require.NoError(t, err)
	raw, err := tokens.Issue(u)
	require.NoError(t, err)
	claims, err := tokens.Parse(raw)
	require.NoError(t, err)

	got, err := svc.CurrentUser(context.Background(), claims)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
}
