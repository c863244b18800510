package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Johnnas12/chatbot-ui-galaxy/internal/model"
	"github.com/Johnnas12/chatbot-ui-galaxy/internal/pkg/jwtutil"
)

type fakeUserRepo struct {
	nextID uint
	users  map[string]model.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]model.User)}
}

func (r *fakeUserRepo) Create(user *model.User) error {
	r.nextID++
	user.ID = r.nextID
	r.users[user.Email] = *user
	return nil
}

func (r *fakeUserRepo) GetByEmail(email string) (*model.User, error) {
	u, ok := r.users[email]
	if !ok {
		return nil, nil
	}
	copied := u
	return &copied, nil
}

func (r *fakeUserRepo) GetByID(id uint) (*model.User, error) {
	for _, u := range r.users {
		if u.ID == id {
			copied := u
			return &copied, nil
		}
	}
	return nil, nil
}

const testJWTSecret = "unit-test-secret"

func newTestAuthService(repo UserRepo) *AuthService {
	return NewAuthService(repo, testJWTSecret, time.Hour)
}

func TestSignUpAndSignIn(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(repo)

	signedUp, err := svc.SignUp(SignUpInput{Email: "  Alice@Example.COM ", Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", signedUp.User.Email)
	assert.NotEmpty(t, signedUp.Token)
	assert.NotEqual(t, "correct horse", signedUp.User.PasswordHash)

	claims, err := jwtutil.ParseToken(testJWTSecret, signedUp.Token)
	require.NoError(t, err)
	assert.Equal(t, signedUp.User.ID, claims.UserID)
	assert.Equal(t, "alice@example.com", claims.Email)

	signedIn, err := svc.SignIn(SignInInput{Email: "alice@example.com", Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, signedUp.User.ID, signedIn.User.ID)
}

func TestSignUpDuplicateEmail(t *testing.T) {
	svc := newTestAuthService(newFakeUserRepo())

	_, err := svc.SignUp(SignUpInput{Email: "bob@example.com", Password: "password123"})
	require.NoError(t, err)

	_, err = svc.SignUp(SignUpInput{Email: "BOB@example.com", Password: "password456"})
	assert.ErrorIs(t, err, ErrEmailExists)
}

func TestSignUpRejectsShortPassword(t *testing.T) {
	svc := newTestAuthService(newFakeUserRepo())

	_, err := svc.SignUp(SignUpInput{Email: "bob@example.com", Password: "short"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.SignUp(SignUpInput{Email: "", Password: "password123"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSignInBadCredentials(t *testing.T) {
	svc := newTestAuthService(newFakeUserRepo())

	_, err := svc.SignUp(SignUpInput{Email: "carol@example.com", Password: "password123"})
	require.NoError(t, err)

	_, err = svc.SignIn(SignInInput{Email: "carol@example.com", Password: "wrong password"})
	assert.ErrorIs(t, err, ErrInvalidCredential)

	_, err = svc.SignIn(SignInInput{Email: "nobody@example.com", Password: "password123"})
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestGetUserByID(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(repo)

	signedUp, err := svc.SignUp(SignUpInput{Email: "dave@example.com", Password: "password123"})
	require.NoError(t, err)

	user, err := svc.GetUserByID(signedUp.User.ID)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "dave@example.com", user.Email)

	_, err = svc.GetUserByID(0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
