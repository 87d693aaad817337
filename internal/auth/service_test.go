package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/swapmeet/marketplace/backend/internal/apperr"
	"github.com/swapmeet/marketplace/backend/internal/models"
	"github.com/swapmeet/marketplace/backend/internal/store"
)

func newTestService(t *testing.T, opts ...Option) (*Service, *store.MemoryStore) {
	t.Helper()
	users := store.NewMemoryStore()
	opts = append([]Option{WithHashCost(bcrypt.MinCost)}, opts...)
	return NewService(users, NewTokenIssuer("test-secret", time.Hour), opts...), users
}

func TestRegister_NormalizesEmailAndHidesPassword(t *testing.T) {
	svc, users := newTestService(t)

	res, err := svc.Register(context.Background(), models.RegisterRequest{
		Name: "  Alice ", Email: "  A@X.com ", Password: "secret1",
	})
	require.NoError(t, err)

	assert.Equal(t, "a@x.com", res.User.Email)
	assert.Equal(t, "Alice", res.User.Name)
	assert.Equal(t, models.RoleUser, res.User.Role)
	assert.Empty(t, res.User.Password)
	assert.NotEmpty(t, res.Token)

	stored, err := users.GetUserByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", stored.Password, "password is stored hashed")

	claims, err := svc.VerifyToken(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, claims.ID)
	assert.Equal(t, "a@x.com", claims.Email)
}

func TestRegister_ReportsEveryViolation(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		Name: "A", Email: "not-an-email", Password: "123",
	})

	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindValidation, e.Kind)
	assert.ElementsMatch(t, []string{msgName, msgEmail, msgPassword}, e.Errors)
}

func TestRegister_DuplicateEmailConflicts(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, models.RegisterRequest{Name: "Alice", Email: "a@x.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, models.RegisterRequest{Name: "Alice2", Email: "A@X.COM", Password: "secret1"})
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestRegister_AdminEmails(t *testing.T) {
	svc, _ := newTestService(t, WithAdminEmails("Root@X.com"))

	res, err := svc.Register(context.Background(), models.RegisterRequest{
		Name: "Root", Email: "root@x.com", Password: "secret1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, res.User.Role)
}

func TestLogin_GenericFailure(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, models.RegisterRequest{Name: "Alice", Email: "a@x.com", Password: "secret1"})
	require.NoError(t, err)

	_, errUnknown := svc.Login(ctx, models.LoginRequest{Email: "nobody@x.com", Password: "secret1"})
	_, errWrong := svc.Login(ctx, models.LoginRequest{Email: "a@x.com", Password: "wrong!"})

	for _, err := range []error{errUnknown, errWrong} {
		e, ok := apperr.As(err)
		require.True(t, ok)
		assert.Equal(t, apperr.KindAuth, e.Kind)
		assert.Equal(t, msgBadCredential, e.Message)
	}

	res, err := svc.Login(ctx, models.LoginRequest{Email: " A@x.com", Password: "secret1"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
}

func TestChangePassword(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	res, err := svc.Register(ctx, models.RegisterRequest{Name: "Alice", Email: "a@x.com", Password: "secret1"})
	require.NoError(t, err)
	id := res.User.ID

	err = svc.ChangePassword(ctx, id, models.PasswordRequest{CurrentPassword: "nope!!", NewPassword: "secret2"})
	assert.True(t, apperr.Is(err, apperr.KindAuth))

	err = svc.ChangePassword(ctx, 999, models.PasswordRequest{CurrentPassword: "secret1", NewPassword: "secret2"})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	err = svc.ChangePassword(ctx, id, models.PasswordRequest{CurrentPassword: "secret1", NewPassword: "x"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	require.NoError(t, svc.ChangePassword(ctx, id, models.PasswordRequest{CurrentPassword: "secret1", NewPassword: "secret2"}))

	_, err = svc.Login(ctx, models.LoginRequest{Email: "a@x.com", Password: "secret1"})
	assert.True(t, apperr.Is(err, apperr.KindAuth))
	_, err = svc.Login(ctx, models.LoginRequest{Email: "a@x.com", Password: "secret2"})
	assert.NoError(t, err)
}

func TestUpdateProfile(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	a, err := svc.Register(ctx, models.RegisterRequest{Name: "Alice", Email: "a@x.com", Password: "secret1"})
	require.NoError(t, err)
	_, err = svc.Register(ctx, models.RegisterRequest{Name: "Bob", Email: "b@x.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = svc.UpdateProfile(ctx, a.User.ID, models.ProfileRequest{Name: "Alice", Email: "B@x.com"})
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	u, err := svc.UpdateProfile(ctx, a.User.ID, models.ProfileRequest{Name: "Alicia", Email: "a@x.com"})
	require.NoError(t, err)
	assert.Equal(t, "Alicia", u.Name)
}

func TestDeleteUser_RequiresAdmin(t *testing.T) {
	svc, users := newTestService(t, WithAdminEmails("root@x.com"))
	ctx := context.Background()
	root, err := svc.Register(ctx, models.RegisterRequest{Name: "Root", Email: "root@x.com", Password: "secret1"})
	require.NoError(t, err)
	bob, err := svc.Register(ctx, models.RegisterRequest{Name: "Bob", Email: "b@x.com", Password: "secret1"})
	require.NoError(t, err)

	err = svc.DeleteUser(ctx, bob.User.ID, root.User.ID)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	require.NoError(t, svc.DeleteUser(ctx, root.User.ID, bob.User.ID))
	gone, err := users.GetUserByID(ctx, bob.User.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	err = svc.DeleteUser(ctx, root.User.ID, bob.User.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
