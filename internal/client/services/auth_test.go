package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/imgkeeper/internal/client/models"
)

// ---- fakes ----

type fakeAPI struct {
	RegisterErr error
	VerifyErr   error
	ResendErr   error
	LoginRet    models.LoginResponse
	LoginErr    error

	LastRegister    models.RegisterRequest
	LastVerify      models.VerifyRequest
	LastResendEmail string
	LastLoginEmail  string
	LastLoginPass   string
	ResendCalls     int
}

func (f *fakeAPI) Register(_ context.Context, req models.RegisterRequest) error {
	f.LastRegister = req
	return f.RegisterErr
}

func (f *fakeAPI) Verify(_ context.Context, req models.VerifyRequest) error {
	f.LastVerify = req
	return f.VerifyErr
}

func (f *fakeAPI) ResendCode(_ context.Context, email string) error {
	f.ResendCalls++
	f.LastResendEmail = email
	return f.ResendErr
}

func (f *fakeAPI) Login(_ context.Context, email, password string) (models.LoginResponse, error) {
	f.LastLoginEmail = email
	f.LastLoginPass = password
	return f.LoginRet, f.LoginErr
}

type fakeSession struct {
	cred         models.Credential
	pending      string
	SetErr       error
	LogoutCalled bool
}

func (s *fakeSession) SetCredential(_ context.Context, c models.Credential) error {
	if s.SetErr != nil {
		return s.SetErr
	}
	s.cred = c
	return nil
}

func (s *fakeSession) Logout(context.Context) error {
	s.LogoutCalled = true
	s.cred = models.Credential{}
	s.pending = ""
	return nil
}

func (s *fakeSession) SetPendingEmail(_ context.Context, email string) error {
	s.pending = email
	return nil
}

func (s *fakeSession) PendingEmail(context.Context) (string, error) { return s.pending, nil }

func (s *fakeSession) ClearPendingEmail(context.Context) error {
	s.pending = ""
	return nil
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newService(api *fakeAPI, sess *fakeSession) (*authService, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	svc := NewAuthService(api, sess).(*authService)
	svc.now = clock.now
	return svc, clock
}

// ---- tests ----

func TestRegister_StoresPendingEmailAndStartsCode(t *testing.T) {
	api := &fakeAPI{}
	sess := &fakeSession{}
	svc, clock := newService(api, sess)

	require.NoError(t, svc.Register(context.Background(), " bob ", " bob@x.io ", "pw"))

	assert.Equal(t, models.RegisterRequest{Username: "bob", Email: "bob@x.io", Password: "pw"}, api.LastRegister)
	assert.Equal(t, "bob@x.io", sess.pending)
	assert.Equal(t, clock.t.Add(CodeLifetime), svc.CodeExpiresAt())
}

func TestRegister_MissingFields(t *testing.T) {
	svc, _ := newService(&fakeAPI{}, &fakeSession{})
	require.ErrorIs(t, svc.Register(context.Background(), "bob", "", "pw"), ErrMissingField)
}

func TestRegister_APIErrorKeepsNoPendingEmail(t *testing.T) {
	boom := errors.New("Email already registered")
	sess := &fakeSession{}
	svc, _ := newService(&fakeAPI{RegisterErr: boom}, sess)

	err := svc.Register(context.Background(), "bob", "bob@x.io", "pw")
	require.ErrorIs(t, err, boom)
	assert.Empty(t, sess.pending)
	assert.True(t, svc.CodeExpiresAt().IsZero())
}

func TestVerify_UsesPendingEmailAndClearsIt(t *testing.T) {
	api := &fakeAPI{}
	sess := &fakeSession{pending: "bob@x.io"}
	svc, _ := newService(api, sess)

	require.NoError(t, svc.Verify(context.Background(), " 123456 "))
	assert.Equal(t, models.VerifyRequest{Email: "bob@x.io", Code: "123456"}, api.LastVerify)
	assert.Empty(t, sess.pending)
}

func TestVerify_NoPendingRegistration(t *testing.T) {
	svc, _ := newService(&fakeAPI{}, &fakeSession{})
	require.ErrorIs(t, svc.Verify(context.Background(), "1"), ErrNoPendingRegistration)
}

func TestVerify_FailureKeepsPendingEmail(t *testing.T) {
	sess := &fakeSession{pending: "bob@x.io"}
	svc, _ := newService(&fakeAPI{VerifyErr: errors.New("Invalid code")}, sess)

	require.Error(t, svc.Verify(context.Background(), "000000"))
	assert.Equal(t, "bob@x.io", sess.pending)
}

func TestResendCode_Cooldown(t *testing.T) {
	api := &fakeAPI{}
	sess := &fakeSession{pending: "bob@x.io"}
	svc, clock := newService(api, sess)
	ctx := context.Background()

	require.NoError(t, svc.ResendCode(ctx))
	assert.Equal(t, "bob@x.io", api.LastResendEmail)
	assert.Equal(t, clock.t.Add(CodeLifetime), svc.CodeExpiresAt())

	clock.advance(5 * time.Second)
	err := svc.ResendCode(ctx)
	require.ErrorIs(t, err, ErrResendCooldown)

	var cd *CooldownError
	require.ErrorAs(t, err, &cd)
	assert.Equal(t, 15*time.Second, cd.Remaining)
	assert.Equal(t, 1, api.ResendCalls)

	clock.advance(15 * time.Second)
	require.NoError(t, svc.ResendCode(ctx))
	assert.Equal(t, 2, api.ResendCalls)
}

func TestResendCode_FailureDoesNotStartCooldown(t *testing.T) {
	api := &fakeAPI{ResendErr: errors.New("mail down")}
	svc, _ := newService(api, &fakeSession{pending: "bob@x.io"})

	require.Error(t, svc.ResendCode(context.Background()))
	api.ResendErr = nil
	require.NoError(t, svc.ResendCode(context.Background()))
}

func TestResendCode_NoPendingRegistration(t *testing.T) {
	svc, _ := newService(&fakeAPI{}, &fakeSession{})
	require.ErrorIs(t, svc.ResendCode(context.Background()), ErrNoPendingRegistration)
}

func TestLogin_StoresCredential(t *testing.T) {
	api := &fakeAPI{LoginRet: models.LoginResponse{AccessToken: "tok", IsAdmin: false}}
	sess := &fakeSession{}
	svc, _ := newService(api, sess)

	cred, err := svc.Login(context.Background(), "bob@x.io", "pw")
	require.NoError(t, err)

	want := models.Credential{Token: "tok", Admin: models.AdminNo}
	assert.Equal(t, want, cred)
	assert.Equal(t, want, sess.cred)
	assert.Equal(t, "bob@x.io", api.LastLoginEmail)
	assert.Equal(t, "pw", api.LastLoginPass)
}

func TestLogin_Errors(t *testing.T) {
	boom := errors.New("Invalid credentials")
	sess := &fakeSession{}
	svc, _ := newService(&fakeAPI{LoginErr: boom}, sess)

	_, err := svc.Login(context.Background(), "bob@x.io", "bad")
	require.ErrorIs(t, err, boom)
	assert.False(t, sess.cred.Present())

	_, err = svc.Login(context.Background(), "", "pw")
	require.ErrorIs(t, err, ErrMissingField)

	storeErr := errors.New("disk full")
	svc, _ = newService(&fakeAPI{LoginRet: models.LoginResponse{AccessToken: "t"}}, &fakeSession{SetErr: storeErr})
	_, err = svc.Login(context.Background(), "bob@x.io", "pw")
	require.ErrorIs(t, err, storeErr)
}

func TestLogout(t *testing.T) {
	sess := &fakeSession{cred: models.Credential{Token: "t"}, pending: "p"}
	svc, _ := newService(&fakeAPI{}, sess)

	require.NoError(t, svc.Logout(context.Background()))
	assert.True(t, sess.LogoutCalled)
	assert.False(t, sess.cred.Present())

	email, err := svc.PendingEmail(context.Background())
	require.NoError(t, err)
	assert.Empty(t, email)
}
