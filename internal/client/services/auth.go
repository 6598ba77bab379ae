// Package services contains application services for the imgkeeper client.
// This file defines the authentication service: registration with e-mail
// verification, login and logout.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/imgkeeper/internal/client/models"
)

const (
	// ResendCooldown is how long ResendCode refuses after a resend.
	ResendCooldown = 20 * time.Second
	// CodeLifetime is how long a verification code stays valid.
	CodeLifetime = 5 * time.Minute
)

var (
	ErrNoPendingRegistration = errors.New("no registration is waiting for verification")
	ErrMissingField          = errors.New("required field is empty")
)

// CooldownError is returned by ResendCode while the cooldown runs.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("wait %s before requesting another code", e.Remaining.Round(time.Second))
}

// ErrResendCooldown matches any *CooldownError with errors.Is.
var ErrResendCooldown = &CooldownError{}

func (e *CooldownError) Is(target error) bool {
	_, ok := target.(*CooldownError)
	return ok
}

// AuthAPI is the part of api.Client used for authentication.
type AuthAPI interface {
	Register(ctx context.Context, req models.RegisterRequest) error
	Verify(ctx context.Context, req models.VerifyRequest) error
	ResendCode(ctx context.Context, email string) error
	Login(ctx context.Context, email, password string) (models.LoginResponse, error)
}

// Session is the part of session.Store the flows write to.
type Session interface {
	SetCredential(ctx context.Context, c models.Credential) error
	Logout(ctx context.Context) error
	SetPendingEmail(ctx context.Context, email string) error
	PendingEmail(ctx context.Context) (string, error)
	ClearPendingEmail(ctx context.Context) error
}

// AuthService defines authentication operations for the CLI.
//
// Contract:
//   - Register: create a pending account and remember its e-mail.
//   - Verify: confirm the pending account with the mailed code.
//   - ResendCode: mail a new code, at most once per ResendCooldown.
//   - Login: exchange e-mail and password for a credential held by the session.
//   - Logout: wipe the session.
//
// All methods honor context cancellation.
type AuthService interface {
	Register(ctx context.Context, username, email, password string) error
	Verify(ctx context.Context, code string) error
	ResendCode(ctx context.Context) error
	Login(ctx context.Context, email, password string) (models.Credential, error)
	Logout(ctx context.Context) error
	PendingEmail(ctx context.Context) (string, error)
	CodeExpiresAt() time.Time
}

type authService struct {
	api     AuthAPI
	session Session
	now     func() time.Time

	mu         sync.Mutex
	codeSentAt time.Time
	resentAt   time.Time
}

// NewAuthService constructs an AuthService over the API and the session.
func NewAuthService(api AuthAPI, session Session) AuthService {
	return &authService{api: api, session: session, now: time.Now}
}

func required(values ...string) error {
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return ErrMissingField
		}
	}
	return nil
}

// Register creates the pending account; the server mails a code. The
// e-mail is stored so Verify can run later, even after a restart.
func (a *authService) Register(ctx context.Context, username, email, password string) error {
	email = strings.TrimSpace(email)
	if err := required(username, email, password); err != nil {
		return err
	}

	req := models.RegisterRequest{Username: strings.TrimSpace(username), Email: email, Password: password}
	if err := a.api.Register(ctx, req); err != nil {
		return fmt.Errorf("register: %w", err)
	}

	if err := a.session.SetPendingEmail(ctx, email); err != nil {
		return err
	}

	a.mu.Lock()
	a.codeSentAt = a.now()
	a.resentAt = time.Time{}
	a.mu.Unlock()
	return nil
}

func (a *authService) pendingEmail(ctx context.Context) (string, error) {
	email, err := a.session.PendingEmail(ctx)
	if err != nil {
		return "", err
	}
	if email == "" {
		return "", ErrNoPendingRegistration
	}
	return email, nil
}

// Verify completes the pending registration and forgets its e-mail.
func (a *authService) Verify(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	if err := required(code); err != nil {
		return err
	}
	email, err := a.pendingEmail(ctx)
	if err != nil {
		return err
	}

	if err := a.api.Verify(ctx, models.VerifyRequest{Email: email, Code: code}); err != nil {
		return fmt.Errorf("verify: %w", err)
	}

	a.mu.Lock()
	a.codeSentAt = time.Time{}
	a.mu.Unlock()
	return a.session.ClearPendingEmail(ctx)
}

// ResendCode asks for a new code for the pending e-mail.
func (a *authService) ResendCode(ctx context.Context) error {
	email, err := a.pendingEmail(ctx)
	if err != nil {
		return err
	}

	a.mu.Lock()
	if !a.resentAt.IsZero() {
		if left := ResendCooldown - a.now().Sub(a.resentAt); left > 0 {
			a.mu.Unlock()
			return &CooldownError{Remaining: left}
		}
	}
	a.mu.Unlock()

	if err := a.api.ResendCode(ctx, email); err != nil {
		return fmt.Errorf("resend code: %w", err)
	}

	a.mu.Lock()
	a.resentAt = a.now()
	a.codeSentAt = a.resentAt
	a.mu.Unlock()
	return nil
}

// CodeExpiresAt is when the last code sent by this process stops being
// valid, or zero if none was sent.
func (a *authService) CodeExpiresAt() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.codeSentAt.IsZero() {
		return time.Time{}
	}
	return a.codeSentAt.Add(CodeLifetime)
}

func (a *authService) PendingEmail(ctx context.Context) (string, error) {
	return a.session.PendingEmail(ctx)
}

// Login authenticates and stores the returned credential in the session.
func (a *authService) Login(ctx context.Context, email, password string) (models.Credential, error) {
	email = strings.TrimSpace(email)
	if err := required(email, password); err != nil {
		return models.Credential{}, err
	}

	resp, err := a.api.Login(ctx, email, password)
	if err != nil {
		return models.Credential{}, fmt.Errorf("login: %w", err)
	}

	cred := resp.Credential()
	if err := a.session.SetCredential(ctx, cred); err != nil {
		return models.Credential{}, err
	}
	return cred, nil
}

func (a *authService) Logout(ctx context.Context) error {
	return a.session.Logout(ctx)
}
