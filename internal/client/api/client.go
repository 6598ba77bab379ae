package api

import (
	"context"
	"io"

	"github.com/dmitrijs2005/imgkeeper/internal/client/models"
)

// Client lists the calls the server exposes.
type Client interface {
	Register(ctx context.Context, req models.RegisterRequest) error
	Verify(ctx context.Context, req models.VerifyRequest) error
	ResendCode(ctx context.Context, email string) error
	Login(ctx context.Context, email, password string) (models.LoginResponse, error)

	Upload(ctx context.Context, fileName string, r io.Reader) (models.Image, error)
	ListImages(ctx context.Context) ([]models.Image, error)
	ListTrash(ctx context.Context) ([]models.Image, error)
	SignedURL(ctx context.Context, id string) (string, error)
	Delete(ctx context.Context, id string) error
	Restore(ctx context.Context, id string) error
}

// TokenSource yields the bearer token to send; "" sends no header.
type TokenSource interface {
	Token() string
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func() string

func (f TokenFunc) Token() string { return f() }

// UnauthorizedHandler is told which token the server rejected with 401.
type UnauthorizedHandler func(token string)
