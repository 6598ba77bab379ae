package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/imgkeeper/internal/client/models"
)

type captured struct {
	mu      sync.Mutex
	method  string
	path    string
	auth    string
	reqID   string
	ctype   string
	body    []byte
	hasAuth bool
}

func newServer(t *testing.T, status int, respBody any) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.method = r.Method
		c.path = r.URL.EscapedPath()
		c.auth = r.Header.Get("Authorization")
		_, c.hasAuth = r.Header["Authorization"]
		c.reqID = r.Header.Get("X-Request-ID")
		c.ctype = r.Header.Get("Content-Type")
		c.body = b
		c.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if respBody != nil {
			_ = json.NewEncoder(w).Encode(respBody)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func newClient(t *testing.T, baseURL string, opts ...Option) *HTTPClient {
	t.Helper()
	c, err := NewHTTPClient(baseURL, opts...)
	require.NoError(t, err)
	return c
}

func TestNewHTTPClient_RejectsBadURL(t *testing.T) {
	_, err := NewHTTPClient("ftp://example.com")
	require.Error(t, err)

	_, err = NewHTTPClient("://bad")
	require.Error(t, err)
}

func TestLogin_SendsBodyAndParsesResponse(t *testing.T) {
	srv, got := newServer(t, http.StatusOK, models.LoginResponse{AccessToken: "tok", IsAdmin: true})
	c := newClient(t, srv.URL+"/", WithTokenSource(TokenFunc(func() string { return "ignored" })))

	resp, err := c.Login(context.Background(), "a@b.c", "pw")
	require.NoError(t, err)
	assert.Equal(t, models.LoginResponse{AccessToken: "tok", IsAdmin: true}, resp)

	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/users/login", got.path)
	assert.Equal(t, "application/json", got.ctype)
	assert.False(t, got.hasAuth, "login must not carry a bearer token")
	assert.JSONEq(t, `{"email":"a@b.c","password":"pw"}`, string(got.body))

	_, err = uuid.Parse(got.reqID)
	assert.NoError(t, err, "X-Request-ID must be a uuid")
}

func TestLogin_EmptyTokenIsServerFault(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, map[string]any{"is_admin": false})
	c := newClient(t, srv.URL)

	_, err := c.Login(context.Background(), "a@b.c", "pw")
	require.ErrorIs(t, err, ErrServerFault)
}

func TestAuthEndpoints_PathsAndBodies(t *testing.T) {
	tests := []struct {
		name     string
		call     func(c *HTTPClient) error
		wantPath string
		wantBody string
	}{
		{
			name: "register",
			call: func(c *HTTPClient) error {
				return c.Register(context.Background(), models.RegisterRequest{Username: "u", Email: "e@x", Password: "p"})
			},
			wantPath: "/users/register-pending",
			wantBody: `{"username":"u","email":"e@x","password":"p"}`,
		},
		{
			name: "verify",
			call: func(c *HTTPClient) error {
				return c.Verify(context.Background(), models.VerifyRequest{Email: "e@x", Code: "123456"})
			},
			wantPath: "/users/verify",
			wantBody: `{"email":"e@x","code":"123456"}`,
		},
		{
			name:     "resend",
			call:     func(c *HTTPClient) error { return c.ResendCode(context.Background(), "e@x") },
			wantPath: "/users/resend-code",
			wantBody: `{"email":"e@x"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, got := newServer(t, http.StatusOK, map[string]string{"message": "ok"})
			c := newClient(t, srv.URL)

			require.NoError(t, tt.call(c))
			assert.Equal(t, http.MethodPost, got.method)
			assert.Equal(t, tt.wantPath, got.path)
			assert.JSONEq(t, tt.wantBody, string(got.body))
		})
	}
}

func TestBearerEndpoints_InjectToken(t *testing.T) {
	tests := []struct {
		name       string
		call       func(c *HTTPClient) error
		wantMethod string
		wantPath   string
	}{
		{"list", func(c *HTTPClient) error { _, err := c.ListImages(context.Background()); return err }, http.MethodGet, "/images/me"},
		{"trash", func(c *HTTPClient) error { _, err := c.ListTrash(context.Background()); return err }, http.MethodGet, "/images/trash"},
		{"delete", func(c *HTTPClient) error { return c.Delete(context.Background(), "img-1") }, http.MethodDelete, "/images/img-1"},
		{"restore", func(c *HTTPClient) error { return c.Restore(context.Background(), "img-1") }, http.MethodPost, "/images/restore/img-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, got := newServer(t, http.StatusOK, []models.Image{})
			c := newClient(t, srv.URL, WithTokenSource(TokenFunc(func() string { return "T1" })))

			require.NoError(t, tt.call(c))
			assert.Equal(t, tt.wantMethod, got.method)
			assert.Equal(t, tt.wantPath, got.path)
			assert.Equal(t, "Bearer T1", got.auth)
			assert.NotEmpty(t, got.reqID)
		})
	}
}

func TestBearerEndpoint_NoTokenNoHeader(t *testing.T) {
	srv, got := newServer(t, http.StatusOK, []models.Image{})
	c := newClient(t, srv.URL)

	_, err := c.ListImages(context.Background())
	require.NoError(t, err)
	assert.False(t, got.hasAuth)
}

func TestSignedURL_EscapesID(t *testing.T) {
	srv, got := newServer(t, http.StatusOK, models.SignedURLResponse{URL: "https://s3/x?sig=1"})
	c := newClient(t, srv.URL)

	u, err := c.SignedURL(context.Background(), "a/b")
	require.NoError(t, err)
	assert.Equal(t, "https://s3/x?sig=1", u)
	assert.Equal(t, "/images/image-url/a%2Fb", got.path)
}

func TestListImages_DecodesNaiveTimestamps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"id":"1","file_name":"a.png","user_id":"u","created_at":"2024-05-01T10:00:00.123456"}]`)
	}))
	defer srv.Close()

	c := newClient(t, srv.URL)
	list, err := c.ListImages(context.Background())
	require.NoError(t, err)

	want := []models.Image{{
		ID:        "1",
		FileName:  "a.png",
		UserID:    "u",
		CreatedAt: models.Timestamp{Time: time.Date(2024, 5, 1, 10, 0, 0, 123456000, time.UTC)},
	}}
	if diff := cmp.Diff(want, list); diff != "" {
		t.Fatalf("images mismatch (-want +got):\n%s", diff)
	}
}

func TestUpload_SendsMultipartFile(t *testing.T) {
	var (
		gotName    string
		gotContent string
		gotAuth    string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		f, hdr, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer f.Close()
		b, _ := io.ReadAll(f)
		gotName = hdr.Filename
		gotContent = string(b)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "new", "file_name": "stored.png", "user_id": "u", "created_at": "2024-05-01T10:00:00Z",
		})
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, WithTokenSource(TokenFunc(func() string { return "T" })))
	img, err := c.Upload(context.Background(), "cat.png", strings.NewReader("PNGDATA"))
	require.NoError(t, err)

	assert.Equal(t, "new", img.ID)
	assert.Equal(t, "stored.png", img.FileName)
	assert.Equal(t, "cat.png", gotName)
	assert.Equal(t, "PNGDATA", gotContent)
	assert.Equal(t, "Bearer T", gotAuth)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       any
		wantKind   error
		wantDetail string
	}{
		{"401", http.StatusUnauthorized, map[string]string{"detail": "Invalid token"}, ErrUnauthorized, "Invalid token"},
		{"403", http.StatusForbidden, map[string]string{"detail": "Forbidden"}, ErrRejected, "Forbidden"},
		{"400", http.StatusBadRequest, map[string]string{"detail": "Email already registered"}, ErrRejected, "Email already registered"},
		{"404 no body", http.StatusNotFound, nil, ErrRejected, ""},
		{"422 list detail", http.StatusUnprocessableEntity,
			map[string]any{"detail": []map[string]string{{"msg": "field required"}, {"msg": "bad email"}}},
			ErrRejected, "field required; bad email"},
		{"500", http.StatusInternalServerError, map[string]string{"detail": "boom"}, ErrServerFault, "boom"},
		{"503", http.StatusServiceUnavailable, nil, ErrServerFault, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newServer(t, tt.status, tt.body)
			c := newClient(t, srv.URL)

			err := c.Delete(context.Background(), "x")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantKind)
			assert.Equal(t, tt.wantKind, KindOf(err))

			var apiErr *Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.wantDetail, apiErr.Detail)
			if tt.wantDetail != "" {
				assert.Equal(t, tt.wantDetail, Message(err))
			} else {
				assert.Equal(t, tt.wantKind.Error(), Message(err))
			}
		})
	}
}

func TestTransportFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := newClient(t, url)
	_, err := c.ListImages(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Nil(t, KindOf(errors.New("plain")))
}

func TestCancelledContextIsNotClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := newClient(t, srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := c.ListImages(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, KindOf(err))
}

func TestUnauthorizedHandler_ReceivesSentToken(t *testing.T) {
	srv, _ := newServer(t, http.StatusUnauthorized, map[string]string{"detail": "expired"})

	var (
		mu    sync.Mutex
		calls []string
	)
	c := newClient(t, srv.URL,
		WithTokenSource(TokenFunc(func() string { return "OLD" })),
		WithUnauthorizedHandler(func(token string) {
			mu.Lock()
			calls = append(calls, token)
			mu.Unlock()
		}),
	)

	err := c.Restore(context.Background(), "x")
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, []string{"OLD"}, calls)
}

func TestUnauthorizedHandler_NotCalledForOtherStatuses(t *testing.T) {
	srv, _ := newServer(t, http.StatusForbidden, nil)

	called := false
	c := newClient(t, srv.URL, WithUnauthorizedHandler(func(string) { called = true }))

	_, err := c.ListTrash(context.Background())
	require.ErrorIs(t, err, ErrRejected)
	assert.False(t, called)
}

func TestMalformedResponseIsServerFault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "not json")
	}))
	defer srv.Close()

	c := newClient(t, srv.URL)
	_, err := c.ListImages(context.Background())
	require.ErrorIs(t, err, ErrServerFault)
}
