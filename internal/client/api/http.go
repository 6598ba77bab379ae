package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/imgkeeper/internal/client/models"
	"github.com/dmitrijs2005/imgkeeper/internal/common"
	"github.com/dmitrijs2005/imgkeeper/internal/logging"
	"github.com/dmitrijs2005/imgkeeper/internal/netx"
)

// maxErrorBody caps how much of an error response is read for its detail.
const maxErrorBody = 64 << 10

type HTTPClient struct {
	baseURL        *url.URL
	http           *http.Client
	tokens         TokenSource
	onUnauthorized UnauthorizedHandler
	logger         logging.Logger
}

type Option func(*HTTPClient)

func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) { h.http = c }
}

func WithTokenSource(ts TokenSource) Option {
	return func(h *HTTPClient) { h.tokens = ts }
}

func WithUnauthorizedHandler(fn UnauthorizedHandler) Option {
	return func(h *HTTPClient) { h.onUnauthorized = fn }
}

func WithLogger(l logging.Logger) Option {
	return func(h *HTTPClient) { h.logger = l }
}

// NewHTTPClient builds a client for the API rooted at baseURL.
func NewHTTPClient(baseURL string, opts ...Option) (*HTTPClient, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}

	c := &HTTPClient{
		baseURL: u,
		http:    &http.Client{},
		tokens:  TokenFunc(func() string { return "" }),
		logger:  logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

var _ Client = (*HTTPClient)(nil)

func (c *HTTPClient) Register(ctx context.Context, req models.RegisterRequest) error {
	return c.doJSON(ctx, http.MethodPost, "/users/register-pending", false, req, nil)
}

func (c *HTTPClient) Verify(ctx context.Context, req models.VerifyRequest) error {
	return c.doJSON(ctx, http.MethodPost, "/users/verify", false, req, nil)
}

func (c *HTTPClient) ResendCode(ctx context.Context, email string) error {
	return c.doJSON(ctx, http.MethodPost, "/users/resend-code", false, models.ResendCodeRequest{Email: email}, nil)
}

func (c *HTTPClient) Login(ctx context.Context, email, password string) (models.LoginResponse, error) {
	var resp models.LoginResponse
	req := models.LoginRequest{Email: email, Password: password}
	if err := c.doJSON(ctx, http.MethodPost, "/users/login", false, req, &resp); err != nil {
		return models.LoginResponse{}, err
	}
	if resp.AccessToken == "" {
		return models.LoginResponse{}, &Error{Kind: ErrServerFault, Status: http.StatusOK, Detail: "login response has no access token"}
	}
	return resp, nil
}

func (c *HTTPClient) Upload(ctx context.Context, fileName string, r io.Reader) (models.Image, error) {
	body, contentType := netx.MultipartFile("file", fileName, r)
	defer body.Close()

	var img models.Image
	if err := c.do(ctx, http.MethodPost, "/images/upload", true, body, contentType, &img); err != nil {
		return models.Image{}, err
	}
	return img, nil
}

func (c *HTTPClient) ListImages(ctx context.Context) ([]models.Image, error) {
	var list []models.Image
	if err := c.doJSON(ctx, http.MethodGet, "/images/me", true, nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *HTTPClient) ListTrash(ctx context.Context) ([]models.Image, error) {
	var list []models.Image
	if err := c.doJSON(ctx, http.MethodGet, "/images/trash", true, nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *HTTPClient) SignedURL(ctx context.Context, id string) (string, error) {
	var resp models.SignedURLResponse
	if err := c.doJSON(ctx, http.MethodGet, "/images/image-url/"+url.PathEscape(id), true, nil, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

func (c *HTTPClient) Delete(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/images/"+url.PathEscape(id), true, nil, nil)
}

func (c *HTTPClient) Restore(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodPost, "/images/restore/"+url.PathEscape(id), true, nil, nil)
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path string, bearer bool, in, out any) error {
	var (
		body        io.Reader
		contentType string
	)
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, bearer, body, contentType, out)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, bearer bool, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set(common.RequestIDHeaderName, requestID)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	var token string
	if bearer {
		token = c.tokens.Token()
		if token != "" {
			req.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+token)
		}
	}

	log := c.logger.With("method", method, "path", path, "request_id", requestID)
	log.Debug(ctx, "api request")

	resp, err := c.http.Do(req)
	if err != nil {
		mapped := c.mapError(ctx, err)
		log.Debug(ctx, "api transport error", "err", mapped)
		return mapped
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := c.statusError(resp)
		log.Debug(ctx, "api error response", "status", resp.StatusCode, "detail", apiErr.Detail)
		if resp.StatusCode == http.StatusUnauthorized && c.onUnauthorized != nil {
			c.onUnauthorized(token)
		}
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &Error{Kind: ErrServerFault, Status: resp.StatusCode, Detail: "malformed response", Err: err}
	}
	return nil
}

// mapError classifies a failure that produced no HTTP response.
func (c *HTTPClient) mapError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &Error{Kind: ErrUnavailable, Err: err}
}

func (c *HTTPClient) statusError(resp *http.Response) *Error {
	e := &Error{Status: resp.StatusCode, Detail: readDetail(resp.Body)}
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		e.Kind = ErrUnauthorized
	case resp.StatusCode >= 500:
		e.Kind = ErrServerFault
	default:
		e.Kind = ErrRejected
	}
	return e
}

// readDetail extracts FastAPI's "detail", which is a string for
// HTTPException and a list of {msg} objects for validation errors.
func readDetail(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(b) == 0 {
		return ""
	}

	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(b, &body); err != nil || len(body.Detail) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(body.Detail, &s); err == nil {
		return s
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(body.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}
