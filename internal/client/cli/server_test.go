package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/imgkeeper/internal/client/config"
	"github.com/dmitrijs2005/imgkeeper/internal/client/models"
	"github.com/dmitrijs2005/imgkeeper/internal/logging"
)

const (
	testEmail    = "bob@example.org"
	testPassword = "pw"
	testCode     = "123456"
)

// fakeServer is an in-memory image API.
type fakeServer struct {
	srv *httptest.Server

	mu        sync.Mutex
	token     string
	isAdmin   bool
	active    []models.Image
	trash     []models.Image
	nextID    int
	uploads   []string
	registers []models.RegisterRequest
	resends   int

	revokeAfterList bool
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{token: signedToken(t, testEmail)}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /users/login", fs.login)
	mux.HandleFunc("POST /users/register-pending", fs.register)
	mux.HandleFunc("POST /users/verify", fs.verify)
	mux.HandleFunc("POST /users/resend-code", fs.resend)
	mux.HandleFunc("GET /images/me", fs.authed(fs.listActive))
	mux.HandleFunc("GET /images/trash", fs.authed(fs.listTrash))
	mux.HandleFunc("GET /images/image-url/{id}", fs.authed(fs.signedURL))
	mux.HandleFunc("POST /images/upload", fs.authed(fs.upload))
	mux.HandleFunc("DELETE /images/{id}", fs.authed(fs.delete))
	mux.HandleFunc("POST /images/restore/{id}", fs.authed(fs.restore))
	mux.HandleFunc("GET /files/{id}", fs.file)

	fs.srv = httptest.NewServer(mux)
	t.Cleanup(fs.srv.Close)
	return fs
}

func signedToken(t *testing.T, subject string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return tok
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func detail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

func (fs *fakeServer) authed(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		want := "Bearer " + fs.token
		fs.mu.Unlock()
		if r.Header.Get("Authorization") != want {
			detail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		h(w, r)
	}
}

func (fs *fakeServer) login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Email != testEmail || req.Password != testPassword {
		detail(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	writeJSON(w, http.StatusOK, models.LoginResponse{AccessToken: fs.token, IsAdmin: fs.isAdmin})
}

func (fs *fakeServer) register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	fs.mu.Lock()
	fs.registers = append(fs.registers, req)
	fs.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"message": "code sent"})
}

func (fs *fakeServer) verify(w http.ResponseWriter, r *http.Request) {
	var req models.VerifyRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Code != testCode {
		detail(w, http.StatusBadRequest, "Invalid or expired code")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "verified"})
}

func (fs *fakeServer) resend(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	fs.resends++
	fs.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"message": "code sent"})
}

func (fs *fakeServer) listActive(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	writeJSON(w, http.StatusOK, fs.active)
	if fs.revokeAfterList {
		fs.revokeAfterList = false
		fs.token = "rotated"
	}
}

func (fs *fakeServer) listTrash(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	writeJSON(w, http.StatusOK, fs.trash)
}

func (fs *fakeServer) signedURL(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.SignedURLResponse{URL: fs.srv.URL + "/files/" + r.PathValue("id")})
}

func (fs *fakeServer) file(w http.ResponseWriter, r *http.Request) {
	_, _ = io.WriteString(w, "IMG-"+r.PathValue("id"))
}

func (fs *fakeServer) upload(w http.ResponseWriter, r *http.Request) {
	f, hdr, err := r.FormFile("file")
	if err != nil {
		detail(w, http.StatusUnprocessableEntity, "file is required")
		return
	}
	_ = f.Close()

	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.nextID++
	img := models.Image{
		ID:        fmt.Sprintf("up-%d", fs.nextID),
		FileName:  hdr.Filename,
		UserID:    "u1",
		CreatedAt: models.Timestamp{Time: time.Now().UTC()},
	}
	fs.active = append([]models.Image{img}, fs.active...)
	fs.uploads = append(fs.uploads, hdr.Filename)
	writeJSON(w, http.StatusOK, img)
}

func (fs *fakeServer) delete(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	img, ok := take(&fs.active, r.PathValue("id"))
	if !ok {
		detail(w, http.StatusNotFound, "Image not found")
		return
	}
	img.IsDeleted = true
	fs.trash = append(fs.trash, img)
	writeJSON(w, http.StatusOK, map[string]string{"message": "deleted"})
}

func (fs *fakeServer) restore(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	img, ok := take(&fs.trash, r.PathValue("id"))
	if !ok {
		detail(w, http.StatusNotFound, "Image not found")
		return
	}
	img.IsDeleted = false
	fs.active = append(fs.active, img)
	writeJSON(w, http.StatusOK, map[string]string{"message": "restored"})
}

func take(list *[]models.Image, id string) (models.Image, bool) {
	for i, img := range *list {
		if img.ID == id {
			*list = append((*list)[:i:i], (*list)[i+1:]...)
			return img, true
		}
	}
	return models.Image{}, false
}

func (fs *fakeServer) seed(imgs ...models.Image) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.active = append(fs.active, imgs...)
}

func (fs *fakeServer) setAdmin(v bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.isAdmin = v
}

func (fs *fakeServer) revoke() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.token = "rotated"
}

// revokeAfterNextList rotates the token once the next active list is sent,
// so the signed-URL fetches that follow it are rejected.
func (fs *fakeServer) revokeAfterNextList() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.revokeAfterList = true
}

func (fs *fakeServer) snapshot() (active, trash []models.Image, uploads []string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]models.Image(nil), fs.active...),
		append([]models.Image(nil), fs.trash...),
		append([]string(nil), fs.uploads...)
}

func (fs *fakeServer) registered() []models.RegisterRequest {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]models.RegisterRequest(nil), fs.registers...)
}

func (fs *fakeServer) resendCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.resends
}

func testImage(id, name string, day int) models.Image {
	return models.Image{
		ID:        id,
		FileName:  name,
		UserID:    "u1",
		CreatedAt: models.Timestamp{Time: time.Date(2024, 5, day, 12, 0, 0, 0, time.UTC)},
	}
}

// syncBuffer is a bytes.Buffer safe to read while commands write to it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testConfig(t *testing.T, fs *fakeServer, dataDir string) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.APIBaseURL = fs.srv.URL
	cfg.DataDir = dataDir
	cfg.WatchDebounce = 20 * time.Millisecond
	return cfg
}

func newTestApp(t *testing.T, fs *fakeServer) (*App, *syncBuffer) {
	t.Helper()
	return newTestAppIn(t, fs, t.TempDir())
}

func newTestAppIn(t *testing.T, fs *fakeServer, dataDir string) (*App, *syncBuffer) {
	t.Helper()
	out := &syncBuffer{}
	app, err := NewApp(context.Background(), testConfig(t, fs, dataDir), logging.Discard(), strings.NewReader(""), out)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app, out
}

// stubInputs answers text prompts with answers in order (repeating the
// last one) and the password prompt with password.
func stubInputs(t *testing.T, password string, answers ...string) {
	t.Helper()
	origST, origGP := getSimpleText, getPassword
	t.Cleanup(func() {
		getSimpleText = origST
		getPassword = origGP
	})

	var mu sync.Mutex
	i := 0
	getSimpleText = func(_ *bufio.Reader, _ string, _ io.Writer) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(answers) == 0 {
			return "", io.EOF
		}
		a := answers[min(i, len(answers)-1)]
		i++
		return a, nil
	}
	getPassword = func(_ io.Writer) ([]byte, error) {
		return []byte(password), nil
	}
}

func signIn(t *testing.T, app *App) {
	t.Helper()
	stubInputs(t, testPassword, testEmail)
	require.NoError(t, app.Login(context.Background()))
}
