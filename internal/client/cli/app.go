package cli

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrijs2005/imgkeeper/internal/client/api"
	"github.com/dmitrijs2005/imgkeeper/internal/client/config"
	"github.com/dmitrijs2005/imgkeeper/internal/client/guard"
	"github.com/dmitrijs2005/imgkeeper/internal/client/images"
	"github.com/dmitrijs2005/imgkeeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/imgkeeper/internal/client/services"
	"github.com/dmitrijs2005/imgkeeper/internal/client/session"
	"github.com/dmitrijs2005/imgkeeper/internal/client/storage"
	"github.com/dmitrijs2005/imgkeeper/internal/client/ui"
	"github.com/dmitrijs2005/imgkeeper/internal/filex"
	"github.com/dmitrijs2005/imgkeeper/internal/logging"
)

// Views the REPL can be in.
const (
	viewLogin      = "login"
	viewRegister   = "register"
	viewVerify     = "verify"
	viewImages     = "images"
	viewTrash      = "trash"
	viewAdmin      = "admin"
	viewPermission = "permission"
)

var (
	routeImages = guard.Route{Name: viewImages}
	routeTrash  = guard.Route{Name: viewTrash}
	routeAdmin  = guard.Route{Name: viewAdmin, RequireAdmin: true}
)

var (
	ErrNotSignedIn      = errors.New("not signed in")
	ErrPermissionDenied = errors.New("permission denied")
	ErrSessionLoading   = errors.New("session is still loading")
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	session *session.Store
	auth    services.AuthService
	cache   *images.Cache
	http    *http.Client
	reader  *bufio.Reader
	out     io.Writer

	outMu sync.Mutex

	mu          sync.Mutex
	view        string
	unsubscribe func()
}

// NewApp opens the session database under cfg.DataDir, restores the
// session and wires the API client, the image cache and the auth flows.
// Output goes to out and prompts read from in.
func NewApp(ctx context.Context, cfg *config.Config, logger logging.Logger, in io.Reader, out io.Writer) (*App, error) {
	dir, err := filex.EnsureDir(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	cfg.DataDir = dir

	db, err := storage.Open(ctx, cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}

	store := session.NewStore(metadata.NewSQLiteRepository(db), logger)
	httpClient := &http.Client{}

	apiClient, err := api.NewHTTPClient(cfg.APIBaseURL,
		api.WithHTTPClient(httpClient),
		api.WithTokenSource(store),
		api.WithUnauthorizedHandler(func(token string) {
			store.Expire(context.Background(), token)
		}),
		api.WithLogger(logger),
	)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	cache := images.New(apiClient, logger, images.WithMaxParallel(cfg.MaxParallelURLFetches))

	a := &App{
		config:  cfg,
		logger:  logger,
		db:      db,
		session: store,
		auth:    services.NewAuthService(apiClient, store),
		cache:   cache,
		http:    httpClient,
		reader:  bufio.NewReader(in),
		out:     out,
	}
	a.unsubscribe = store.Subscribe(cache.OnSessionChange)

	if err := store.Hydrate(ctx); err != nil {
		// The session starts signed out; the app is still usable.
		logger.Warn(ctx, "could not restore session", "error", err)
	}

	if store.Credential().Present() {
		a.view = viewImages
	} else {
		a.view = viewLogin
	}
	return a, nil
}

// Close stops the cache and releases the database.
func (a *App) Close() error {
	a.cache.Close()
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	return a.db.Close()
}

func (a *App) isLoggedIn() bool {
	return a.session.Credential().Present()
}

func (a *App) View() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.view
}

func (a *App) setView(v string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.view = v
}

func (a *App) println(args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintln(a.out, args...)
}

func (a *App) print(s string) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprint(a.out, s)
}

// outWriter writes to the App's output under the same lock as println.
type outWriter struct{ a *App }

func (w outWriter) Write(p []byte) (int, error) {
	w.a.outMu.Lock()
	defer w.a.outMu.Unlock()
	return w.a.out.Write(p)
}

// Navigate makes the App the navigator of its guards. It may be called
// from any goroutine, e.g. when a request comes back 401.
func (a *App) Navigate(target string) {
	switch target {
	case guard.TargetLogin:
		a.setView(viewLogin)
		a.println(ui.FormatWarning("You are not signed in. Use 'login' to continue."))
	case guard.TargetPermission:
		a.setView(viewPermission)
		a.println(ui.FormatError("Permission denied: this area is for administrators only."))
	}
}

// protect runs fn only if the session allows route. A redirect is reported
// through Navigate and returned as an error.
func (a *App) protect(route guard.Route, fn func() error) error {
	g := guard.NewGuard(a.session, route, a)
	g.Start()
	defer g.Stop()

	var err error
	if g.Render(func() { err = fn() }) {
		return err
	}

	switch g.Decision() {
	case guard.RedirectPermissionDenied:
		return ErrPermissionDenied
	case guard.Pending:
		return ErrSessionLoading
	default:
		return ErrNotSignedIn
	}
}

// reportedError marks an error whose details were already printed.
type reportedError struct{ error }

func (e reportedError) Unwrap() error { return e.error }

// fail is report for protected commands: redirects and 401s were already
// announced by the navigator. A cache result discarded because the session
// ended mid-call counts as one of those.
func (a *App) fail(err error) error {
	if errors.Is(err, ErrNotSignedIn) ||
		errors.Is(err, ErrPermissionDenied) ||
		errors.Is(err, api.ErrUnauthorized) ||
		errors.Is(err, images.ErrDiscarded) {
		return err
	}
	return a.report(err)
}

// report prints err for the user and returns it.
func (a *App) report(err error) error {
	if err == nil {
		return nil
	}
	var reported reportedError
	if errors.As(err, &reported) || errors.Is(err, context.Canceled) {
		return err
	}
	a.println(ui.FormatError(errMessage(err)))
	return err
}

func errMessage(err error) string {
	var cd *services.CooldownError
	switch {
	case errors.As(err, &cd):
		return fmt.Sprintf("Please wait %s before requesting another code.", cd.Remaining.Round(time.Second))
	case errors.Is(err, services.ErrNoPendingRegistration):
		return "No registration is waiting for verification. Use 'register' first."
	case errors.Is(err, api.ErrUnavailable):
		return "The server is unavailable. Try again later."
	case api.KindOf(err) != nil:
		return api.Message(err)
	default:
		return err.Error()
	}
}

// StartRefresher reloads the images view every interval until ctx is done.
// A zero interval disables it.
func (a *App) StartRefresher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.refreshIfViewing(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) refreshIfViewing(ctx context.Context) {
	if a.View() != viewImages || !a.isLoggedIn() {
		return
	}
	err := a.protect(routeImages, func() error { return a.cache.Refresh(ctx) })
	if err != nil && ctx.Err() == nil && !errors.Is(err, api.ErrUnauthorized) {
		a.logger.Warn(ctx, "background refresh failed", "error", err)
	}
}
