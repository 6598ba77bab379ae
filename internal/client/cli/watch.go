package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dmitrijs2005/imgkeeper/internal/client/api"
	"github.com/dmitrijs2005/imgkeeper/internal/client/session"
	"github.com/dmitrijs2005/imgkeeper/internal/client/ui"
	"github.com/dmitrijs2005/imgkeeper/internal/filex"
)

// Watch uploads image files that appear in dir until ctx is done. A file
// is uploaded once it has been quiet for the configured debounce period,
// so a file still being written goes up only when complete. Watch returns
// ErrNotSignedIn as soon as the session ends, by logout or by a rejected
// token.
func (a *App) Watch(ctx context.Context, dir string) error {
	return a.fail(a.protect(routeImages, func() error {
		return a.watch(ctx, dir)
	}))
}

func (a *App) watch(ctx context.Context, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	ended := make(chan struct{}, 1)
	unsubscribe := a.session.SubscribeWithState(func(st session.State) {
		if st.Hydrating || st.Credential.Present() {
			return
		}
		select {
		case ended <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	a.println(ui.FormatInfo("Watching " + dir + " for new images."))
	a.println(ui.FormatMuted("Press Ctrl+C to stop"))

	ready := make(chan string)
	done := make(chan struct{})
	timers := make(map[string]*time.Timer)
	defer func() {
		close(done)
		for _, t := range timers {
			t.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !filex.IsImageFile(event.Name) {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}

			name := event.Name
			if t, ok := timers[name]; ok {
				// A timer that already fired is delivering name.
				if t.Stop() {
					t.Reset(a.config.WatchDebounce)
				}
				continue
			}
			timers[name] = time.AfterFunc(a.config.WatchDebounce, func() {
				select {
				case ready <- name:
				case <-done:
				}
			})

		case name := <-ready:
			delete(timers, name)
			if info, err := os.Stat(name); err != nil || !info.Mode().IsRegular() {
				continue
			}
			if err := a.uploadFile(ctx, name); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				if errors.Is(err, api.ErrUnauthorized) {
					return err
				}
				a.println(ui.FormatError(fmt.Sprintf("%s: %s", name, errMessage(err))))
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			a.logger.Warn(ctx, "watcher error", "error", err)

		case <-ended:
			return ErrNotSignedIn

		case <-ctx.Done():
			return nil
		}
	}
}
