package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/imgkeeper/internal/client/ui"
)

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Verify(ctx context.Context, code string) error
	ResendCode(ctx context.Context) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	WhoAmI(ctx context.Context) error
	List(ctx context.Context) error
	Trash(ctx context.Context) error
	Upload(ctx context.Context, paths []string) error
	Delete(ctx context.Context, id string) error
	Restore(ctx context.Context, id string) error
	URL(ctx context.Context, id string, copyToClipboard bool) error
	Download(ctx context.Context, id, dest string) error
	Admin(ctx context.Context) error
}

const (
	helpSignedOut = "Available commands: register, verify [code], resend, login, whoami, exit"
	helpSignedIn  = "Available commands: (l)ist, trash, upload <file>..., delete [id], restore [id], " +
		"url [id] [--copy], download <id> [path], admin, whoami, logout, exit"
)

// runREPL reads commands from reader until EOF or "exit"/"quit" and
// dispatches them to a. The prompt comes from promptFn and is redrawn
// before every line, so it follows view changes made by commands. The
// prompt, help and usage lines go to out.
//
// Errors returned by command handlers are ignored here; handlers report
// their own errors. This keeps the loop resilient and focused on I/O.
func runREPL(ctx context.Context, a execIface, promptFn func() string, reader *bufio.Reader, out io.Writer) {
	for {
		fmt.Fprint(out, promptFn())
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				fmt.Fprintln(out, helpSignedIn)
			} else {
				fmt.Fprintln(out, helpSignedOut)
			}

		case "register":
			_ = a.Register(ctx)

		case "verify":
			_ = a.Verify(ctx, argAt(args, 0))

		case "resend", "resend-code":
			_ = a.ResendCode(ctx)

		case "login":
			_ = a.Login(ctx)

		case "logout":
			_ = a.Logout(ctx)

		case "whoami":
			_ = a.WhoAmI(ctx)

		case "l", "list":
			_ = a.List(ctx)

		case "trash":
			_ = a.Trash(ctx)

		case "upload":
			if len(args) == 0 {
				fmt.Fprintln(out, "Usage: upload <file>...")
				continue
			}
			_ = a.Upload(ctx, args)

		case "delete", "rm":
			_ = a.Delete(ctx, argAt(args, 0))

		case "restore":
			_ = a.Restore(ctx, argAt(args, 0))

		case "url":
			id, copyToClipboard := "", false
			for _, arg := range args {
				if arg == "--copy" {
					copyToClipboard = true
				} else if id == "" {
					id = arg
				}
			}
			_ = a.URL(ctx, id, copyToClipboard)

		case "download":
			if len(args) == 0 {
				fmt.Fprintln(out, "Usage: download <id> [path]")
				continue
			}
			_ = a.Download(ctx, args[0], argAt(args, 1))

		case "admin":
			_ = a.Admin(ctx)

		case "exit", "quit":
			fmt.Fprintln(out, "Bye!")
			return

		default:
			fmt.Fprintln(out, "Unknown command:", cmd)
		}
	}
}

func argAt(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

func (a *App) prompt() string {
	return ui.Prompt(a.View(), a.userLabel())
}

// Root runs the interactive REPL until the user exits or ctx is done.
// The background refresher runs for the lifetime of the loop and the image
// cache is closed when it ends.
func (a *App) Root(ctx context.Context) {
	a.println(ui.FormatTitle("imgkeeper"), ui.FormatMuted("(type 'help' for commands)"))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer a.cache.Close()

	go a.StartRefresher(ctx, a.config.RefreshInterval)

	runREPL(ctx, a, a.prompt, a.reader, outWriter{a})
}
