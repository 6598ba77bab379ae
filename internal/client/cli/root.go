package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/imgkeeper/internal/buildinfo"
	"github.com/dmitrijs2005/imgkeeper/internal/client/config"
	"github.com/dmitrijs2005/imgkeeper/internal/client/ui"
	"github.com/dmitrijs2005/imgkeeper/internal/logging"
)

// commandLine is the state one run of the command tree shares: the raw
// arguments the config layer parses, the streams, and the App built by
// initializeApp.
type commandLine struct {
	args []string
	in   io.Reader
	out  io.Writer
	app  *App
}

// Execute runs the command line given by args (without the program name)
// on the process's standard streams.
func Execute(ctx context.Context, args []string) error {
	return execute(ctx, args, os.Stdin, os.Stdout)
}

func execute(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
	cl := &commandLine{args: args, in: in, out: out}

	root := newRootCmd(cl)
	root.SetArgs(args)
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(out)

	err := root.ExecuteContext(ctx)
	if cl.app != nil {
		if cerr := cl.app.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}

	var reported reportedError
	if err != nil && !errors.As(err, &reported) {
		fmt.Fprintln(out, ui.FormatError(err.Error()))
	}
	return err
}

func newRootCmd(cl *commandLine) *cobra.Command {
	root := &cobra.Command{
		Use:   "imgkeeper",
		Short: "imgkeeper - command-line client for the image hosting API",
		Long: ui.StyleTitle.Render("imgkeeper") + " - image hosting client\n\n" +
			"Upload, browse, trash and restore your images from the terminal.\n" +
			"Run without a command to start the interactive shell.",
		Args:              cobra.NoArgs,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: cl.initializeApp,
		RunE: func(cmd *cobra.Command, args []string) error {
			cl.app.Root(cmd.Context())
			return nil
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	// Parsed by the config package; declared here so cobra accepts them.
	pf := root.PersistentFlags()
	pf.StringP("config", "c", "", "config file (.json, .yaml or .yml)")
	pf.StringP("api-url", "a", "", "API base URL")
	pf.StringP("data-dir", "d", "", "directory holding the local session")
	pf.IntP("interval", "i", 0, "background refresh interval in seconds, 0 disables")
	pf.String("log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(
		cl.simpleCmd("register", "Create an account and get a verification code", (*App).Register),
		cl.verifyCmd(),
		cl.simpleCmd("resend-code", "Send a new verification code", (*App).ResendCode),
		cl.simpleCmd("login", "Sign in", (*App).Login),
		cl.simpleCmd("logout", "Sign out and forget the local session", (*App).Logout),
		cl.simpleCmd("whoami", "Show the signed-in user", (*App).WhoAmI),
		cl.simpleCmd("list", "List your images, newest first", (*App).List),
		cl.simpleCmd("trash", "List deleted images", (*App).Trash),
		cl.uploadCmd(),
		cl.idCmd("delete", "Move an image to the trash", (*App).Delete),
		cl.idCmd("restore", "Restore an image from the trash", (*App).Restore),
		cl.urlCmd(),
		cl.downloadCmd(),
		cl.watchCmd(),
		cl.simpleCmd("admin", "Open the administrator area", (*App).Admin),
		versionCmd(),
	)

	return root
}

// initializeApp loads the configuration and builds the App. Commands that
// do not need a session skip it.
func (cl *commandLine) initializeApp(cmd *cobra.Command, args []string) error {
	switch cmd.Name() {
	case "version", "help":
		return nil
	}

	cfg, err := config.Load(cl.args, os.Getenv)
	if err != nil {
		return err
	}

	logger := logging.NewTextLogger(os.Stderr, cfg.LogLevel)

	app, err := NewApp(cmd.Context(), cfg, logger, cl.in, cl.out)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	cl.app = app
	return nil
}

// runCtx adapts an App command to cobra. Command errors are printed by
// the App itself.
func (cl *commandLine) runCtx(cmd *cobra.Command, fn func(a *App, ctx context.Context) error) error {
	if err := fn(cl.app, cmd.Context()); err != nil {
		return reportedError{err}
	}
	return nil
}

func (cl *commandLine) simpleCmd(use, short string, fn func(*App, context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cl.runCtx(cmd, fn)
		},
	}
}

func (cl *commandLine) idCmd(use, short string, fn func(*App, context.Context, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [id]",
		Short: short,
		Long:  short + ".\nWithout an id, pick the image interactively.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cl.runCtx(cmd, func(a *App, ctx context.Context) error {
				return fn(a, ctx, argAt(args, 0))
			})
		},
	}
}

func (cl *commandLine) verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify [code]",
		Short: "Confirm the pending registration with the mailed code",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cl.runCtx(cmd, func(a *App, ctx context.Context) error {
				return a.Verify(ctx, argAt(args, 0))
			})
		},
	}
}

func (cl *commandLine) uploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>...",
		Short: "Upload image files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cl.runCtx(cmd, func(a *App, ctx context.Context) error {
				return a.Upload(ctx, args)
			})
		},
	}
}

func (cl *commandLine) urlCmd() *cobra.Command {
	var copyToClipboard bool
	cmd := &cobra.Command{
		Use:   "url [id]",
		Short: "Print a fresh signed URL for an image",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cl.runCtx(cmd, func(a *App, ctx context.Context) error {
				return a.URL(ctx, argAt(args, 0), copyToClipboard)
			})
		},
	}
	cmd.Flags().BoolVar(&copyToClipboard, "copy", false, "copy the URL to the clipboard")
	return cmd
}

func (cl *commandLine) downloadCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "download <id>",
		Short: "Save an image to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cl.runCtx(cmd, func(a *App, ctx context.Context) error {
				return a.Download(ctx, args[0], output)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "destination file (default: the image's file name)")
	return cmd
}

func (cl *commandLine) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <dir>",
		Short: "Upload images as they appear in a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cl.runCtx(cmd, func(a *App, ctx context.Context) error {
				return a.Watch(ctx, args[0])
			})
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			buildinfo.PrintBuildData(cmd.OutOrStdout())
		},
	}
}
