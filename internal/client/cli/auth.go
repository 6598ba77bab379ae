package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/imgkeeper/internal/client/models"
	"github.com/dmitrijs2005/imgkeeper/internal/client/ui"
	"github.com/dmitrijs2005/imgkeeper/internal/common"
)

const clockLayout = "15:04:05"

// Register prompts for a username, e-mail and password and creates a
// pending account. On success the view switches to verify.
func (a *App) Register(ctx context.Context) error {
	a.setView(viewRegister)

	username, err := getSimpleText(a.reader, "Enter username", a.out)
	if err != nil {
		return err
	}
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.auth.Register(ctx, username, email, string(password)); err != nil {
		return a.report(err)
	}

	a.setView(viewVerify)
	a.println(ui.FormatSuccess(fmt.Sprintf("Verification code sent to %s. It expires at %s.",
		email, a.auth.CodeExpiresAt().Local().Format(clockLayout))))
	return nil
}

// Verify confirms the pending registration. An empty code is prompted for.
func (a *App) Verify(ctx context.Context, code string) error {
	a.setView(viewVerify)

	if code == "" {
		var err error
		if code, err = getSimpleText(a.reader, "Enter verification code", a.out); err != nil {
			return err
		}
	}

	if err := a.auth.Verify(ctx, code); err != nil {
		return a.report(err)
	}

	a.setView(viewLogin)
	a.println(ui.FormatSuccess("Account verified. You can now log in."))
	return nil
}

func (a *App) ResendCode(ctx context.Context) error {
	if err := a.auth.ResendCode(ctx); err != nil {
		return a.report(err)
	}
	a.println(ui.FormatSuccess(fmt.Sprintf("A new code was sent. It expires at %s.",
		a.auth.CodeExpiresAt().Local().Format(clockLayout))))
	return nil
}

// Login prompts for credentials, stores the resulting session and opens
// the images view.
func (a *App) Login(ctx context.Context) error {
	a.setView(viewLogin)

	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	cred, err := a.auth.Login(ctx, email, string(password))
	if err != nil {
		return a.report(err)
	}

	a.setView(viewImages)
	msg := "Signed in."
	if cred.Admin.IsAdmin() {
		msg = "Signed in as administrator."
	}
	a.println(ui.FormatSuccess(msg))
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	if err := a.auth.Logout(ctx); err != nil {
		return a.report(err)
	}
	a.setView(viewLogin)
	a.println(ui.FormatSuccess("Signed out."))
	return nil
}

// WhoAmI prints what the held token says about the user. The token is
// not verified locally.
func (a *App) WhoAmI(ctx context.Context) error {
	cred := a.session.Credential()
	if !cred.Present() {
		a.println(ui.FormatMuted("Not signed in."))
		return nil
	}

	subject, expires := "unknown", "unknown"
	if claims, ok := a.session.Claims(); ok {
		if claims.Subject != "" {
			subject = claims.Subject
		}
		if !claims.ExpiresAt.IsZero() {
			expires = claims.ExpiresAt.Local().Format(time.DateTime)
		}
	}

	admin := "unknown"
	switch cred.Admin {
	case models.AdminYes:
		admin = "yes"
	case models.AdminNo:
		admin = "no"
	}

	a.println(ui.FormatBold("User:"), subject)
	a.println(ui.FormatBold("Administrator:"), admin)
	a.println(ui.FormatBold("Token expires:"), expires)
	return nil
}

// userLabel is the prompt's user part: the token subject, if readable.
func (a *App) userLabel() string {
	if claims, ok := a.session.Claims(); ok {
		return claims.Subject
	}
	return ""
}
