// Package cli provides the imgkeeper command-line client.
//
// It wires configuration, the local session database, the HTTP API client,
// the image cache and the auth flows, and exposes them two ways: one-shot
// cobra sub-commands and an interactive REPL.
//
// The REPL keeps a current view (login, register, verify, images, trash,
// admin, permission) and shows it in the prompt. Protected commands run
// behind a guard.Guard; when the session ends mid-command, the App acts as
// the guard's navigator and switches the view to login. While the images
// view is active a background refresher reloads the list periodically.
//
// Key commands:
//   - register / verify / resend-code / login / logout / whoami
//   - list / trash / upload / delete / restore
//   - url (optionally copied to the clipboard) / download
//   - watch: upload images as they appear in a folder
//   - admin: administrator-only view
//
// See Execute for the cobra entry point and App.Root for the REPL.
package cli
