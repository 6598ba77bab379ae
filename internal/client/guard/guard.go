// Package guard decides whether a protected view may render.
//
// Decide is a pure function of the session state and the route's
// requirement. Guard re-runs it on every session change and navigates when
// the decision turns into a redirect. While the session is hydrating, or a
// redirect has been issued, nothing protected is rendered.
package guard

import (
	"sync"

	"github.com/dmitrijs2005/imgkeeper/internal/client/session"
)

type Decision int

const (
	Pending Decision = iota
	Allow
	RedirectLogin
	RedirectPermissionDenied
)

func (d Decision) String() string {
	switch d {
	case Pending:
		return "pending"
	case Allow:
		return "allow"
	case RedirectLogin:
		return "redirect-login"
	case RedirectPermissionDenied:
		return "redirect-permission-denied"
	default:
		return "unknown"
	}
}

// Navigation targets.
const (
	TargetLogin      = "login"
	TargetPermission = "permission"
)

func Decide(hydrating, credentialPresent, isAdmin, requireAdmin bool) Decision {
	if hydrating {
		return Pending
	}
	if !credentialPresent {
		return RedirectLogin
	}
	if requireAdmin && !isAdmin {
		return RedirectPermissionDenied
	}
	return Allow
}

// DecideState applies Decide to a session snapshot.
func DecideState(st session.State, route Route) Decision {
	return Decide(st.Hydrating, st.Credential.Present(), st.Credential.Admin.IsAdmin(), route.RequireAdmin)
}

type Route struct {
	Name         string
	RequireAdmin bool
}

// Navigator performs client-side navigation to a target view.
type Navigator interface {
	Navigate(target string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(target string)

func (f NavigatorFunc) Navigate(target string) { f(target) }

// StateSource is the part of session.Store a guard observes.
// SubscribeWithState delivers the current state before any later change.
type StateSource interface {
	SubscribeWithState(fn func(session.State)) func()
}

type Guard struct {
	src   StateSource
	route Route
	nav   Navigator

	// lifeMu serialises Start and Stop; mu guards the decision.
	lifeMu      sync.Mutex
	unsubscribe func()

	mu       sync.Mutex
	decision Decision
}

func NewGuard(src StateSource, route Route, nav Navigator) *Guard {
	return &Guard{src: src, route: route, nav: nav, decision: Pending}
}

// Start subscribes to the session and evaluates the current state.
// Calling Start on a started guard does nothing.
func (g *Guard) Start() {
	g.lifeMu.Lock()
	defer g.lifeMu.Unlock()
	if g.unsubscribe != nil {
		return
	}
	g.unsubscribe = g.src.SubscribeWithState(g.update)
}

func (g *Guard) Stop() {
	g.lifeMu.Lock()
	defer g.lifeMu.Unlock()
	if g.unsubscribe != nil {
		g.unsubscribe()
		g.unsubscribe = nil
	}
}

func (g *Guard) Decision() Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.decision
}

// Render runs fn only when the current decision is Allow.
func (g *Guard) Render(fn func()) bool {
	if g.Decision() != Allow {
		return false
	}
	fn()
	return true
}

func (g *Guard) update(st session.State) {
	next := DecideState(st, g.route)

	g.mu.Lock()
	prev := g.decision
	g.decision = next
	g.mu.Unlock()

	if next == prev {
		return
	}
	switch next {
	case RedirectLogin:
		g.nav.Navigate(TargetLogin)
	case RedirectPermissionDenied:
		g.nav.Navigate(TargetPermission)
	}
}
