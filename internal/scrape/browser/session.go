// Package browser is the navigation controller: one browsing session that
// opens addresses and exposes what is rendered.
package browser

import (
	"context"
	"errors"
)

var (
	ErrSessionInit = errors.New("browser session could not be started")
	ErrSessionLost = errors.New("browser session lost")
	ErrNotFound    = errors.New("element not found")
)

// Locator finds one element. By is "css" or "xpath".
type Locator struct {
	By   string
	Expr string
}

func (l Locator) String() string { return l.By + ":" + l.Expr }

// Activation is how a control gets clicked, from gentlest to most forceful.
type Activation int

const (
	ActivateDirect Activation = iota
	ActivateScripted
	ActivateSynthetic
)

// Activations lists every method in escalation order.
var Activations = []Activation{ActivateDirect, ActivateScripted, ActivateSynthetic}

func (a Activation) String() string {
	switch a {
	case ActivateDirect:
		return "direct"
	case ActivateScripted:
		return "scripted"
	case ActivateSynthetic:
		return "synthetic"
	default:
		return "unknown"
	}
}

type Session interface {
	Open(ctx context.Context, address string) error
	Location(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	// HTML returns the outer HTML of the whole rendered document.
	HTML(ctx context.Context) (string, error)
	// Scroll moves the first element matching selector down by px, or to its
	// end when px <= 0. An empty selector scrolls the window.
	Scroll(ctx context.Context, selector string, px int) error
	Visible(ctx context.Context, loc Locator) (bool, error)
	Activate(ctx context.Context, loc Locator, how Activation) error
	// Teardown is idempotent and never fails; problems are logged.
	Teardown()
}

// Factory starts a new session.
type Factory func(ctx context.Context, headless bool) (Session, error)
