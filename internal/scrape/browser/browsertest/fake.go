// Package browsertest provides an in-memory browser.Session for tests.
package browsertest

import (
	"context"
	"sync"

	"mapsharvest-engine/internal/scrape/browser"
)

// Page is what the fake renders for one address.
type Page struct {
	Title string
	HTML  string
	// Redirect makes Open land on this address instead.
	Redirect string
	// Grow, when set, renders the document after the given number of scrolls.
	Grow func(scrolls int) string
}

type ActivationCall struct {
	Locator browser.Locator
	How     browser.Activation
}

type Fake struct {
	mu sync.Mutex

	Pages    map[string]*Page
	Fallback *Page
	OpenErr  map[string]error

	// VisibleExprs marks locator expressions as displayed.
	VisibleExprs map[string]bool
	// ActivateFunc decides each activation attempt; nil means nothing is clickable.
	ActivateFunc func(f *Fake, loc browser.Locator, how browser.Activation) error
	// OnOpen runs after each successful Open.
	OnOpen func(address string)
	// Lost makes every call fail as if the browser died.
	Lost bool
	// HTMLErrs is consumed one entry per HTML call; a nil entry succeeds.
	HTMLErrs []error

	location string
	scrolls  int

	Opened      []string
	ScrollCalls []int
	Activations []ActivationCall
	Teardowns   int
}

func New() *Fake {
	return &Fake{Pages: map[string]*Page{}, VisibleExprs: map[string]bool{}}
}

// Land moves the fake to address without recording an Open.
func (f *Fake) Land(address string) {
	f.location = address
	f.scrolls = 0
}

func (f *Fake) page() *Page {
	if p, ok := f.Pages[f.location]; ok {
		return p
	}
	if f.Fallback != nil {
		return f.Fallback
	}
	return &Page{}
}

func (f *Fake) Open(ctx context.Context, address string) error {
	f.mu.Lock()
	if f.Lost {
		f.mu.Unlock()
		return browser.ErrSessionLost
	}
	if err := ctx.Err(); err != nil {
		f.mu.Unlock()
		return err
	}
	f.Opened = append(f.Opened, address)
	if err := f.OpenErr[address]; err != nil {
		f.mu.Unlock()
		return err
	}
	f.Land(address)
	if p, ok := f.Pages[address]; ok && p.Redirect != "" {
		f.Land(p.Redirect)
	}
	hook := f.OnOpen
	f.mu.Unlock()

	if hook != nil {
		hook(address)
	}
	return nil
}

func (f *Fake) Location(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Lost {
		return "", browser.ErrSessionLost
	}
	return f.location, nil
}

func (f *Fake) Title(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Lost {
		return "", browser.ErrSessionLost
	}
	return f.page().Title, nil
}

func (f *Fake) HTML(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Lost {
		return "", browser.ErrSessionLost
	}
	if len(f.HTMLErrs) > 0 {
		err := f.HTMLErrs[0]
		f.HTMLErrs = f.HTMLErrs[1:]
		if err != nil {
			return "", err
		}
	}
	p := f.page()
	if p.Grow != nil {
		return p.Grow(f.scrolls), nil
	}
	return p.HTML, nil
}

func (f *Fake) Scroll(ctx context.Context, selector string, px int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Lost {
		return browser.ErrSessionLost
	}
	f.scrolls++
	f.ScrollCalls = append(f.ScrollCalls, px)
	return nil
}

func (f *Fake) Visible(ctx context.Context, loc browser.Locator) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Lost {
		return false, browser.ErrSessionLost
	}
	return f.VisibleExprs[loc.Expr], nil
}

func (f *Fake) Activate(ctx context.Context, loc browser.Locator, how browser.Activation) error {
	f.mu.Lock()
	f.Activations = append(f.Activations, ActivationCall{Locator: loc, How: how})
	fn := f.ActivateFunc
	f.mu.Unlock()
	if fn == nil {
		return browser.ErrNotFound
	}
	return fn(f, loc, how)
}

func (f *Fake) Teardown() {
	f.mu.Lock()
	f.Teardowns++
	f.mu.Unlock()
}

// Scrolls returns how many times Scroll was called since the last Open.
func (f *Fake) Scrolls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scrolls
}

// Factory returns a browser.Factory that always hands out f.
func (f *Fake) Factory() browser.Factory {
	return func(ctx context.Context, headless bool) (browser.Session, error) {
		return f, nil
	}
}
