// Package theme holds the closed set of UI themes and the context that
// decides which one is active.
package theme

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/user/gatewaychat/internal/types"
)

// Theme is one entry of the theme registry.
type Theme struct {
	ID          string
	Label       string
	Description string
	// Preview holds the background, primary and accent colors.
	Preview [3]string
	Dark    bool
}

func (t Theme) Background() string { return t.Preview[0] }
func (t Theme) Primary() string    { return t.Preview[1] }
func (t Theme) Accent() string     { return t.Preview[2] }

const DefaultID = "midnight"

var registry = []Theme{
	{ID: "midnight", Label: "Midnight", Description: "Deep navy with indigo accents", Preview: [3]string{"#0f172a", "#6366f1", "#8b5cf6"}, Dark: true},
	{ID: "ocean", Label: "Ocean", Description: "Deep sea blues and teals", Preview: [3]string{"#02193a", "#0ea5e9", "#06b6d4"}, Dark: true},
	{ID: "forest", Label: "Forest", Description: "Rich greens and emerald tones", Preview: [3]string{"#05140a", "#22c55e", "#10b981"}, Dark: true},
	{ID: "sunset", Label: "Sunset", Description: "Warm oranges and reds", Preview: [3]string{"#1c0a05", "#f97316", "#ef4444"}, Dark: true},
	{ID: "light", Label: "Light", Description: "Clean and bright", Preview: [3]string{"#f8fafc", "#6366f1", "#8b5cf6"}},
}

// All returns every theme in display order.
func All() []Theme {
	return append([]Theme(nil), registry...)
}

// Lookup finds a theme by id.
func Lookup(id string) (Theme, bool) {
	for _, t := range registry {
		if t.ID == id {
			return t, true
		}
	}
	return Theme{}, false
}

// Valid reports whether id names a registered theme.
func Valid(id string) bool {
	_, ok := Lookup(id)
	return ok
}

// Default returns the midnight theme.
func Default() Theme {
	t, _ := Lookup(DefaultID)
	return t
}

// Store persists the locally chosen theme id.
type Store interface {
	LoadTheme() (string, error)
	SaveTheme(id string) error
}

// OrgSource provides the organization's branding settings.
type OrgSource interface {
	Settings(ctx context.Context) (*types.OrgSettings, error)
}

// Applier is called with the theme whenever it becomes active.
type Applier func(Theme)

// Branding is the organization identity shown alongside the theme.
type Branding struct {
	DisplayName string
	HasLogo     bool
	Vertical    string
}

// Context owns the active theme. It is created explicitly and passed to
// whatever renders; there is no package-level current theme.
type Context struct {
	store    Store
	org      OrgSource
	appliers []Applier

	mu       sync.RWMutex
	current  Theme
	branding Branding
}

// NewContext creates a theme context. org may be nil when no backend is
// reachable.
func NewContext(store Store, org OrgSource, appliers ...Applier) *Context {
	return &Context{
		store:    store,
		org:      org,
		appliers: appliers,
		current:  Default(),
	}
}

// Load resolves the active theme: the locally persisted choice wins, then
// the organization's configured theme, then the default. Failures to reach
// either source fall through to the next one.
func (c *Context) Load(ctx context.Context) Theme {
	chosen := ""
	if c.store != nil {
		id, err := c.store.LoadTheme()
		if err != nil {
			slog.Warn("loading saved theme", "error", err)
		} else if Valid(id) {
			chosen = id
		} else if id != "" {
			slog.Warn("ignoring unknown saved theme", "theme", id)
		}
	}

	var branding Branding
	if c.org != nil {
		settings, err := c.org.Settings(ctx)
		if err != nil {
			slog.Debug("organization settings unavailable", "error", err)
		} else {
			if chosen == "" && Valid(settings.Theme) {
				chosen = settings.Theme
			}
			branding = Branding{HasLogo: settings.HasLogo, Vertical: settings.Vertical}
			if settings.OrgDisplayName != nil {
				branding.DisplayName = *settings.OrgDisplayName
			}
		}
	}

	t := Default()
	if chosen != "" {
		t, _ = Lookup(chosen)
	}

	c.mu.Lock()
	c.branding = branding
	c.mu.Unlock()

	c.Apply(t)
	return t
}

// Apply makes t active and notifies appliers without persisting it.
func (c *Context) Apply(t Theme) {
	c.mu.Lock()
	c.current = t
	appliers := c.appliers
	c.mu.Unlock()

	for _, fn := range appliers {
		fn(t)
	}
}

// Set validates id, applies it and persists it.
func (c *Context) Set(id string) (Theme, error) {
	t, ok := Lookup(id)
	if !ok {
		return Theme{}, fmt.Errorf("unknown theme %q", id)
	}
	c.Apply(t)
	if c.store != nil {
		if err := c.store.SaveTheme(id); err != nil {
			return t, fmt.Errorf("saving theme: %w", err)
		}
	}
	return t, nil
}

// Current returns the active theme.
func (c *Context) Current() Theme {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Branding returns the organization branding seen by the last Load.
func (c *Context) Branding() Branding {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.branding
}
