package server

import (
	"context"
	"time"

	"github.com/onnwee/pinvote/pin"
	"github.com/onnwee/pinvote/vote"
)

// History is the read side of the pin history. *db.PinHistory implements it.
type History interface {
	Recent(ctx context.Context, limit int) ([]pin.Event, error)
	Ping(ctx context.Context) error
}

// Settings is the non-secret configuration echoed by /status.
type Settings struct {
	ConfirmCap       int
	PinCooldown      time.Duration
	SessionMaxAge    time.Duration
	SweepInterval    time.Duration
	ApproveEmoji     string
	RejectEmoji      string
	NotifyPinFailure bool
}

// Deps are the collaborators the handlers read from.
type Deps struct {
	Store *vote.Store
	// Connected reports the chat connection state; nil means always connected.
	Connected func() bool
	// History is nil when pin history is disabled.
	History  History
	Settings Settings
	// Now defaults to time.Now.
	Now func() time.Time
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	deps    Deps
	started time.Time
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(deps Deps) *Handlers {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Store == nil {
		deps.Store = vote.NewStore()
	}
	return &Handlers{deps: deps, started: deps.Now()}
}
