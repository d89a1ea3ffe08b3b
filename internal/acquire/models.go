package acquire

import "context"

// TokenProvider is the challenge-script execute capability: resolve a fresh
// token for a site key and action name.
type TokenProvider interface {
	Execute(ctx context.Context, siteKey, action string) (string, error)
}

// Form abstracts one submittable form in the hosting environment. The
// controller drives it through the acquisition cycle; the browser-side
// artifact in internal/render/assets mirrors the same protocol against the
// real DOM.
type Form interface {
	ID() string
	ActionName() string
	HasMarkerField() bool
	SetTokenField(token string)
	SetSubmitEnabled(enabled bool)
	ShowBusy(busy bool)
	ShowFailure(message string)
	Submit()
}

// Disposition is the controller's answer to one submit attempt.
type Disposition int

const (
	// Proceed lets the native submission continue untouched. Returned for
	// unbound forms and when a fresh token was just injected.
	Proceed Disposition = iota

	// Deferred means the native submission was cancelled and an acquisition
	// cycle started; the form is resubmitted once the token arrives.
	Deferred

	// Ignored means an acquisition is already in flight for this form and
	// the attempt was dropped, not queued.
	Ignored
)

func (d Disposition) String() string {
	switch d {
	case Proceed:
		return "proceed"
	case Deferred:
		return "deferred"
	case Ignored:
		return "ignored"
	default:
		return "unknown"
	}
}
