// Package acquire implements the per-form token acquisition state machine:
// Idle -> Processing -> (Fresh | Failed) -> Idle. A submit attempt either
// passes through on a fresh token, starts an acquisition, or is dropped
// because one is already in flight.
package acquire

import (
	"context"
	"regexp"
	"sync"
	"time"

	"recaptcha-gate/internal/common/errors"
	"recaptcha-gate/internal/common/logger"
	"recaptcha-gate/internal/common/observability"
)

var actionSanitizer = regexp.MustCompile(`[^A-Za-z0-9_]`)

// SanitizeAction replaces every character outside [A-Za-z0-9_] with an
// underscore. The remote service rejects or mis-tracks other characters.
func SanitizeAction(name string) string {
	return actionSanitizer.ReplaceAllString(name, "_")
}

// formState is the ephemeral per-form acquisition state. It has no server
// visibility and resets implicitly when the form goes away.
type formState struct {
	mu         sync.Mutex
	form       Form
	processing bool
	tokenFresh bool
	freshAt    time.Time
}

// Controller binds forms and runs their acquisition cycles. One controller
// serves a whole page; each form's state machine is independent.
type Controller struct {
	provider TokenProvider
	siteKey  string
	logger   logger.Logger
	obs      *observability.Observability
	freshTTL time.Duration

	failureMessage string

	mu    sync.Mutex
	forms map[string]*formState
}

type Option func(*Controller)

// WithFreshTokenTTL bounds how long an injected token may sit unconsumed.
// A stale fresh flag is cleared and the next submit attempt re-acquires.
func WithFreshTokenTTL(ttl time.Duration) Option {
	return func(c *Controller) { c.freshTTL = ttl }
}

// WithObservability records acquisition attempts on the given meter.
func WithObservability(obs *observability.Observability) Option {
	return func(c *Controller) { c.obs = obs }
}

// WithFailureMessage overrides the inline notice shown when acquisition fails.
func WithFailureMessage(msg string) Option {
	return func(c *Controller) { c.failureMessage = msg }
}

func NewController(provider TokenProvider, siteKey string, log logger.Logger, opts ...Option) *Controller {
	if log == nil {
		log = logger.NewStructured("info", "json")
	}
	c := &Controller{
		provider:       provider,
		siteKey:        siteKey,
		logger:         log.WithFields(map[string]interface{}{"component": "recaptcha-acquire"}),
		freshTTL:       2 * time.Minute,
		failureMessage: "Verification is unavailable right now. Please try again.",
		forms:          make(map[string]*formState),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Bind attaches the controller to a form. A form is bound at most once even
// if discovered repeatedly, and only when it carries the marker field.
// Returns true when the form was newly bound.
func (c *Controller) Bind(form Form) bool {
	if !form.HasMarkerField() {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, handled := c.forms[form.ID()]; handled {
		return false
	}
	c.forms[form.ID()] = &formState{form: form}

	c.logger.Debug("form bound", map[string]interface{}{
		"formId": form.ID(),
		"action": form.ActionName(),
	})
	return true
}

// Discover scans a batch of forms (e.g. content inserted after initial
// load) and binds the eligible ones. Returns the number newly bound.
func (c *Controller) Discover(forms []Form) int {
	bound := 0
	for _, form := range forms {
		if c.Bind(form) {
			bound++
		}
	}
	return bound
}

// HandleSubmit processes one submit attempt for the form.
func (c *Controller) HandleSubmit(ctx context.Context, form Form) Disposition {
	c.mu.Lock()
	fs, bound := c.forms[form.ID()]
	c.mu.Unlock()
	if !bound {
		return Proceed
	}

	fs.mu.Lock()
	if fs.tokenFresh {
		fs.tokenFresh = false
		if c.freshTTL <= 0 || time.Since(fs.freshAt) <= c.freshTTL {
			// Consume the flag and let the native submit pass through.
			fs.mu.Unlock()
			return Proceed
		}
		// Token sat too long after acquisition; fall through and re-acquire.
		c.logger.Debug("fresh token expired unconsumed", map[string]interface{}{
			"formId": fs.form.ID(),
		})
	}
	if fs.processing {
		fs.mu.Unlock()
		return Ignored
	}
	fs.processing = true
	fs.mu.Unlock()

	fs.form.SetSubmitEnabled(false)
	fs.form.ShowBusy(true)

	if c.obs != nil {
		c.obs.RecordAcquisition(ctx, fs.form.ActionName())
	}

	go c.acquire(ctx, fs)
	return Deferred
}

func (c *Controller) acquire(ctx context.Context, fs *formState) {
	token, err := c.GetToken(ctx, fs.form.ActionName())

	fs.form.SetSubmitEnabled(true)
	fs.form.ShowBusy(false)

	fs.mu.Lock()
	fs.processing = false
	if err != nil {
		fs.mu.Unlock()
		c.logger.WithError(err).Error("token acquisition failed", map[string]interface{}{
			"formId": fs.form.ID(),
			"action": fs.form.ActionName(),
		})
		fs.form.ShowFailure(c.failureMessage)
		return
	}
	fs.tokenFresh = true
	fs.freshAt = time.Now()
	fs.mu.Unlock()

	fs.form.SetTokenField(token)
	fs.form.Submit()
}

// GetToken requests a token for the sanitized action name.
func (c *Controller) GetToken(ctx context.Context, action string) (string, error) {
	token, err := c.provider.Execute(ctx, c.siteKey, SanitizeAction(action))
	if err != nil {
		return "", errors.NewAcquisitionFailedError(err)
	}
	return token, nil
}

// Package-level singleton mirroring the browser global: one controller per
// page load, initialization idempotent if invoked twice.
var (
	sharedMu sync.Mutex
	shared   *Controller
)

// Init sets up the shared controller once and returns it. Subsequent calls
// return the existing instance regardless of arguments.
func Init(provider TokenProvider, siteKey string, log logger.Logger, opts ...Option) *Controller {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if shared == nil {
		shared = NewController(provider, siteKey, log, opts...)
	}
	return shared
}

// Shared returns the controller established by Init, or nil.
func Shared() *Controller {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	return shared
}
