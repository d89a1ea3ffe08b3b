// Package gate adapts the verifier for use inside a generic field-validation
// pipeline: read the submitted token from the field under validation, verify
// it, and attach a user-facing error to the field on rejection.
package gate

import (
	"context"
	"time"

	"recaptcha-gate/internal/common/errors"
	"recaptcha-gate/internal/common/logger"
	"recaptcha-gate/internal/replay"
	"recaptcha-gate/internal/verify"
)

// FieldBinder is the narrow interface consumed from the form framework.
// The gate depends on nothing else from it.
type FieldBinder interface {
	FieldValue(model interface{}, attribute string) string
	SetFieldError(model interface{}, attribute, message string)
}

// TokenVerifier abstracts the verification client.
type TokenVerifier interface {
	Verify(ctx context.Context, req verify.Request) verify.Result
}

// Messages are the user-facing strings. The missing-token case gets its own
// message; every other rejection shares the generic one so the specific
// policy reason never aids a bypass attempt.
type Messages struct {
	Missing string
	Failed  string
}

func DefaultMessages() Messages {
	return Messages{
		Missing: "Verification token is missing. Please enable JavaScript and try again.",
		Failed:  "We could not verify your submission. Please try again.",
	}
}

// Gate runs one verification per validation attempt.
type Gate struct {
	verifier  TokenVerifier
	store     replay.Store
	replayTTL time.Duration
	messages  Messages
	logger    logger.Logger
}

type Option func(*Gate)

// WithMessages overrides the user-facing messages.
func WithMessages(m Messages) Option {
	return func(g *Gate) {
		if m.Missing != "" {
			g.messages.Missing = m.Missing
		}
		if m.Failed != "" {
			g.messages.Failed = m.Failed
		}
	}
}

// WithReplayGuard enables the single-use token check.
func WithReplayGuard(store replay.Store, ttl time.Duration) Option {
	return func(g *Gate) {
		g.store = store
		g.replayTTL = ttl
	}
}

func New(verifier TokenVerifier, log logger.Logger, opts ...Option) *Gate {
	if log == nil {
		log = logger.NewStructured("info", "json")
	}
	g := &Gate{
		verifier: verifier,
		messages: DefaultMessages(),
		logger:   log.WithFields(map[string]interface{}{"component": "recaptcha-gate"}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Validate reads the token from the field under validation and gates on the
// verification decision. It returns true when the submission may proceed;
// on false a message has been attached to the field.
func (g *Gate) Validate(ctx context.Context, binder FieldBinder, model interface{}, attribute string, req verify.Request) bool {
	req.Token = binder.FieldValue(model, attribute)

	result := g.verifier.Verify(ctx, req)
	if !result.Decision {
		if result.ErrorCode == errors.ErrCodeTokenMissing {
			binder.SetFieldError(model, attribute, g.messages.Missing)
		} else {
			binder.SetFieldError(model, attribute, g.messages.Failed)
		}
		return false
	}

	if g.store != nil {
		fresh, err := g.store.MarkUsed(ctx, req.Token, g.replayTTL)
		if err != nil {
			// Degrade open: the remote service already enforces token
			// expiry, so replay-store downtime must not block submissions.
			g.logger.WithError(err).Warn("replay store unavailable, skipping single-use check", map[string]interface{}{
				"action": req.ExpectedAction,
			})
			return true
		}
		if !fresh {
			replayErr := errors.NewTokenReplayedError()
			g.logger.Warn(replayErr.Message, map[string]interface{}{
				"action":    req.ExpectedAction,
				"errorCode": string(replayErr.Code),
			})
			binder.SetFieldError(model, attribute, g.messages.Failed)
			return false
		}
	}

	return true
}
