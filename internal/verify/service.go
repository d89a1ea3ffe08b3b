package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"recaptcha-gate/internal/common/config"
	"recaptcha-gate/internal/common/errors"
	commonhttp "recaptcha-gate/internal/common/http"
	"recaptcha-gate/internal/common/logger"
	"recaptcha-gate/internal/common/metrics"
)

// Verifier calls the remote verification service and applies the local
// policy checks. It holds no mutable state and is safe for concurrent use.
type Verifier struct {
	cfg        config.RecaptchaConfig
	httpClient *commonhttp.Client
	logger     logger.Logger
}

// NewVerifier resolves the configuration immediately so a missing secret is
// a construction failure, not a first-request surprise.
func NewVerifier(cfg config.RecaptchaConfig, log logger.Logger) (*Verifier, error) {
	resolved, err := cfg.Resolve(nil)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewStructured("info", "json")
	}
	return &Verifier{
		cfg:        resolved,
		httpClient: commonhttp.NewClient(config.GetDuration(resolved.Timeout)),
		logger:     log.WithFields(map[string]interface{}{"component": "recaptcha-verifier"}),
	}, nil
}

// Verify runs the policy pipeline for one submitted token. Remote-service
// and network failures convert to a rejected Result; the only errors this
// method logs rather than returns, so the validation pipeline never sees an
// unhandled fault.
func (v *Verifier) Verify(ctx context.Context, req Request) Result {
	threshold := v.cfg.ScoreThreshold
	if req.ScoreThreshold != nil {
		threshold = *req.ScoreThreshold
	}
	verifyHostname := v.cfg.VerifyHostname
	if req.VerifyHostname != nil {
		verifyHostname = *req.VerifyHostname
	}

	action := req.ExpectedAction
	if action == "" {
		action = "unknown"
	}

	if strings.TrimSpace(req.Token) == "" {
		return v.reject(action, Result{}, errors.ErrCodeTokenMissing, "no token submitted")
	}

	resp, err := v.callRemote(ctx, req)
	if err != nil {
		v.logger.WithError(err).Error("verification service call failed", map[string]interface{}{
			"action":   req.ExpectedAction,
			"remoteip": req.RemoteAddr,
		})
		return v.reject(action, Result{}, errors.ErrCodeRemoteUnavailable, "verification service unavailable")
	}

	result := Result{
		Succeeded:  resp.Success,
		Score:      resp.Score,
		Action:     resp.Action,
		Hostname:   resp.Hostname,
		ErrorCodes: resp.ErrorCodes,
	}

	if resp.Score != nil {
		metrics.VerificationScore.WithLabelValues(action).Observe(*resp.Score)
	}

	if !resp.Success {
		reason := "token rejected by verification service"
		if len(resp.ErrorCodes) > 0 {
			reason = fmt.Sprintf("token rejected by verification service: %s", strings.Join(resp.ErrorCodes, ", "))
		}
		return v.reject(action, result, errors.ErrCodePolicyRejected, reason)
	}

	if resp.Score != nil && *resp.Score < threshold {
		reason := fmt.Sprintf("score %g < %g", *resp.Score, threshold)
		return v.reject(action, result, errors.ErrCodePolicyRejected, reason)
	}

	if req.ExpectedAction != "" && resp.Action != req.ExpectedAction {
		reason := fmt.Sprintf("action mismatch: expected %q, got %q", req.ExpectedAction, resp.Action)
		return v.reject(action, result, errors.ErrCodePolicyRejected, reason)
	}

	if verifyHostname && resp.Hostname != req.ServingHost {
		reason := fmt.Sprintf("hostname mismatch: expected %q, got %q", req.ServingHost, resp.Hostname)
		return v.reject(action, result, errors.ErrCodePolicyRejected, reason)
	}

	result.Decision = true
	metrics.VerificationsTotal.WithLabelValues(action, "pass").Inc()
	return result
}

func (v *Verifier) reject(action string, result Result, code errors.ErrorCode, reason string) Result {
	result.Decision = false
	result.Reason = reason
	result.ErrorCode = code

	metrics.VerificationsTotal.WithLabelValues(action, "reject").Inc()
	metrics.VerificationRejections.WithLabelValues(action, string(code)).Inc()

	// The specific reason stays server-side, never in the user response.
	v.logger.Warn("verification rejected", map[string]interface{}{
		"action":    action,
		"errorCode": string(code),
		"reason":    reason,
	})
	return result
}

// callRemote posts {secret, response, remoteip} form-encoded to the
// siteverify endpoint. The call is bounded by the configured timeout on top
// of whatever deadline the caller's context carries.
func (v *Verifier) callRemote(ctx context.Context, req Request) (*siteverifyResponse, error) {
	data := url.Values{}
	data.Set("secret", v.cfg.SecretKey)
	data.Set("response", req.Token)
	if req.RemoteAddr != "" {
		data.Set("remoteip", req.RemoteAddr)
	}

	start := time.Now()
	resp, err := v.httpClient.PostForm(ctx, v.cfg.VerifyURL, data)
	action := req.ExpectedAction
	if action == "" {
		action = "unknown"
	}
	metrics.VerificationDuration.WithLabelValues(action).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, errors.NewRemoteUnavailableError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewRemoteUnavailableError(err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewRemoteUnavailableError(
			fmt.Errorf("siteverify returned status %d", resp.StatusCode))
	}

	checkResponseShape(body, v.logger)

	var parsed siteverifyResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errors.NewRemoteUnavailableError(fmt.Errorf("failed to decode siteverify response: %w", err))
	}

	return &parsed, nil
}
