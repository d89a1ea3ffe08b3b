package verify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recaptcha-gate/internal/common/config"
	"recaptcha-gate/internal/common/errors"
	"recaptcha-gate/internal/common/logger"
)

// ==========================
// Test Helpers
// ==========================

func testConfig(verifyURL string) config.RecaptchaConfig {
	return config.RecaptchaConfig{
		SiteKey:        "test-site-key",
		SecretKey:      "test-secret-key",
		ScoreThreshold: 0.5,
		VerifyURL:      verifyURL,
		Timeout:        2000,
	}
}

func newTestVerifier(t *testing.T, verifyURL string) *Verifier {
	t.Helper()
	v, err := NewVerifier(testConfig(verifyURL), logger.NewTestLogger(t))
	require.NoError(t, err)
	return v
}

// siteverifyStub serves a canned siteverify response and counts calls.
type siteverifyStub struct {
	server *httptest.Server
	calls  atomic.Int64
	form   map[string]string
}

func newSiteverifyStub(t *testing.T, response map[string]interface{}) *siteverifyStub {
	t.Helper()
	stub := &siteverifyStub{form: map[string]string{}}
	stub.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stub.calls.Add(1)
		_ = r.ParseForm()
		for key := range r.PostForm {
			stub.form[key] = r.PostForm.Get(key)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response)
	}))
	t.Cleanup(stub.server.Close)
	return stub
}

func floatPtr(f float64) *float64 { return &f }

func boolPtr(b bool) *bool { return &b }

// ==========================
// Construction Tests
// ==========================

func TestNewVerifier(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.RecaptchaConfig
		wantErr bool
		errCode errors.ErrorCode
	}{
		{
			name:    "valid configuration",
			cfg:     testConfig("https://example.test/siteverify"),
			wantErr: false,
		},
		{
			name: "missing secret is fatal at construction",
			cfg: config.RecaptchaConfig{
				SiteKey: "test-site-key",
			},
			wantErr: true,
			errCode: errors.ErrCodeMissingCredential,
		},
		{
			name: "missing site key is fatal at construction",
			cfg: config.RecaptchaConfig{
				SecretKey: "test-secret-key",
			},
			wantErr: true,
			errCode: errors.ErrCodeMissingCredential,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := NewVerifier(tt.cfg, logger.NewNoOpLogger())

			if tt.wantErr {
				require.Error(t, err)
				stdErr, ok := err.(*errors.StandardError)
				require.True(t, ok, "error should be StandardError")
				assert.Equal(t, tt.errCode, stdErr.Code)
				assert.Nil(t, v)
			} else {
				require.NoError(t, err)
				require.NotNil(t, v)
			}
		})
	}
}

func TestNewVerifier_AppliesDefaults(t *testing.T) {
	v, err := NewVerifier(config.RecaptchaConfig{
		SiteKey:   "test-site-key",
		SecretKey: "test-secret-key",
	}, logger.NewNoOpLogger())
	require.NoError(t, err)

	assert.Equal(t, config.DefaultScoreThreshold, v.cfg.ScoreThreshold)
	assert.Equal(t, config.DefaultVerifyURL, v.cfg.VerifyURL)
	assert.Equal(t, config.DefaultTimeoutMs, v.cfg.Timeout)
}

// ==========================
// Short-Circuit Tests
// ==========================

func TestVerifier_EmptyToken_NoRemoteCall(t *testing.T) {
	stub := newSiteverifyStub(t, map[string]interface{}{"success": true})
	v := newTestVerifier(t, stub.server.URL)

	for _, token := range []string{"", "   "} {
		result := v.Verify(context.Background(), Request{Token: token})

		assert.False(t, result.Decision)
		assert.Equal(t, errors.ErrCodeTokenMissing, result.ErrorCode)
	}

	assert.Equal(t, int64(0), stub.calls.Load(), "empty token must not reach the remote service")
}

// ==========================
// Wire Contract Tests
// ==========================

func TestVerifier_SendsWireContract(t *testing.T) {
	stub := newSiteverifyStub(t, map[string]interface{}{"success": true})
	v := newTestVerifier(t, stub.server.URL)

	result := v.Verify(context.Background(), Request{
		Token:      "valid-token",
		RemoteAddr: "203.0.113.7",
	})

	assert.True(t, result.Decision)
	assert.Equal(t, int64(1), stub.calls.Load())
	assert.Equal(t, "test-secret-key", stub.form["secret"])
	assert.Equal(t, "valid-token", stub.form["response"])
	assert.Equal(t, "203.0.113.7", stub.form["remoteip"])
}

// ==========================
// Policy Tests
// ==========================

func TestVerifier_Policy(t *testing.T) {
	tests := []struct {
		name     string
		response map[string]interface{}
		request  Request
		validate func(*testing.T, Result)
	}{
		{
			name:     "remote failure flag rejects regardless of score",
			response: map[string]interface{}{"success": false, "score": 0.9, "error-codes": []string{"timeout-or-duplicate"}},
			request:  Request{Token: "t"},
			validate: func(t *testing.T, r Result) {
				assert.False(t, r.Decision)
				assert.False(t, r.Succeeded)
				assert.Equal(t, errors.ErrCodePolicyRejected, r.ErrorCode)
				assert.Contains(t, r.Reason, "timeout-or-duplicate")
			},
		},
		{
			name:     "score below threshold rejects",
			response: map[string]interface{}{"success": true, "score": 0.2},
			request:  Request{Token: "t"},
			validate: func(t *testing.T, r Result) {
				assert.False(t, r.Decision)
				assert.Contains(t, r.Reason, "score 0.2 < 0.5")
			},
		},
		{
			name:     "score equal to threshold passes",
			response: map[string]interface{}{"success": true, "score": 0.5},
			request:  Request{Token: "t"},
			validate: func(t *testing.T, r Result) {
				assert.True(t, r.Decision)
			},
		},
		{
			name:     "score absent skips threshold check",
			response: map[string]interface{}{"success": true},
			request:  Request{Token: "t"},
			validate: func(t *testing.T, r Result) {
				assert.True(t, r.Decision)
				assert.Nil(t, r.Score)
			},
		},
		{
			name:     "action mismatch rejects",
			response: map[string]interface{}{"success": true, "score": 0.9, "action": "login"},
			request:  Request{Token: "t", ExpectedAction: "contact_form"},
			validate: func(t *testing.T, r Result) {
				assert.False(t, r.Decision)
				assert.Contains(t, r.Reason, `expected "contact_form"`)
				assert.Contains(t, r.Reason, `got "login"`)
			},
		},
		{
			name:     "action match passes",
			response: map[string]interface{}{"success": true, "score": 0.9, "action": "contact_form"},
			request:  Request{Token: "t", ExpectedAction: "contact_form"},
			validate: func(t *testing.T, r Result) {
				assert.True(t, r.Decision)
			},
		},
		{
			name:     "unset expected action does not block",
			response: map[string]interface{}{"success": true, "score": 0.9, "action": "whatever"},
			request:  Request{Token: "t"},
			validate: func(t *testing.T, r Result) {
				assert.True(t, r.Decision)
			},
		},
		{
			name:     "hostname mismatch rejects when origin check enabled",
			response: map[string]interface{}{"success": true, "score": 0.9, "hostname": "evil.example"},
			request:  Request{Token: "t", ServingHost: "shop.example", VerifyHostname: boolPtr(true)},
			validate: func(t *testing.T, r Result) {
				assert.False(t, r.Decision)
				assert.Contains(t, r.Reason, "hostname mismatch")
			},
		},
		{
			name:     "hostname mismatch ignored when origin check disabled",
			response: map[string]interface{}{"success": true, "score": 0.9, "hostname": "evil.example"},
			request:  Request{Token: "t", ServingHost: "shop.example"},
			validate: func(t *testing.T, r Result) {
				assert.True(t, r.Decision)
			},
		},
		{
			name:     "per-request threshold override",
			response: map[string]interface{}{"success": true, "score": 0.6},
			request:  Request{Token: "t", ScoreThreshold: floatPtr(0.8)},
			validate: func(t *testing.T, r Result) {
				assert.False(t, r.Decision)
				assert.Contains(t, r.Reason, "score 0.6 < 0.8")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := newSiteverifyStub(t, tt.response)
			v := newTestVerifier(t, stub.server.URL)

			result := v.Verify(context.Background(), tt.request)
			tt.validate(t, result)
		})
	}
}

// ==========================
// Degradation Tests
// ==========================

func TestVerifier_RemoteUnavailable(t *testing.T) {
	t.Run("http error status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		v := newTestVerifier(t, server.URL)
		result := v.Verify(context.Background(), Request{Token: "t"})

		assert.False(t, result.Decision)
		assert.Equal(t, errors.ErrCodeRemoteUnavailable, result.ErrorCode)
	})

	t.Run("malformed response body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("not json"))
		}))
		defer server.Close()

		v := newTestVerifier(t, server.URL)
		result := v.Verify(context.Background(), Request{Token: "t"})

		assert.False(t, result.Decision)
		assert.Equal(t, errors.ErrCodeRemoteUnavailable, result.ErrorCode)
	})

	t.Run("timeout degrades to rejection", func(t *testing.T) {
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-release
		}))
		defer func() {
			close(release)
			server.Close()
		}()

		cfg := testConfig(server.URL)
		cfg.Timeout = 50 // milliseconds
		v, err := NewVerifier(cfg, logger.NewTestLogger(t))
		require.NoError(t, err)

		start := time.Now()
		result := v.Verify(context.Background(), Request{Token: "t"})

		assert.False(t, result.Decision)
		assert.Equal(t, errors.ErrCodeRemoteUnavailable, result.ErrorCode)
		assert.Less(t, time.Since(start), 2*time.Second, "timeout must bound the call")
	})

	t.Run("unreachable endpoint", func(t *testing.T) {
		v := newTestVerifier(t, "http://127.0.0.1:1/siteverify")
		result := v.Verify(context.Background(), Request{Token: "t"})

		assert.False(t, result.Decision)
		assert.Equal(t, errors.ErrCodeRemoteUnavailable, result.ErrorCode)
	})
}

// ==========================
// End-to-End Scenarios
// ==========================

func TestVerifier_EndToEnd(t *testing.T) {
	t.Run("good token with matching action passes", func(t *testing.T) {
		stub := newSiteverifyStub(t, map[string]interface{}{
			"success": true,
			"score":   0.9,
			"action":  "contact_form",
		})
		v := newTestVerifier(t, stub.server.URL)

		result := v.Verify(context.Background(), Request{
			Token:          "valid-token",
			ExpectedAction: "contact_form",
		})

		assert.True(t, result.Decision)
		require.NotNil(t, result.Score)
		assert.Equal(t, 0.9, *result.Score)
		assert.Equal(t, "contact_form", result.Action)
	})

	t.Run("low score rejects with diagnostic reason", func(t *testing.T) {
		stub := newSiteverifyStub(t, map[string]interface{}{
			"success": true,
			"score":   0.2,
		})
		v := newTestVerifier(t, stub.server.URL)

		result := v.Verify(context.Background(), Request{Token: "valid-token"})

		assert.False(t, result.Decision)
		assert.Contains(t, result.Reason, "0.2")
		assert.Contains(t, result.Reason, "0.5")
	})
}
