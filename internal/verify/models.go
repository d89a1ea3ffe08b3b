package verify

import (
	"recaptcha-gate/internal/common/errors"
)

// Request describes one validation attempt. Optional fields override the
// verifier's shared configuration for this call only.
type Request struct {
	Token          string
	ExpectedAction string
	RemoteAddr     string
	ServingHost    string

	ScoreThreshold *float64
	VerifyHostname *bool
}

// Result is produced fresh per call and never cached or persisted. Decision
// is the final pass/fail after local policy checks; Succeeded only says the
// remote service accepted the token as structurally valid and unexpired.
type Result struct {
	Succeeded  bool
	Score      *float64
	Action     string
	Hostname   string
	ErrorCodes []string

	Decision  bool
	Reason    string
	ErrorCode errors.ErrorCode
}

// siteverifyResponse mirrors the wire contract of the remote verification
// endpoint exactly. Score is only present for v3 keys.
type siteverifyResponse struct {
	Success     bool     `json:"success"`
	Score       *float64 `json:"score"`
	Action      string   `json:"action"`
	Hostname    string   `json:"hostname"`
	ChallengeTS string   `json:"challenge_ts"`
	ErrorCodes  []string `json:"error-codes"`
}
