package reagent

import (
	"bytes"
	"compress/gzip"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// CheckpointReason tags why a checkpoint was taken.
type CheckpointReason string

const (
	// CheckpointAfterLLM is issued after a model turn that requested tools.
	CheckpointAfterLLM CheckpointReason = "after_llm"
	// CheckpointAfterTools is issued after a completed tool round.
	CheckpointAfterTools CheckpointReason = "after_tools"
	// CheckpointTerminal is issued on completed and failed transitions.
	CheckpointTerminal CheckpointReason = "terminal"
	// CheckpointCancelled is issued on cancellation.
	CheckpointCancelled CheckpointReason = "cancelled"
)

// Checkpoint is a decoded token: a point-in-time run State plus issuance
// metadata.
type Checkpoint struct {
	State    *State
	Reason   CheckpointReason
	IssuedAt time.Time
	TTL      time.Duration
}

// Token wire format:
//
//	v1.<base64url(payload)>.<base64url(hmac)>     uncompressed
//	v1z.<base64url(gzip(payload))>.<base64url(hmac)>
//
// The HMAC-SHA256 covers the plaintext payload bytes, which embed the config
// fingerprint; the compression transform is reversed before verification.
// The fingerprint is compared separately so a structurally valid token signed
// with the right secret but produced by an incompatible Config fails with the
// narrow fingerprint error rather than a generic signature failure.
const (
	tokenVersionPlain = "v1"
	tokenVersionGzip  = "v1z"
)

// tokenPayload is the serialized envelope content.
type tokenPayload struct {
	State             *State           `json:"state"`
	ConfigFingerprint string           `json:"config_fingerprint"`
	IssuedAt          int64            `json:"issued_at"` // unix ms
	TTLMS             int64            `json:"ttl_ms"`
	Reason            CheckpointReason `json:"reason"`
}

// IssueToken encodes a signed checkpoint of state under cfg's token policy.
// The state is deep-copied before serialization; the token is a pure
// function of (state, cfg, reason, now).
func IssueToken(state *State, cfg *Config, reason CheckpointReason) (string, error) {
	return issueTokenAt(state, cfg, reason, time.Now())
}

func issueTokenAt(state *State, cfg *Config, reason CheckpointReason, now time.Time) (string, error) {
	payload := tokenPayload{
		State:             state.Clone(),
		ConfigFingerprint: cfg.Fingerprint(),
		IssuedAt:          now.UnixMilli(),
		TTLMS:             cfg.TokenPolicy.TTL.Milliseconds(),
		Reason:            reason,
	}
	plain, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("token: marshal payload: %w", err)
	}

	sig := signPayload(plain, cfg.TokenPolicy.SigningSecret)

	version := tokenVersionPlain
	body := plain
	if cfg.TokenPolicy.Compress {
		version = tokenVersionGzip
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(plain); err != nil {
			return "", fmt.Errorf("token: compress payload: %w", err)
		}
		if err := zw.Close(); err != nil {
			return "", fmt.Errorf("token: compress payload: %w", err)
		}
		body = buf.Bytes()
	}

	enc := base64.RawURLEncoding
	return version + "." + enc.EncodeToString(body) + "." + enc.EncodeToString(sig), nil
}

// DecodeToken verifies and decodes a checkpoint token against cfg. It fails
// closed with one of the narrow ErrToken* sentinels: malformed envelope,
// signature mismatch, expired validity window, or a config fingerprint that
// does not match cfg.
func DecodeToken(token string, cfg *Config) (*Checkpoint, error) {
	return decodeTokenAt(token, cfg, time.Now())
}

func decodeTokenAt(token string, cfg *Config, now time.Time) (*Checkpoint, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: expected 3 segments, got %d", ErrTokenMalformed, len(parts))
	}
	version := parts[0]
	if version != tokenVersionPlain && version != tokenVersionGzip {
		return nil, fmt.Errorf("%w: unknown version %q", ErrTokenMalformed, version)
	}

	enc := base64.RawURLEncoding
	body, err := enc.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: payload segment: %v", ErrTokenMalformed, err)
	}
	sig, err := enc.DecodeString(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: signature segment: %v", ErrTokenMalformed, err)
	}

	plain := body
	if version == tokenVersionGzip {
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("%w: gzip payload: %v", ErrTokenMalformed, err)
		}
		plain, err = io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("%w: gzip payload: %v", ErrTokenMalformed, err)
		}
	}

	if !hmac.Equal(sig, signPayload(plain, cfg.TokenPolicy.SigningSecret)) {
		return nil, ErrTokenSignature
	}

	var payload tokenPayload
	if err := json.Unmarshal(plain, &payload); err != nil {
		return nil, fmt.Errorf("%w: payload json: %v", ErrTokenMalformed, err)
	}
	if payload.State == nil {
		return nil, fmt.Errorf("%w: missing state", ErrTokenMalformed)
	}
	// Right secret, different parameters (model swap, catalog change).
	if payload.ConfigFingerprint != cfg.Fingerprint() {
		return nil, ErrTokenFingerprint
	}

	issued := time.UnixMilli(payload.IssuedAt)
	ttl := time.Duration(payload.TTLMS) * time.Millisecond
	if ttl > 0 && now.After(issued.Add(ttl)) {
		return nil, fmt.Errorf("%w: issued %s, ttl %s", ErrTokenExpired, issued.Format(time.RFC3339), ttl)
	}

	return &Checkpoint{State: payload.State, Reason: payload.Reason, IssuedAt: issued, TTL: ttl}, nil
}

// Cancel decodes token, forces the state to cancelled with the given reason,
// and re-issues a terminal token. The run does not need to be live; this is
// how a suspended run is cancelled out-of-process.
func Cancel(token string, cfg *Config, reason string) (string, error) {
	cp, err := DecodeToken(token, cfg)
	if err != nil {
		return "", err
	}
	st := cp.State
	st.Status = StatusCancelled
	st.TerminationReason = TerminationCancelled
	st.Result = cancelResult(reason)
	st.PendingToolCalls = nil
	return IssueToken(st, cfg, CheckpointCancelled)
}

func cancelResult(reason string) string {
	if reason == "" {
		reason = "unspecified"
	}
	return "run cancelled: " + reason
}

// signPayload computes HMAC-SHA256 over the plaintext payload bytes, keyed
// by the signing secret. The payload embeds the config fingerprint, so the
// signature covers it transitively.
func signPayload(plain []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(plain)
	return mac.Sum(nil)
}
