package reagent

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

func snapshotState() *State {
	st := newState("run-1", "req-1", "be helpful", "what is 2+2?")
	st.Thread.AppendAssistant("", []ToolCall{{ID: "c1", Name: "add", Args: json.RawMessage(`{"a":2,"b":2}`)}}, "")
	st.Status = StatusAwaitingTools
	st.PendingToolCalls = []PendingToolCall{{ID: "c1", Name: "add", Args: json.RawMessage(`{"a":2,"b":2}`)}}
	st.Usage = Usage{InputTokens: 12, OutputTokens: 7, TotalTokens: 19}
	st.Iteration = 1
	st.NextSeq = 5
	return st
}

func TestTokenRoundTrip(t *testing.T) {
	cfg := testConfig(&mockProvider{}, echoTool("add"))
	st := snapshotState()

	token, err := IssueToken(st, cfg, CheckpointAfterLLM)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if !strings.HasPrefix(token, "v1.") {
		t.Fatalf("token = %q, want v1. prefix", token)
	}

	cp, err := DecodeToken(token, cfg)
	if err != nil {
		t.Fatalf("DecodeToken: %v", err)
	}
	if cp.Reason != CheckpointAfterLLM {
		t.Errorf("Reason = %q", cp.Reason)
	}
	if cp.TTL != cfg.TokenPolicy.TTL {
		t.Errorf("TTL = %s, want %s", cp.TTL, cfg.TokenPolicy.TTL)
	}
	if !reflect.DeepEqual(cp.State, st) {
		t.Errorf("decoded state differs:\n got %+v\nwant %+v", cp.State, st)
	}
}

func TestTokenCompressedRoundTrip(t *testing.T) {
	in := ConfigInput{
		Model:       "test-model",
		Provider:    &mockProvider{},
		Tools:       []Tool{echoTool("add")},
		TokenPolicy: TokenPolicy{SigningSecret: "test-secret", Compress: true},
	}
	cfg, err := BuildConfig(in)
	if err != nil {
		t.Fatalf("BuildConfig: %v", err)
	}

	st := snapshotState()
	token, err := IssueToken(st, cfg, CheckpointAfterTools)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if !strings.HasPrefix(token, "v1z.") {
		t.Fatalf("token = %q, want v1z. prefix", token)
	}

	cp, err := DecodeToken(token, cfg)
	if err != nil {
		t.Fatalf("DecodeToken: %v", err)
	}
	if !reflect.DeepEqual(cp.State, st) {
		t.Error("compressed round trip lost state")
	}
}

func TestTokenSnapshotDoesNotAliasState(t *testing.T) {
	cfg := testConfig(&mockProvider{})
	st := snapshotState()
	token, err := IssueToken(st, cfg, CheckpointAfterLLM)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	// Mutations after issuance must not be visible in the token.
	st.Thread.AppendUser("later")
	st.Iteration = 99

	cp, err := DecodeToken(token, cfg)
	if err != nil {
		t.Fatalf("DecodeToken: %v", err)
	}
	if cp.State.Iteration != 1 || len(cp.State.Thread.Entries) != 3 {
		t.Errorf("token reflects post-issuance mutation: iter=%d entries=%d",
			cp.State.Iteration, len(cp.State.Thread.Entries))
	}
}

func TestDecodeTokenMalformed(t *testing.T) {
	cfg := testConfig(&mockProvider{})
	for _, token := range []string{
		"",
		"v1",
		"v1.onlytwo",
		"v9.abc.def",
		"v1.%%%.def",
		"v1.abc.%%%",
	} {
		_, err := DecodeToken(token, cfg)
		if !errors.Is(err, ErrTokenMalformed) {
			t.Errorf("DecodeToken(%q) = %v, want ErrTokenMalformed", token, err)
		}
		if !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("DecodeToken(%q) does not match ErrTokenInvalid", token)
		}
	}
}

func TestDecodeTokenTampered(t *testing.T) {
	cfg := testConfig(&mockProvider{})
	token, err := IssueToken(snapshotState(), cfg, CheckpointAfterLLM)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	parts := strings.Split(token, ".")
	body, _ := base64.RawURLEncoding.DecodeString(parts[1])
	tampered := strings.Replace(string(body), `"run-1"`, `"run-2"`, 1)
	parts[1] = base64.RawURLEncoding.EncodeToString([]byte(tampered))

	_, err = DecodeToken(strings.Join(parts, "."), cfg)
	if !errors.Is(err, ErrTokenSignature) {
		t.Errorf("err = %v, want ErrTokenSignature", err)
	}
}

func TestDecodeTokenWrongSecret(t *testing.T) {
	cfg := testConfig(&mockProvider{})
	token, err := IssueToken(snapshotState(), cfg, CheckpointAfterLLM)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	other, err := BuildConfig(ConfigInput{
		Model:       "test-model",
		Provider:    &mockProvider{},
		TokenPolicy: TokenPolicy{SigningSecret: "different"},
	})
	if err != nil {
		t.Fatalf("BuildConfig: %v", err)
	}
	if _, err := DecodeToken(token, other); !errors.Is(err, ErrTokenSignature) {
		t.Errorf("err = %v, want ErrTokenSignature", err)
	}
}

func TestDecodeTokenFingerprintMismatch(t *testing.T) {
	cfg := testConfig(&mockProvider{}, echoTool("add"))
	token, err := IssueToken(snapshotState(), cfg, CheckpointAfterLLM)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	// Same secret, different catalog.
	swapped := testConfig(&mockProvider{}, echoTool("subtract"))
	_, err = DecodeToken(token, swapped)
	if !errors.Is(err, ErrTokenFingerprint) {
		t.Errorf("err = %v, want ErrTokenFingerprint", err)
	}
	if !errors.Is(err, ErrTokenInvalid) {
		t.Error("fingerprint error does not match ErrTokenInvalid")
	}
}

func TestDecodeTokenExpired(t *testing.T) {
	cfg := testConfig(&mockProvider{})
	issued := time.Now().Add(-2 * cfg.TokenPolicy.TTL)
	token, err := issueTokenAt(snapshotState(), cfg, CheckpointAfterLLM, issued)
	if err != nil {
		t.Fatalf("issueTokenAt: %v", err)
	}

	_, err = DecodeToken(token, cfg)
	if !errors.Is(err, ErrTokenExpired) {
		t.Errorf("err = %v, want ErrTokenExpired", err)
	}

	// Still valid inside the window.
	if _, err := decodeTokenAt(token, cfg, issued.Add(cfg.TokenPolicy.TTL/2)); err != nil {
		t.Errorf("decode inside TTL window: %v", err)
	}
}

func TestCancelToken(t *testing.T) {
	cfg := testConfig(&mockProvider{}, echoTool("add"))
	token, err := IssueToken(snapshotState(), cfg, CheckpointAfterLLM)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	cancelled, err := Cancel(token, cfg, "operator request")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	cp, err := DecodeToken(cancelled, cfg)
	if err != nil {
		t.Fatalf("DecodeToken: %v", err)
	}
	if cp.Reason != CheckpointCancelled {
		t.Errorf("Reason = %q", cp.Reason)
	}
	st := cp.State
	if st.Status != StatusCancelled || st.TerminationReason != TerminationCancelled {
		t.Errorf("state = %s/%s", st.Status, st.TerminationReason)
	}
	if st.Result != "run cancelled: operator request" {
		t.Errorf("Result = %q", st.Result)
	}
	if st.PendingToolCalls != nil {
		t.Errorf("pending calls survive cancellation: %+v", st.PendingToolCalls)
	}

	// Empty reason gets a placeholder.
	cancelled, err = Cancel(token, cfg, "")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	cp, err = DecodeToken(cancelled, cfg)
	if err != nil {
		t.Fatalf("DecodeToken: %v", err)
	}
	if cp.State.Result != "run cancelled: unspecified" {
		t.Errorf("Result = %q", cp.State.Result)
	}
}
