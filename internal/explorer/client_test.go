package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func etherscanHandler(t *testing.T, submitResult string, statusResults []string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var statusCalls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())

		action := r.FormValue("action")
		if action == "" {
			action = r.URL.Query().Get("action")
		}

		var resp etherscanResponse
		switch action {
		case "verifysourcecode":
			assert.Equal(t, "solidity-standard-json-input", r.FormValue("codeformat"))
			resp = etherscanResponse{Status: "1", Message: "OK", Result: submitResult}
			if submitResult == "" {
				resp = etherscanResponse{Status: "0", Message: "NOTOK", Result: "Contract source code already verified"}
			}
		case "checkverifystatus":
			n := statusCalls.Add(1)
			idx := int(n) - 1
			if idx >= len(statusResults) {
				idx = len(statusResults) - 1
			}
			result := statusResults[idx]
			status := "1"
			if result == "Fail - Unable to verify" || result == "Pending in queue" {
				status = "0"
			}
			resp = etherscanResponse{Status: status, Result: result}
		default:
			t.Fatalf("unexpected action %q", action)
		}

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(srv.Close)
	return srv, &statusCalls
}

func testSubmitRequest() SubmitRequest {
	return SubmitRequest{
		Address:         "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		ContractName:    "src/Token.sol:Token",
		CompilerVersion: "0.8.28+commit.7893614a",
		StandardJSON:    []byte(`{"language":"Solidity"}`),
		ConstructorArgs: "0x000000000000000000000000000000000000000000000000000000000000000a",
	}
}

func newTestVerifier(srv *httptest.Server) *Verifier {
	client := NewClient(srv.URL, "test-key", 1)
	opts := VerifyOptions{PollInterval: 10 * time.Millisecond, MaxAttempts: 5}
	return NewVerifier(client, opts, slog.New(slog.DiscardHandler))
}

func TestVerifier_Success(t *testing.T) {
	srv, _ := etherscanHandler(t, "guid-abc123", []string{
		"Pending in queue",
		"Pending in queue",
		"Pass - Verified",
	})

	job, err := newTestVerifier(srv).Verify(context.Background(), testSubmitRequest())
	require.NoError(t, err)

	assert.Equal(t, JobVerified, job.State)
	assert.Equal(t, "guid-abc123", job.GUID)
	assert.Equal(t, 3, job.Attempts)
}

func TestVerifier_Rejected(t *testing.T) {
	srv, _ := etherscanHandler(t, "guid-abc123", []string{
		"Pending in queue",
		"Fail - Unable to verify",
	})

	job, err := newTestVerifier(srv).Verify(context.Background(), testSubmitRequest())

	var verr *VerificationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, KindRejected, verr.Kind)
	assert.Equal(t, "guid-abc123", verr.GUID)
	assert.Equal(t, JobFailed, job.State)
}

func TestVerifier_TimedOut(t *testing.T) {
	srv, statusCalls := etherscanHandler(t, "guid-abc123", []string{"Pending in queue"})

	job, err := newTestVerifier(srv).Verify(context.Background(), testSubmitRequest())

	var verr *VerificationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, KindTimedOut, verr.Kind)
	assert.Equal(t, JobFailed, job.State)
	assert.Equal(t, int32(5), statusCalls.Load(), "polls until the attempt budget is spent")
}

func TestVerifier_AlreadyVerified(t *testing.T) {
	srv, _ := etherscanHandler(t, "", nil)

	job, err := newTestVerifier(srv).Verify(context.Background(), testSubmitRequest())
	require.NoError(t, err, "already verified is success")
	assert.Equal(t, JobVerified, job.State)
	assert.Empty(t, job.GUID)
}

func TestVerifier_ContextCancelled(t *testing.T) {
	srv, _ := etherscanHandler(t, "guid-abc123", []string{"Pending in queue"})

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()

	_, err := newTestVerifier(srv).Verify(ctx, testSubmitRequest())

	var verr *VerificationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, KindTimedOut, verr.Kind)
}

func TestClient_Submit_StripsHexPrefix(t *testing.T) {
	var gotArgs string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotArgs = r.FormValue("constructorArguements")
		json.NewEncoder(w).Encode(etherscanResponse{Status: "1", Result: "guid-1"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "key", 1)
	_, err := client.Submit(context.Background(), testSubmitRequest())
	require.NoError(t, err)
	assert.NotContains(t, gotArgs, "0x")
}

func TestClient_Submit_FailureIsSubmitError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(etherscanResponse{Status: "0", Message: "NOTOK", Result: "Invalid API Key"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "bad-key", 1)
	_, err := client.Submit(context.Background(), testSubmitRequest())

	var verr *VerificationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, KindSubmitFailed, verr.Kind)
	assert.Contains(t, verr.Detail, "Invalid API Key")
}

func TestClient_Submit_AlreadyVerified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(etherscanResponse{Status: "0", Result: "Contract source code already verified"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "key", 1)
	_, err := client.Submit(context.Background(), testSubmitRequest())
	assert.True(t, errors.Is(err, ErrAlreadyVerified))
}

func TestNormalizeCompilerVersion(t *testing.T) {
	assert.Equal(t, "v0.8.28+commit.7893614a", normalizeCompilerVersion("0.8.28+commit.7893614a"))
	assert.Equal(t, "v0.8.28", normalizeCompilerVersion("v0.8.28"))
	assert.Equal(t, "", normalizeCompilerVersion(""))
}
