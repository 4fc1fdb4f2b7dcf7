// Package explorer submits contract source verification to Etherscan-style
// block explorer APIs and tracks the submission to a terminal state.
package explorer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

// etherscanResponse is the envelope every Etherscan API call returns.
// Status is "1" on success; Result carries either the payload or an error
// description.
type etherscanResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  string `json:"result"`
}

// SubmitRequest carries everything an explorer needs to verify a contract.
type SubmitRequest struct {
	Address          string // deployed contract address
	ContractName     string // fully qualified: "src/Token.sol:Token"
	CompilerVersion  string // long form: "v0.8.28+commit.7893614a"
	StandardJSON     []byte // standard JSON compiler input
	ConstructorArgs  string // ABI-encoded, hex without 0x prefix
	OptimizationUsed bool
	Runs             int
}

// Client talks to one explorer API endpoint.
type Client struct {
	baseURL string
	apiKey  string
	chainID int64
	http    *http.Client
}

// NewClient creates an explorer client. baseURL is the API root, e.g.
// "https://api.etherscan.io/api".
func NewClient(baseURL, apiKey string, chainID int64) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		chainID: chainID,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// WithHTTPClient overrides the underlying HTTP client, mainly for tests.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	return c
}

// Submit sends a verification request and returns the explorer's tracking
// GUID.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	form := url.Values{}
	form.Set("module", "contract")
	form.Set("action", "verifysourcecode")
	form.Set("apikey", c.apiKey)
	form.Set("chainid", fmt.Sprintf("%d", c.chainID))
	form.Set("codeformat", "solidity-standard-json-input")
	form.Set("contractaddress", req.Address)
	form.Set("contractname", req.ContractName)
	form.Set("compilerversion", normalizeCompilerVersion(req.CompilerVersion))
	form.Set("sourceCode", string(req.StandardJSON))
	if req.ConstructorArgs != "" {
		// Etherscan's parameter name is misspelled in their API
		form.Set("constructorArguements", strings.TrimPrefix(req.ConstructorArgs, "0x"))
	}

	resp, err := c.postForm(ctx, form)
	if err != nil {
		return "", err
	}

	if resp.Status != "1" {
		if strings.Contains(resp.Result, "already verified") || strings.Contains(resp.Result, "Already Verified") {
			return "", ErrAlreadyVerified
		}
		return "", &VerificationError{
			Kind:     KindSubmitFailed,
			Contract: req.ContractName,
			Detail:   resp.Result,
		}
	}
	return resp.Result, nil
}

// ErrAlreadyVerified is returned when the explorer already has verified
// source for the address. Callers treat it as success.
var ErrAlreadyVerified = fmt.Errorf("contract already verified")

// Status is the explorer's view of a pending submission.
type Status int

const (
	StatusPending Status = iota
	StatusVerified
	StatusFailed
)

// CheckStatus polls the verification status of a GUID.
func (c *Client) CheckStatus(ctx context.Context, guid string) (Status, string, error) {
	form := url.Values{}
	form.Set("module", "contract")
	form.Set("action", "checkverifystatus")
	form.Set("apikey", c.apiKey)
	form.Set("chainid", fmt.Sprintf("%d", c.chainID))
	form.Set("guid", guid)

	resp, err := c.postForm(ctx, form)
	if err != nil {
		return StatusPending, "", err
	}

	switch {
	case strings.Contains(resp.Result, "Pending in queue"):
		return StatusPending, resp.Result, nil
	case strings.Contains(resp.Result, "Pass - Verified"),
		strings.Contains(resp.Result, "Already Verified"):
		return StatusVerified, resp.Result, nil
	case resp.Status == "1":
		return StatusVerified, resp.Result, nil
	default:
		return StatusFailed, resp.Result, nil
	}
}

// IsVerified checks whether the explorer already has source for an address.
func (c *Client) IsVerified(ctx context.Context, address string) (bool, error) {
	q := url.Values{}
	q.Set("module", "contract")
	q.Set("action", "getabi")
	q.Set("apikey", c.apiKey)
	q.Set("chainid", fmt.Sprintf("%d", c.chainID))
	q.Set("address", address)

	body, err := c.get(ctx, q)
	if err != nil {
		return false, err
	}

	var resp etherscanResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, fmt.Errorf("parsing explorer response: %w", err)
	}
	return resp.Status == "1", nil
}

func (c *Client) postForm(ctx context.Context, form url.Values) (*etherscanResponse, error) {
	return retry.DoWithData(func() (*etherscanResponse, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		httpResp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("calling explorer API: %w", err)
		}
		defer httpResp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
		if err != nil {
			return nil, fmt.Errorf("reading explorer response: %w", err)
		}
		if httpResp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("explorer API returned %d: %s", httpResp.StatusCode, strings.TrimSpace(string(body)))
		}

		var resp etherscanResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("parsing explorer response: %w", err)
		}
		// Etherscan rate limits surface as status 0 with an NOTOK message
		if resp.Status == "0" && strings.Contains(resp.Result, "rate limit") {
			return nil, fmt.Errorf("explorer rate limited: %s", resp.Result)
		}
		return &resp, nil
	},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(10*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}

func (c *Client) get(ctx context.Context, q url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling explorer API: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("explorer API returned %d", httpResp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
}

// normalizeCompilerVersion ensures the "v" prefix Etherscan requires
func normalizeCompilerVersion(version string) string {
	if version == "" || strings.HasPrefix(version, "v") {
		return version
	}
	return "v" + version
}
