package explorer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// JobState tracks a verification job through its lifecycle.
type JobState string

const (
	JobSubmitted JobState = "submitted"
	JobPending   JobState = "pending"
	JobVerified  JobState = "verified"
	JobFailed    JobState = "failed"
)

// Job is one verification submission and its progress.
type Job struct {
	GUID     string
	Contract string
	Address  string
	State    JobState
	Detail   string
	Attempts int
}

// VerifyOptions tune status polling.
type VerifyOptions struct {
	PollInterval time.Duration
	MaxAttempts  int
}

// DefaultVerifyOptions allow roughly two minutes of queue time.
func DefaultVerifyOptions() VerifyOptions {
	return VerifyOptions{
		PollInterval: 5 * time.Second,
		MaxAttempts:  24,
	}
}

// Verifier drives a verification submission to a terminal state.
type Verifier struct {
	client *Client
	opts   VerifyOptions
	logger *slog.Logger
}

// NewVerifier creates a Verifier on top of an explorer client.
func NewVerifier(client *Client, opts VerifyOptions, logger *slog.Logger) *Verifier {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultVerifyOptions().PollInterval
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultVerifyOptions().MaxAttempts
	}
	return &Verifier{client: client, opts: opts, logger: logger}
}

// Verify submits the request and polls until the explorer verifies,
// rejects, or the polling window closes. An already-verified contract is
// success. The returned Job reflects the final state even on error.
func (v *Verifier) Verify(ctx context.Context, req SubmitRequest) (*Job, error) {
	job := &Job{Contract: req.ContractName, Address: req.Address, State: JobSubmitted}

	guid, err := v.client.Submit(ctx, req)
	if errors.Is(err, ErrAlreadyVerified) {
		job.State = JobVerified
		job.Detail = "already verified"
		v.logger.Info("contract already verified", "contract", req.ContractName, "address", req.Address)
		return job, nil
	}
	if err != nil {
		job.State = JobFailed
		var verr *VerificationError
		if errors.As(err, &verr) {
			job.Detail = verr.Detail
			return job, err
		}
		job.Detail = err.Error()
		return job, fmt.Errorf("submitting verification for %s: %w", req.ContractName, err)
	}

	job.GUID = guid
	job.State = JobPending
	v.logger.Info("verification submitted",
		"contract", req.ContractName,
		"address", req.Address,
		"guid", guid)

	ticker := time.NewTicker(v.opts.PollInterval)
	defer ticker.Stop()

	for job.Attempts < v.opts.MaxAttempts {
		select {
		case <-ctx.Done():
			return job, &VerificationError{
				Kind:     KindTimedOut,
				Contract: req.ContractName,
				GUID:     guid,
				Detail:   ctx.Err().Error(),
			}
		case <-ticker.C:
		}
		job.Attempts++

		status, detail, err := v.client.CheckStatus(ctx, guid)
		if err != nil {
			// Transient; the submission is still queued on the explorer side
			v.logger.Debug("status poll failed", "guid", guid, "error", err)
			continue
		}
		job.Detail = detail

		switch status {
		case StatusVerified:
			job.State = JobVerified
			v.logger.Info("contract verified", "contract", req.ContractName, "guid", guid)
			return job, nil
		case StatusFailed:
			job.State = JobFailed
			return job, &VerificationError{
				Kind:     KindRejected,
				Contract: req.ContractName,
				GUID:     guid,
				Detail:   detail,
			}
		case StatusPending:
			v.logger.Debug("verification pending", "guid", guid, "attempt", job.Attempts)
		}
	}

	job.State = JobFailed
	return job, &VerificationError{
		Kind:     KindTimedOut,
		Contract: req.ContractName,
		GUID:     guid,
		Detail:   fmt.Sprintf("no terminal status after %d polls", job.Attempts),
	}
}
