package services

import (
	"bytes"
	"context"
	"encoding/json"
	"entryready/internal/apperrors"
	"entryready/internal/logger"
	. "entryready/internal/models"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DACSubmitter hands a filled arrival card to the destination's DAC system.
// A terminal rejection is a result with Status failed, not an error; errors
// mean the outcome is unknown or the service could not be reached.
type DACSubmitter interface {
	Submit(ctx context.Context, request SubmissionRequest) (SubmissionResult, error)
}

type HTTPDACSubmitter struct {
	baseURL     string
	client      *http.Client
	maxAttempts int
	log         logger.Logger
}

func NewHTTPDACSubmitter(baseURL string, timeout time.Duration, maxAttempts int) *HTTPDACSubmitter {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &HTTPDACSubmitter{
		baseURL:     strings.TrimRight(baseURL, "/"),
		client:      &http.Client{Timeout: timeout},
		maxAttempts: maxAttempts,
		log:         logger.New("HTTPDACSubmitter"),
	}
}

type dacErrorResponse struct {
	Message string `json:"message"`
}

// Submit posts the request once it reaches the service. Only failures to
// connect are retried, since nothing was delivered; anything after delivery
// surfaces immediately so a card is never submitted twice.
func (s *HTTPDACSubmitter) Submit(ctx context.Context, request SubmissionRequest) (SubmissionResult, error) {
	log := s.log.Function("Submit")

	body, err := json.Marshal(request)
	if err != nil {
		return SubmissionResult{}, log.Err("failed to encode submission", err, "entryInfoID", request.EntryInfoID)
	}

	url := fmt.Sprintf("%s/cards/%s/submissions", s.baseURL, request.CardType)

	var resp *http.Response
	send := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Idempotency-Key", request.EntryInfoID+":"+request.CardType)

		resp, err = s.client.Do(req)
		if err != nil && isDialError(err) {
			log.Warn("DAC service unreachable, retrying", "cardType", request.CardType, "error", err)
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxInterval = 2 * time.Second
	err = backoff.Retry(send, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(s.maxAttempts-1)), ctx))
	if err != nil {
		return SubmissionResult{}, &apperrors.TransientError{Op: "submit " + request.CardType, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return SubmissionResult{}, &apperrors.TransientError{Op: "read " + request.CardType + " response", Err: err}
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return SubmissionResult{}, &apperrors.TransientError{
			Op:  "submit " + request.CardType,
			Err: fmt.Errorf("DAC service returned HTTP %d", resp.StatusCode),
		}
	case resp.StatusCode >= http.StatusBadRequest:
		details := fmt.Sprintf("rejected with HTTP %d", resp.StatusCode)
		var errResp dacErrorResponse
		if err := json.Unmarshal(payload, &errResp); err == nil && errResp.Message != "" {
			details = errResp.Message
		}
		return SubmissionResult{Status: DACStatusFailed, ErrorDetails: details}, nil
	}

	var result SubmissionResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return SubmissionResult{}, &apperrors.TransientError{Op: "decode " + request.CardType + " response", Err: err}
	}

	log.Info("DAC service answered", "cardType", request.CardType, "status", result.Status)
	return result, nil
}

func isDialError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// UnconfiguredDACSubmitter reports every attempt as transient. It is installed
// when DAC_SERVICE_URL is empty so submissions fail loudly.
type UnconfiguredDACSubmitter struct{}

func (UnconfiguredDACSubmitter) Submit(_ context.Context, request SubmissionRequest) (SubmissionResult, error) {
	return SubmissionResult{}, &apperrors.TransientError{
		Op:  "submit " + request.CardType,
		Err: errors.New("DAC service is not configured"),
	}
}
