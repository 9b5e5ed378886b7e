// Package oracle is a read-only client for the Codeforces API, the external
// judge the tournament treats as its source of verdicts. It is rate-limited
// and only eventually consistent, so every error here is classified as either
// transient (retry on the next poll tick) or conclusive (handle not found).
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrUnreachable covers network and parse failures; callers retry later.
	ErrUnreachable = errors.New("oracle unreachable")
	// ErrRateLimited means the judge signalled request exhaustion; retry later.
	ErrRateLimited = errors.New("oracle rate limited")
	// ErrHandleNotFound is the only conclusive "user does not exist" signal.
	ErrHandleNotFound = errors.New("handle not found")
)

// Verdicts the judge assigns to a submission. An empty verdict means the
// submission is still in queue.
const (
	VerdictOK                  = "OK"
	VerdictTesting             = "TESTING"
	VerdictWrongAnswer         = "WRONG_ANSWER"
	VerdictTimeLimitExceeded   = "TIME_LIMIT_EXCEEDED"
	VerdictMemoryLimitExceeded = "MEMORY_LIMIT_EXCEEDED"
	VerdictRuntimeError        = "RUNTIME_ERROR"
	VerdictCompilationError    = "COMPILATION_ERROR"
)

// ProblemRef identifies the problem a submission was made against.
type ProblemRef struct {
	ContestID int    `json:"contestId"`
	Index     string `json:"index"`
	Name      string `json:"name"`
	Rating    int    `json:"rating"`
}

// Submission is one judged attempt, newest-first in the API's ordering.
type Submission struct {
	ID                  int64      `json:"id"`
	CreationTimeSeconds int64      `json:"creationTimeSeconds"`
	ProgrammingLanguage string     `json:"programmingLanguage"`
	Verdict             string     `json:"verdict"`
	PassedTestCount     int        `json:"passedTestCount"`
	Problem             ProblemRef `json:"problem"`
}

// UserInfo is the public profile snapshot taken at join time.
type UserInfo struct {
	Handle    string `json:"handle"`
	Rating    int    `json:"rating"`
	MaxRating int    `json:"maxRating"`
	Rank      string `json:"rank"`
}

type apiEnvelope struct {
	Status  string          `json:"status"`
	Comment string          `json:"comment"`
	Result  json.RawMessage `json:"result"`
}

// statusError is a FAILED envelope from the judge.
type statusError struct {
	Comment string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("oracle returned FAILED: %s", e.Comment)
}

const (
	defaultTimeout    = 10 * time.Second
	recentSubmissions = 20
)

// Client issues read requests against the judge's HTTP API. It is stateless
// and safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

// RecentSubmissions returns the participant's most recent judged attempts,
// newest first.
func (c *Client) RecentSubmissions(ctx context.Context, handle string) ([]Submission, error) {
	q := url.Values{}
	q.Set("handle", handle)
	q.Set("from", "1")
	q.Set("count", fmt.Sprintf("%d", recentSubmissions))

	result, err := c.call(ctx, "/api/user.status?"+q.Encode())
	if err != nil {
		var se *statusError
		if errors.As(err, &se) {
			return nil, fmt.Errorf("%w: %s", ErrUnreachable, se.Comment)
		}
		return nil, err
	}

	var subs []Submission
	if err := json.Unmarshal(result, &subs); err != nil {
		return nil, fmt.Errorf("%w: decode submissions: %v", ErrUnreachable, err)
	}
	return subs, nil
}

// VerifyHandle resolves a handle to its public profile. Only a FAILED
// response naming the handle as unknown yields ErrHandleNotFound; transient
// failures must never be read as nonexistence.
func (c *Client) VerifyHandle(ctx context.Context, handle string) (*UserInfo, error) {
	q := url.Values{}
	q.Set("handles", handle)

	result, err := c.call(ctx, "/api/user.info?"+q.Encode())
	if err != nil {
		var se *statusError
		if errors.As(err, &se) {
			if strings.Contains(strings.ToLower(se.Comment), "not found") {
				return nil, fmt.Errorf("%w: %s", ErrHandleNotFound, handle)
			}
			return nil, fmt.Errorf("%w: %s", ErrUnreachable, se.Comment)
		}
		return nil, err
	}

	var users []UserInfo
	if err := json.Unmarshal(result, &users); err != nil {
		return nil, fmt.Errorf("%w: decode user info: %v", ErrUnreachable, err)
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrHandleNotFound, handle)
	}
	return &users[0], nil
}

func (c *Client) call(ctx context.Context, path string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		return nil, fmt.Errorf("%w: http %d", ErrRateLimited, resp.StatusCode)
	}

	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: decode envelope: %v", ErrUnreachable, err)
	}

	if env.Status != "OK" {
		if strings.Contains(strings.ToLower(env.Comment), "limit") {
			return nil, fmt.Errorf("%w: %s", ErrRateLimited, env.Comment)
		}
		return nil, &statusError{Comment: env.Comment}
	}
	return env.Result, nil
}
