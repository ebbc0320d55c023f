// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package form

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Submission is the data sent when a form is submitted.
type Submission struct {
	Action string     `json:"action"`
	Method string     `json:"method"`
	Values url.Values `json:"values"`
	At     time.Time  `json:"at"`
}

// Submitter performs the submission of a form.
type Submitter interface {
	Submit(ctx context.Context, s Submission) error
}

// SubmitterFunc adapts a function to the Submitter interface.
type SubmitterFunc func(ctx context.Context, s Submission) error

// Submit implements Submitter.
func (f SubmitterFunc) Submit(ctx context.Context, s Submission) error {
	return f(ctx, s)
}

// Recorder keeps submissions in memory.
type Recorder struct {
	mu          sync.Mutex
	submissions []Submission
}

// Submit implements Submitter.
func (r *Recorder) Submit(_ context.Context, s Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.At.IsZero() {
		s.At = time.Now()
	}

	r.submissions = append(r.submissions, s)

	return nil
}

// Submissions returns a copy of the recorded submissions.
func (r *Recorder) Submissions() []Submission {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Submission, len(r.submissions))
	copy(out, r.submissions)

	return out
}

// Count returns the number of recorded submissions.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.submissions)
}

// HTTPSubmitter sends submissions the way a browser would: GET forms encode
// the values in the query, anything else posts them url-encoded.
type HTTPSubmitter struct {
	Client *http.Client
	// Base resolves relative form actions.
	Base *url.URL
}

// Submit implements Submitter.
func (h *HTTPSubmitter) Submit(ctx context.Context, s Submission) error {
	target, err := url.Parse(s.Action)
	if err != nil {
		return fmt.Errorf("parsing form action %q: %w", s.Action, err)
	}

	if h.Base != nil {
		target = h.Base.ResolveReference(target)
	}

	if !target.IsAbs() {
		return fmt.Errorf("form action %q is not absolute and no base URL is configured", s.Action)
	}

	var req *http.Request

	if s.Method == http.MethodGet || s.Method == "" {
		target.RawQuery = s.Values.Encode()
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, s.Method, target.String(), strings.NewReader(s.Values.Encode()))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}

	if err != nil {
		return fmt.Errorf("creating submission request: %w", err)
	}

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("submitting form: %w", err)
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return fmt.Errorf("form submission returned status %d", resp.StatusCode)
	}

	return nil
}
