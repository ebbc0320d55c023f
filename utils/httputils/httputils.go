// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package httputils provides utility functions for working with HTTP.
package httputils

import (
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httputil"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// LoggingRoundTripper writes a dump of every request and response to Writer.
// API keys in query strings and Authorization headers are redacted.
type LoggingRoundTripper struct {
	Transport http.RoundTripper
	Writer    io.Writer
	DumpBody  bool
}

const (
	traceMaxLines     = 2048
	traceMaxLineBytes = 512
)

var secretParam = regexp.MustCompile(`([?&](?:key|api_key|apikey)=)[^&\s]+`)

func redact(line string) string {
	if strings.HasPrefix(strings.ToLower(line), "authorization:") {
		return "Authorization: …"
	}

	return secretParam.ReplaceAllString(line, "${1}…")
}

// traceLines prefixes, redacts and truncates the lines of an HTTP dump.
func traceLines(dump []byte, prefix rune) []string {
	raw := strings.Split(string(dump), "\n")

	truncated := len(raw) > traceMaxLines
	if truncated {
		raw = raw[:traceMaxLines]
	}

	out := make([]string, 0, len(raw)+1)

	for _, line := range raw {
		line = fmt.Sprintf("%c %s", prefix, redact(line))
		if len(line) > traceMaxLineBytes {
			line = line[:traceMaxLineBytes] + "…"
		}

		out = append(out, line)
	}

	if truncated {
		out = append(out, "…")
	}

	return out
}

func (t *LoggingRoundTripper) write(header string, dump []byte, prefix rune) error {
	var sb strings.Builder

	sb.WriteString(header)

	for _, line := range traceLines(dump, prefix) {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}

	if _, err := io.WriteString(t.Writer, sb.String()); err != nil {
		return fmt.Errorf("tracing HTTP: %w", err)
	}

	return nil
}

// RoundTrip implements the http.RoundTripper interface.
func (t *LoggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Writer == nil {
		return t.Transport.RoundTrip(req)
	}

	dump, err := httputil.DumpRequestOut(req, true)
	if err != nil {
		return nil, fmt.Errorf("dumping request: %w", err)
	}

	if err := t.write("", dump, '>'); err != nil {
		return nil, err
	}

	start := time.Now()

	resp, err := t.Transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)

	dump, err = httputil.DumpResponse(resp, t.DumpBody)
	if err != nil {
		return nil, fmt.Errorf("dumping response: %w", err)
	}

	if err := t.write(fmt.Sprintf("< RESPONSE: [%v]\n", elapsed), dump, '<'); err != nil {
		return nil, err
	}

	return resp, nil
}

// AppendRequestHeadersRoundTripper sets Headers on a copy of every request.
type AppendRequestHeadersRoundTripper struct {
	Transport http.RoundTripper
	Headers   map[string]string
}

// RoundTrip implements the http.RoundTripper interface.
func (t *AppendRequestHeadersRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	for name, value := range t.Headers {
		out.Header.Set(name, value)
	}

	return t.Transport.RoundTrip(out)
}

// EnforceExpirationCookieJar turns session cookies into cookies expiring
// after Duration, so long running clients drop stale sessions.
type EnforceExpirationCookieJar struct {
	Target   *cookiejar.Jar
	Duration time.Duration
}

// SetCookies implements http.CookieJar.
func (j *EnforceExpirationCookieJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	deadline := time.Now().Add(j.Duration)

	for _, c := range cookies {
		if c.Expires.IsZero() {
			c.Expires = deadline
		}
	}

	j.Target.SetCookies(u, cookies)
}

// Cookies implements http.CookieJar.
func (j *EnforceExpirationCookieJar) Cookies(u *url.URL) []*http.Cookie {
	return j.Target.Cookies(u)
}

// ClientOptions describes the outbound HTTP client shared by geocoding
// providers and form submitters.
type ClientOptions struct {
	Timeout time.Duration
	// Headers are added to every request (e.g. the User-Agent Nominatim requires).
	Headers map[string]string
	// Trace, when set, receives a dump of every request and response.
	Trace io.Writer
	// SessionCookies keeps cookies between requests for SessionDuration.
	SessionCookies  bool
	SessionDuration time.Duration
}

// NewClient builds an http.Client with the round tripper chain described by opts.
func NewClient(opts ClientOptions) (*http.Client, error) {
	var transport http.RoundTripper = http.DefaultTransport

	if opts.Trace != nil {
		transport = &LoggingRoundTripper{
			Transport: transport,
			Writer:    opts.Trace,
			DumpBody:  true,
		}
	}

	if len(opts.Headers) > 0 {
		transport = &AppendRequestHeadersRoundTripper{
			Transport: transport,
			Headers:   opts.Headers,
		}
	}

	client := &http.Client{
		Timeout:   opts.Timeout,
		Transport: transport,
	}

	if opts.SessionCookies {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("creating cookie jar: %w", err)
		}

		duration := opts.SessionDuration
		if duration == 0 {
			duration = 30 * time.Minute
		}

		client.Jar = &EnforceExpirationCookieJar{Target: jar, Duration: duration}
	}

	return client, nil
}
