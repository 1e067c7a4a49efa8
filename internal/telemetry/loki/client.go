// Package loki pushes the mirrored domain-event stream to Grafana Loki.
package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultJob is the job label attached to every stream.
const DefaultJob = "saas-control-plane"

// ErrNoBaseURL is returned by NewClient when the Loki URL is empty.
var ErrNoBaseURL = errors.New("loki: base URL is empty")

// PushRequest is the Loki push API request body (v1).
type PushRequest struct {
	Streams []Stream `json:"streams"`
}

// Stream is a single stream with labels and log entries.
type Stream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"` // each entry is [timestamp_ns, log_line]
}

// Loki label values may be any string; we still strip characters that make LogQL selectors awkward.
var labelSanitize = regexp.MustCompile(`[^a-zA-Z0-9_\-:.]`)

// envelopeFields are the parts of a mirrored event envelope used for labels and the entry timestamp.
type envelopeFields struct {
	Name       string `json:"name"`
	OrgID      string `json:"orgId"`
	OccurredAt string `json:"occurredAt"`
}

// Client pushes log lines to one Loki instance.
type Client struct {
	pushURL string
	job     string
	http    *http.Client
	now     func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client (10s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithJob overrides the job label.
func WithJob(job string) Option {
	return func(cl *Client) {
		if job != "" {
			cl.job = job
		}
	}
}

// NewClient returns a Client for the Loki instance at baseURL (e.g. http://localhost:3100).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, ErrNoBaseURL
	}
	c := &Client{
		pushURL: strings.TrimSuffix(baseURL, "/") + "/loki/api/v1/push",
		job:     DefaultJob,
		http:    &http.Client{Timeout: 10 * time.Second},
		now:     time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// PushEnvelope pushes one mirrored event envelope (a Kafka message value) as a log line labelled
// with the event name and org. A value that does not parse is still pushed, at the current time
// and with only the job label.
func (c *Client) PushEnvelope(ctx context.Context, raw []byte) error {
	labels := map[string]string{}
	ts := c.now().UTC()
	var f envelopeFields
	if err := json.Unmarshal(raw, &f); err == nil {
		if f.Name != "" {
			labels["event"] = f.Name
		}
		if f.OrgID != "" {
			labels["org_id"] = f.OrgID
		}
		if f.OccurredAt != "" {
			if t, err := time.Parse(time.RFC3339Nano, f.OccurredAt); err == nil {
				ts = t
			}
		}
	}
	return c.Push(ctx, ts, string(raw), labels)
}

// Push sends a single log line. labels are sanitized and added to the job label; empty values are
// dropped. Returns an error if the request fails or Loki answers non-2xx.
func (c *Client) Push(ctx context.Context, timestamp time.Time, line string, labels map[string]string) error {
	streamLabels := make(map[string]string, len(labels)+1)
	streamLabels["job"] = c.job
	for k, v := range labels {
		if sanitized := labelSanitize.ReplaceAllString(strings.TrimSpace(v), "_"); sanitized != "" {
			streamLabels[k] = sanitized
		}
	}
	payload, err := json.Marshal(PushRequest{
		Streams: []Stream{{
			Stream: streamLabels,
			Values: [][]string{{strconv.FormatInt(timestamp.UnixNano(), 10), line}},
		}},
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.pushURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("loki: push returned %s", resp.Status)
	}
	return nil
}
