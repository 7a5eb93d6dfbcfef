package curlfuzz

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/projectdiscovery/rawhttp"
)

// Target is the endpoint a campaign sends requests to.
type Target struct {
	Host   string `json:"host"`
	Port   int    `json:"port"`
	Secure bool   `json:"secure"`
}

// URL returns the scheme and authority of the target.
func (t Target) URL() string {
	scheme := "http"
	if t.Secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(t.Host, strconv.Itoa(t.Port)))
}

// Request is a parsed raw request.
// RawBody is sent as is; the embedded request's Body is never read.
type Request struct {
	*http.Request
	RawBody []byte
}

// Response is a fully read response and how long it took to arrive.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Elapsed    time.Duration
}

// Hash returns the hex encoded sha256 of the response body.
func (r *Response) Hash() string {
	hash := sha256.Sum256(r.Body)
	return hex.EncodeToString(hash[:])
}

// Size returns the length of the response body.
func (r *Response) Size() int64 {
	return int64(len(r.Body))
}

// Sender sends a request to a target.
type Sender interface {
	Do(target Target, req *Request) (*Response, error)
}

// Client sends requests with rawhttp, so malformed bodies go out on the wire exactly as they were generated.
type Client struct {
	*rawhttp.Client
}

// NewClient returns a Client that gives up on a request after timeout.
// It never follows redirects: a redirect is a response worth comparing against the baseline.
func NewClient(timeout time.Duration) *Client {
	options := *rawhttp.DefaultOptions
	options.Timeout = timeout
	options.FollowRedirects = false
	options.AutomaticHostHeader = false
	options.AutomaticContentLength = true
	options.ForceReadAllBody = true
	return &Client{Client: rawhttp.NewClient(&options)}
}

// Do sends req to target and reads the whole response.
func (c *Client) Do(target Target, req *Request) (*Response, error) {
	headers := map[string][]string(req.Header.Clone())
	headers["Host"] = []string{req.Host}

	start := time.Now()
	resp, err := c.Client.DoRaw(req.Method, target.URL(), req.URL.RequestURI(), headers, bytes.NewReader(req.RawBody))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		Elapsed:    time.Since(start),
	}, nil
}
