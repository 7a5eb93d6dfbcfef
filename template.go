package curlfuzz

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// InjectionDelimiter surrounds each injection point in a RequestTemplate.
const InjectionDelimiter = "***"

// RequestTemplate is a raw HTTP/1.1 request with one or more delimited injection points.
// It is immutable once built.
type RequestTemplate struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	Raw  string `json:"raw"`
}

// BuildTemplate renders a capture into a raw request whose body is wrapped in injection delimiters.
// Captured Host and Content-Length headers are dropped: the host comes from the URL and
// the transport computes the length of every mutated body.
func BuildTemplate(capture *Capture) *RequestTemplate {
	var raw strings.Builder
	fmt.Fprintf(&raw, "%s %s HTTP/1.1\r\n", capture.Method, capture.URL.RequestURI())
	fmt.Fprintf(&raw, "Host: %s\r\n", capture.URL.Host)
	for _, header := range capture.Header {
		switch http.CanonicalHeaderKey(header.Name) {
		case "Host", "Content-Length":
			continue
		}
		fmt.Fprintf(&raw, "%s: %s\r\n", header.Name, header.Value)
	}
	raw.WriteString("\r\n")
	raw.WriteString(InjectionDelimiter + capture.Body + InjectionDelimiter)

	return &RequestTemplate{
		Host: capture.URL.Hostname(),
		Port: portOf(capture),
		Raw:  raw.String(),
	}
}

func portOf(capture *Capture) int {
	if port, err := strconv.Atoi(capture.URL.Port()); err == nil {
		return port
	}
	if capture.Secure() {
		return 443
	}
	return 80
}

// Target returns where requests built from this template are sent.
func (t *RequestTemplate) Target(secure bool) Target {
	return Target{Host: t.Host, Port: t.Port, Secure: secure}
}

func (t *RequestTemplate) delimiters() *DelimiterArray {
	return &DelimiterArray{Contents: []byte(t.Raw)}
}

// InjectionPoints returns the original contents of every injection point, in order.
func (t *RequestTemplate) InjectionPoints() ([]string, error) {
	delimiter := []byte(InjectionDelimiter)
	array := t.delimiters()
	count, err := array.Count(delimiter)
	if err != nil {
		return nil, err
	}

	seeds := make([]string, 0, count)
	for position := 0; position < count; position++ {
		start, end, err := array.Get(position, delimiter)
		if err != nil {
			return nil, err
		}
		seeds = append(seeds, t.Raw[start+len(delimiter):end])
	}
	return seeds, nil
}

// Inject replaces the injection point at position with payload and strips every delimiter from the result.
// A negative position strips the delimiters and leaves every injection point untouched.
func (t *RequestTemplate) Inject(position int, payload string) (string, error) {
	delimiter := []byte(InjectionDelimiter)
	offsets := t.delimiters().Lookup(delimiter)
	if len(offsets)%2 != 0 {
		return "", fmt.Errorf("unbalanced delimiter %q in template", InjectionDelimiter)
	}
	if position >= len(offsets)/2 {
		return "", fmt.Errorf("position %d out of range, template has %d injection points", position, len(offsets)/2)
	}

	var out strings.Builder
	previous := 0
	for pair := 0; pair < len(offsets)/2; pair++ {
		start, end := offsets[pair*2], offsets[pair*2+1]
		out.WriteString(t.Raw[previous:start])
		if pair == position {
			out.WriteString(payload)
		} else {
			out.WriteString(t.Raw[start+len(delimiter) : end])
		}
		previous = end + len(delimiter)
	}
	out.WriteString(t.Raw[previous:])
	return out.String(), nil
}

// Baseline returns the unmodified request: the template with its delimiters removed.
func (t *RequestTemplate) Baseline() (string, error) {
	return t.Inject(-1, "")
}
