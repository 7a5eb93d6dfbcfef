package curlfuzz

import (
	"bufio"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
)

// ParseRequest parses a raw request rendered from a RequestTemplate.
// Everything after the blank line is the body, whatever its length: mutated bodies never match a captured Content-Length.
func ParseRequest(raw string) (*Request, error) {
	head, body, found := strings.Cut(raw, "\r\n\r\n")
	if !found {
		return nil, errors.New("raw request has no end of headers")
	}

	reader := bufio.NewReader(strings.NewReader(head + "\r\n\r\n"))
	req, err := http.ReadRequest(reader)
	if err != nil {
		return nil, fmt.Errorf("parsing raw request: %w", err)
	}

	req.Header.Del("Content-Length")
	return &Request{Request: req, RawBody: []byte(body)}, nil
}

// CaptureFromFile reads a capture string from a file.
func CaptureFromFile(filename string) (string, error) {
	contents, err := os.ReadFile(filename)
	if err != nil {
		return "", err
	}
	return string(contents), nil
}
