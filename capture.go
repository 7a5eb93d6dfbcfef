package curlfuzz

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/shlex"
)

// TranslationError is returned when a capture string can't be turned into a request.
// No network activity happens before translation succeeds.
type TranslationError struct {
	Reason string
	Err    error
}

func (e *TranslationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("translating capture: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("translating capture: %s", e.Reason)
}

func (e *TranslationError) Unwrap() error {
	return e.Err
}

// Translator turns a captured request description into a structured Capture.
type Translator interface {
	Translate(text string) (*Capture, error)
}

// HeaderField is a single captured header. Captures keep headers in the order they were given.
type HeaderField struct {
	Name  string
	Value string
}

// Capture is the structured form of a captured request.
type Capture struct {
	Method string
	URL    *url.URL
	Header []HeaderField
	Body   string
}

// Secure reports whether the capture targets an https URL.
func (c *Capture) Secure() bool {
	return c.URL.Scheme == "https"
}

var knownMethods = map[string]bool{
	"GET":     true,
	"HEAD":    true,
	"POST":    true,
	"PUT":     true,
	"PATCH":   true,
	"DELETE":  true,
	"OPTIONS": true,
	"TRACE":   true,
}

// curl switches that don't change the request we fuzz.
var ignoredSwitches = map[string]bool{
	"-k": true, "--insecure": true,
	"-s": true, "--silent": true,
	"-S": true, "--show-error": true,
	"-v": true, "--verbose": true,
	"-L": true, "--location": true,
	"-i": true, "--include": true,
	"-g": true, "--globoff": true,
	"--compressed": true,
	"--http1.1":    true,
}

// curl options that take a value we don't need.
var ignoredOptions = map[string]bool{
	"--connect-timeout": true,
	"-m":                true, "--max-time": true,
	"-o": true, "--output": true,
	"-w": true, "--write-out": true,
	"-x": true, "--proxy": true,
	"-c": true, "--cookie-jar": true,
	"--retry": true,
}

// CurlTranslator understands the subset of curl's command line that describes a single request.
type CurlTranslator struct{}

// Translate parses a curl command. The leading "curl" word is optional.
func (CurlTranslator) Translate(text string) (*Capture, error) {
	text = strings.NewReplacer("\\\r\n", " ", "\\\n", " ").Replace(text)
	args, err := shlex.Split(text)
	if err != nil {
		return nil, &TranslationError{Reason: "malformed capture", Err: err}
	}
	if len(args) > 0 && args[0] == "curl" {
		args = args[1:]
	}
	if len(args) == 0 {
		return nil, &TranslationError{Reason: "empty capture"}
	}

	var (
		method  string
		rawURL  string
		headers []HeaderField
		data    []string
		hasData bool
	)

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			if rawURL != "" {
				return nil, &TranslationError{Reason: fmt.Sprintf("more than one URL: %q and %q", rawURL, arg)}
			}
			rawURL = arg
			continue
		}

		if ignoredSwitches[arg] {
			continue
		}

		name, value, inline := splitOption(arg)
		if !inline {
			if i+1 >= len(args) {
				return nil, &TranslationError{Reason: fmt.Sprintf("option %s is missing its value", name)}
			}
			i++
			value = args[i]
		}

		switch name {
		case "-X", "--request":
			method = strings.ToUpper(value)
		case "-H", "--header":
			header, err := parseHeader(value)
			if err != nil {
				return nil, err
			}
			headers = append(headers, header)
		case "-d", "--data", "--data-raw", "--data-binary", "--data-ascii", "--data-urlencode":
			hasData = true
			data = append(data, value)
		case "-A", "--user-agent":
			headers = append(headers, HeaderField{Name: "User-Agent", Value: value})
		case "-e", "--referer":
			headers = append(headers, HeaderField{Name: "Referer", Value: value})
		case "-b", "--cookie":
			headers = append(headers, HeaderField{Name: "Cookie", Value: value})
		case "-u", "--user":
			credentials := base64.StdEncoding.EncodeToString([]byte(value))
			headers = append(headers, HeaderField{Name: "Authorization", Value: "Basic " + credentials})
		case "--url":
			if rawURL != "" {
				return nil, &TranslationError{Reason: fmt.Sprintf("more than one URL: %q and %q", rawURL, value)}
			}
			rawURL = value
		default:
			// Clustered switches such as -sS land here with inline set.
			if !ignoredOptions[name] && !(inline && ignoredSwitches[name]) {
				return nil, &TranslationError{Reason: fmt.Sprintf("unsupported option %s", name)}
			}
		}
	}

	if rawURL == "" {
		return nil, &TranslationError{Reason: "missing URL"}
	}

	target, err := parseTargetURL(rawURL)
	if err != nil {
		return nil, err
	}

	if method == "" {
		method = "GET"
		if hasData {
			method = "POST"
		}
	}
	if !knownMethods[method] {
		return nil, &TranslationError{Reason: fmt.Sprintf("unknown method %q", method)}
	}

	if strings.Contains(target.Host, InjectionDelimiter) || strings.Contains(target.RequestURI(), InjectionDelimiter) {
		return nil, &TranslationError{Reason: fmt.Sprintf("URL already contains the injection delimiter %q", InjectionDelimiter)}
	}
	for _, header := range headers {
		if strings.Contains(header.Name, InjectionDelimiter) || strings.Contains(header.Value, InjectionDelimiter) {
			return nil, &TranslationError{Reason: fmt.Sprintf("header %s already contains the injection delimiter %q", header.Name, InjectionDelimiter)}
		}
	}

	body := strings.Join(data, "&")
	if strings.Contains(body, InjectionDelimiter) {
		return nil, &TranslationError{Reason: fmt.Sprintf("request data already contains the injection delimiter %q", InjectionDelimiter)}
	}
	// A leading or trailing '*' would merge with the marker around the data.
	if strings.HasPrefix(body, "*") || strings.HasSuffix(body, "*") {
		return nil, &TranslationError{Reason: "request data can't start or end with '*'"}
	}

	return &Capture{
		Method: method,
		URL:    target,
		Header: headers,
		Body:   body,
	}, nil
}

// splitOption separates "-XPOST" and "--request=POST" into name and value.
func splitOption(arg string) (name, value string, inline bool) {
	if strings.HasPrefix(arg, "--") {
		if i := strings.Index(arg, "="); i != -1 {
			return arg[:i], arg[i+1:], true
		}
		return arg, "", false
	}

	if len(arg) > 2 {
		return arg[:2], arg[2:], true
	}
	return arg, "", false
}

func parseHeader(value string) (HeaderField, error) {
	if name, ok := strings.CutSuffix(value, ";"); ok && !strings.Contains(name, ":") {
		// curl sends "-H 'X-Empty;'" as a header with no value.
		return HeaderField{Name: strings.TrimSpace(name)}, nil
	}

	name, headerValue, found := strings.Cut(value, ":")
	name = strings.TrimSpace(name)
	if !found || name == "" {
		return HeaderField{}, &TranslationError{Reason: fmt.Sprintf("malformed header %q", value)}
	}
	return HeaderField{Name: name, Value: strings.TrimSpace(headerValue)}, nil
}

func parseTargetURL(rawURL string) (*url.URL, error) {
	if !strings.Contains(rawURL, "://") {
		rawURL = "http://" + rawURL
	}

	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, &TranslationError{Reason: "malformed URL", Err: err}
	}

	if target.Scheme != "http" && target.Scheme != "https" {
		return nil, &TranslationError{Reason: fmt.Sprintf("unsupported scheme %q", target.Scheme)}
	}

	if target.Hostname() == "" {
		return nil, &TranslationError{Reason: fmt.Sprintf("URL %q has no host", rawURL)}
	}
	return target, nil
}
