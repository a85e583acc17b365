package ip

import (
	"context"
	"strings"
	"time"

	"github.com/go-openapi/jsonpointer"
	"github.com/grafana/regexp"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// jsonAdapter reads an address string out of a JSON (or JSONP) document.
type jsonAdapter struct{}

func (j *jsonAdapter) Attempt(ctx context.Context, d Descriptor, opts Options) (Address, error) {
	started := time.Now()
	body, err := httpGet(ctx, d.Endpoint, opts)
	if err != nil {
		return Address{}, err
	}
	value, err := lookupJSON(d, body)
	if err != nil {
		return Address{}, err
	}
	raw, err := extractAddr(value)
	if err != nil {
		return Address{}, err
	}
	addr, err := parseAddr(d.Family, raw)
	if err != nil {
		return Address{}, err
	}
	return newAddress(d, addr, started), nil
}

// lookupJSON strips the optional padding from body and returns the string found at d.JSONPath.
func lookupJSON(d Descriptor, body []byte) (string, error) {
	if d.Padding != "" {
		unpadded, err := stripPadding(d.Padding, string(body))
		if err != nil {
			return "", &JSONError{Endpoint: d.Endpoint, Reason: "padding mismatch", Err: err}
		}
		body = []byte(unpadded)
	}

	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", &JSONError{Endpoint: d.Endpoint, Reason: "decode", Err: err}
	}

	ptr, err := jsonpointer.New(pointer(d.JSONPath))
	if err != nil {
		return "", &JSONError{Endpoint: d.Endpoint, Reason: "key", Err: err}
	}
	leaf, _, err := ptr.Get(doc)
	if err != nil {
		return "", &JSONError{Endpoint: d.Endpoint, Reason: "key /" + strings.Join(d.JSONPath, "/") + " not found", Err: err}
	}
	s, ok := leaf.(string)
	if !ok {
		return "", &JSONError{Endpoint: d.Endpoint, Reason: "key /" + strings.Join(d.JSONPath, "/") + " is not a string"}
	}
	return s, nil
}

func pointer(path []string) string {
	var b strings.Builder
	for _, key := range path {
		b.WriteByte('/')
		b.WriteString(jsonpointer.Escape(key))
	}
	return b.String()
}

func stripPadding(padding, body string) (string, error) {
	re, err := regexp.Compile(`(?s)` + regexp.QuoteMeta(padding) + `\s*\(\s*(.*)\s*\)`)
	if err != nil {
		return "", err
	}
	m := re.FindStringSubmatch(body)
	if m == nil {
		return "", &AddrParseError{Raw: body}
	}
	return m[1], nil
}
