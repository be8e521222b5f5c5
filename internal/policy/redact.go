package policy

import (
	"bytes"
	"encoding/json"
	"io"
	"net/url"
	"strings"
)

const redactedValue = "***"

var defaultSensitiveKeys = []string{
	"password",
	"passwd",
	"secret",
	"api_key",
	"apikey",
	"api_secret",
	"access_token",
	"refresh_token",
	"token",
	"authorization",
	"private_key",
	"client_secret",
	"card_number",
	"cvv",
}

// Redactor masks sensitive keys in payloads before they are logged.
type Redactor struct {
	keys map[string]struct{}
}

// NewRedactor builds a redactor for the default sensitive keys plus extra.
func NewRedactor(extra ...string) Redactor {
	keys := make(map[string]struct{}, len(defaultSensitiveKeys)+len(extra))
	for _, k := range defaultSensitiveKeys {
		keys[k] = struct{}{}
	}
	for _, k := range extra {
		keys[normalizeKey(k)] = struct{}{}
	}
	return Redactor{keys: keys}
}

// RedactedBody replaces payloads that carry a sensitive key but cannot be
// parsed for masking.
const RedactedBody = "[redacted]"

// Redact returns body as a string with sensitive values masked. JSON bodies
// keep their numbers verbatim. Form-encoded bodies are masked pair by pair.
// Any other body is kept only when it mentions no sensitive key.
func (r Redactor) Redact(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if out, ok := r.redactJSON(body); ok {
		return out
	}
	if out, ok := r.redactForm(string(body)); ok {
		return out
	}
	if r.mentionsSensitive(string(body)) {
		return RedactedBody
	}
	return string(body)
}

func (r Redactor) redactJSON(body []byte) (string, bool) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var data any
	if err := dec.Decode(&data); err != nil {
		return "", false
	}
	if _, err := dec.Token(); err != io.EOF {
		return "", false
	}
	r.redactValue(&data)
	out, err := json.Marshal(data)
	if err != nil {
		return "", false
	}
	return string(out), true
}

// redactForm masks application/x-www-form-urlencoded bodies, keeping pair
// order. ok is false when body does not look like a form.
func (r Redactor) redactForm(body string) (string, bool) {
	if strings.ContainsAny(body, " \t\r\n<>{}") || !strings.Contains(body, "=") {
		return "", false
	}
	if _, err := url.ParseQuery(body); err != nil {
		return "", false
	}
	pairs := strings.Split(body, "&")
	for i, pair := range pairs {
		name, _, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		key, err := url.QueryUnescape(name)
		if err != nil {
			return "", false
		}
		if r.isSensitive(key) {
			pairs[i] = name + "=" + redactedValue
		}
	}
	return strings.Join(pairs, "&"), true
}

func (r Redactor) mentionsSensitive(body string) bool {
	lower := strings.ToLower(body)
	for k := range r.keys {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

func (r Redactor) redactValue(v *any) {
	switch raw := (*v).(type) {
	case map[string]any:
		for key, val := range raw {
			if r.isSensitive(key) {
				raw[key] = redactedValue
				continue
			}
			vv := val
			r.redactValue(&vv)
			raw[key] = vv
		}
	case []any:
		for i, val := range raw {
			vv := val
			r.redactValue(&vv)
			raw[i] = vv
		}
	}
}

func (r Redactor) isSensitive(key string) bool {
	_, ok := r.keys[normalizeKey(key)]
	return ok
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
