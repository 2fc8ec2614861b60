// Package configflow validates config flow input for LED controller
// integrations.
//
// A Form reads raw input (decoded JSON or seeded YAML), applies defaults,
// and collects one error per field, so a client can show every problem at
// once.
//
//	f := configflow.NewForm(input)
//	host := f.Host("host")
//	port := f.Port("port", driver.DefaultPort)
//	if err := f.Err(); err != nil {
//	    return "", nil, err // platform.FieldErrors
//	}
package configflow

import (
	"fmt"
	"strings"

	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/platform"
)

// maxHostLength bounds the host field (DNS name limit).
const maxHostLength = 253

// Form validates one config flow submission.
type Form struct {
	input map[string]any
	errs  platform.FieldErrors
}

// NewForm wraps input. A nil input behaves as an empty form.
func NewForm(input map[string]any) *Form {
	return &Form{input: input, errs: platform.FieldErrors{}}
}

// Host returns the required, trimmed host field.
func (f *Form) Host(key string) string {
	v, present := f.input[key]
	if !present || v == nil {
		f.errs[key] = "required"
		return ""
	}
	s, ok := v.(string)
	if !ok {
		f.errs[key] = "must be a string"
		return ""
	}
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		f.errs[key] = "required"
	case len(s) > maxHostLength:
		f.errs[key] = fmt.Sprintf("must be at most %d characters", maxHostLength)
	case strings.ContainsAny(s, " /"):
		f.errs[key] = "must be a hostname or IP address"
	}
	return s
}

// Port returns the port field, def when absent.
func (f *Form) Port(key string, def int) int {
	n, ok := f.integer(key, def)
	if !ok {
		return def
	}
	if n < 1 || n > 65535 {
		f.errs[key] = "must be between 1 and 65535"
	}
	return n
}

// PositiveInt returns a positive integer field, def when absent.
func (f *Form) PositiveInt(key string, def int) int {
	n, ok := f.integer(key, def)
	if !ok {
		return def
	}
	if n < 1 {
		f.errs[key] = "must be a positive integer"
	}
	return n
}

// OneOf returns a string field that must be one of allowed, def when absent.
func (f *Form) OneOf(key, def string, allowed []string) string {
	v, present := f.input[key]
	if !present || v == nil {
		return def
	}
	s, ok := v.(string)
	if !ok {
		f.errs[key] = "must be a string"
		return def
	}
	for _, a := range allowed {
		if s == a {
			return s
		}
	}
	f.errs[key] = "must be one of " + strings.Join(allowed, ", ")
	return s
}

// Err returns the collected field errors, or nil.
func (f *Form) Err() error {
	if len(f.errs) == 0 {
		return nil
	}
	return f.errs
}

func (f *Form) integer(key string, def int) (int, bool) {
	v, present := f.input[key]
	if !present || v == nil {
		return def, true
	}
	n, ok := platform.ToInt(v)
	if !ok {
		f.errs[key] = "must be an integer"
		return 0, false
	}
	return n, true
}
