// Package environment overlays environment variables onto already-loaded
// configuration values.
//
// Every helper takes a pointer to the current value and only replaces it when
// the variable is set to a non-empty string. Unparseable values are reported
// as errors instead of being silently ignored, so a typo in a deployment
// manifest fails at startup rather than running with defaults.
package environment

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Overlay applies variables sharing a common prefix (e.g. "VIBEPLANNER_").
// Errors accumulate and are returned together by Err.
type Overlay struct {
	prefix string
	errs   []error
}

// NewOverlay returns an Overlay reading variables named prefix+name.
func NewOverlay(prefix string) *Overlay {
	return &Overlay{prefix: prefix}
}

// Name returns the full variable name for name.
func (o *Overlay) Name(name string) string {
	return o.prefix + name
}

func (o *Overlay) lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(o.Name(name))
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

// String overrides *dst with the variable value when set.
func (o *Overlay) String(name string, dst *string) {
	if v, ok := o.lookup(name); ok {
		*dst = v
	}
}

// Bool overrides *dst using strconv.ParseBool.
func (o *Overlay) Bool(name string, dst *bool) {
	v, ok := o.lookup(name)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		o.errs = append(o.errs, fmt.Errorf("%s: invalid boolean %q", o.Name(name), v))
		return
	}
	*dst = b
}

// Int overrides *dst with a decimal integer.
func (o *Overlay) Int(name string, dst *int) {
	v, ok := o.lookup(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		o.errs = append(o.errs, fmt.Errorf("%s: invalid integer %q", o.Name(name), v))
		return
	}
	*dst = n
}

// Duration overrides *dst with a time.Duration such as "2s" or "5m".
func (o *Overlay) Duration(name string, dst *time.Duration) {
	v, ok := o.lookup(name)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		o.errs = append(o.errs, fmt.Errorf("%s: invalid duration %q", o.Name(name), v))
		return
	}
	*dst = d
}

// StringSlice overrides *dst with a comma-separated list. Blank elements are
// dropped; a variable holding only separators leaves *dst unchanged.
func (o *Overlay) StringSlice(name string, dst *[]string) {
	v, ok := o.lookup(name)
	if !ok {
		return
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	if len(out) > 0 {
		*dst = out
	}
}

// Err returns every parse error seen so far, or nil.
func (o *Overlay) Err() error {
	return errors.Join(o.errs...)
}
