// Package buildenv holds the environment handed to a build collaborator.
//
// A fresh Env is created for every build so that steering variables for one
// target never leak into the next one or into the dinghy process itself.
package buildenv

import (
	"os"
	"sort"
	"strings"
)

// Env is an ordered-by-key set of environment variables.
type Env struct {
	vars map[string]string
}

// New builds an Env from KEY=VALUE entries, as returned by os.Environ.
func New(base []string) *Env {
	env := &Env{vars: make(map[string]string, len(base))}
	for _, kv := range base {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}
		env.vars[key] = value
	}
	return env
}

// FromOS snapshots the current process environment.
func FromOS() *Env {
	return New(os.Environ())
}

func (e *Env) Get(key string) (string, bool) {
	v, ok := e.vars[key]
	return v, ok
}

// Lookup returns the value of key or "" when it is not set.
func (e *Env) Lookup(key string) string {
	return e.vars[key]
}

func (e *Env) Set(key, value string) {
	e.vars[key] = value
}

// SetIfUndefined sets key only when it is absent and reports whether it did.
func (e *Env) SetIfUndefined(key, value string) bool {
	if _, ok := e.vars[key]; ok {
		return false
	}
	e.vars[key] = value
	return true
}

// Unset removes every key.
func (e *Env) Unset(keys ...string) {
	for _, k := range keys {
		delete(e.vars, k)
	}
}

// Merge sets every entry of vars.
func (e *Env) Merge(vars map[string]string) {
	for k, v := range vars {
		e.vars[k] = v
	}
}

// AppendPath adds dir to the end of the path list stored in key.
func (e *Env) AppendPath(key, dir string) {
	current, ok := e.vars[key]
	if !ok || current == "" {
		e.vars[key] = dir
		return
	}
	e.vars[key] = current + string(os.PathListSeparator) + dir
}

// PrependPath adds dir to the front of the path list stored in key.
func (e *Env) PrependPath(key, dir string) {
	current, ok := e.vars[key]
	if !ok || current == "" {
		e.vars[key] = dir
		return
	}
	e.vars[key] = dir + string(os.PathListSeparator) + current
}

// Map returns a copy of the variables.
func (e *Env) Map() map[string]string {
	out := make(map[string]string, len(e.vars))
	for k, v := range e.vars {
		out[k] = v
	}
	return out
}

// Keys returns the variable names in sorted order.
func (e *Env) Keys() []string {
	keys := make([]string, 0, len(e.vars))
	for k := range e.vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Environ renders the set as sorted KEY=VALUE entries for exec.Cmd.Env.
func (e *Env) Environ() []string {
	keys := e.Keys()
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+e.vars[k])
	}
	return out
}
