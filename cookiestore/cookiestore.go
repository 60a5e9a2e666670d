// Package cookiestore persists the site session cookies between runs.
//
// A Jar is written as {"cookies":[{"name","value","domain","path"}, ...]}.
// A save always replaces the whole file; individual cookies are never merged.
package cookiestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned by Load when no cookie file exists.
var ErrNotFound = errors.New("cookiestore: no saved cookies")

// ParseError reports a cookie file that exists but does not hold a jar.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cookiestore: parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Cookie is one persisted cookie, identified by (Name, Domain, Path).
type Cookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
	Path   string `json:"path"`
}

// Jar is an ordered set of cookies making up one site session.
type Jar struct {
	Cookies []Cookie `json:"cookies"`
}

// FromHeaderString parses a raw "a=1; b=2" cookie header. Segments without
// '=' are skipped. Names and values are trimmed; every cookie gets the given
// domain and path "/". A repeated name replaces the earlier value in place.
func FromHeaderString(s, domain string) *Jar {
	jar := &Jar{Cookies: []Cookie{}}
	index := make(map[string]int)

	for _, pair := range strings.Split(s, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		c := Cookie{
			Name:   name,
			Value:  strings.TrimSpace(value),
			Domain: domain,
			Path:   "/",
		}
		if i, dup := index[name]; dup {
			jar.Cookies[i] = c
			continue
		}
		index[name] = len(jar.Cookies)
		jar.Cookies = append(jar.Cookies, c)
	}
	return jar
}

// HeaderString formats the jar as a cookie header, preserving jar order.
func (j *Jar) HeaderString() string {
	if j == nil {
		return ""
	}
	pairs := make([]string, 0, len(j.Cookies))
	for _, c := range j.Cookies {
		pairs = append(pairs, c.Name+"="+c.Value)
	}
	return strings.Join(pairs, "; ")
}

// Len returns the number of cookies in the jar.
func (j *Jar) Len() int {
	if j == nil {
		return 0
	}
	return len(j.Cookies)
}

// Get returns the value of the first cookie with the given name.
func (j *Jar) Get(name string) (string, bool) {
	if j == nil {
		return "", false
	}
	for _, c := range j.Cookies {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

// HTTPCookies converts the jar for use with net/http.
func (j *Jar) HTTPCookies() []*http.Cookie {
	if j == nil {
		return nil
	}
	out := make([]*http.Cookie, 0, len(j.Cookies))
	for _, c := range j.Cookies {
		out = append(out, &http.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   c.Path,
		})
	}
	return out
}

// validate enforces the no-duplicate (name, domain, path) invariant.
func (j *Jar) validate() error {
	seen := make(map[Cookie]struct{}, len(j.Cookies))
	for _, c := range j.Cookies {
		if c.Name == "" {
			return errors.New("cookie with empty name")
		}
		key := Cookie{Name: c.Name, Domain: c.Domain, Path: c.Path}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate cookie %q (domain %q, path %q)", c.Name, c.Domain, c.Path)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// DefaultPath returns <home>/.livebox/cookies.json, where home is $HOME,
// then $USERPROFILE, then the current directory.
func DefaultPath() string {
	home := os.Getenv("HOME")
	if home == "" {
		home = os.Getenv("USERPROFILE")
	}
	if home == "" {
		home = "."
	}
	return filepath.Join(home, ".livebox", "cookies.json")
}

// Load reads a jar from path.
func Load(path string) (*Jar, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cookiestore: read %s: %w", path, err)
	}

	var jar Jar
	if err := json.Unmarshal(data, &jar); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	if jar.Cookies == nil {
		return nil, &ParseError{Path: path, Err: errors.New(`missing "cookies" array`)}
	}
	if err := jar.validate(); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &jar, nil
}

// Save writes jar to path, creating parent directories. The file is written
// next to the target and renamed over it, so readers observe either the old
// or the new jar.
func Save(jar *Jar, path string) error {
	if jar == nil {
		jar = &Jar{}
	}
	if jar.Cookies == nil {
		jar = &Jar{Cookies: []Cookie{}}
	}
	data, err := json.MarshalIndent(jar, "", "  ")
	if err != nil {
		return fmt.Errorf("cookiestore: encode: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("cookiestore: create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".cookies-*.tmp")
	if err != nil {
		return fmt.Errorf("cookiestore: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("cookiestore: write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("cookiestore: sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cookiestore: close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("cookiestore: replace %s: %w", path, err)
	}
	return nil
}

// Clear removes the cookie file. A missing file is not an error;
// removed reports whether anything was deleted.
func Clear(path string) (removed bool, err error) {
	err = os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cookiestore: remove %s: %w", path, err)
	}
	return true, nil
}
