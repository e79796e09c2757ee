package git

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// Prefix marks a patch entry that lives in a git repository.
const Prefix = "git+"

// Remote identifies a repository and the ref to check out.
type Remote struct {
	URL string
	Ref string // branch or tag; empty means the remote HEAD
}

// IsRemote reports whether a patch entry refers to a git repository.
func IsRemote(entry string) bool { return strings.HasPrefix(entry, Prefix) }

// ParseRemote parses git+<url>[#<ref>].
func ParseRemote(entry string) (Remote, error) {
	if !IsRemote(entry) {
		return Remote{}, fmt.Errorf("not a git patch source: %q", entry)
	}
	raw := strings.TrimPrefix(entry, Prefix)
	var ref string
	if i := strings.LastIndex(raw, "#"); i >= 0 {
		raw, ref = raw[:i], raw[i+1:]
	}
	if raw == "" {
		return Remote{}, fmt.Errorf("git patch source %q has no URL", entry)
	}
	return Remote{URL: raw, Ref: ref}, nil
}

// Name derives a directory name for the clone, e.g. "debloat" for
// https://example.com/me/debloat.git#main, suffixed with the ref when set.
func (r Remote) Name() string {
	p := r.URL
	if u, err := url.Parse(r.URL); err == nil && u.Path != "" {
		p = u.Path
	}
	base := strings.TrimSuffix(path.Base(strings.TrimRight(p, "/")), ".git")
	if base == "" || base == "." || base == "/" {
		base = "patch"
	}
	if r.Ref != "" {
		base += "@" + strings.ReplaceAll(r.Ref, "/", "-")
	}
	return base
}

// String renders the remote back in patch-entry form.
func (r Remote) String() string {
	if r.Ref == "" {
		return Prefix + r.URL
	}
	return Prefix + r.URL + "#" + r.Ref
}

func (r Remote) isLocal() bool {
	if strings.HasPrefix(r.URL, "file://") {
		return true
	}
	return !strings.Contains(r.URL, "://") && !strings.Contains(r.URL, "@")
}
