// Package binpath locates coding-agent CLI binaries on disk. Resolution
// runs three strategies in order of cost: well-known paths, a PATH scan
// (process PATH merged with the login-shell PATH), and finally a
// which/where lookup through a real login shell. Successful resolutions are
// cached with a TTL and revalidated by an existence check before reuse, so
// an uninstalled binary falls out of the cache.
package binpath

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// DefaultTTL is how long a successful resolution stays cached.
const DefaultTTL = 5 * time.Minute

// shellTimeout bounds login-shell invocations (PATH probe and which/where).
const shellTimeout = 5 * time.Second

// NotFoundError reports that every strategy was exhausted for all candidate
// names.
type NotFoundError struct {
	Candidates []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("binary not found: %s", strings.Join(e.Candidates, ", "))
}

type cachedPath struct {
	path    string
	expires time.Time
}

// Resolver resolves candidate binary names to absolute paths.
type Resolver struct {
	logger    *slog.Logger
	cache     map[string]cachedPath
	shellPath string
	ttl       time.Duration
	mu        sync.Mutex
	shellOnce sync.Once
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithTTL overrides the cache TTL.
func WithTTL(ttl time.Duration) Option {
	return func(r *Resolver) { r.ttl = ttl }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// NewResolver creates a Resolver.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		cache: make(map[string]cachedPath),
		ttl:   DefaultTTL,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.logger = r.logger.With("component", "binpath")
	return r
}

// Resolve returns the first existing absolute path for the ordered candidate
// names, checking extraPaths (well-known install locations) before PATH.
// The cache is keyed by the first candidate name.
func (r *Resolver) Resolve(ctx context.Context, candidates []string, extraPaths []string) (string, error) {
	if len(candidates) == 0 {
		return "", &NotFoundError{}
	}

	cacheKey := candidates[0]
	if path, ok := r.cached(cacheKey); ok {
		return path, nil
	}

	// Strategy 1: well-known paths, a direct existence check each.
	for _, p := range extraPaths {
		p = expandHome(p)
		if isExecutable(p) {
			return r.store(cacheKey, p), nil
		}
	}

	// Strategy 2: scan deduplicated directories from the combined process
	// PATH and the lazily-resolved login-shell PATH.
	for _, dir := range r.searchDirs() {
		for _, name := range candidates {
			for _, file := range executableNames(name) {
				p := filepath.Join(dir, file)
				if isExecutable(p) {
					return r.store(cacheKey, p), nil
				}
			}
		}
	}

	// Strategy 3: platform-native which/where through a login shell. Most
	// expensive, last resort.
	for _, name := range candidates {
		if p := r.shellLookup(ctx, name); p != "" {
			return r.store(cacheKey, p), nil
		}
	}

	r.logger.Debug("binary resolution exhausted", "candidates", candidates)
	return "", &NotFoundError{Candidates: append([]string(nil), candidates...)}
}

// cached returns a still-valid cache entry, revalidating that the file
// still exists (handles uninstalls between resolutions).
func (r *Resolver) cached(key string) (string, bool) {
	r.mu.Lock()
	entry, ok := r.cache[key]
	r.mu.Unlock()

	if !ok || time.Now().After(entry.expires) {
		return "", false
	}
	if !isExecutable(entry.path) {
		r.mu.Lock()
		delete(r.cache, key)
		r.mu.Unlock()
		return "", false
	}
	return entry.path, true
}

func (r *Resolver) store(key, path string) string {
	r.mu.Lock()
	r.cache[key] = cachedPath{path: path, expires: time.Now().Add(r.ttl)}
	r.mu.Unlock()
	return path
}

// searchDirs merges the process PATH with the login-shell PATH, preserving
// order and dropping duplicates.
func (r *Resolver) searchDirs() []string {
	combined := os.Getenv("PATH") + string(os.PathListSeparator) + r.loginShellPath()

	seen := make(map[string]struct{})
	var dirs []string
	for _, dir := range filepath.SplitList(combined) {
		if dir == "" {
			continue
		}
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		dirs = append(dirs, dir)
	}
	return dirs
}

// loginShellPath resolves PATH as seen by a login shell, once per process.
// GUI-launched processes often inherit a minimal PATH that misses
// version-manager shims (nvm, asdf), which is where agent CLIs tend to live.
func (r *Resolver) loginShellPath() string {
	r.shellOnce.Do(func() {
		if runtime.GOOS == "windows" {
			return
		}
		shell := os.Getenv("SHELL")
		if shell == "" {
			shell = "/bin/sh"
		}
		ctx, cancel := context.WithTimeout(context.Background(), shellTimeout)
		defer cancel()

		out, err := exec.CommandContext(ctx, shell, "-l", "-c", "echo $PATH").Output()
		if err != nil {
			r.logger.Debug("login shell PATH probe failed", "shell", shell, "error", err)
			return
		}
		r.shellPath = strings.TrimSpace(string(out))
	})
	return r.shellPath
}

// shellLookup runs which/where through a login shell, timeboxed.
func (r *Resolver) shellLookup(ctx context.Context, name string) string {
	lookupCtx, cancel := context.WithTimeout(ctx, shellTimeout)
	defer cancel()

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(lookupCtx, "cmd.exe", "/c", "where "+name)
	} else {
		shell := os.Getenv("SHELL")
		if shell == "" {
			shell = "/bin/sh"
		}
		cmd = exec.CommandContext(lookupCtx, shell, "-l", "-c", "which "+name)
	}

	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	// where can print multiple matches; the first line wins either way.
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	line = strings.TrimSpace(line)
	if line == "" || !isExecutable(line) {
		return ""
	}
	return line
}

// executableNames returns the filenames to probe for a candidate name.
func executableNames(name string) []string {
	if runtime.GOOS != "windows" {
		return []string{name}
	}
	return []string{name + ".exe", name + ".cmd", name + ".bat", name}
}

// isExecutable reports whether path exists, is a regular file, and (on
// POSIX) has an execute bit set.
func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode()&0o111 != 0
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
