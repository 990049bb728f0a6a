package roster

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultSessionKey stands in for the server's default (unnamed) session.
const DefaultSessionKey = "default"

// NameCache persists the display name last used for each session in a small YAML file.
type NameCache struct {
	Path string
}

type nameCacheFile struct {
	Names map[string]string `yaml:"names"`
}

// DefaultNameCachePath is <user cache dir>/chatcollab/names.yaml.
func DefaultNameCachePath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("locate cache dir: %w", err)
	}
	return filepath.Join(dir, "chatcollab", "names.yaml"), nil
}

func (c NameCache) read() (nameCacheFile, error) {
	var file nameCacheFile
	data, err := os.ReadFile(c.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return file, nil
	}
	if err != nil {
		return file, fmt.Errorf("read name cache: %w", err)
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return file, fmt.Errorf("parse name cache: %w", err)
	}
	return file, nil
}

func sessionKey(session string) string {
	if s := strings.TrimSpace(session); s != "" {
		return s
	}
	return DefaultSessionKey
}

// Get returns the cached name for session, or "" when none is stored.
func (c NameCache) Get(session string) (string, error) {
	if c.Path == "" {
		return "", nil
	}
	file, err := c.read()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(file.Names[sessionKey(session)]), nil
}

// Put stores name for session, creating the cache file if needed.
func (c NameCache) Put(session, name string) error {
	if c.Path == "" {
		return nil
	}
	file, err := c.read()
	if err != nil {
		// An unreadable cache is replaced rather than blocking the session.
		file = nameCacheFile{}
	}
	if file.Names == nil {
		file.Names = map[string]string{}
	}
	file.Names[sessionKey(session)] = strings.TrimSpace(name)

	data, err := yaml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode name cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.Path), 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	if err := os.WriteFile(c.Path, data, 0o644); err != nil {
		return fmt.Errorf("write name cache: %w", err)
	}
	return nil
}

// ResolveUsername picks the explicit name, then the cached name for session, then fallback.
// The chosen name is written back to the cache. Cache failures never block resolution; the
// returned error is informational.
func ResolveUsername(explicit, session, fallback string, cache NameCache) (string, error) {
	name := strings.TrimSpace(explicit)
	var cacheErr error
	if name == "" {
		cached, err := cache.Get(session)
		cacheErr = err
		name = cached
	}
	if name == "" {
		name = strings.TrimSpace(fallback)
	}
	if name == "" {
		return "", errors.New("no username available")
	}
	if err := cache.Put(session, name); err != nil && cacheErr == nil {
		cacheErr = err
	}
	return name, cacheErr
}
