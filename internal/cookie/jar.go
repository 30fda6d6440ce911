package cookie

import (
	"sync"
	"time"
)

// SetTokens stores a freshly issued token pair. An empty refresh token
// keeps whatever refresh token is already stored.
func SetTokens(jar Jar, accessToken string, refreshToken string, accessTTL time.Duration, refreshTTL time.Duration) {
	jar.Set(AccessTokenCookie, accessToken, accessTTL)
	if refreshToken != "" {
		jar.Set(RefreshTokenCookie, refreshToken, refreshTTL)
	}
}

// Clear deletes every slot. Used whenever credentials can no longer be
// trusted so the browser is forced through a fresh login.
func Clear(jar Jar) {
	for _, name := range Names {
		jar.Delete(name)
	}
}

// MemoryJar is a map-backed Jar for tests and non-HTTP callers.
type MemoryJar struct {
	mu      sync.Mutex
	values  map[string]string
	ttls    map[string]time.Duration
	deleted map[string]int
}

func NewMemoryJar(initial map[string]string) *MemoryJar {
	values := make(map[string]string, len(initial))
	for k, v := range initial {
		values[k] = v
	}

	return &MemoryJar{
		values:  values,
		ttls:    map[string]time.Duration{},
		deleted: map[string]int{},
	}
}

func (j *MemoryJar) Get(name string) (string, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	v, ok := j.values[name]
	return v, ok && v != ""
}

func (j *MemoryJar) Set(name string, value string, ttl time.Duration) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.values[name] = value
	j.ttls[name] = ttl
}

func (j *MemoryJar) Delete(name string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	delete(j.values, name)
	delete(j.ttls, name)
	j.deleted[name]++
}

// TTL reports the lifetime passed to the last Set for name.
func (j *MemoryJar) TTL(name string) time.Duration {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.ttls[name]
}

// Deleted reports how many times name was deleted.
func (j *MemoryJar) Deleted(name string) int {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.deleted[name]
}

// Empty reports whether no slot holds a value.
func (j *MemoryJar) Empty() bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	for _, name := range Names {
		if j.values[name] != "" {
			return false
		}
	}
	return true
}
