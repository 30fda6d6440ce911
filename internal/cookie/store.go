// Package cookie persists the three session artifacts (session record,
// access token, refresh token) as HTTP-only cookies with independent
// lifetimes.
package cookie

import (
	"net/http"
	"strings"
	"time"
)

const (
	SessionCookie      = "mps_session"
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
)

// Names lists every slot managed by the store.
var Names = []string{SessionCookie, AccessTokenCookie, RefreshTokenCookie}

// Reader is the read-only view handed to render paths.
type Reader interface {
	Get(name string) (string, bool)
}

// Jar is the mutable view. Only code that can still write response
// headers may hold one.
type Jar interface {
	Reader
	Set(name string, value string, ttl time.Duration)
	Delete(name string)
}

type Options struct {
	Secure     bool
	SessionTTL time.Duration
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type Store struct {
	opts Options
}

func NewStore(opts Options) *Store {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 8 * time.Hour
	}
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = 15 * time.Minute
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = 7 * 24 * time.Hour
	}

	return &Store{opts: opts}
}

// TTL returns the configured max-age for a slot.
func (s *Store) TTL(name string) time.Duration {
	switch name {
	case SessionCookie:
		return s.opts.SessionTTL
	case AccessTokenCookie:
		return s.opts.AccessTTL
	case RefreshTokenCookie:
		return s.opts.RefreshTTL
	default:
		return 0
	}
}

// Bind returns a jar scoped to one request/response pair.
func (s *Store) Bind(w http.ResponseWriter, r *http.Request) *RequestJar {
	return &RequestJar{
		store:   s,
		w:       w,
		r:       r,
		overlay: map[string]*string{},
	}
}

func (s *Store) ReadOnly(r *http.Request) Reader {
	return FromRequest(r)
}

// FromRequest reads the cookies sent with r.
func FromRequest(r *http.Request) Reader {
	return requestReader{r: r}
}

func (s *Store) cookie(name string, value string, ttl time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	}

	if ttl < 0 {
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
		return c
	}

	c.MaxAge = int(ttl / time.Second)
	c.Expires = time.Now().Add(ttl).UTC()
	return c
}

// RequestJar writes Set-Cookie headers and keeps an in-memory overlay so
// reads later in the same request see the values written earlier.
type RequestJar struct {
	store   *Store
	w       http.ResponseWriter
	r       *http.Request
	overlay map[string]*string
}

func (j *RequestJar) Get(name string) (string, bool) {
	if v, ok := j.overlay[name]; ok {
		if v == nil {
			return "", false
		}
		return *v, true
	}

	return readCookie(j.r, name)
}

func (j *RequestJar) Set(name string, value string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = j.store.TTL(name)
	}

	j.replaceHeader(name, j.store.cookie(name, value, ttl))
	j.overlay[name] = &value
}

func (j *RequestJar) Delete(name string) {
	j.replaceHeader(name, j.store.cookie(name, "", -1))
	j.overlay[name] = nil
}

// replaceHeader drops an earlier Set-Cookie for the same name so a
// refresh followed by another write in one request emits a single value.
func (j *RequestJar) replaceHeader(name string, c *http.Cookie) {
	header := j.w.Header()
	existing := header.Values("Set-Cookie")
	kept := existing[:0:0]
	for _, line := range existing {
		if strings.HasPrefix(line, name+"=") {
			continue
		}
		kept = append(kept, line)
	}

	header.Del("Set-Cookie")
	for _, line := range kept {
		header.Add("Set-Cookie", line)
	}
	if v := c.String(); v != "" {
		header.Add("Set-Cookie", v)
	}
}

type requestReader struct {
	r *http.Request
}

func (rr requestReader) Get(name string) (string, bool) {
	return readCookie(rr.r, name)
}

func readCookie(r *http.Request, name string) (string, bool) {
	if r == nil {
		return "", false
	}

	c, err := r.Cookie(name)
	if err != nil || strings.TrimSpace(c.Value) == "" {
		return "", false
	}

	return c.Value, true
}
