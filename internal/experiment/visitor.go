package experiment

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/truecheckia/splitkit/internal/storage"
)

const (
	// SessionCookie carries the visitor session id.
	SessionCookie = "truecheckia_session"
	// CookieMaxAge is the lifetime of session and assignment cookies.
	CookieMaxAge = 30 * 24 * time.Hour
)

var ErrNoCookie = errors.New("cookie not set")

// AssignmentCookie names the cookie holding the variant of experimentID.
func AssignmentCookie(experimentID string) string {
	return "exp_" + experimentID
}

// Jar reads and writes visitor cookies.
type Jar interface {
	Get(name string) (string, error)
	Set(name, value string, maxAge time.Duration) error
}

// Visitor is everything the engine knows about the current browser.
type Visitor struct {
	Jar       Jar
	URL       string
	UserAgent string
	Referrer  string
	// Storage holds visitor state such as the conversion ring buffer. It is
	// already scoped to the visitor; nil disables local state.
	Storage storage.Storage
}

// MemoryJar is a Jar backed by a map.
type MemoryJar struct {
	mu      sync.Mutex
	cookies map[string]string
	// Fail makes every Set return an error, to exercise degraded paths.
	Fail bool
}

func NewMemoryJar() *MemoryJar {
	return &MemoryJar{cookies: make(map[string]string)}
}

func (j *MemoryJar) Get(name string) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	v, ok := j.cookies[name]
	if !ok {
		return "", ErrNoCookie
	}
	return v, nil
}

func (j *MemoryJar) Set(name, value string, _ time.Duration) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.Fail {
		return errors.New("cookie storage unavailable")
	}
	j.cookies[name] = value
	return nil
}

// HTTPJar reads cookies from a request and writes them to the response.
// Cookies set during the request are visible to later Gets.
type HTTPJar struct {
	w       http.ResponseWriter
	r       *http.Request
	secure  bool
	mu      sync.Mutex
	pending map[string]string
}

func NewHTTPJar(w http.ResponseWriter, r *http.Request) *HTTPJar {
	return &HTTPJar{w: w, r: r, secure: r.TLS != nil, pending: make(map[string]string)}
}

func (j *HTTPJar) Get(name string) (string, error) {
	j.mu.Lock()
	v, ok := j.pending[name]
	j.mu.Unlock()
	if ok {
		return v, nil
	}

	c, err := j.r.Cookie(name)
	if err != nil {
		return "", ErrNoCookie
	}
	return c.Value, nil
}

func (j *HTTPJar) Set(name, value string, maxAge time.Duration) error {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge / time.Second),
		Secure:   j.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if err := c.Valid(); err != nil {
		return err
	}
	http.SetCookie(j.w, c)

	j.mu.Lock()
	j.pending[name] = value
	j.mu.Unlock()
	return nil
}
