// Package access decides whether a screen may render for the current
// session. Decide is pure: no network, no mutation.
package access

import (
	"fmt"
	"sort"
	"strings"

	"apex-trader/internal/session"
)

// Capability is what a screen requires from the session.
type Capability int

const (
	None Capability = iota
	Authenticated
	Admin
)

func (c Capability) String() string {
	switch c {
	case None:
		return "none"
	case Authenticated:
		return "authenticated"
	case Admin:
		return "admin"
	default:
		return fmt.Sprintf("Capability(%d)", int(c))
	}
}

const (
	HomePath  = "/"
	LoginPath = "/login"
)

// Decision is the outcome of a gate check. When Render is false and
// Redirect is empty the caller shows a neutral loading state.
type Decision struct {
	Render   bool
	Redirect string
	// ReturnTo is the originally requested location, set on redirects to
	// the login screen so a successful login can go back there.
	ReturnTo string
}

// Loading reports whether the caller must wait for the session to resolve.
func (d Decision) Loading() bool { return !d.Render && d.Redirect == "" }

// Decide maps the session state and a screen's requirement to a decision.
// Screens without requirements always render, even while the session is
// loading.
func Decide(s session.State, required Capability, requested string) Decision {
	if required == None {
		return Decision{Render: true}
	}
	if s.Phase == session.Loading {
		return Decision{}
	}
	switch required {
	case Authenticated:
		if !s.IsAuthenticated() {
			return Decision{Redirect: LoginPath, ReturnTo: requested}
		}
	case Admin:
		if !s.IsAdmin() {
			return Decision{Redirect: HomePath}
		}
	}
	return Decision{Render: true}
}

// Routes is the client route surface.
var Routes = map[string]Capability{
	"/":           None,
	"/login":      None,
	"/signup":     None,
	"/news":       None,
	"/portfolio":  Authenticated,
	"/assets":     Authenticated,
	"/analysis":   Authenticated,
	"/historical": Authenticated,
	"/report":     Authenticated,
	"/admin":      Admin,
}

// Lookup returns the requirement of a route. Query strings and trailing
// slashes are ignored.
func Lookup(path string) (Capability, bool) {
	p := Normalize(path)
	c, ok := Routes[p]
	return c, ok
}

// Normalize strips the query string and any trailing slash.
func Normalize(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	return path
}

// Navigate gates a route by path. Unknown paths are an error.
func Navigate(s session.State, path string) (Decision, error) {
	c, ok := Lookup(path)
	if !ok {
		return Decision{}, fmt.Errorf("unknown route %q", path)
	}
	return Decide(s, c, path), nil
}

// Menu lists the routes visible to the state, sorted by path.
func Menu(s session.State) []string {
	var out []string
	for p, c := range Routes {
		switch c {
		case Authenticated:
			if !s.IsAuthenticated() {
				continue
			}
		case Admin:
			if !s.IsAdmin() {
				continue
			}
		}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
