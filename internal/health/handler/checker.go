package handler

import (
	"context"
	"sort"
	"time"
)

const defaultCheckTimeout = 2 * time.Second

// Pinger reports whether a dependency is reachable. *pgxpool.Pool and *denylist.RedisDenylist
// satisfy it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker runs the readiness checks of named dependencies.
type Checker struct {
	names   []string
	checks  map[string]Pinger
	timeout time.Duration
}

// NewChecker returns a Checker with no dependencies. timeout bounds each check; zero uses 2s.
func NewChecker(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}
	return &Checker{checks: make(map[string]Pinger), timeout: timeout}
}

// Add registers p under name. A nil p is ignored.
func (c *Checker) Add(name string, p Pinger) *Checker {
	if p == nil {
		return c
	}
	if _, ok := c.checks[name]; !ok {
		c.names = append(c.names, name)
		sort.Strings(c.names)
	}
	c.checks[name] = p
	return c
}

// Check pings every dependency and returns a per-dependency result ("ok" or the error text) and
// whether all of them succeeded.
func (c *Checker) Check(ctx context.Context) (map[string]string, bool) {
	results := make(map[string]string, len(c.names))
	ready := true
	for _, name := range c.names {
		pctx, cancel := context.WithTimeout(ctx, c.timeout)
		err := c.checks[name].Ping(pctx)
		cancel()
		if err != nil {
			results[name] = err.Error()
			ready = false
			continue
		}
		results[name] = "ok"
	}
	return results, ready
}
