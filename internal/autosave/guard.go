package autosave

import "sync"

// Interceptor installs a leave-confirmation hook, such as a browser
// beforeunload handler or a Ctrl-C prompt. The returned func removes it.
type Interceptor interface {
	Register() (release func())
}

// InterceptorFunc adapts a function to Interceptor.
type InterceptorFunc func() (release func())

// Register implements Interceptor.
func (f InterceptorFunc) Register() func() { return f() }

// Guard keeps an Interceptor registered exactly while a session has unsaved
// changes.
type Guard struct {
	mu      sync.Mutex
	icpt    Interceptor
	release func()
	closed  bool
}

// NewGuard returns a Guard over icpt. Nothing is registered until Set(true).
func NewGuard(icpt Interceptor) *Guard {
	return &Guard{icpt: icpt}
}

// Observe is suitable for WithObserver.
func (g *Guard) Observe(s Status) {
	g.Set(s.HasUnsavedChanges)
}

// Set registers or releases the interceptor to follow unsaved.
func (g *Guard) Set(unsaved bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	switch {
	case unsaved && g.release == nil:
		g.release = g.icpt.Register()
		if g.release == nil {
			g.release = func() {}
		}
	case !unsaved && g.release != nil:
		g.release()
		g.release = nil
	}
}

// Active reports whether the interceptor is registered.
func (g *Guard) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.release != nil
}

// Close releases any registration and ignores later updates.
func (g *Guard) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	if g.release != nil {
		g.release()
		g.release = nil
	}
}
