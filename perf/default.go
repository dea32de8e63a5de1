package perf

import "sync"

// The package-level default exists for hosts that want one controller
// shared across subsystems without threading it everywhere. The
// application root still owns construction and lifecycle: it builds the
// controller, installs it with SetDefault, and disposes it at shutdown.
var (
	defaultMu   sync.Mutex
	defaultCtrl *Controller
)

// Default returns the installed default controller, or nil if none has
// been installed.
func Default() *Controller {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultCtrl
}

// SetDefault installs c as the package default and returns the previous
// one (which the caller remains responsible for disposing). Pass nil to
// clear; tests use this to isolate state.
func SetDefault(c *Controller) (prev *Controller) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	prev = defaultCtrl
	defaultCtrl = c
	return prev
}
