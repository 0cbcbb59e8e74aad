package navigation

import (
	"errors"
	"sync/atomic"
	"time"
)

// Manager holds the active menu. Reads are lock free.
type Manager struct {
	active atomic.Pointer[Menu]
}

func NewManager() *Manager { return &Manager{} }

// Set swaps in m as the active menu.
func (mg *Manager) Set(m Menu) {
	cp := new(Menu)
	*cp = m
	if cp.BuiltAt.IsZero() {
		cp.BuiltAt = time.Now().UTC()
	}
	mg.active.Store(cp)
}

// Get returns the active menu, false before the first Set.
func (mg *Manager) Get() (*Menu, bool) {
	m := mg.active.Load()
	return m, m != nil
}

// BuiltAt returns when the active menu was assembled, or zero.
func (mg *Manager) BuiltAt() time.Time {
	m := mg.active.Load()
	if m == nil {
		return time.Time{}
	}
	return m.BuiltAt
}

// ReadyErr returns an error until a menu has been set.
func (mg *Manager) ReadyErr() error {
	if _, ok := mg.Get(); !ok {
		return errors.New("navigation: no menu loaded")
	}
	return nil
}
