package radio

import (
	"sync"
	"sync/atomic"

	"example.com/sdrmodel/internal/vita"
)

// Session is the connection scoped context the model needs: the handle the
// radio assigned to this client and the negotiated API version.
type Session struct {
	handle atomic.Uint32

	mu     sync.RWMutex
	major  int
	minor  int
	pinned bool
}

func NewSession() *Session {
	return &Session{}
}

func (s *Session) ClientHandle() uint32 {
	return s.handle.Load()
}

func (s *Session) SetClientHandle(h uint32) {
	s.handle.Store(h)
}

// APIVersion returns the negotiated major and minor version.
func (s *Session) APIVersion() (major, minor int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.major, s.minor
}

// SetAPIVersion records the version announced by the radio. It has no
// effect once the version has been pinned.
func (s *Session) SetAPIVersion(major, minor int) {
	s.mu.Lock()
	if !s.pinned {
		s.major, s.minor = major, minor
	}
	s.mu.Unlock()
}

// PinAPIVersion fixes the version regardless of what the radio announces.
func (s *Session) PinAPIVersion(major, minor int) {
	s.mu.Lock()
	s.major, s.minor = major, minor
	s.pinned = true
	s.mu.Unlock()
}

// Layout returns the payload header layout for the negotiated version.
func (s *Session) Layout() vita.Layout {
	return vita.LayoutFor(s.APIVersion())
}

// Legacy reports whether the radio runs pre-2.0 firmware.
func (s *Session) Legacy() bool {
	return s.Layout() == vita.LayoutLegacy
}
