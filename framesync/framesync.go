// Package framesync pairs independently arriving image and scan events
// whose capture times fall within a bounded tolerance window.
package framesync

import (
	"sync"
	"time"

	"github.com/russelldj/semantic-slam/iface"
)

// Pair is one synchronized image/scan match. Ownership of the image Mat
// passes to the consumer.
type Pair struct {
	Image iface.ImageEvent
	Scan  iface.ScanEvent
}

// Synchronizer buffers at most one unpaired event per stream and at most
// one completed pairing. Older unmatched events are discarded rather than
// queued; a new pairing formed before the previous one is consumed
// replaces it.
type Synchronizer struct {
	mu     sync.Mutex
	slop   time.Duration
	image  *iface.ImageEvent
	scan   *iface.ScanEvent
	out    chan Pair
	closed bool
}

func New(slop time.Duration) *Synchronizer {
	return &Synchronizer{
		slop: slop,
		out:  make(chan Pair, 1),
	}
}

// Pairs delivers synchronized pairs, one in flight at a time.
func (s *Synchronizer) Pairs() <-chan Pair {
	return s.out
}

// AddImage offers a new image event, replacing any pending one.
func (s *Synchronizer) AddImage(ev iface.ImageEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		_ = ev.Image.Close()
		return
	}
	if s.image != nil {
		_ = s.image.Image.Close()
	}
	s.image = &ev
	s.tryPair()
}

// AddScan offers a new scan event, replacing any pending one.
func (s *Synchronizer) AddScan(ev iface.ScanEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.scan = &ev
	s.tryPair()
}

// tryPair runs with the mutex held.
func (s *Synchronizer) tryPair() {
	if s.image == nil || s.scan == nil {
		return
	}
	d := s.image.Stamp.Sub(s.scan.Stamp)
	if d < 0 {
		d = -d
	}
	if d > s.slop {
		// Discard the older message; the newer one waits for a closer
		// partner.
		if s.image.Stamp.Before(s.scan.Stamp) {
			_ = s.image.Image.Close()
			s.image = nil
		} else {
			s.scan = nil
		}
		return
	}
	p := Pair{Image: *s.image, Scan: *s.scan}
	s.image, s.scan = nil, nil
	select {
	case s.out <- p:
	default:
		// A pairing is already waiting; replace it, no backlog.
		select {
		case old := <-s.out:
			_ = old.Image.Image.Close()
		default:
		}
		s.out <- p
	}
}

// Close stops pairing and releases anything pending.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.image != nil {
		_ = s.image.Image.Close()
		s.image = nil
	}
	s.scan = nil
	select {
	case old := <-s.out:
		_ = old.Image.Image.Close()
	default:
	}
	close(s.out)
}
