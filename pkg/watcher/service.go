// Package watcher polls files by modification time so long-running
// services pick up catalog and config edits without a restart.
package watcher

import (
	"os"
	"sync"
	"time"
)

// Service monitors a set of files. Missing files are tolerated; they
// count as changed once they appear.
type Service struct {
	paths []string

	mu   sync.Mutex
	seen map[string]time.Time
}

// NewService creates a monitor over the given files. The current
// modification times become the baseline, so files edited before the
// service started do not report as changed.
func NewService(paths ...string) *Service {
	s := &Service{
		paths: paths,
		seen:  make(map[string]time.Time, len(paths)),
	}
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil {
			s.seen[p] = info.ModTime()
		}
	}
	return s
}

// Changed returns the monitored paths modified or created since the
// previous check. A path that disappears stays quiet until it returns.
func (s *Service) Changed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed []string
	for _, p := range s.paths {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		mod := info.ModTime()
		last, known := s.seen[p]
		if !known || mod.After(last) {
			s.seen[p] = mod
			changed = append(changed, p)
		}
	}
	return changed
}
