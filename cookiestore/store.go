package cookiestore

import "sync"

// Store binds the jar functions to one file and serializes access to it.
// It is safe for concurrent use within a process.
type Store struct {
	mu   sync.RWMutex
	path string
}

// NewStore returns a Store for path. An empty path selects DefaultPath.
func NewStore(path string) *Store {
	if path == "" {
		path = DefaultPath()
	}
	return &Store{path: path}
}

// Path returns the cookie file location.
func (s *Store) Path() string { return s.path }

// Load reads the persisted jar.
func (s *Store) Load() (*Jar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Load(s.path)
}

// Save replaces the persisted jar.
func (s *Store) Save(jar *Jar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Save(jar, s.path)
}

// Replace parses a raw cookie header and persists it as the new jar.
func (s *Store) Replace(header, domain string) (*Jar, error) {
	jar := FromHeaderString(header, domain)
	if err := s.Save(jar); err != nil {
		return nil, err
	}
	return jar, nil
}

// Clear removes the persisted jar.
func (s *Store) Clear() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Clear(s.path)
}
