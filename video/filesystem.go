package video

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// Per-event file names. The Nth record of the vector file, the Nth raw
// frame and the corresponding video timestamp all describe the same
// real-world instant.
const (
	VectorFile = "clip_vect.dat"
	VideoFile  = "clip.h264"
	RawFile    = "clip.dat"
)

var eventNamePattern = regexp.MustCompile(`^event_[0-9]+$`)

// IsEventDir reports whether name follows the synthetic event naming
// convention.
func IsEventDir(name string) bool {
	return eventNamePattern.MatchString(name)
}

// EventStore allocates event directories under a base path using
// monotonically increasing synthetic names.
type EventStore struct {
	BasePath string

	counter int
}

func NewEventStore(base string) (*EventStore, error) {
	if err := os.MkdirAll(base, 0755); err != nil {
		return nil, err
	}
	return &EventStore{BasePath: base}, nil
}

// NewEventDir creates and returns the next unoccupied event directory.
func (s *EventStore) NewEventDir() (string, error) {
	for {
		name := fmt.Sprintf("event_%d", s.counter)
		s.counter++
		path := filepath.Join(s.BasePath, name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return "", err
		}
		return path, nil
	}
}

// Path returns the directory for an event name under the store's base.
func (s *EventStore) Path(name string) string {
	return filepath.Join(s.BasePath, name)
}

// Delete removes an event directory. Paths whose final element does not
// match the event naming convention are refused, protecting against a
// misrouted path deleting unrelated data.
func (s *EventStore) Delete(dir string) error {
	if !IsEventDir(filepath.Base(dir)) {
		return fmt.Errorf("refusing to delete %v: not an event directory", dir)
	}
	return os.RemoveAll(dir)
}
