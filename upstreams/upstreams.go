// Package upstreams holds the statically configured backend groups a
// gateway may route to without consulting DNS.
package upstreams

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrGroupNotFound is returned when no backend group matches a name.
var ErrGroupNotFound = errors.New("backend group not found")

// Group is a named set of static backend peers in "host:port" form.
// Peer order is preserved through lookups.
type Group struct {
	Name  string   `yaml:"name"`
	Peers []string `yaml:"peers"`
}

// Registry maps bare service names to their backend groups. Lookups
// are concurrency-safe; loading replaces the full group set.
type Registry struct {
	lock   sync.RWMutex
	groups map[string][]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		groups: make(map[string][]string),
	}
}

// GetPrimaryPeers returns the peers of the named group in insertion
// order.
func (r *Registry) GetPrimaryPeers(name string) ([]string, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	peers, ok := r.groups[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrGroupNotFound, name)
	}
	return peers, nil
}

// SetGroup adds or replaces a single group.
func (r *Registry) SetGroup(name string, peers []string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.groups[name] = peers
}

type groupsFile struct {
	Groups []Group `yaml:"groups"`
}

// LoadFile replaces all groups with the contents of a YAML file.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return r.Load(data)
}

// Load replaces all groups with those of the given YAML document.
func (r *Registry) Load(data []byte) error {
	var file groupsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse backend groups: %w", err)
	}

	groups := make(map[string][]string, len(file.Groups))
	for _, group := range file.Groups {
		groups[group.Name] = group.Peers
	}

	r.lock.Lock()
	defer r.lock.Unlock()
	r.groups = groups
	return nil
}
