package wizard

import (
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

// Factory builds the controller for a new session id
type Factory func(id string) *Controller

// Registry holds live sessions. Idle sessions expire after the TTL and their
// event subscribers are closed.
type Registry struct {
	sessions *gocache.Cache
	factory  Factory
}

// NewRegistry creates a registry. A ttl of zero keeps sessions forever.
func NewRegistry(ttl time.Duration, factory Factory) *Registry {
	cleanup := ttl / 2
	if ttl <= 0 {
		ttl = gocache.NoExpiration
		cleanup = 0
	}
	sessions := gocache.New(ttl, cleanup)
	sessions.OnEvicted(func(_ string, v interface{}) {
		if ctrl, ok := v.(*Controller); ok {
			ctrl.Close()
		}
	})
	return &Registry{sessions: sessions, factory: factory}
}

// Create starts a new session.
func (r *Registry) Create() *Controller {
	ctrl := r.factory(uuid.NewString())
	r.sessions.SetDefault(ctrl.ID(), ctrl)
	return ctrl
}

// Get returns a live session and refreshes its expiry.
func (r *Registry) Get(id string) (*Controller, bool) {
	v, ok := r.sessions.Get(id)
	if !ok {
		return nil, false
	}
	ctrl := v.(*Controller)
	r.sessions.SetDefault(id, ctrl)
	return ctrl, true
}

// Delete ends a session.
func (r *Registry) Delete(id string) bool {
	if _, ok := r.sessions.Get(id); !ok {
		return false
	}
	r.sessions.Delete(id)
	return true
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	return r.sessions.ItemCount()
}
