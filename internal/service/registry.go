package service

import (
	"sort"
	"sync"

	"github.com/GoPolymarket/extgate/internal/config"
	"github.com/GoPolymarket/extgate/internal/descriptor"
	"github.com/GoPolymarket/extgate/internal/pkg/apperrors"
)

// Registry holds one Client per configured service key.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*Client)}
}

// BuildRegistry loads the descriptors of keys from src and constructs a
// client for each with opts. Any configuration error aborts the build.
func BuildRegistry(src config.Source, keys []string, opts ...Option) (*Registry, error) {
	descs, err := descriptor.LoadAll(src, keys)
	if err != nil {
		return nil, err
	}
	r := NewRegistry()
	for _, d := range descs {
		c, err := NewClient(d, opts...)
		if err != nil {
			return nil, err
		}
		r.Add(c)
	}
	return r, nil
}

func (r *Registry) Add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.desc.Key] = c
}

func (r *Registry) Get(service string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[service]
	return c, ok
}

// Lookup returns the client of service or a not-found error.
func (r *Registry) Lookup(service string) (*Client, error) {
	c, ok := r.Get(service)
	if !ok {
		return nil, apperrors.New(apperrors.ErrNotFound, "unknown service "+service, nil)
	}
	return c, nil
}

// Keys lists the registered services in order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.clients))
	for k := range r.clients {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Default audit store names used when a service names none.
const (
	DefaultRequestStore  = "request_logs"
	DefaultResponseStore = "response_logs"
)

// AuditStoreNames returns the request and response store names of d.
func AuditStoreNames(d *descriptor.Descriptor) (requests, responses string) {
	requests, responses = d.Logging.RequestStore, d.Logging.ResponseStore
	if requests == "" {
		requests = DefaultRequestStore
	}
	if responses == "" {
		responses = DefaultResponseStore
	}
	return requests, responses
}
