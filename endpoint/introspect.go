package endpoint

import (
	"context"
	"sync"

	"github.com/ivanders/scalopus/wire"
)

// IntrospectName is the fixed registration name of the Introspect endpoint,
// present on every Transport so a fresh peer can discover what else it
// offers before issuing any other request.
const IntrospectName = "introspect"

// Introspect answers requests with the list of endpoint names currently
// registered on its Transport. The list is supplied by a lister callback
// rather than captured at construction time, since the Transport usually
// creates its Introspect endpoint before every other endpoint exists.
type Introspect struct {
	mu     sync.RWMutex
	lister func() []string
}

// NewIntrospect returns an Introspect endpoint. SetLister must be called
// once the owning Transport knows how to enumerate its endpoints.
func NewIntrospect() *Introspect {
	return &Introspect{lister: func() []string { return nil }}
}

// SetLister installs the callback used to answer requests.
func (i *Introspect) SetLister(lister func() []string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.lister = lister
}

func (i *Introspect) Name() string { return IntrospectName }

func (i *Introspect) HandleRequest(_ context.Context, _ []byte) ([]byte, error) {
	i.mu.RLock()
	lister := i.lister
	i.mu.RUnlock()

	resp := wire.IntrospectResponse{Endpoints: lister()}
	return wire.MarshalControl(resp)
}
