package endpoint

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ivanders/scalopus/wire"
)

// ProcessInfoName is the fixed registration name of the ProcessInfo
// endpoint.
const ProcessInfoName = "process_info"

// ProcessInfo answers requests with the serving process's pid, a display
// name, and the set of traced threads it knows about (thread id to name,
// updated externally via SetThread as producers come and go).
type ProcessInfo struct {
	mu      sync.RWMutex
	name    string
	threads map[string]string
}

// NewProcessInfo returns a ProcessInfo endpoint reporting name as the
// process's display name (the running executable's basename if empty).
func NewProcessInfo(name string) *ProcessInfo {
	if name == "" {
		if exe, err := os.Executable(); err == nil {
			name = filepath.Base(exe)
		} else {
			name = "unknown"
		}
	}
	return &ProcessInfo{name: name, threads: make(map[string]string)}
}

// SetThread records or updates the display name for a traced thread/producer.
func (p *ProcessInfo) SetThread(id string, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.threads[id] = name
}

// RemoveThread forgets a traced thread/producer, mirroring Configurator.Forget.
func (p *ProcessInfo) RemoveThread(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.threads, id)
}

func (p *ProcessInfo) Name() string { return ProcessInfoName }

func (p *ProcessInfo) HandleRequest(_ context.Context, _ []byte) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	threads := make(map[string]string, len(p.threads))
	for k, v := range p.threads {
		threads[k] = v
	}

	resp := wire.ProcessInfoResponse{
		PID:     uint64(os.Getpid()),
		Name:    p.name,
		Threads: threads,
	}
	data, err := wire.MarshalControl(resp)
	if err != nil {
		return nil, fmt.Errorf("process_info: marshal: %w", err)
	}
	return data, nil
}
