package application

import (
	"sync"

	"github.com/jonmartin721/devwatch/internal/domain/port/driven"
)

// SourceProvider enables runtime hot-swap of the activity source. It holds
// a mutex-protected reference to the current driven.ActivitySource, allowing
// credential updates to take effect without restarting the application.
type SourceProvider struct {
	mu     sync.RWMutex
	source driven.ActivitySource
}

// NewSourceProvider creates a provider with the given initial source.
// source may be nil if no credentials are available at startup.
func NewSourceProvider(source driven.ActivitySource) *SourceProvider {
	return &SourceProvider{source: source}
}

// Get returns the current source. Callers must check for nil if the
// provider was created without initial credentials.
func (p *SourceProvider) Get() driven.ActivitySource {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.source
}

// Replace swaps the current source. The next caller of Get receives the
// new value.
func (p *SourceProvider) Replace(source driven.ActivitySource) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.source = source
}

// HasSource returns true if a non-nil source is currently held.
func (p *SourceProvider) HasSource() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.source != nil
}
