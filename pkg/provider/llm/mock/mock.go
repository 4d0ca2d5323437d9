// Package mock provides a scriptable test double for llm.Provider.
package mock

import (
	"context"
	"sync"

	"github.com/auricle-ai/auricle/pkg/provider/llm"
)

// Provider is a mock implementation of llm.Provider. Script a stream by
// filling Chunks; every Stream call replays them.
type Provider struct {
	mu sync.Mutex

	// Chunks are emitted in order by each Stream call.
	Chunks []llm.Chunk
	// StreamErr, if non-nil, is returned by Stream before any chunk.
	StreamErr error
	// CompleteResult is returned by Complete.
	CompleteResult string
	// CompleteErr, if non-nil, is returned by Complete.
	CompleteErr error

	// Requests records every Stream and Complete request in order.
	Requests []llm.Request
}

var _ llm.Provider = (*Provider)(nil)

// Stream records the request and replays the scripted chunks.
func (p *Provider) Stream(ctx context.Context, req llm.Request) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	p.Requests = append(p.Requests, req)
	chunks := make([]llm.Chunk, len(p.Chunks))
	copy(chunks, p.Chunks)
	err := p.StreamErr
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	ch := make(chan llm.Chunk, len(chunks))
	go func() {
		defer close(ch)
		for _, c := range chunks {
			select {
			case ch <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Complete records the request and returns the scripted result.
func (p *Provider) Complete(_ context.Context, req llm.Request) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests = append(p.Requests, req)
	if p.CompleteErr != nil {
		return "", p.CompleteErr
	}
	return p.CompleteResult, nil
}
