// Package computetest provides a recording compute.Provider for tests.
package computetest

import (
	"context"
	"sync"
)

// Provider records terminate calls and returns configured errors.
type Provider struct {
	mu         sync.Mutex
	terminated []string
	errs       map[string]error
	err        error
	readyErr   error
}

// New creates a provider whose calls all succeed.
func New() *Provider {
	return &Provider{errs: make(map[string]error)}
}

// FailAll makes every terminate call return err. Nil clears it.
func (p *Provider) FailAll(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Fail makes terminate calls for instanceID return err.
func (p *Provider) Fail(instanceID string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs[instanceID] = err
}

// SetReady sets the error returned by Ready.
func (p *Provider) SetReady(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readyErr = err
}

func (p *Provider) TerminateInstance(_ context.Context, instanceID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.terminated = append(p.terminated, instanceID)
	if err := p.errs[instanceID]; err != nil {
		return err
	}
	return p.err
}

func (p *Provider) Ready(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readyErr
}

// Terminated returns every instance ID passed to TerminateInstance, in call order.
func (p *Provider) Terminated() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.terminated...)
}
