package rpc

import (
	"fmt"
	"sync"
)

// Web3Iterator walks the endpoints of a chain in round robin, skipping the
// disabled ones.
type Web3Iterator struct {
	mu       sync.Mutex
	next     int
	enabled  []*Web3Endpoint
	disabled []*Web3Endpoint
}

// NewWeb3Iterator returns an iterator over the endpoints provided.
func NewWeb3Iterator(endpoints ...*Web3Endpoint) *Web3Iterator {
	return &Web3Iterator{enabled: endpoints}
}

// Add appends an endpoint, ignoring URIs already known.
func (w *Web3Iterator) Add(endpoints ...*Web3Endpoint) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, e := range endpoints {
		if w.indexOf(w.enabled, e.URI) >= 0 || w.indexOf(w.disabled, e.URI) >= 0 {
			continue
		}
		w.enabled = append(w.enabled, e)
	}
}

// Next returns the next available endpoint. When all of them are disabled
// they are enabled again.
func (w *Web3Iterator) Next() (*Web3Endpoint, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.enabled) == 0 {
		if len(w.disabled) == 0 {
			return nil, fmt.Errorf("no web3 endpoint available")
		}
		w.enabled, w.disabled = w.disabled, nil
		w.next = 0
	}
	if w.next >= len(w.enabled) {
		w.next = 0
	}
	e := w.enabled[w.next]
	w.next++
	return e, nil
}

// Disable moves the endpoint with the given URI to the disabled list.
func (w *Web3Iterator) Disable(uri string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	i := w.indexOf(w.enabled, uri)
	if i < 0 {
		return
	}
	w.disabled = append(w.disabled, w.enabled[i])
	w.enabled = append(w.enabled[:i], w.enabled[i+1:]...)
	if w.next > i {
		w.next--
	}
}

// Available returns the number of enabled endpoints.
func (w *Web3Iterator) Available() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.enabled)
}

// Disabled returns the number of disabled endpoints.
func (w *Web3Iterator) Disabled() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.disabled)
}

func (*Web3Iterator) indexOf(list []*Web3Endpoint, uri string) int {
	for i, e := range list {
		if e.URI == uri {
			return i
		}
	}
	return -1
}
