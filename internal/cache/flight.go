package cache

import (
	"golang.org/x/sync/singleflight"
)

// Flight collapses concurrent identical requests into a single underlying
// call. All callers that join while a request is outstanding observe the
// identical settlement, value or error. The registry entry is removed once
// the call settles regardless of outcome, so a later retry always issues a
// fresh request.
type Flight struct {
	group singleflight.Group
}

// NewFlight returns an empty in-flight registry.
func NewFlight() *Flight {
	return &Flight{}
}

// Do executes fn under the given key, deduplicating against any call for the
// same key already in flight.
func (f *Flight) Do(key string, fn func() ([]byte, error)) ([]byte, error) {
	v, err, _ := f.group.Do(key, func() (any, error) {
		return fn()
	})
	if err != nil {
		return nil, err
	}
	data, _ := v.([]byte)
	return data, nil
}

// Forget drops any in-flight record for the key so the next caller issues a
// fresh call even if an earlier one is still settling.
func (f *Flight) Forget(key string) {
	f.group.Forget(key)
}
