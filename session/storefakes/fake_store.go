package storefakes

import (
	"context"
	"sync"

	"github.com/mychefai/go-chef-client/session"
)

var _ session.Store = (*FakeStore)(nil)

// FakeStore is an in-memory session.Store. Individual operations can be made
// to fail by setting the corresponding error fields.
type FakeStore struct {
	GetErr     error
	SetErr     error
	RemoveErrs map[string]error // per-key removal failures

	lock    sync.RWMutex
	values  map[string]string
	sets    int
	removes []string
}

func NewFakeStore() *FakeStore {
	return &FakeStore{values: make(map[string]string)}
}

func (s *FakeStore) Get(_ context.Context, key string) (string, bool, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.GetErr != nil {
		return "", false, s.GetErr
	}
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *FakeStore) Set(_ context.Context, key, value string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.SetErr != nil {
		return s.SetErr
	}
	s.values[key] = value
	s.sets++
	return nil
}

func (s *FakeStore) Remove(_ context.Context, key string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.removes = append(s.removes, key)
	if err := s.RemoveErrs[key]; err != nil {
		return err
	}
	delete(s.values, key)
	return nil
}

// Has reports whether the key is present, without error injection.
func (s *FakeStore) Has(key string) bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	_, ok := s.values[key]
	return ok
}

// SetCalls reports how many successful writes have happened.
func (s *FakeStore) SetCalls() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.sets
}

// RemoveCalls reports the keys Remove was invoked with, in order, including
// failed attempts.
func (s *FakeStore) RemoveCalls() []string {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return append([]string(nil), s.removes...)
}
