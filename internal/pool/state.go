package pool

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"swapRelay/internal/model"
)

// Status is the metadata lifecycle of a pool.
type Status int32

const (
	StatusUninitialized Status = iota
	StatusInitialized
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusInitialized:
		return "initialized"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// State is the pool's persistent record. Identities are fixed at
// construction; metadata is written once by the initialization callback.
type State struct {
	owner  common.Address
	assetA common.Address
	assetB common.Address

	mu        sync.RWMutex
	status    Status
	failure   error
	metadataA *model.TokenMeta
	metadataB *model.TokenMeta
}

func newState(owner, assetA, assetB common.Address) *State {
	return &State{owner: owner, assetA: assetA, assetB: assetB}
}

func (s *State) Owner() common.Address  { return s.owner }
func (s *State) AssetA() common.Address { return s.assetA }
func (s *State) AssetB() common.Address { return s.assetB }

// Status returns the lifecycle status and, when failed, the cause.
func (s *State) Status() (Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status, s.failure
}

// Metadata returns copies of both records, or nils before initialization.
func (s *State) Metadata() (*model.TokenMeta, *model.TokenMeta) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.metadataA == nil || s.metadataB == nil {
		return nil, nil
	}
	a, b := *s.metadataA, *s.metadataB
	return &a, &b
}

// initialize stores both records at once. It only applies to an
// uninitialized pool.
func (s *State) initialize(a, b model.TokenMeta) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusUninitialized {
		return false
	}
	s.metadataA = &a
	s.metadataB = &b
	s.status = StatusInitialized
	return true
}

func (s *State) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusUninitialized {
		return
	}
	s.status = StatusFailed
	s.failure = err
}
