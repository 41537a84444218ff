package pipeline

import (
	"fmt"
	"sync"
	"time"

	"carelay/go-backend/internal/domains/contracts"

	"github.com/google/uuid"
)

// PendingObserver receives the instance count of a (chain, stage) slot after
// every change to it. It runs under the store lock and must not call back
// into the store.
type PendingObserver func(chain Chain, stage Stage, count int)

type stageKey struct {
	chain Chain
	stage Stage
}

// Store is the shared address -> instance table. Every method is atomic with
// respect to the others. A secondary index keyed by (chain, stage) keeps
// addresses in arrival order so stage lookups need no scan.
type Store struct {
	mu        sync.Mutex
	flows     map[Chain]*Flow
	instances map[string]*Instance
	byStage   map[stageKey][]string
	observer  PendingObserver
	now       func() time.Time
}

func NewStore(flows ...*Flow) *Store {
	s := &Store{
		flows:     make(map[Chain]*Flow, len(flows)),
		instances: make(map[string]*Instance),
		byStage:   make(map[stageKey][]string),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, f := range flows {
		if f != nil {
			s.flows[f.Chain] = f
		}
	}
	return s
}

func (s *Store) SetObserver(observer PendingObserver) {
	s.mu.Lock()
	s.observer = observer
	s.mu.Unlock()
}

// TryBegin opens an instance at the chain's initial stage unless address is
// already tracked on any chain.
func (s *Store) TryBegin(address string, chain Chain) (Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	flow, ok := s.flows[chain]
	if !ok {
		return Instance{}, fmt.Errorf("begin %s: unknown chain %q", address, chain)
	}
	if existing, ok := s.instances[address]; ok {
		return *existing, contracts.ErrAlreadyPending
	}
	inst := &Instance{
		Address:   address,
		Chain:     chain,
		Stage:     flow.Initial,
		CreatedAt: s.now(),
		TraceID:   uuid.New(),
	}
	s.instances[address] = inst
	s.indexAdd(chain, inst.Stage, address)
	return *inst, nil
}

// Advance moves address from -> to iff it currently sits at from and the
// chain flow has that step.
func (s *Store) Advance(address string, from, to Stage) (Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instances[address]
	if !ok {
		return Instance{}, contracts.ErrNotFound
	}
	if inst.Stage != from {
		return *inst, contracts.ErrStageMismatch
	}
	step, ok := s.flows[inst.Chain].StepFrom(from)
	if !ok || step.To != to || to == StageForwarded {
		return *inst, contracts.ErrBadTransition
	}
	s.indexRemove(inst.Chain, from, address)
	inst.Stage = to
	s.indexAdd(inst.Chain, to, address)
	return *inst, nil
}

// FindOneAtStage returns some instance of chain sitting at stage. When more
// than one qualifies the earliest arrival is returned; callers must not rely
// on which one.
func (s *Store) FindOneAtStage(chain Chain, stage Stage) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	addrs := s.byStage[stageKey{chain: chain, stage: stage}]
	if len(addrs) == 0 {
		return "", false
	}
	return addrs[0], true
}

func (s *Store) ListAtStage(chain Chain, stage Stage) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.byStage[stageKey{chain: chain, stage: stage}]...)
}

func (s *Store) CountAtStage(chain Chain, stage Stage) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byStage[stageKey{chain: chain, stage: stage}])
}

func (s *Store) Get(address string) (Instance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[address]
	if !ok {
		return Instance{}, false
	}
	return *inst, true
}

// Remove deletes address unconditionally and returns what was stored.
func (s *Store) Remove(address string) (Instance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[address]
	if !ok {
		return Instance{}, false
	}
	delete(s.instances, address)
	s.indexRemove(inst.Chain, inst.Stage, address)
	return *inst, true
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.instances)
}

// Snapshot copies every tracked instance.
func (s *Store) Snapshot() []Instance {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Instance, 0, len(s.instances))
	for _, inst := range s.instances {
		out = append(out, *inst)
	}
	return out
}

func (s *Store) indexAdd(chain Chain, stage Stage, address string) {
	key := stageKey{chain: chain, stage: stage}
	s.byStage[key] = append(s.byStage[key], address)
	s.notify(key)
}

func (s *Store) indexRemove(chain Chain, stage Stage, address string) {
	key := stageKey{chain: chain, stage: stage}
	addrs := s.byStage[key]
	for i, a := range addrs {
		if a == address {
			addrs = append(addrs[:i], addrs[i+1:]...)
			break
		}
	}
	if len(addrs) == 0 {
		delete(s.byStage, key)
	} else {
		s.byStage[key] = addrs
	}
	s.notify(key)
}

func (s *Store) notify(key stageKey) {
	if s.observer == nil {
		return
	}
	s.observer(key.chain, key.stage, len(s.byStage[key]))
}
