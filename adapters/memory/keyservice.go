package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/artpar/awsapigw/adapters/clock"
	"github.com/artpar/awsapigw/adapters/idgen"
	"github.com/artpar/awsapigw/adapters/random"
	"github.com/artpar/awsapigw/domain/provision"
	"github.com/artpar/awsapigw/ports"
)

// KeyValueLength matches the length of API Gateway key values.
const KeyValueLength = 40

// KeyService is a sandbox API gateway holding keys in memory.
// Failures can be injected per call for tests.
type KeyService struct {
	clock ports.Clock
	ids   ports.IDGenerator
	rnd   ports.Random

	mu    sync.Mutex
	keys  map[string]provision.ExternalKey
	plans map[string][]string // key ID -> attached plan IDs
	calls map[string]int

	createErr  error
	getErr     error
	updateErr  error
	deleteErr  error
	attachErrs map[string]error
	wrongFlag  bool
	onCreate   func(provision.ExternalKey)
}

// KeyServiceOption configures a KeyService.
type KeyServiceOption func(*KeyService)

// WithClock sets the clock used for key timestamps.
func WithClock(c ports.Clock) KeyServiceOption {
	return func(s *KeyService) { s.clock = c }
}

// WithIDGenerator sets the generator of key IDs.
func WithIDGenerator(g ports.IDGenerator) KeyServiceOption {
	return func(s *KeyService) { s.ids = g }
}

// WithRandom sets the source of key values.
func WithRandom(r ports.Random) KeyServiceOption {
	return func(s *KeyService) { s.rnd = r }
}

// NewKeyService creates an empty sandbox gateway.
func NewKeyService(opts ...KeyServiceOption) *KeyService {
	s := &KeyService{
		clock:      clock.UTC{},
		ids:        idgen.KeyID{},
		rnd:        random.Real{},
		keys:       make(map[string]provision.ExternalKey),
		plans:      make(map[string][]string),
		calls:      make(map[string]int),
		attachErrs: make(map[string]error),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateKey creates an enabled key.
func (s *KeyService) CreateKey(ctx context.Context, name string) (provision.ExternalKey, error) {
	s.mu.Lock()
	s.calls["create_key"]++
	if s.createErr != nil {
		err := s.createErr
		s.mu.Unlock()
		return provision.ExternalKey{}, err
	}

	value, err := s.rnd.Token(KeyValueLength)
	if err != nil {
		s.mu.Unlock()
		return provision.ExternalKey{}, fmt.Errorf("generate key value: %w", err)
	}
	now := s.clock.Now()
	k := provision.ExternalKey{
		ID:        s.ids.New(),
		Value:     value,
		Name:      name,
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.keys[k.ID] = k
	hook := s.onCreate
	s.mu.Unlock()

	if hook != nil {
		hook(k)
	}
	return k, nil
}

// GetKey retrieves a key including its value.
func (s *KeyService) GetKey(ctx context.Context, id string) (provision.ExternalKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls["get_key"]++
	if s.getErr != nil {
		return provision.ExternalKey{}, s.getErr
	}
	k, ok := s.keys[id]
	if !ok {
		return provision.ExternalKey{}, ports.ErrKeyNotFound
	}
	return k, nil
}

// UpdateKeyEnabled sets the enabled flag.
func (s *KeyService) UpdateKeyEnabled(ctx context.Context, id string, enabled bool) (provision.ExternalKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls["update_key"]++
	if s.updateErr != nil {
		return provision.ExternalKey{}, s.updateErr
	}
	k, ok := s.keys[id]
	if !ok {
		return provision.ExternalKey{}, ports.ErrKeyNotFound
	}
	if s.wrongFlag {
		return k, nil
	}
	k.Enabled = enabled
	k.UpdatedAt = s.clock.Now()
	s.keys[id] = k
	return k, nil
}

// DeleteKey removes a key.
func (s *KeyService) DeleteKey(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls["delete_key"]++
	if s.deleteErr != nil {
		return s.deleteErr
	}
	if _, ok := s.keys[id]; !ok {
		return ports.ErrKeyNotFound
	}
	delete(s.keys, id)
	delete(s.plans, id)
	return nil
}

// AttachUsagePlan associates a key with a usage plan.
func (s *KeyService) AttachUsagePlan(ctx context.Context, keyID, planID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls["attach_usage_plan"]++
	if err, ok := s.attachErrs[planID]; ok {
		return err
	}
	if _, ok := s.keys[keyID]; !ok {
		return ports.ErrKeyNotFound
	}
	for _, p := range s.plans[keyID] {
		if p == planID {
			return fmt.Errorf("key %s is already attached to usage plan %s", keyID, planID)
		}
	}
	s.plans[keyID] = append(s.plans[keyID], planID)
	return nil
}

// -----------------------------------------------------------------------------
// Failure injection and inspection
// -----------------------------------------------------------------------------

// ErrInjected is the default failure used by the Fail* helpers.
var ErrInjected = errors.New("injected failure")

// FailCreate makes CreateKey fail with err (nil clears).
func (s *KeyService) FailCreate(err error) { s.set(func() { s.createErr = err }) }

// FailGet makes GetKey fail with err (nil clears).
func (s *KeyService) FailGet(err error) { s.set(func() { s.getErr = err }) }

// FailUpdate makes UpdateKeyEnabled fail with err (nil clears).
func (s *KeyService) FailUpdate(err error) { s.set(func() { s.updateErr = err }) }

// FailDelete makes DeleteKey fail with err (nil clears).
func (s *KeyService) FailDelete(err error) { s.set(func() { s.deleteErr = err }) }

// FailAttach makes AttachUsagePlan fail for planID with err (nil clears).
func (s *KeyService) FailAttach(planID string, err error) {
	s.set(func() {
		if err == nil {
			delete(s.attachErrs, planID)
			return
		}
		s.attachErrs[planID] = err
	})
}

// IgnoreUpdates makes UpdateKeyEnabled report success without changing the flag.
func (s *KeyService) IgnoreUpdates(ignore bool) { s.set(func() { s.wrongFlag = ignore }) }

// OnCreate registers a hook run after every successful CreateKey.
func (s *KeyService) OnCreate(hook func(provision.ExternalKey)) { s.set(func() { s.onCreate = hook }) }

// DeleteExternally removes a key behind the controller's back.
func (s *KeyService) DeleteExternally(id string) {
	s.set(func() {
		delete(s.keys, id)
		delete(s.plans, id)
	})
}

// Key returns a stored key.
func (s *KeyService) Key(id string) (provision.ExternalKey, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[id]
	return k, ok
}

// Keys returns all stored keys ordered by name, then ID.
func (s *KeyService) Keys() []provision.ExternalKey {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]provision.ExternalKey, 0, len(s.keys))
	for _, k := range s.keys {
		result = append(result, k)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// Plans returns the usage plans attached to a key.
func (s *KeyService) Plans(keyID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.plans[keyID]...)
}

// Calls returns how often a call was made ("create_key", "get_key",
// "update_key", "delete_key", "attach_usage_plan").
func (s *KeyService) Calls(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

// TotalCalls returns the number of calls of any kind.
func (s *KeyService) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

func (s *KeyService) set(fn func()) {
	s.mu.Lock()
	fn()
	s.mu.Unlock()
}

// Ensure interface compliance.
var _ ports.KeyService = (*KeyService)(nil)

// -----------------------------------------------------------------------------
// Factory
// -----------------------------------------------------------------------------

// Factory hands out one sandbox gateway per region.
type Factory struct {
	opts []KeyServiceOption

	mu        sync.Mutex
	regions   map[string]*KeyService
	endpoints []provision.Endpoint
	err       error
}

// NewFactory creates a factory whose gateways are built with opts.
func NewFactory(opts ...KeyServiceOption) *Factory {
	return &Factory{opts: opts, regions: make(map[string]*KeyService)}
}

// KeyService returns the gateway of ep.Region.
func (f *Factory) KeyService(ctx context.Context, ep provision.Endpoint) (ports.KeyService, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.endpoints = append(f.endpoints, ep)
	if f.err != nil {
		return nil, f.err
	}
	if ep.Region == "" {
		return nil, errors.New("region is required")
	}
	return f.regionLocked(ep.Region), nil
}

// Region returns the gateway of region, creating it if needed.
func (f *Factory) Region(region string) *KeyService {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.regionLocked(region)
}

func (f *Factory) regionLocked(region string) *KeyService {
	s, ok := f.regions[region]
	if !ok {
		s = NewKeyService(f.opts...)
		f.regions[region] = s
	}
	return s
}

// Fail makes KeyService fail with err (nil clears).
func (f *Factory) Fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

// Endpoints returns every endpoint a gateway was requested for.
func (f *Factory) Endpoints() []provision.Endpoint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]provision.Endpoint(nil), f.endpoints...)
}

// Ensure interface compliance.
var _ ports.KeyServiceFactory = (*Factory)(nil)
