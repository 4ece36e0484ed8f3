// Package app provides application services that orchestrate domain logic.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/artpar/awsapigw/domain/provision"
	"github.com/artpar/awsapigw/ports"
	"github.com/rs/zerolog"
)

// LifecycleService keeps one external API key and its local record consistent
// across create, suspend, unsuspend, terminate, reset, and describe.
//
// Every operation is attempted once. Failures come back as *provision.Error;
// rendering them for the billing platform is the caller's job.
type LifecycleService struct {
	records ports.RecordStore
	keys    ports.KeyServiceFactory
	cache   ports.KeyStateCache // optional
	lock    ports.CreateLock    // optional
	clock   ports.Clock
	logger  zerolog.Logger
	metrics ports.LifecycleMetrics

	lockTTL  time.Duration
	cacheTTL time.Duration

	// Dynamic configuration (hot-reloadable)
	defaults atomic.Pointer[LifecycleDefaults]
}

// LifecycleDefaults fill in parameters the caller left empty.
type LifecycleDefaults struct {
	KeyNamePrefix   string
	Region          string
	PlanConcurrency int
}

// LifecycleDeps contains dependencies for LifecycleService.
type LifecycleDeps struct {
	Records ports.RecordStore
	Keys    ports.KeyServiceFactory
	Cache   ports.KeyStateCache
	Lock    ports.CreateLock
	Clock   ports.Clock
	Logger  zerolog.Logger
	Metrics ports.LifecycleMetrics
}

// LifecycleConfig contains configuration for LifecycleService.
type LifecycleConfig struct {
	Defaults LifecycleDefaults
	LockTTL  time.Duration
	CacheTTL time.Duration
}

// NewLifecycleService creates a new lifecycle service.
func NewLifecycleService(deps LifecycleDeps, cfg LifecycleConfig) *LifecycleService {
	s := &LifecycleService{
		records:  deps.Records,
		keys:     deps.Keys,
		cache:    deps.Cache,
		lock:     deps.Lock,
		clock:    deps.Clock,
		logger:   deps.Logger,
		metrics:  deps.Metrics,
		lockTTL:  cfg.LockTTL,
		cacheTTL: cfg.CacheTTL,
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	if s.clock == nil {
		s.clock = utcClock{}
	}
	if s.lockTTL <= 0 {
		s.lockTTL = time.Minute
	}
	s.UpdateDefaults(cfg.Defaults)
	return s
}

// UpdateDefaults replaces the hot-reloadable defaults.
// This is thread-safe and can be called while operations run.
func (s *LifecycleService) UpdateDefaults(d LifecycleDefaults) {
	if d.KeyNamePrefix == "" {
		d.KeyNamePrefix = provision.DefaultKeyNamePrefix
	}
	if d.Region == "" {
		d.Region = provision.DefaultRegion
	}
	if d.PlanConcurrency <= 0 {
		d.PlanConcurrency = 1
	}
	s.defaults.Store(&d)
}

// Defaults returns the current defaults.
func (s *LifecycleService) Defaults() LifecycleDefaults {
	return *s.defaults.Load()
}

// -----------------------------------------------------------------------------
// Create
// -----------------------------------------------------------------------------

// Create provisions a key for p.ServiceID and stores its record.
//
// Usage plans are attached independently; the record lists only those that
// attached. If a concurrent Create stored a record first, that record is
// returned and the key created here is left unlinked.
func (s *LifecycleService) Create(ctx context.Context, ep provision.Endpoint, p provision.CreateParams) (rec provision.Record, err error) {
	start := time.Now()
	defer func() { s.finish(provision.OpCreate, p.ServiceID, start, err) }()

	return s.create(ctx, ep, p)
}

func (s *LifecycleService) create(ctx context.Context, ep provision.Endpoint, p provision.CreateParams) (provision.Record, error) {
	p = s.withDefaults(ep, p)
	if err := validateCreate(p); err != nil {
		return provision.Record{}, provision.NewError(provision.ErrInvalidParams, provision.OpCreate, p.ServiceID, provision.StepValidate, err)
	}
	log := s.opLogger(provision.OpCreate, p.ServiceID).With().Str("region", p.Region).Logger()

	if s.lock != nil {
		release, ok, err := s.lock.Acquire(ctx, p.ServiceID, s.lockTTL)
		if err != nil {
			return provision.Record{}, provision.NewError(provision.ErrPersistence, provision.OpCreate, p.ServiceID, provision.StepClaim, err)
		}
		if !ok {
			return provision.Record{}, provision.NewError(provision.ErrAlreadyProvisioned, provision.OpCreate, p.ServiceID, provision.StepClaim, nil)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				log.Warn().Err(err).Msg("failed to release create claim")
			}
		}()
	}

	exists, err := s.records.Exists(ctx, p.ServiceID)
	if err != nil {
		return provision.Record{}, provision.NewError(provision.ErrPersistence, provision.OpCreate, p.ServiceID, provision.StepLookup, err)
	}
	if exists {
		return provision.Record{}, provision.NewError(provision.ErrAlreadyProvisioned, provision.OpCreate, p.ServiceID, provision.StepLookup, nil)
	}

	ks, err := s.keys.KeyService(ctx, ep.WithRegion(p.Region))
	if err != nil {
		return provision.Record{}, provision.NewError(provision.ErrExternalService, provision.OpCreate, p.ServiceID, provision.StepCreateKey, err)
	}

	name := provision.KeyName(p.KeyNamePrefix, p.ServiceID)
	key, err := ks.CreateKey(ctx, name)
	s.observeCall("create_key", err)
	if err != nil {
		return provision.Record{}, provision.NewError(provision.ErrExternalService, provision.OpCreate, p.ServiceID, provision.StepCreateKey, err)
	}
	if key.ID == "" || key.Value == "" {
		if key.ID != "" {
			s.orphaned(log, key.ID, "incomplete_key")
		}
		return provision.Record{}, provision.NewError(provision.ErrExternalService, provision.OpCreate, p.ServiceID, provision.StepCreateKey,
			errors.New("key service returned a key without id or value"))
	}
	log = log.With().Str("key_id", key.ID).Logger()
	log.Info().Str("key_name", name).Msg("api key created")

	assoc := s.attachPlans(ctx, ks, key.ID, p.UsagePlans, log)

	now := s.clock.Now()
	rec := provision.Record{
		ServiceID:  p.ServiceID,
		KeyID:      key.ID,
		KeyValue:   key.Value,
		Region:     p.Region,
		UsagePlans: assoc.Attached,
		CreatedAt:  orNow(key.CreatedAt, now),
		UpdatedAt:  orNow(key.UpdatedAt, now),
	}

	inserted, err := s.records.InsertIfAbsent(ctx, rec)
	if err != nil {
		s.orphaned(log, key.ID, "persist_failed")
		return provision.Record{}, provision.NewError(provision.ErrPersistence, provision.OpCreate, p.ServiceID, provision.StepPersist, err)
	}
	s.invalidate(ctx, p.ServiceID, log)

	if !inserted {
		s.orphaned(log, key.ID, "race_lost")
		existing, err := s.records.Get(ctx, p.ServiceID)
		if err != nil {
			return provision.Record{}, provision.NewError(provision.ErrPersistence, provision.OpCreate, p.ServiceID, provision.StepPersist,
				fmt.Errorf("record of concurrent create unavailable: %w", err))
		}
		return existing, nil
	}
	return rec, nil
}

func validateCreate(p provision.CreateParams) error {
	switch {
	case p.ServiceID <= 0:
		return fmt.Errorf("service id must be positive, got %d", p.ServiceID)
	case p.Region == "":
		return errors.New("region is required")
	case len(p.Region) > provision.MaxRegionLen:
		return fmt.Errorf("region %q is longer than %d characters", p.Region, provision.MaxRegionLen)
	}
	return nil
}

func (s *LifecycleService) withDefaults(ep provision.Endpoint, p provision.CreateParams) provision.CreateParams {
	d := s.Defaults()
	if p.KeyNamePrefix == "" {
		p.KeyNamePrefix = d.KeyNamePrefix
	}
	if p.Region == "" {
		p.Region = ep.Region
	}
	if p.Region == "" {
		p.Region = d.Region
	}
	return p
}

func orNow(t, now time.Time) time.Time {
	if t.IsZero() {
		return now
	}
	return t
}

// -----------------------------------------------------------------------------
// Suspend / Unsuspend
// -----------------------------------------------------------------------------

// Suspend disables the key of a service.
func (s *LifecycleService) Suspend(ctx context.Context, ep provision.Endpoint, serviceID int64) (err error) {
	start := time.Now()
	defer func() { s.finish(provision.OpSuspend, serviceID, start, err) }()

	return s.setEnabled(ctx, ep, provision.OpSuspend, serviceID, false)
}

// Unsuspend enables the key of a service.
func (s *LifecycleService) Unsuspend(ctx context.Context, ep provision.Endpoint, serviceID int64) (err error) {
	start := time.Now()
	defer func() { s.finish(provision.OpUnsuspend, serviceID, start, err) }()

	return s.setEnabled(ctx, ep, provision.OpUnsuspend, serviceID, true)
}

// setEnabled flips the external enabled flag. The local record is not touched.
func (s *LifecycleService) setEnabled(ctx context.Context, ep provision.Endpoint, op string, serviceID int64, enabled bool) error {
	rec, err := s.lookup(ctx, op, serviceID)
	if err != nil {
		return err
	}
	log := s.recordLogger(op, rec)

	ks, err := s.keys.KeyService(ctx, ep.WithRegion(rec.Region))
	if err != nil {
		return provision.NewError(provision.ErrExternalService, op, serviceID, provision.StepUpdateKey, err)
	}

	key, err := ks.UpdateKeyEnabled(ctx, rec.KeyID, enabled)
	s.observeCall("update_key", err)
	s.invalidate(ctx, serviceID, log)
	if err != nil {
		return provision.NewError(provision.ErrExternalService, op, serviceID, provision.StepUpdateKey, err)
	}
	if key.Enabled != enabled {
		return provision.NewError(provision.ErrInconsistentUpdate, op, serviceID, provision.StepUpdateKey,
			fmt.Errorf("key %s is still %s", rec.KeyID, enabledWord(key.Enabled)))
	}
	return nil
}

func enabledWord(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}

// -----------------------------------------------------------------------------
// Terminate / Reset
// -----------------------------------------------------------------------------

// Terminate deletes the key and then the record of a service.
// A key that is already gone counts as deleted. The record is kept whenever
// the external deletion fails.
func (s *LifecycleService) Terminate(ctx context.Context, ep provision.Endpoint, serviceID int64) (err error) {
	start := time.Now()
	defer func() { s.finish(provision.OpTerminate, serviceID, start, err) }()

	return s.terminate(ctx, ep, serviceID)
}

func (s *LifecycleService) terminate(ctx context.Context, ep provision.Endpoint, serviceID int64) error {
	rec, err := s.lookup(ctx, provision.OpTerminate, serviceID)
	if err != nil {
		return err
	}
	log := s.recordLogger(provision.OpTerminate, rec)

	ks, err := s.keys.KeyService(ctx, ep.WithRegion(rec.Region))
	if err != nil {
		return provision.NewError(provision.ErrExternalService, provision.OpTerminate, serviceID, provision.StepDeleteKey, err)
	}

	err = ks.DeleteKey(ctx, rec.KeyID)
	s.observeCall("delete_key", err)
	s.invalidate(ctx, serviceID, log)
	switch {
	case errors.Is(err, ports.ErrKeyNotFound):
		log.Info().Msg("api key already absent, removing record")
	case err != nil:
		return provision.NewError(provision.ErrExternalService, provision.OpTerminate, serviceID, provision.StepDeleteKey, err)
	}

	deleted, err := s.records.Delete(ctx, serviceID)
	if err != nil {
		return provision.NewError(provision.ErrPersistence, provision.OpTerminate, serviceID, provision.StepDelete, err)
	}
	if !deleted {
		log.Debug().Msg("record was already removed")
	}
	return nil
}

// Reset replaces the key of an active service: Terminate, then Create with p.
// active is the caller's assertion that the billed service is active.
// When Create fails after Terminate succeeded the error is ErrResetIncomplete
// and the service is left unprovisioned.
func (s *LifecycleService) Reset(ctx context.Context, ep provision.Endpoint, p provision.CreateParams, active bool) (rec provision.Record, err error) {
	start := time.Now()
	defer func() { s.finish(provision.OpReset, p.ServiceID, start, err) }()

	if !active {
		return provision.Record{}, provision.NewError(provision.ErrInvalidParams, provision.OpReset, p.ServiceID, provision.StepValidate,
			errors.New("reset is only available for active services"))
	}
	if err := s.terminate(ctx, ep, p.ServiceID); err != nil {
		return provision.Record{}, err
	}

	rec, err = s.create(ctx, ep, p)
	if err != nil {
		return provision.Record{}, provision.NewError(provision.ErrResetIncomplete, provision.OpReset, p.ServiceID, provision.StepRecreate, err)
	}
	return rec, nil
}

// -----------------------------------------------------------------------------
// Describe
// -----------------------------------------------------------------------------

// DescribeOptions controls Describe.
type DescribeOptions struct {
	// LocalOnly skips the cache and the key service.
	LocalOnly bool
}

// Describe returns the current view of a service's key.
//
// External failures never surface: the local record is returned with Stale
// set instead. A live read writes the key's timestamps back to the record.
func (s *LifecycleService) Describe(ctx context.Context, ep provision.Endpoint, serviceID int64, opts DescribeOptions) (d provision.Details, err error) {
	start := time.Now()
	defer func() {
		if err == nil {
			s.metrics.ObserveDescribeSource(string(d.Source))
		}
		s.finish(provision.OpDescribe, serviceID, start, err)
	}()

	if serviceID <= 0 {
		return provision.Details{}, provision.NewError(provision.ErrInvalidParams, provision.OpDescribe, serviceID, provision.StepValidate,
			fmt.Errorf("service id must be positive, got %d", serviceID))
	}

	rec, err := s.records.Get(ctx, serviceID)
	if errors.Is(err, ports.ErrNotFound) {
		return provision.NotRegistered(serviceID), nil
	}
	if err != nil {
		return provision.Details{}, provision.NewError(provision.ErrPersistence, provision.OpDescribe, serviceID, provision.StepLookup, err)
	}
	if opts.LocalOnly {
		return provision.LocalDetails(rec), nil
	}
	log := s.recordLogger(provision.OpDescribe, rec)

	fill := s.cache != nil && s.cacheTTL > 0
	var gen uint64
	if s.cache != nil {
		key, ok, err := s.cache.Get(ctx, serviceID)
		if err != nil {
			log.Warn().Err(err).Msg("key state cache read failed")
		}
		if ok {
			return provision.LiveDetails(rec, key, provision.SourceCache), nil
		}
		// Read before the live fetch so a mutation in between voids the fill.
		if fill {
			if gen, err = s.cache.Generation(ctx, serviceID); err != nil {
				log.Warn().Err(err).Msg("key state cache generation read failed")
				fill = false
			}
		}
	}

	key, err := s.fetchKey(ctx, ep, rec)
	if err != nil {
		if errors.Is(err, ports.ErrKeyNotFound) {
			log.Warn().Msg("api key not found, it may have been deleted externally")
		} else {
			log.Warn().Err(err).Msg("live key lookup failed, returning local record")
		}
		stale := provision.LocalDetails(rec)
		stale.Stale = true
		return stale, nil
	}

	if !key.CreatedAt.IsZero() && !key.UpdatedAt.IsZero() &&
		(!key.CreatedAt.Equal(rec.CreatedAt) || !key.UpdatedAt.Equal(rec.UpdatedAt)) {
		if _, err := s.records.UpdateTimestamps(ctx, serviceID, key.CreatedAt, key.UpdatedAt); err != nil {
			log.Warn().Err(err).Msg("failed to refresh record timestamps")
		} else {
			rec = rec.WithTimestamps(key.CreatedAt, key.UpdatedAt)
		}
	}

	if fill {
		cached := key
		cached.Value = ""
		stored, err := s.cache.Set(ctx, serviceID, cached, gen, s.cacheTTL)
		switch {
		case err != nil:
			log.Warn().Err(err).Msg("key state cache write failed")
		case !stored:
			log.Debug().Msg("key state changed during describe, cache fill skipped")
		}
	}
	return provision.LiveDetails(rec, key, provision.SourceLive), nil
}

func (s *LifecycleService) fetchKey(ctx context.Context, ep provision.Endpoint, rec provision.Record) (provision.ExternalKey, error) {
	ks, err := s.keys.KeyService(ctx, ep.WithRegion(rec.Region))
	if err != nil {
		return provision.ExternalKey{}, err
	}
	key, err := ks.GetKey(ctx, rec.KeyID)
	s.observeCall("get_key", err)
	return key, err
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// lookup loads the record every operation except Create starts from.
func (s *LifecycleService) lookup(ctx context.Context, op string, serviceID int64) (provision.Record, error) {
	if serviceID <= 0 {
		return provision.Record{}, provision.NewError(provision.ErrInvalidParams, op, serviceID, provision.StepValidate,
			fmt.Errorf("service id must be positive, got %d", serviceID))
	}
	rec, err := s.records.Get(ctx, serviceID)
	if errors.Is(err, ports.ErrNotFound) {
		return provision.Record{}, provision.NewError(provision.ErrNotProvisioned, op, serviceID, provision.StepLookup, nil)
	}
	if err != nil {
		return provision.Record{}, provision.NewError(provision.ErrPersistence, op, serviceID, provision.StepLookup, err)
	}
	return rec, nil
}

func (s *LifecycleService) invalidate(ctx context.Context, serviceID int64, log zerolog.Logger) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(context.WithoutCancel(ctx), serviceID); err != nil {
		log.Warn().Err(err).Msg("key state cache invalidation failed")
	}
}

func (s *LifecycleService) orphaned(log zerolog.Logger, keyID, reason string) {
	s.metrics.ObserveOrphanedKey(reason)
	log.Warn().
		Str("orphaned_key_id", keyID).
		Str("reason", reason).
		Msg("api key is not linked to any record and must be removed manually")
}

func (s *LifecycleService) observeCall(call string, err error) {
	outcome := "ok"
	switch {
	case errors.Is(err, ports.ErrKeyNotFound):
		outcome = "not_found"
	case err != nil:
		outcome = "error"
	}
	s.metrics.ObserveKeyCall(call, outcome)
}

func (s *LifecycleService) opLogger(op string, serviceID int64) zerolog.Logger {
	return s.logger.With().Str("op", op).Int64("service_id", serviceID).Logger()
}

func (s *LifecycleService) recordLogger(op string, rec provision.Record) zerolog.Logger {
	return s.logger.With().
		Str("op", op).
		Int64("service_id", rec.ServiceID).
		Str("key_id", rec.KeyID).
		Str("region", rec.Region).
		Logger()
}

func (s *LifecycleService) finish(op string, serviceID int64, start time.Time, err error) {
	outcome := provision.KindLabel(err)
	elapsed := time.Since(start)
	s.metrics.ObserveOperation(op, outcome, elapsed)

	log := s.opLogger(op, serviceID)
	switch {
	case err == nil:
		log.Info().Dur("duration", elapsed).Msg("operation succeeded")
	case errors.Is(err, provision.ErrAlreadyProvisioned),
		errors.Is(err, provision.ErrNotProvisioned),
		errors.Is(err, provision.ErrInvalidParams):
		log.Warn().Err(err).Str("outcome", outcome).Msg("operation rejected")
	default:
		log.Error().Err(err).Str("outcome", outcome).Msg("operation failed")
	}
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }

type nopMetrics struct{}

func (nopMetrics) ObserveOperation(string, string, time.Duration) {}
func (nopMetrics) ObserveKeyCall(string, string)                  {}
func (nopMetrics) ObservePlanAssociation(bool)                    {}
func (nopMetrics) ObserveOrphanedKey(string)                      {}
func (nopMetrics) ObserveDescribeSource(string)                   {}
