package replication

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mcdev12/alias/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Target receives merged remote state. game.Store implements it.
type Target interface {
	ApplyRemote(p models.SessionPatch)
}

// Rebaser is implemented by targets that can keep their local changes when a
// conditional write loses to a remote one. base is the last stored state the
// replicator saw; theirs is the winner. Rebase returns the merged session to
// write back, or false when the local change has to be dropped.
type Rebaser interface {
	Rebase(base models.Session, theirs models.SessionPatch) (models.Session, bool)
}

// Config holds replicator settings.
type Config struct {
	QueueSize     int
	Policy        ConflictPolicy
	WriteTimeout  time.Duration
	RebaseRetries int // Conditional rewrites attempted after a conflict
	Metrics       MetricsCollector
}

// DefaultConfig returns the default replicator settings.
func DefaultConfig() Config {
	return Config{
		QueueSize:     64,
		Policy:        Optimistic,
		WriteTimeout:  5 * time.Second,
		RebaseRetries: 3,
		Metrics:       NoOpMetricsCollector{},
	}
}

// Replicator pushes local snapshots to a Backend and merges remote changes into
// a Target. Writes go through a single worker so a client's own versions stay
// ordered. Failures are logged and never reach the caller.
type Replicator struct {
	backend Backend
	target  Target
	cfg     Config
	queue   chan pending

	// writeMu is held across a write and the version bookkeeping that follows,
	// so an echo of that write cannot be mistaken for a remote change.
	writeMu sync.Mutex

	mu          sync.Mutex
	room        string
	lastVersion int64
	cancelSub   context.CancelFunc
	subDone     chan struct{}

	// base is the stored state at lastVersion, when known.
	base *models.Session
	// published numbers snapshots as they are queued. Snapshots numbered up to
	// superseded were queued before a conflict was resolved from the live
	// session and are not written.
	published  uint64
	superseded uint64
}

type pending struct {
	session models.Session
	seq     uint64
}

// NewReplicator creates a replicator. Call Run to start writing.
func NewReplicator(backend Backend, target Target, cfg Config) *Replicator {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NoOpMetricsCollector{}
	}
	return &Replicator{
		backend: backend,
		target:  target,
		cfg:     cfg,
		queue:   make(chan pending, cfg.QueueSize),
	}
}

// Publish queues a snapshot for writing and returns immediately. Snapshots
// without a room code are ignored; a full queue drops the snapshot.
func (r *Replicator) Publish(s models.Session) {
	if s.RoomCode == "" {
		return
	}
	r.mu.Lock()
	r.published++
	seq := r.published
	r.mu.Unlock()

	select {
	case r.queue <- pending{session: s.Clone(), seq: seq}:
	default:
		r.cfg.Metrics.RecordDropped()
		log.Warn().Str("room_code", s.RoomCode).Msg("publish queue full, dropping state")
	}
}

// Run writes queued snapshots until ctx is cancelled. Anything still queued at
// that point is discarded.
func (r *Replicator) Run(ctx context.Context) {
	log.Info().Str("policy", r.cfg.Policy.String()).Msg("replicator started")
	for {
		select {
		case <-ctx.Done():
			r.Detach()
			log.Info().Msg("replicator shutting down")
			return
		case p := <-r.queue:
			r.write(ctx, p)
		}
	}
}

// Attach follows room code, whose state the caller has already adopted at
// version. Any previous room is detached first. Once subscribed the row is read
// again, so a write that landed after the caller's read but before the
// subscription is still merged.
func (r *Replicator) Attach(ctx context.Context, code string, version int64) error {
	r.Detach()

	subCtx, cancel := context.WithCancel(context.Background())
	ch, err := r.backend.Subscribe(subCtx, code)
	if err != nil {
		cancel()
		return err
	}

	done := make(chan struct{})
	r.mu.Lock()
	r.room = code
	r.lastVersion = version
	r.base = nil
	r.cancelSub = cancel
	r.subDone = done
	r.mu.Unlock()

	r.catchUp(ctx, code)
	go r.consume(code, ch, done)

	log.Info().Str("room_code", code).Int64("version", version).Msg("attached to room")
	return nil
}

// Detach stops following the current room. Snapshots already queued are still written.
func (r *Replicator) Detach() {
	r.mu.Lock()
	cancel, done, code := r.cancelSub, r.subDone, r.room
	r.room = ""
	r.lastVersion = 0
	r.base = nil
	r.cancelSub = nil
	r.subDone = nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	log.Info().Str("room_code", code).Msg("detached from room")
}

// Room returns the attached room code, or "".
func (r *Replicator) Room() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.room
}

// Version returns the last version seen for the attached room.
func (r *Replicator) Version() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastVersion
}

func (r *Replicator) catchUp(ctx context.Context, code string) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	row, err := r.backend.Get(ctx, code)
	if err != nil {
		log.Warn().Err(err).Str("room_code", code).Msg("failed to reread room after subscribing")
		return
	}
	if !r.observe(code, row.Version, nil) {
		r.setBase(code, row.Version, row.State)
		return
	}
	p, err := DecodePatch(row.State)
	if err != nil {
		log.Error().Err(err).Str("room_code", code).Msg("failed to decode room state")
		return
	}
	r.target.ApplyRemote(p)
	r.setBase(code, row.Version, row.State)
	log.Debug().Str("room_code", code).Int64("version", row.Version).Msg("merged write made while subscribing")
}

func (r *Replicator) consume(code string, ch <-chan Notification, done chan struct{}) {
	defer close(done)
	for n := range ch {
		r.handleRemote(code, n)
	}
}

func (r *Replicator) handleRemote(code string, n Notification) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if !r.observe(code, n.Version, nil) {
		r.cfg.Metrics.RecordRemote(false)
		log.Debug().
			Str("room_code", code).
			Int64("version", n.Version).
			Msg("skipping stale or own notification")
		return
	}

	p, err := DecodePatch(n.State)
	if err != nil {
		r.cfg.Metrics.RecordRemote(false)
		log.Error().Err(err).Str("room_code", code).Msg("failed to decode remote state")
		return
	}
	r.target.ApplyRemote(p)
	r.setBase(code, n.Version, n.State)
	r.cfg.Metrics.RecordRemote(true)
}

// observe records version for code if it is newer than anything seen, along
// with the state stored at that version when the caller has it. It reports
// false for stale versions and for rooms no longer attached.
func (r *Replicator) observe(code string, version int64, state *models.Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.room != code || version <= r.lastVersion {
		return false
	}
	r.lastVersion = version
	r.base = nil
	if state != nil {
		base := state.Clone()
		r.base = &base
	}
	return true
}

// setBase records the stored state for version if it is still the latest.
func (r *Replicator) setBase(code string, version int64, blob []byte) {
	s, err := Decode(blob)
	if err != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.room == code && r.lastVersion == version {
		r.base = &s
	}
}

func (r *Replicator) baseState(code string) (models.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.room != code || r.base == nil {
		return models.Session{}, false
	}
	return r.base.Clone(), true
}

// skip reports whether a queued snapshot predates a resolved conflict.
func (r *Replicator) skip(seq uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return seq <= r.superseded
}

// supersede drops every snapshot queued so far; the live session already
// carries their changes.
func (r *Replicator) supersede() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.superseded = r.published
}

func (r *Replicator) expectedVersion(code string) int64 {
	if r.cfg.Policy == LastWriteWins {
		return AnyVersion
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.room != code {
		return AnyVersion
	}
	return r.lastVersion
}

func (r *Replicator) write(ctx context.Context, p pending) {
	s := p.session
	if r.skip(p.seq) {
		log.Debug().Str("room_code", s.RoomCode).Msg("skipping snapshot queued before a resolved conflict")
		return
	}
	blob, err := Encode(s)
	if err != nil {
		log.Error().Err(err).Str("room_code", s.RoomCode).Msg("failed to encode state")
		return
	}

	if r.cfg.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.WriteTimeout)
		defer cancel()
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	start := time.Now()
	version, err := r.backend.Update(ctx, s.RoomCode, blob, r.expectedVersion(s.RoomCode))
	r.cfg.Metrics.RecordPublish(err == nil, time.Since(start))

	switch {
	case errors.Is(err, ErrVersionConflict):
		r.cfg.Metrics.RecordConflict()
		log.Warn().Str("room_code", s.RoomCode).Msg("state changed remotely, refetching")
		r.resolve(ctx, s.RoomCode)
	case err != nil:
		log.Error().Err(err).Str("room_code", s.RoomCode).Msg("failed to publish state")
	default:
		r.observe(s.RoomCode, version, &s)
		log.Debug().Str("room_code", s.RoomCode).Int64("version", version).Msg("published state")
	}
}

// resolve handles a lost conditional write. When the target can rebase its
// local changes onto the winner they are written again against the winner's
// version; otherwise the winner is merged and the local change is dropped for
// the user to retry.
func (r *Replicator) resolve(ctx context.Context, code string) {
	for attempt := 0; ; attempt++ {
		row, err := r.backend.Get(ctx, code)
		if err != nil {
			log.Error().Err(err).Str("room_code", code).Msg("failed to refetch state")
			return
		}
		p, err := DecodePatch(row.State)
		if err != nil {
			log.Error().Err(err).Str("room_code", code).Msg("failed to decode refetched state")
			return
		}
		base, hasBase := r.baseState(code)
		if !r.observe(code, row.Version, nil) {
			return
		}
		r.setBase(code, row.Version, row.State)

		rb, canRebase := r.target.(Rebaser)
		if !canRebase || !hasBase || attempt >= r.cfg.RebaseRetries {
			r.target.ApplyRemote(p)
			r.supersede()
			return
		}
		merged, ok := rb.Rebase(base, p)
		if !ok {
			log.Info().Str("room_code", code).Int64("version", row.Version).Msg("remote change touched the round, local change dropped")
			r.target.ApplyRemote(p)
			r.supersede()
			return
		}
		r.supersede()

		blob, err := Encode(merged)
		if err != nil {
			log.Error().Err(err).Str("room_code", code).Msg("failed to encode rebased state")
			return
		}
		version, err := r.backend.Update(ctx, code, blob, row.Version)
		switch {
		case errors.Is(err, ErrVersionConflict):
			r.cfg.Metrics.RecordConflict()
			continue
		case err != nil:
			log.Error().Err(err).Str("room_code", code).Msg("failed to publish rebased state")
			return
		}
		r.observe(code, version, &merged)
		log.Info().Str("room_code", code).Int64("version", version).Msg("rebased local changes onto remote state")
		return
	}
}
