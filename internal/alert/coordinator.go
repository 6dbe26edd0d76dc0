package alert

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"safepulse/internal/logging"
	"safepulse/internal/models"
)

// Config tunes the coordinator. Zero values get defaults from New.
type Config struct {
	MaxAttempts    int
	BaseRetryDelay time.Duration
	MaxRetryDelay  time.Duration
	SendTimeout    time.Duration
	AlertLifetime  time.Duration
	SweepInterval  time.Duration
	QueueSize      int
	MaxWorkers     int
}

// Coordinator turns incident triggers into tracked alert deliveries. It owns
// every mutation of alert state: dispatch completions, location merges,
// resolution, and expiry all serialize through a per-alert lock, and store
// writes compare-and-swap so a racing process cannot clobber state either.
type Coordinator struct {
	store     Store
	directory Directory
	channels  map[models.ChannelType]Channel
	emitter   Emitter
	live      Live
	logger    *logging.Logger
	cfg       Config

	jobs    chan dispatchJob
	retries *delayQueue
	locks   lockTable
	clock   func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stopMu  sync.RWMutex
	stopped bool
}

// New constructs a Coordinator. Call Start before triggering.
func New(store Store, directory Directory, channels map[models.ChannelType]Channel, emitter Emitter, logger *logging.Logger, cfg Config) *Coordinator {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseRetryDelay == 0 {
		cfg.BaseRetryDelay = 5 * time.Second
	}
	if cfg.MaxRetryDelay == 0 {
		cfg.MaxRetryDelay = 2 * time.Minute
	}
	if cfg.SendTimeout == 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.AlertLifetime == 0 {
		cfg.AlertLifetime = 30 * time.Minute
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 500
	}
	if cfg.MaxWorkers == 0 {
		cfg.MaxWorkers = 10
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		store:     store,
		directory: directory,
		channels:  channels,
		emitter:   emitter,
		logger:    logger,
		cfg:       cfg,
		jobs:      make(chan dispatchJob, cfg.QueueSize),
		retries:   newDelayQueue(),
		locks:     lockTable{locks: make(map[uuid.UUID]*sync.Mutex)},
		clock:     time.Now,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// SetLive attaches a broadcaster for merged location updates. Must be called
// before Start.
func (c *Coordinator) SetLive(l Live) {
	c.live = l
}

// Start launches the dispatch workers, the retry scheduler, and the expiry
// sweeper.
func (c *Coordinator) Start() {
	for i := 0; i < c.cfg.MaxWorkers; i++ {
		c.wg.Add(1)
		go c.worker(i)
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.retries.run(c.ctx, c.jobs, c.clock)
	}()
	c.wg.Add(1)
	go c.sweeper()
	c.logger.Infof("Coordinator started with %d workers", c.cfg.MaxWorkers)
}

// Stop cancels all background work and waits for in-flight attempts.
func (c *Coordinator) Stop() {
	c.cancel()
	c.stopMu.Lock()
	c.stopped = true
	c.stopMu.Unlock()
	c.wg.Wait()
	c.logger.Infof("Coordinator stopped")
}

// Trigger creates an alert for the incident and schedules dispatch to every
// resolved recipient. A trigger for a user with an active alert merges into
// it and returns the existing id instead of creating a duplicate.
func (c *Coordinator) Trigger(ctx context.Context, in models.IncidentTrigger) (uuid.UUID, error) {
	if id, ok, err := c.store.ActiveAlertID(ctx, in.UserID); err != nil {
		return uuid.Nil, err
	} else if ok {
		c.logger.Infof("Trigger for user %s merged into active alert %s", in.UserID, id)
		c.mergeTrigger(ctx, in)
		return id, nil
	}

	contacts, err := c.directory.Resolve(ctx, in.UserID)
	if err != nil {
		return uuid.Nil, err
	}
	if len(contacts) == 0 {
		return uuid.Nil, ErrNoRecipients
	}
	sort.SliceStable(contacts, func(i, j int) bool {
		return contacts[i].Priority < contacts[j].Priority
	})

	now := c.clock()
	a := &models.Alert{
		ID:        uuid.New(),
		UserID:    in.UserID,
		Reason:    in.Reason,
		Note:      in.Note,
		Location:  in.Location,
		State:     models.StateCreated,
		Watermark: in.Location.Timestamp,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, ct := range contacts {
		a.Recipients = append(a.Recipients, models.DispatchRecord{
			Contact: ct,
			Outcome: models.OutcomePending,
		})
	}

	if err := c.store.CreateAlert(ctx, a); err != nil {
		var active *ActiveAlertError
		if errors.As(err, &active) {
			// lost the creation race to a concurrent trigger
			c.logger.Infof("Trigger for user %s raced, merging into alert %s", in.UserID, active.ID)
			c.mergeTrigger(ctx, in)
			return active.ID, nil
		}
		return uuid.Nil, err
	}

	// created and dispatching are one logical step once recipients resolve
	mu := c.locks.get(a.ID)
	mu.Lock()
	for {
		a.State = models.StateDispatching
		a.UpdatedAt = c.clock()
		if err := c.store.UpdateAlert(ctx, a); err != nil {
			if errors.Is(err, ErrConflict) {
				// a location merge can slip in between creation and the
				// state bump; reload and reapply
				a, err = c.store.GetAlert(ctx, a.ID)
				if err != nil {
					mu.Unlock()
					return uuid.Nil, err
				}
				if a.State.Terminal() {
					mu.Unlock()
					return a.ID, nil
				}
				continue
			}
			mu.Unlock()
			return uuid.Nil, err
		}
		break
	}
	mu.Unlock()
	c.emitTransition(a.ID, models.StateCreated, models.StateDispatching)

	c.logger.Infof("Alert %s created for user %s with %d recipients", a.ID, in.UserID, len(a.Recipients))
	for _, rec := range a.Recipients {
		c.enqueue(dispatchJob{alertID: a.ID, contactID: rec.Contact.ID})
	}
	return a.ID, nil
}

// mergeTrigger folds a duplicate trigger's location into the active alert.
// The recipient set of the existing alert is left untouched.
func (c *Coordinator) mergeTrigger(ctx context.Context, in models.IncidentTrigger) {
	upd := models.LocationUpdate{
		UserID:    in.UserID,
		Timestamp: in.Location.Timestamp,
		Latitude:  in.Location.Latitude,
		Longitude: in.Location.Longitude,
	}
	if err := c.MergeLocation(ctx, in.UserID, upd); err != nil && !errors.Is(err, ErrUnknownAlert) {
		c.logger.Errorf("Merging duplicate trigger for user %s failed: %v", in.UserID, err)
	}
}

// Resolve closes a non-terminal alert, cancels its scheduled retries, and
// records the resolution timestamp. Resolving a Delivered or Expired alert is
// a no-op close; an unknown or already-resolved id returns ErrUnknownAlert.
func (c *Coordinator) Resolve(ctx context.Context, id uuid.UUID) error {
	mu := c.locks.get(id)
	mu.Lock()
	defer mu.Unlock()

	for {
		a, err := c.store.GetAlert(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrUnknownAlert
			}
			return err
		}

		switch a.State {
		case models.StateResolved:
			c.locks.drop(id)
			return ErrUnknownAlert
		case models.StateDelivered, models.StateExpired:
			c.locks.drop(id)
			return nil
		}

		from := a.State
		now := c.clock()
		a.State = models.StateResolved
		a.ResolvedAt = &now
		a.UpdatedAt = now
		if err := c.store.UpdateAlert(ctx, a); err != nil {
			if errors.Is(err, ErrConflict) {
				continue
			}
			return err
		}

		c.retries.CancelAlert(id)
		c.locks.drop(id)
		c.emitTransition(id, from, models.StateResolved)
		c.logger.Infof("Alert %s resolved (was %s)", id, from)
		return nil
	}
}

// MergeLocation folds a location update into the user's active alert. Updates
// at or below the alert's watermark are ignored; newer ones advance the
// watermark and fan a follow-up message out to every Delivered recipient.
func (c *Coordinator) MergeLocation(ctx context.Context, userID string, upd models.LocationUpdate) error {
	id, ok, err := c.store.ActiveAlertID(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnknownAlert
	}

	mu := c.locks.get(id)
	mu.Lock()

	var a *models.Alert
	for {
		a, err = c.store.GetAlert(ctx, id)
		if err != nil {
			mu.Unlock()
			if errors.Is(err, ErrNotFound) {
				return ErrUnknownAlert
			}
			return err
		}
		if a.State.Terminal() {
			mu.Unlock()
			c.locks.drop(id)
			return ErrUnknownAlert
		}
		if !upd.Timestamp.After(a.Watermark) {
			mu.Unlock()
			return nil
		}

		a.Watermark = upd.Timestamp
		a.Location = models.Location{
			Latitude:  upd.Latitude,
			Longitude: upd.Longitude,
			Timestamp: upd.Timestamp,
		}
		a.UpdatedAt = c.clock()
		if err := c.store.UpdateAlert(ctx, a); err != nil {
			if errors.Is(err, ErrConflict) {
				continue
			}
			mu.Unlock()
			return err
		}
		break
	}

	var delivered []models.TrustedContact
	for _, rec := range a.Recipients {
		if rec.Outcome == models.OutcomeDelivered {
			delivered = append(delivered, rec.Contact)
		}
	}
	mu.Unlock()

	if c.live != nil {
		c.live.BroadcastLocation(userID, upd)
	}

	for _, ct := range delivered {
		c.spawnFollowUp(a, ct, upd)
	}
	c.logger.Debugf("Alert %s watermark advanced to %s, %d follow-ups", id, upd.Timestamp, len(delivered))
	return nil
}

// spawnFollowUp launches a follow-up send unless the coordinator is stopping.
// Holding the read lock orders the Add against Stop's Wait; merges run on
// caller goroutines, so a bare wg.Add could race wg.Wait.
func (c *Coordinator) spawnFollowUp(a *models.Alert, ct models.TrustedContact, upd models.LocationUpdate) {
	c.stopMu.RLock()
	defer c.stopMu.RUnlock()
	if c.stopped {
		return
	}
	c.wg.Add(1)
	go c.sendFollowUp(a, ct, upd)
}

// sendFollowUp delivers a location follow-up best effort; follow-ups are not
// retried or tracked in dispatch records.
func (c *Coordinator) sendFollowUp(a *models.Alert, ct models.TrustedContact, upd models.LocationUpdate) {
	defer c.wg.Done()
	ch, ok := c.channels[ct.Channel]
	if !ok {
		c.logger.Errorf("No channel registered for type %q", ct.Channel)
		return
	}
	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.SendTimeout)
	defer cancel()
	if err := ch.Send(ctx, ct.Address, composeFollowUp(a, ct, upd)); err != nil {
		c.logger.Errorf("Follow-up to %s for alert %s failed: %v", ct.ID, a.ID, err)
	}
}

// enqueue hands a dispatch job to the worker pool. Blocks rather than drops;
// an emergency dispatch must not be lost to a full queue.
func (c *Coordinator) enqueue(job dispatchJob) {
	select {
	case c.jobs <- job:
	case <-c.ctx.Done():
		c.logger.Warnf("Coordinator stopping, dropping dispatch for alert %s", job.alertID)
	}
}

func (c *Coordinator) emitTransition(id uuid.UUID, from, to models.AlertState) {
	t := models.Transition{
		AlertID:   id,
		Timestamp: c.clock(),
		From:      from,
		To:        to,
	}
	if err := c.emitter.Transition(c.ctx, t); err != nil {
		c.logger.Errorf("Emitting transition %s -> %s for alert %s failed: %v", from, to, id, err)
	}
}

func (c *Coordinator) emitTerminalFailure(a *models.Alert, rec *models.DispatchRecord) {
	f := models.TerminalFailure{
		AlertID:      a.ID,
		ContactID:    rec.Contact.ID,
		FinalOutcome: rec.Outcome,
		Attempts:     rec.Attempts,
		LastError:    rec.LastError,
	}
	if err := c.emitter.TerminalFailure(c.ctx, f); err != nil {
		c.logger.Errorf("Emitting terminal failure for alert %s recipient %s failed: %v", a.ID, rec.Contact.ID, err)
	}
}

// lockTable hands out one mutex per alert id, the serialization scope for
// all state mutations of that alert.
type lockTable struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func (t *lockTable) get(id uuid.UUID) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	mu, ok := t.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		t.locks[id] = mu
	}
	return mu
}

// drop evicts a terminal alert's mutex so the table stays bounded.
// Stragglers still holding the old mutex are harmless: the terminal-state
// checks and the store CAS discard their writes.
func (t *lockTable) drop(id uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.locks, id)
}
