package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"safepulse/internal/models"
)

// worker runs delivery attempts until the coordinator stops.
func (c *Coordinator) worker(id int) {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			c.logger.Debugf("Dispatch worker %d stopped", id)
			return
		case job := <-c.jobs:
			c.attempt(job)
		}
	}
}

// attempt runs one delivery attempt for a dispatch record. The channel send
// happens outside the alert lock; only the state update afterwards is
// serialized.
func (c *Coordinator) attempt(job dispatchJob) {
	mu := c.locks.get(job.alertID)
	mu.Lock()
	a, err := c.store.GetAlert(c.ctx, job.alertID)
	if err != nil {
		mu.Unlock()
		c.logger.Errorf("Loading alert %s for dispatch failed: %v", job.alertID, err)
		return
	}
	if a.State.Terminal() {
		mu.Unlock()
		c.locks.drop(job.alertID)
		return
	}
	rec := a.Record(job.contactID)
	if rec == nil || rec.Settled() {
		mu.Unlock()
		return
	}
	contact := rec.Contact
	msg := composeInitial(a, contact)
	mu.Unlock()

	var sendErr error
	if ch, ok := c.channels[contact.Channel]; ok {
		ctx, cancel := context.WithTimeout(c.ctx, c.cfg.SendTimeout)
		sendErr = ch.Send(ctx, contact.Address, msg)
		cancel()
	} else {
		sendErr = Permanent(fmt.Errorf("no channel registered for type %q", contact.Channel))
	}

	c.complete(job, sendErr)
}

// complete records the outcome of a delivery attempt and recomputes the
// alert's lifecycle state. Results arriving after the alert went terminal
// are discarded.
func (c *Coordinator) complete(job dispatchJob, sendErr error) {
	mu := c.locks.get(job.alertID)
	mu.Lock()
	defer mu.Unlock()

	for {
		a, err := c.store.GetAlert(c.ctx, job.alertID)
		if err != nil {
			c.logger.Errorf("Loading alert %s to record attempt failed: %v", job.alertID, err)
			return
		}
		if a.State.Terminal() {
			c.logger.Debugf("Alert %s already %s, discarding attempt result", a.ID, a.State)
			c.locks.drop(a.ID)
			return
		}
		rec := a.Record(job.contactID)
		if rec == nil || rec.Settled() {
			return
		}

		now := c.clock()
		rec.Attempts++
		rec.LastAttempt = now
		var retryAt = rec.NextRetry
		retry := false

		switch {
		case sendErr == nil:
			rec.Outcome = models.OutcomeDelivered
			rec.LastError = ""
		case IsPermanent(sendErr) || rec.Attempts >= c.cfg.MaxAttempts:
			rec.Outcome = models.OutcomeFailed
			rec.LastError = sendErr.Error()
		default:
			rec.LastError = sendErr.Error()
			retryAt = now.Add(backoff(c.cfg.BaseRetryDelay, c.cfg.MaxRetryDelay, rec.Attempts))
			rec.NextRetry = retryAt
			retry = true
		}

		from := a.State
		to := nextState(a)
		a.State = to
		a.UpdatedAt = now

		if err := c.store.UpdateAlert(c.ctx, a); err != nil {
			if errors.Is(err, ErrConflict) {
				continue
			}
			c.logger.Errorf("Recording attempt for alert %s failed: %v", a.ID, err)
			return
		}

		if rec.Outcome == models.OutcomeFailed {
			c.logger.Warnf("Recipient %s of alert %s failed terminally after %d attempts: %s",
				rec.Contact.ID, a.ID, rec.Attempts, rec.LastError)
			c.emitTerminalFailure(a, rec)
		}
		if retry {
			c.logger.Infof("Retry %d for recipient %s of alert %s scheduled at %s",
				rec.Attempts, rec.Contact.ID, a.ID, retryAt)
			c.retries.Schedule(retryAt, job)
		}
		if rec.Outcome == models.OutcomeDelivered {
			c.logger.Infof("Recipient %s of alert %s delivered on attempt %d via %s",
				rec.Contact.ID, a.ID, rec.Attempts, rec.Contact.Channel)
		}
		if from != to {
			c.emitTransition(a.ID, from, to)
			if to.Terminal() {
				c.retries.CancelAlert(a.ID)
				c.locks.drop(a.ID)
			}
		}
		return
	}
}

// nextState derives the lifecycle state from the dispatch records: Delivered
// once everyone is delivered, PartiallyDelivered once at least one is, and
// otherwise the current dispatching state is kept. Expiry is the sweeper's
// job, never computed here.
func nextState(a *models.Alert) models.AlertState {
	delivered := 0
	for i := range a.Recipients {
		if a.Recipients[i].Outcome == models.OutcomeDelivered {
			delivered++
		}
	}
	switch {
	case delivered == len(a.Recipients):
		return models.StateDelivered
	case delivered > 0:
		return models.StatePartiallyDelivered
	default:
		return a.State
	}
}

// sweeper periodically expires alerts that outlived the configured maximum
// lifetime without completing dispatch.
func (c *Coordinator) sweeper() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *Coordinator) sweep() {
	cutoff := c.clock().Add(-c.cfg.AlertLifetime)
	ids, err := c.store.ListActiveBefore(c.ctx, cutoff)
	if err != nil {
		c.logger.Errorf("Expiry sweep failed: %v", err)
		return
	}
	for _, id := range ids {
		c.expire(id)
	}
}

func (c *Coordinator) expire(id uuid.UUID) {
	mu := c.locks.get(id)
	mu.Lock()
	defer mu.Unlock()

	for {
		a, err := c.store.GetAlert(c.ctx, id)
		if err != nil {
			c.logger.Errorf("Loading alert %s for expiry failed: %v", id, err)
			return
		}
		if a.State.Terminal() {
			return
		}
		from := a.State
		a.State = models.StateExpired
		a.UpdatedAt = c.clock()
		if err := c.store.UpdateAlert(c.ctx, a); err != nil {
			if errors.Is(err, ErrConflict) {
				continue
			}
			c.logger.Errorf("Expiring alert %s failed: %v", id, err)
			return
		}
		c.retries.CancelAlert(id)
		c.locks.drop(id)
		c.emitTransition(id, from, models.StateExpired)
		c.logger.Warnf("Alert %s expired after %s (was %s)", id, c.cfg.AlertLifetime, from)
		return
	}
}
