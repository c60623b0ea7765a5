package orchestrator

import (
	"context"
	"time"

	"relayd/internal/content"
	"relayd/internal/relay"
)

// fillerLoop keeps the filler relaying whenever no content holds the gate.
// The check and the spawn happen under o.mu, so a session that has taken the
// gate always sees the filler it must kill.
func (o *Orchestrator) fillerLoop() {
	defer o.wg.Done()
	for {
		o.mu.Lock()
		for o.held && !o.closed {
			o.cond.Wait()
		}
		if o.closed {
			o.mu.Unlock()
			return
		}
		h, err := o.relay.Start(relay.Filler, o.fillerPath, true)
		if err != nil {
			o.mu.Unlock()
			o.log.Error().Err(err).Str("event", "filler_error").Msg("start interlude")
			o.publish(EventFillerError, "", map[string]any{"error": err.Error()})
			if !o.sleep(o.fillerRetry) {
				return
			}
			continue
		}
		o.filler = h
		o.mu.Unlock()
		o.publish(EventFillerStart, "", map[string]any{"pid": h.PID()})

		exit := h.Wait()
		o.mu.Lock()
		if o.filler == h {
			o.filler = nil
		}
		o.mu.Unlock()
		o.publish(EventFillerExit, "", map[string]any{"pid": h.PID(), "exit": exit.String()})
		if exit.Kind != relay.Killed {
			o.log.Warn().Str("event", "filler_exit").Stringer("exit", exit).Msg("interlude ended on its own")
			if !o.sleep(o.fillerRetry) {
				return
			}
		}
	}
}

// sleep waits for d and reports false when the orchestrator closed first.
func (o *Orchestrator) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-o.ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// acquireLocked hands the gate to s. The returned context is cancelled by
// Stop, by Close, or when the session ends. Callers hold o.mu.
func (o *Orchestrator) acquireLocked(s *Session) (context.Context, error) {
	if o.closed {
		return nil, ErrClosed
	}
	if o.held {
		return nil, ErrBusy
	}
	ctx, cancel := context.WithCancel(o.ctx)
	o.held = true
	o.cancel = cancel
	s.StartedAt = time.Now()
	o.session = s
	o.wg.Add(1)
	return ctx, nil
}

// begin takes the gate for s and runs fn on its own goroutine, releasing the
// gate when fn returns.
func (o *Orchestrator) begin(s *Session, kind string, fn func(ctx context.Context)) (Session, error) {
	o.mu.Lock()
	ctx, err := o.acquireLocked(s)
	if err != nil {
		o.mu.Unlock()
		return Session{}, err
	}
	snap := *s.clone()
	o.mu.Unlock()

	o.log.Info().Str("event", "session_start").Str("kind", kind).Str("ref", string(s.Ref)).Str("source", s.Source).Bool("loop", s.Loop).Msg("content session accepted")
	o.publish(EventSessionStart, s.Ref, map[string]any{"kind": kind})
	go func() {
		defer o.wg.Done()
		defer o.release(s)
		if !o.preemptFiller(ctx, s.Ref) {
			return
		}
		fn(ctx)
	}()
	return snap, nil
}

// preemptFiller kills the filler and waits until its process is gone. It
// reports false when the filler outlived the stop timeout or the session was
// cancelled first; content must not start then.
func (o *Orchestrator) preemptFiller(ctx context.Context, ref content.Ref) bool {
	o.mu.RLock()
	h := o.filler
	o.mu.RUnlock()
	if h == nil {
		return true
	}
	if err := o.relay.Kill(h); err != nil {
		o.log.Error().Err(err).Str("event", "filler_error").Int("pid", h.PID()).Msg("kill interlude")
	}
	t := time.NewTimer(o.fillerStop)
	defer t.Stop()
	select {
	case <-h.Done():
		return true
	case <-ctx.Done():
		return false
	case <-t.C:
		o.log.Error().Str("event", "filler_error").Int("pid", h.PID()).Str("ref", string(ref)).Dur("timeout", o.fillerStop).Msg("interlude did not exit, abandoning session")
		o.publish(EventFillerError, ref, map[string]any{"error": "interlude did not exit"})
		return false
	}
}

// release returns the gate and wakes the filler loop.
func (o *Orchestrator) release(s *Session) {
	o.mu.Lock()
	ref := s.Ref
	if o.session == s {
		o.session = nil
	}
	o.held = false
	o.content = nil
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.cond.Broadcast()
	o.mu.Unlock()
	o.publish(EventSessionEnd, ref, nil)
}
