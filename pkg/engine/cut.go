package engine

import "time"

// triggerCut starts an ignition cut of the given duration. Safe to call
// while a cut is already in progress: the timer restarts with the new
// duration (last writer wins), it does not accumulate.
func (e *Engine) triggerCut(cutTimeMs uint16) {
	e.cutOut.Set(true)
	e.cutActive.Store(true)
	e.cutsTotal.Inc()
	e.timer.Arm(time.Duration(cutTimeMs) * time.Millisecond)
}

// finishCut is the timer-expiry callback. It runs in the timer's
// execution context, distinct from the edge handlers.
func (e *Engine) finishCut() {
	e.cutOut.Set(false)
	e.cutActive.Store(false)
}

// wallTimer is the production CutTimer: a single pre-allocated
// time.Timer reused for the process lifetime. Reset on a running timer
// gives the required restart semantics, and the expiry callback runs on
// its own goroutine.
type wallTimer struct {
	t *time.Timer
}

func newWallTimer(onExpire func()) *wallTimer {
	t := time.AfterFunc(time.Hour, onExpire)
	t.Stop()
	return &wallTimer{t: t}
}

func (w *wallTimer) Arm(d time.Duration) {
	w.t.Reset(d)
}
