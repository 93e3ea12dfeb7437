// Package lifecycle drives a certificate renewal through its states and
// rolls back to the pre-run snapshot when a step fails.
//
// The forward path is
//
//	idle → backed_up → tool_installed → issued → installed → services_reloaded → done
//
// A failure once the snapshot exists moves the run to reverting. The
// snapshot taken by the run is restored, services are reloaded whatever
// the restore outcome, and the run ends in reverted or failed. A failed
// backup leaves the run in idle since nothing has been changed.
package lifecycle

import (
	"context"
	"time"

	"github.com/looplab/fsm"

	"github.com/ksyq12/nascert/internal/acme"
	"github.com/ksyq12/nascert/internal/certstore"
	"github.com/ksyq12/nascert/internal/errors"
	"github.com/ksyq12/nascert/internal/logger"
	"github.com/ksyq12/nascert/internal/snapshot"
)

// Snapshotter takes and restores snapshots of the live stores.
type Snapshotter interface {
	Create(ctx context.Context) (*snapshot.Snapshot, error)
	Restore(ctx context.Context, id string) (*snapshot.Snapshot, error)
}

// Installer copies a bundle into the live stores.
type Installer interface {
	Install(ctx context.Context, b *acme.Bundle) (*certstore.Result, error)
}

// Notifier tells dependent services to reload.
type Notifier interface {
	Reload(ctx context.Context) error
}

// Orchestrator runs renewals and reverts.
type Orchestrator struct {
	snapshots Snapshotter
	acquirer  acme.Acquirer
	installer Installer
	notifier  Notifier

	onTransition func(state string)
}

// New creates an Orchestrator from its collaborators.
func New(snapshots Snapshotter, acquirer acme.Acquirer, installer Installer, notifier Notifier) *Orchestrator {
	return &Orchestrator{
		snapshots: snapshots,
		acquirer:  acquirer,
		installer: installer,
		notifier:  notifier,
	}
}

// OnTransition registers fn to be called with every state entered.
func (o *Orchestrator) OnTransition(fn func(state string)) {
	o.onTransition = fn
}

// Outcome is the result of a run.
type Outcome struct {
	// State is the final state.
	State string
	// Transitions lists every state entered, in order.
	Transitions []string
	// Snapshot is the snapshot taken by the run, nil if the backup failed.
	Snapshot *snapshot.Snapshot
	// Bundle is the acquired bundle, nil if acquisition failed.
	Bundle *acme.Bundle
	// Expiry is the NotAfter of the acquired certificate.
	Expiry time.Time
	// Err is the step failure, nil when the run is done.
	Err error
	// RestoreErr is set when the revert could not restore the snapshot.
	RestoreErr error
	// ReloadErr is the service reload failure during a revert.
	ReloadErr error
	// Started and Finished bound the run.
	Started  time.Time
	Finished time.Time
}

// Succeeded reports whether the run reached done.
func (o *Outcome) Succeeded() bool {
	return o.State == StateDone
}

// run holds the state machine of a single Update or Revert.
type run struct {
	machine *fsm.FSM
	outcome *Outcome
}

func (o *Orchestrator) newRun() *run {
	r := &run{outcome: &Outcome{State: StateIdle, Started: time.Now()}}
	r.machine = fsm.NewFSM(
		StateIdle,
		transitions(),
		fsm.Callbacks{
			"enter_state": func(ctx context.Context, e *fsm.Event) {
				r.outcome.Transitions = append(r.outcome.Transitions, e.Dst)
				if o.onTransition != nil {
					o.onTransition(e.Dst)
				}
				logger.DebugFields("State changed", map[string]interface{}{
					"event": e.Event,
					"from":  e.Src,
					"to":    e.Dst,
				})
			},
		},
	)
	return r
}

// event fires a transition. The transition table is static, so an
// invalid transition is a programming error and reported as internal.
func (r *run) event(ctx context.Context, name string) error {
	if err := r.machine.Event(ctx, name); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, "invalid state transition "+name, err)
	}
	r.outcome.State = r.machine.Current()
	return nil
}

func (r *run) finish() *Outcome {
	r.outcome.State = r.machine.Current()
	r.outcome.Finished = time.Now()
	return r.outcome
}

// Update renews the certificate described by req. The returned Outcome is
// never nil; the error is the step failure, if any.
func (o *Orchestrator) Update(ctx context.Context, req acme.Request) (*Outcome, error) {
	r := o.newRun()
	out := r.outcome

	snap, err := o.snapshots.Create(ctx)
	if err != nil {
		out.Err = err
		logger.Error("Backup failed, nothing was changed: %v", err)
		return r.finish(), err
	}
	out.Snapshot = snap
	if err := r.event(ctx, EventBackup); err != nil {
		out.Err = err
		return r.finish(), err
	}

	if err := o.forward(ctx, r, req); err != nil {
		out.Err = err
		logger.Error("Renewal failed in state %s: %v", r.machine.Current(), err)
		o.revert(ctx, r, snap.ID)
		return r.finish(), err
	}

	logger.InfoFields("Renewal complete", map[string]interface{}{
		"domain":   req.Domain,
		"snapshot": snap.ID,
	})
	return r.finish(), nil
}

// forward runs every step after the backup.
func (o *Orchestrator) forward(ctx context.Context, r *run, req acme.Request) error {
	out := r.outcome

	if err := o.acquirer.Prepare(ctx); err != nil {
		return asCode(err, errors.ErrCodeIssuance, "failed to prepare "+o.acquirer.Name())
	}
	if err := r.event(ctx, EventPrepare); err != nil {
		return err
	}

	bundle, err := o.acquirer.Acquire(ctx, req)
	if err != nil {
		return asCode(err, errors.ErrCodeIssuance, "certificate acquisition failed")
	}
	if bundle == nil {
		return errors.WrapDomain(errors.ErrCodeIssuance, req.Domain, "acquirer returned no bundle", nil)
	}
	if err := bundle.Validate(); err != nil {
		return err
	}
	out.Bundle = bundle
	if expiry, err := bundle.Expiry(); err == nil {
		out.Expiry = expiry
	}
	if err := r.event(ctx, EventIssue); err != nil {
		return err
	}

	if _, err := o.installer.Install(ctx, bundle); err != nil {
		return asCode(err, errors.ErrCodeInstall, "certificate install failed")
	}
	if err := r.event(ctx, EventInstall); err != nil {
		return err
	}

	if err := o.notifier.Reload(ctx); err != nil {
		return asCode(err, errors.ErrCodeServiceReload, "service reload failed")
	}
	if err := r.event(ctx, EventReload); err != nil {
		return err
	}

	return r.event(ctx, EventFinish)
}

// revert restores the run's snapshot and reloads services. Services are
// reloaded even when the restore failed so they pick up whatever is on disk.
func (o *Orchestrator) revert(ctx context.Context, r *run, id string) {
	out := r.outcome
	// a cancelled run must still be able to roll back
	ctx = context.WithoutCancel(ctx)

	if err := r.event(ctx, EventFail); err != nil {
		out.RestoreErr = err
		return
	}

	logger.Warn("Restoring snapshot %s", id)
	if _, err := o.snapshots.Restore(ctx, id); err != nil {
		out.RestoreErr = restoreFailed(err, "restore of snapshot "+id+" failed")
		logger.Error("Restore failed, manual intervention required: %v", out.RestoreErr)
	}

	if err := o.notifier.Reload(ctx); err != nil {
		out.ReloadErr = err
		logger.Error("Service reload after restore failed: %v", err)
	}

	if out.RestoreErr != nil {
		_ = r.event(ctx, EventRevertAbort)
		return
	}
	_ = r.event(ctx, EventRevertDone)
	logger.Info("Snapshot %s restored", id)
}

// Revert restores a snapshot by id (latest when empty) and reloads
// services. A restore failure skips the reload and leaves the outcome in
// failed; an unknown snapshot reports SnapshotNotFound without touching the
// live stores.
func (o *Orchestrator) Revert(ctx context.Context, id string) (*Outcome, error) {
	r := o.newRun()
	out := r.outcome

	if err := r.event(ctx, EventRevert); err != nil {
		out.Err = err
		return r.finish(), err
	}

	snap, err := o.snapshots.Restore(ctx, id)
	if err != nil {
		if !errors.Is(err, errors.ErrSnapshotNotFound) {
			err = restoreFailed(err, "restore failed")
		}
		out.Err = err
		out.RestoreErr = err
		_ = r.event(ctx, EventRevertAbort)
		return r.finish(), err
	}
	out.Snapshot = snap

	if err := o.notifier.Reload(ctx); err != nil {
		out.ReloadErr = err
		out.Err = err
		_ = r.event(ctx, EventRevertDone)
		return r.finish(), err
	}

	_ = r.event(ctx, EventRevertDone)
	return r.finish(), nil
}

// asCode keeps err when it already carries a code and wraps it with code
// otherwise.
func asCode(err error, code errors.ErrorCode, msg string) error {
	var certErr *errors.CertError
	if errors.As(err, &certErr) {
		return err
	}
	return errors.Wrap(code, msg, err)
}

// restoreFailed makes sure err reports RestoreFailed.
func restoreFailed(err error, msg string) error {
	if errors.CodeOf(err) == errors.ErrCodeRestore {
		return err
	}
	return errors.Wrap(errors.ErrCodeRestore, msg, err)
}
