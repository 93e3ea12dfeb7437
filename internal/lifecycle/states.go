package lifecycle

import "github.com/looplab/fsm"

// Renewal states
const (
	StateIdle             = "idle"
	StateBackedUp         = "backed_up"
	StateToolInstalled    = "tool_installed"
	StateIssued           = "issued"
	StateInstalled        = "installed"
	StateServicesReloaded = "services_reloaded"
	StateDone             = "done"

	StateReverting = "reverting"
	StateReverted  = "reverted"
	StateFailed    = "failed"
)

// Renewal events
const (
	EventBackup      = "backup"
	EventPrepare     = "prepare"
	EventIssue       = "issue"
	EventInstall     = "install"
	EventReload      = "reload"
	EventFinish      = "finish"
	EventFail        = "fail"
	EventRevert      = "revert"
	EventRevertDone  = "revert_done"
	EventRevertAbort = "revert_abort"
)

// forwardStates are the states from which a step failure starts a revert.
var forwardStates = []string{
	StateBackedUp,
	StateToolInstalled,
	StateIssued,
	StateInstalled,
	StateServicesReloaded,
}

func transitions() fsm.Events {
	return fsm.Events{
		{Name: EventBackup, Src: []string{StateIdle}, Dst: StateBackedUp},
		{Name: EventPrepare, Src: []string{StateBackedUp}, Dst: StateToolInstalled},
		{Name: EventIssue, Src: []string{StateToolInstalled}, Dst: StateIssued},
		{Name: EventInstall, Src: []string{StateIssued}, Dst: StateInstalled},
		{Name: EventReload, Src: []string{StateInstalled}, Dst: StateServicesReloaded},
		{Name: EventFinish, Src: []string{StateServicesReloaded}, Dst: StateDone},

		{Name: EventFail, Src: forwardStates, Dst: StateReverting},
		// manual revert starts from idle
		{Name: EventRevert, Src: []string{StateIdle}, Dst: StateReverting},
		{Name: EventRevertDone, Src: []string{StateReverting}, Dst: StateReverted},
		{Name: EventRevertAbort, Src: []string{StateReverting}, Dst: StateFailed},
	}
}
