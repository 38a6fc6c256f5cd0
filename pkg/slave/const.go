package slave

// waitTimeDisableSlaveUs is the grace period a slave spends in
// WaitDisablingSlave after an application-triggered Disable, giving the
// master one more poll interval to notice the outgoing transmission bit
// drop before the slave stops answering entirely.
const waitTimeDisableSlaveUs uint32 = 2_500_000

// errorCallbackRetriggerPeriodUs bounds how often Callbacks.Error may fire
// for the same ErrorKind: repeats within the window are suppressed, the
// same way the log-line limiter suppresses repeated log output, but on its
// own independent timer/tag state.
const errorCallbackRetriggerPeriodUs uint32 = 1_000_000

// ErrorKind identifies the condition reported through Callbacks.Error.
type ErrorKind int

const (
	ErrorWrongStationCount ErrorKind = iota
	ErrorMasterDuplication
	ErrorSlaveDuplication
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorWrongStationCount:
		return "WrongStationCount"
	case ErrorMasterDuplication:
		return "MasterDuplication"
	case ErrorSlaveDuplication:
		return "SlaveDuplication"
	default:
		return "Unknown"
	}
}

// rate-limiter tags, one per distinct suppressed log/callback site.
const (
	tagWrongMaster int = iota
	tagWrongStationCount
)
