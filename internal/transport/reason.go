package transport

import "fmt"

// DisconnectReason is the status code a transport attaches to a closed
// connection.
type DisconnectReason int

const (
	ReasonLoggedOut           DisconnectReason = 401
	ReasonForbidden           DisconnectReason = 403
	ReasonConnectionLost      DisconnectReason = 408
	ReasonMultideviceMismatch DisconnectReason = 411
	ReasonConnectionClosed    DisconnectReason = 428
	ReasonConnectionReplaced  DisconnectReason = 440
	ReasonBadSession          DisconnectReason = 500
	ReasonUnavailable         DisconnectReason = 503
	ReasonRestartRequired     DisconnectReason = 515
)

type Disposition string

const (
	Retryable Disposition = "retryable"
	Terminal  Disposition = "terminal"
)

// terminalReasons cannot be fixed by reconnecting with the same credentials.
var terminalReasons = map[DisconnectReason]struct{}{
	ReasonLoggedOut:           {},
	ReasonForbidden:           {},
	ReasonMultideviceMismatch: {},
	ReasonConnectionReplaced:  {},
	ReasonBadSession:          {},
}

// Classify maps a close reason to its disposition. Unknown codes are retryable.
func Classify(reason DisconnectReason) Disposition {
	if _, ok := terminalReasons[reason]; ok {
		return Terminal
	}
	return Retryable
}

func (r DisconnectReason) String() string {
	switch r {
	case ReasonLoggedOut:
		return "logged_out"
	case ReasonForbidden:
		return "forbidden"
	case ReasonConnectionLost:
		return "connection_lost"
	case ReasonMultideviceMismatch:
		return "multidevice_mismatch"
	case ReasonConnectionClosed:
		return "connection_closed"
	case ReasonConnectionReplaced:
		return "connection_replaced"
	case ReasonBadSession:
		return "bad_session"
	case ReasonUnavailable:
		return "unavailable"
	case ReasonRestartRequired:
		return "restart_required"
	default:
		return fmt.Sprintf("code_%d", int(r))
	}
}
