package synology

import "net/http"

// codeClass is the reaction an upstream failure calls for.
type codeClass int

const (
	classNone      codeClass = iota // success
	classTransient                  // retry with the same session after backoff
	classSession                    // relogin, then retry
	classFatal                      // give up
	classCanceled                   // caller context ended
)

func (c codeClass) String() string {
	switch c {
	case classNone:
		return "none"
	case classTransient:
		return "transient"
	case classSession:
		return "session"
	case classFatal:
		return "fatal"
	case classCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Upstream result codes with special handling. Everything else is fatal,
// including 105 (permission denied) and 103 (unknown method).
var (
	transientCodes = map[int]struct{}{
		109: {}, // network error
		110: {}, // service busy
		111: {}, // request timed out
		117: {}, // network unstable
		118: {}, // system busy
	}

	sessionCodes = map[int]struct{}{
		106: {}, // session timeout
		107: {}, // interrupted by duplicate login
		119: {}, // invalid session id
		150: {}, // source IP does not match login IP
	}
)

// classifyCode maps an upstream result code to a codeClass.
func classifyCode(code int) codeClass {
	if _, ok := transientCodes[code]; ok {
		return classTransient
	}

	if _, ok := sessionCodes[code]; ok {
		return classSession
	}

	return classFatal
}

// isSessionStatus reports whether an HTTP status means the session was
// rejected before the upstream produced an envelope.
func isSessionStatus(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}
