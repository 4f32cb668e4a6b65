package controller

import "fmt"

// Outcome classifies a controller call.
type Outcome int

const (
	// OutcomeOK is a successful liveness probe.
	OutcomeOK Outcome = iota
	// OutcomeStarted is a successful start request.
	OutcomeStarted
	// OutcomeNotFound is a 404 answer to a start request.
	OutcomeNotFound
	// OutcomeRemoteError is any other non-200 answer.
	OutcomeRemoteError
	// OutcomeTimeout means the HTTP call hit its deadline.
	OutcomeTimeout
	// OutcomeConnectError covers a failed TCP pre-check and transport errors.
	OutcomeConnectError
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeStarted:
		return "started"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeRemoteError:
		return "remote_error"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeConnectError:
		return "connect_error"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Status messages recorded for non-success outcomes.
const (
	MessagePortClosed = "Proxy Port not accessible"
	MessageTimeout    = "NG_Timeout"
	MessageNotFound   = "Proxy service not found"

	defaultProbeMessage = "OK"
	defaultStartMessage = "Proxy service start initiated"
)

// Result is the outcome of one controller call.
type Result struct {
	Outcome Outcome

	// Message is the status message to record: the remote "message" field on
	// success, otherwise a fixed text describing the failure.
	Message string

	// StatusCode is the HTTP status, zero if no response was received.
	StatusCode int

	// Preflight is true when the TCP pre-check failed and no HTTP request
	// was sent.
	Preflight bool

	Err error
}

// Success reports whether the call achieved its purpose.
func (r Result) Success() bool {
	return r.Outcome == OutcomeOK || r.Outcome == OutcomeStarted
}

func preflightFailure(err error) Result {
	return Result{
		Outcome:   OutcomeConnectError,
		Message:   MessagePortClosed,
		Preflight: true,
		Err:       fmt.Errorf("%w: %w", ErrPortClosed, err),
	}
}

func timeoutFailure(err error) Result {
	return Result{
		Outcome: OutcomeTimeout,
		Message: MessageTimeout,
		Err:     fmt.Errorf("%w: %w", ErrTimeout, err),
	}
}

func transportFailure(err error) Result {
	return Result{
		Outcome: OutcomeConnectError,
		Message: "Error: " + err.Error(),
		Err:     err,
	}
}

func statusFailure(code int) Result {
	return Result{
		Outcome:    OutcomeRemoteError,
		Message:    fmt.Sprintf("HTTP %d", code),
		StatusCode: code,
		Err:        fmt.Errorf("%w: %d", ErrUnexpectedStatus, code),
	}
}
