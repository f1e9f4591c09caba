package stratum

import "time"

const (
	// maxStratumMessageSize bounds a single newline-delimited frame in either
	// direction. Anything larger is treated as a framing violation.
	maxStratumMessageSize = 64 * 1024

	// readPollInterval is the transport's readiness tick. Short enough that
	// the idle hook can service the command channel promptly, long enough to
	// not spin.
	readPollInterval = 5 * time.Millisecond

	// idleCommandPoll bounds how long the I/O loop waits on the command
	// channel during an idle tick.
	idleCommandPoll = time.Millisecond

	stratumWriteTimeout = 60 * time.Second

	// defaultResponseTimeout is the facade's per-call deadline. A call that
	// does not see a correlated response within this window returns a
	// timeout error; the connection itself stays up.
	defaultResponseTimeout = 10 * time.Second

	// firstNotifyTimeout is how long Connect waits for the initial
	// mining.notify after authorize succeeds.
	firstNotifyTimeout = 10 * time.Second

	defaultUserAgent = "goStratum/1.0"

	defaultPort = 3333

	// headerHexLen is the serialized block header length in hex characters,
	// nonce placeholder included.
	headerHexLen = 160

	// stateEventBuffer sizes the notification mirror channel between the I/O
	// task and the facade. Deep enough that a burst of notifies during a
	// blocked call is never dropped.
	stateEventBuffer = 64
)

// difficultyScale is the fixed decimal scale used to carry float64 pool
// difficulty into big-integer target arithmetic. Roughly 16 significant
// decimal digits survive the conversion.
const difficultyScale = 1e16
