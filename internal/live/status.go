package live

// Status is the lifecycle state of a live session as reported to the host.
type Status string

const (
	StatusIdle         Status = "idle"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
	StatusDisconnected Status = "disconnected"
)

// Terminal reports whether s ends a session. A terminal session is never
// resurrected; the next Connect builds a fresh one.
func (s Status) Terminal() bool {
	return s == StatusError || s == StatusDisconnected
}

// String implements [fmt.Stringer].
func (s Status) String() string { return string(s) }
