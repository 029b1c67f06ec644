package authclient

// Outcome is the detailed result of one authentication attempt. Only
// Granted and Cached let the user in.
type Outcome string

const (
	Granted       Outcome = "granted"
	Cached        Outcome = "cached"
	CacheMismatch Outcome = "cache_mismatch"
	Denied        Outcome = "denied"
	// Rejected requests never reach the worker, e.g. a password too long
	// to encode.
	Rejected    Outcome = "rejected"
	Timeout     Outcome = "timeout"
	Cancelled   Outcome = "cancelled"
	Unavailable Outcome = "unavailable"
	Corrupt     Outcome = "corrupt"
)

func (o Outcome) OK() bool {
	return o == Granted || o == Cached
}
