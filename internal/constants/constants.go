package constants

import (
	"time"
)

// Guard windows and caps. The same values are hard-coded in the
// enforce_verify_request_limits() trigger (migrations/0001); change both together.
const (
	UserHourlyWindow = 1 * time.Hour
	UserHourlyLimit  = 3
	UserMinSpacing   = 5 * time.Minute
	GlobalWindow     = 1 * time.Minute
	GlobalLimit      = 100
	PatternMinPrefix = 6
	PatternMinSuffix = 4
	PatternSeparator = "..."
)

// Retention for the cleanup routine. Pending requests are never removed.
const (
	TerminalRetention  = 30 * 24 * time.Hour
	DefaultCleanupCron = "15 3 * * *"
)

// Request defaults
const (
	DefaultChain           = "ethereum"
	DefaultListLimit       = 20
	MaxListLimit           = 100
	MaxResponseMessageSize = 500
	MaxSubmitBodyBytes     = 64 << 10
)

// Two-key advisory lock namespaces for the guarded insert. User locks
// use hashtext(user_id) as the second key; the global lock uses 0.
const (
	UserLockNamespace   = 4417
	GlobalLockNamespace = 4418
)

// CORS
const CORSLowSecurityAllowedOriginLocalhost = "http://localhost:*"
