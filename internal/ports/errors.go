package ports

import "errors"

// Standard application-level errors.
// Adapters wrap underlying infrastructure errors with these standard errors
// so the core can classify failures without knowing the venue.
var (
	// General errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Quote / market data errors. Transient: the affected item is skipped
	// this tick and re-evaluated on the next one.
	ErrQuoteUnavailable = errors.New("quote unavailable from venue")

	// Execution errors
	ErrInsufficientLiquidity = errors.New("pool liquidity below minimum floor")
	ErrZeroLiquidity         = errors.New("pool has no liquidity")
	ErrSubmissionFailed      = errors.New("trade submission failed")
	ErrInsufficientBalance   = errors.New("insufficient balance for entry")
	ErrRiskLimitExceeded     = errors.New("entry rejected by risk limits")

	// Venue connectivity errors
	ErrVenueUnavailable     = errors.New("venue API is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the venue")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("venue authentication failed (check API keys)")

	// Database errors
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
	ErrUpdateFailed = errors.New("database update failed")
)
