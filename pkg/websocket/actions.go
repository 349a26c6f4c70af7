package websocket

// Request actions. CRUD stays on the REST surface; the socket only carries
// the feed, a health probe, and a stats snapshot.
const (
	ActionHealthCheck  = "health.check"
	ActionStatsProject = "stats.project"

	// Feed subscriptions. A client with no filters receives every event;
	// subscribing narrows the feed to the given subject patterns
	// (NATS-style: `*` one token, `>` trailing tokens). Unsubscribing
	// removes patterns; removing the last one widens back to everything.
	ActionFeedSubscribe   = "feed.subscribe"
	ActionFeedUnsubscribe = "feed.unsubscribe"
)

// Error codes carried in error frames.
const (
	ErrorCodeBadRequest    = "BAD_REQUEST"
	ErrorCodeValidation    = "VALIDATION_ERROR"
	ErrorCodeNotFound      = "NOT_FOUND"
	ErrorCodeConflict      = "CONFLICT"
	ErrorCodeInternalError = "INTERNAL_ERROR"
	ErrorCodeUnknownAction = "UNKNOWN_ACTION"
)
