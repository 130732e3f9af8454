package dynamo

// DynamoDB attribute and index names shared by the repos and Bootstrap.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldUserID       = "user_id"
	fieldEmail        = "email"
	fieldSessionID    = "session_id"
	fieldToken        = "token"
	fieldLastUsedAt   = "last_used_at"
	fieldExpiresAtTTL = "expires_at_ttl"

	indexEmail  = "email-index"
	indexToken  = "token-index"
	indexUserID = "user_id-index"
)
