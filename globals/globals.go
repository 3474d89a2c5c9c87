package globals

// JwtSecret signs and verifies employee tokens. Set from configuration at startup.
var JwtSecret = []byte("")

// Context keys
type ContextKey string

const UserIDKey ContextKey = "userId"
