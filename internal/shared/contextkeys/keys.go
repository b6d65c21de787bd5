package contextkeys

// contextKey is an unexported type to prevent collisions with context keys defined in
// other packages.
type contextKey string

// String makes contextKey satisfy the Stringer interface to assist with debugging.
func (c contextKey) String() string {
	return "metadata-service context key " + string(c)
}

const (
	// RequestIDKey carries the id assigned by the requestid middleware
	RequestIDKey = contextKey("requestID")
	// AdminUserKey carries the admin login that passed the admin gate
	AdminUserKey = contextKey("adminUser")
	// ComponentKey names the component emitting a log line
	ComponentKey = contextKey("component")
	// OperationKey names the operation in progress
	OperationKey = contextKey("operation")
	// CommonsKey carries the commons currently being refreshed
	CommonsKey = contextKey("commons")
)
