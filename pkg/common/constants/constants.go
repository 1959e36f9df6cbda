package constants

const (
	// RoleAdmin bypasses ownership checks on every cache read/write and
	// repository write.
	RoleAdmin = "admin"

	// RequestIdKey is the logger field carrying the per-request id.
	RequestIdKey = "request_id"
)
