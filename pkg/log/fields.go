package log

// Field names shared by every Mixtli process.
const (
	FieldService = "service"
	FieldVersion = "version"

	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"
	FieldBytes     = "bytes"

	// Set by the admin middleware.
	FieldActor = "actor"

	FieldAlbum    = "album"
	FieldKey      = "key"
	FieldSnapshot = "snapshot"
	FieldCount    = "count"

	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)
