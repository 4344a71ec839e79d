package logger

// Fields is a map of structured log fields.
type Fields map[string]interface{}

// Common field names used across the service. Consistent keys make the
// JSON output queryable.
const (
	FieldRequestID  = "request_id"
	FieldUserID     = "user_id"
	FieldDocumentID = "document_id"
	FieldJobID      = "job_id"
	FieldDocType    = "doc_type"
	FieldComponent  = "component"
	FieldDurationMs = "duration_ms"
	FieldStatus     = "status"
	FieldError      = "error"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldSize       = "size_bytes"
)
