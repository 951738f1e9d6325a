package protocol

// Methods answered by the built-in middleware.
const (
	MethodPing   = "ping"
	MethodEcho   = "echo"
	MethodCancel = "$/cancelRequest"
)

// Request metadata keys set by transports from incoming headers.
const (
	MetaAuthorization = "Authorization"
	MetaAPIKey        = "X-API-Key"
	MetaRequestID     = "X-Request-ID"
)
