package api

const (
	// Path parameters
	ParamID = "id"

	// Query parameters
	ParamToken = "token"
	ParamTypes = "types"

	// Headers
	HeaderContentType = "Content-Type"
	HeaderAdminToken  = "X-Admin-Token"
	MimeJSON          = "application/json"

	// MaxBodyBytes fits the largest accepted base64 torrent plus the JSON
	// envelope.
	MaxBodyBytes = 14 << 20
)
