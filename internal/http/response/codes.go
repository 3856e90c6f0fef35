package response

// 业务状态码，与 HTTP 语义对齐
const (
	CodeOK              = 0
	CodeBadRequest      = 400
	CodeUnauthorized    = 401
	CodeForbidden       = 403
	CodeNotFound        = 404
	CodeConflict        = 409
	CodeUnprocessable   = 422
	CodeTooManyRequests = 429
	CodeInternal        = 500
	CodeRailUnavailable = 503
)
