package constant

const (
	// HeaderID is the request identifier header key.
	HeaderID = "X-Request-Id"
	// HeaderHolderID is the header carrying the caller's holder identity.
	HeaderHolderID = "X-Holder-Id"
	// HeaderUserAgent is the HTTP User-Agent header key.
	HeaderUserAgent = "User-Agent"
	// HeaderRealIP is the de-facto upstream real client IP header key.
	HeaderRealIP = "X-Real-Ip"
	// HeaderForwardedFor is the X-Forwarded-For header key.
	HeaderForwardedFor = "X-Forwarded-For"
	// HeaderReferer is the HTTP Referer header key.
	HeaderReferer = "Referer"
	// HeaderContentType is the HTTP Content-Type header key.
	HeaderContentType = "Content-Type"
)
