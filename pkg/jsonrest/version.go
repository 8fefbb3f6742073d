package jsonrest

// Version of the jsonrest package.
const Version = "1.4.0"

// DefaultUserAgent is sent when no user agent is configured.
const DefaultUserAgent = "jsonrest/" + Version
