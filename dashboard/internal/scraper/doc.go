// Package scraper is the HTTP client for the switch being monitored.
//
// Fetch GETs the status document and decodes it with the configured wire
// schema into a types.Snapshot. Toggle POSTs to the toggle endpoint and
// returns the switch's confirmation message.
//
// Every failure is a *Error whose Kind is Unreachable, BadStatus or
// MalformedBody. Timeouts surface as Unreachable.
//
// Authentication (mTLS, API key, bearer token, basic) is handled by the
// authRoundTripper in client.go.
package scraper
