// Package httputil provides HTTP handler utilities for consistent error handling,
// JSON encoding, and request parsing.
//
// Every error reply has the shape {"error": "..."}; handlers use the Write*
// helpers rather than encoding responses themselves. Request IDs come from
// the X-Request-ID header when the caller sets one.
package httputil
