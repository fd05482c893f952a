// Package server hosts the Fiber HTTP service, the request-id middleware and
// the shared upstream HTTP clients. Shell-asset requests are handed to an
// injected ProxyHandler; the /-/ diagnostics and player API routes are
// registered by the routes subpackage after NewApp returns.
package server
