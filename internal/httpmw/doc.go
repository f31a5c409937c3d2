// Package httpmw holds the HTTP middleware shared by the application
// listener: request IDs, client IP resolution, identity carriage,
// request-scoped logging, panic recovery, body limits, and security
// headers. Middlewares communicate through the request context only.
package httpmw
