// Package client talks to the Courial backend and opens the local database.
//
// # Overview
//
// GRPCClient manages one connection, attaches the session's access token
// to every call through an interceptor, and maps gRPC status codes to the
// sentinel errors below. Payloads are google.protobuf.Struct messages, so
// no generated stubs are needed.
//
// On top of it sit one adapter per backend collaborator used during session
// bootstrap: Push, Billing, Resolver, Discount and SMS. Each satisfies the
// matching consumer interface in the effects and otp packages.
//
// InitDatabase opens the on-device SQLite database, applies the embedded
// goose migrations and returns the repositories built on it.
//
// # Error Handling
//
// Transport failures are reported as ErrUnavailable or ErrUnauthorized and
// can be matched with errors.Is. A response that lacks a required field is
// ErrBadResponse.
package client
