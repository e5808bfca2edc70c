// Package ghclient exposes the narrow set of GitHub operations octoquest
// performs, every one of them mediated by the rate limiter and its bounded
// retry policy.
//
// The wrapper smooths over transient failures only: once retries are
// exhausted the underlying transport error propagates unchanged, and domain
// errors (not found, validation) are never retried at all.
package ghclient
