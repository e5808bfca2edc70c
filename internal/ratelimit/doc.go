// Package ratelimit keeps outbound GitHub API usage under quota.
//
// The limiter combines three independent signals before every call: the
// remote-reported quota (cached, can be stale), a local burst window that
// catches intra-minute spikes the remote side has not observed yet, and a
// predictive extrapolation that slows down a trend before it hits the limit.
// Each signal covers a failure mode the other two do not.
//
// All waiting happens in CheckAndWait, the single blocking point. Quota
// exhaustion errors feed an exponential backoff with jitter through
// NoteFailure; Do wraps an operation with the full check-call-retry cycle.
package ratelimit
