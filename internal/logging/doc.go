// Package logging builds the zap loggers used across octoquest.
//
// Components never reach for a global logger. Each constructor receives a
// *zap.Logger and falls back to zap.NewNop() when given nil, so packages
// stay testable in isolation.
package logging
