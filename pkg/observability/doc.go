// Package observability provides structured logging and Prometheus metrics
// for the authorization core. Logging uses stdlib slog with a JSON handler;
// metrics cover the security-relevant counters (auth failures, rate-limit
// rejections, quota rejections) so operators can spot abuse and plan limits.
package observability
