// Package boards is the application service behind the board, card and
// attachment endpoints. Every operation runs the same gauntlet regardless of
// how the caller authenticated: demo write guard, permission check, rate
// limit, quota, then the org-scoped store. Creation paths check quotas
// advisorily up front; attachment creation additionally re-checks inside a
// serializable transaction, which is the check that actually holds under
// concurrency.
package boards
