// Package middleware assembles the request gauntlet: authentication first,
// then tenant resolution. Everything past the tenant middleware can assume a
// verified TenantContext in the request context; handlers never look at raw
// credentials.
//
// Two credential shapes arrive here. Interactive traffic carries identity
// assertion headers injected by the auth proxy in front of the service.
// Programmatic traffic carries a bearer API key. Both funnel into the same
// resolver, so every enforcement layer downstream sees one context type
// regardless of path.
package middleware
