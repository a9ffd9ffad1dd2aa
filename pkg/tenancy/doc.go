// Package tenancy enforces organization isolation with two independent,
// mutually redundant mechanisms:
//
//  1. Database row policies. Every tenant-scoped table carries a row-level
//     security policy keyed on transaction-local session settings
//     (app.current_org_id, app.current_user_id). The policies are FORCEd so
//     they bind the table owner too, and every statement the facade issues
//     runs inside a tenant transaction that establishes the settings with
//     set_config(..., true); a pooled connection returned between statements
//     can never leak another request's context. Background sweeps, which
//     have no tenant, run in transactions flagged app.maintenance, admitted
//     by dedicated policies.
//
//  2. An application-side data-access facade (Store). A Store is built from a
//     request's TenantContext and exposes only org-scoped operations: every
//     read filters by org id, every write verifies ownership first, and bulk
//     reorders validate client-supplied ids against a server-computed
//     whitelist.
//
// Neither mechanism substitutes for the other: the policies catch facade
// bugs, the facade catches lost session state.
package tenancy
