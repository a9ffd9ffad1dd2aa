// Package orgs manages the durable tenant records: organizations, their
// subscription plan, org-level memberships, and the plan-derived AI-call
// counter. An organization is the isolation boundary; every durable business
// row belongs to exactly one.
//
// Organizations are auto-created on first use with the externally issued org
// id as primary key. Creation is an upsert so two concurrent first requests
// cannot fail each other.
package orgs
