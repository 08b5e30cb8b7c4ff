// Package storage is the durable store for all gig board state.
//
// One SQLite database file holds both the configuration tables (categories,
// routing, roles, policies, bans) and the tracking tables (gigs, payloads,
// instances, rate limits, applications, reports, cleanup log).
//
// Integrity rules live in the schema, not in callers:
//
//   - category deletion cascades to its channel associations and its
//     category-scoped bans
//   - gig deletion cascades to its payload, instances, applications and
//     reports
//   - (gig, applicant) and (gig, reporter) are unique; a racing second
//     insert surfaces as ErrConflict rather than a duplicate row
//
// Timestamps are stored as Unix milliseconds.
package storage
