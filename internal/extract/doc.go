// Package extract turns community pages into typed worlds and listings.
//
// Parsing runs against the narrow Scope interface rather than a concrete
// DOM library, so row-level rules can be exercised with hand-built scopes.
// Parse adapts goquery documents to it.
package extract
