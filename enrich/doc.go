// Package enrich normalizes raw user queries and extracts the entities and
// context hints that drive classification, retrieval and selection. All
// detection is vocabulary and regex based; no model calls happen here, so
// enrichment is fast and never fails.
package enrich
