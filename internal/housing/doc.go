// Package housing defines the domain types and ports shared by the crawler
// subsystems: worlds, house and guildhall listings, fetch descriptors, and
// scraping runs.
package housing
