// Package api hosts the ops HTTP endpoint that runs alongside a scrape.
// Routes:
//   - GET /healthz and /readyz for probes; readyz pings the store when one is configured.
//   - GET /metrics for Prometheus scraping.
//   - GET /api/runs for recent scraping runs.
package api
