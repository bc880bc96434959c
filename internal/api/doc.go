// Package api hosts the HTTP server, middleware, and REST handlers consumed by
// the ordering bot and by operators. Notable routes:
//   - GET /healthz and /readyz for probes; readyz pings the database.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/restaurants/... for read projections of the crawled catalog.
//   - /v1/users/{user_id}/cart and /checkout for the bot's cart.
//   - GET and POST /v1/runs for the ingestion run ledger and manual triggers.
//     The listing also reports the restaurants the current run is crawling.
package api
