// Package main hosts the menu crawler service entrypoint.
//
// Architecture overview:
//   - Scheduler: internal/scheduler runs one ingestion pass at start-up and then
//     again crawler.interval after each pass ends. POST /v1/runs wakes it early.
//   - Ingestion: internal/worker refreshes the restaurant directory through the
//     Colly fetcher, renders each restaurant's menu and wine listing with headless
//     Chrome, fans item pages out through the shared fetch semaphore, and upserts
//     the results into Postgres. One bad restaurant never stops the pass.
//   - Persistence: internal/storage/postgres owns the pgx pool, the multi-row
//     upserts, the bot's read projections, the cart, and the crawl_runs ledger.
//   - Side outputs: rendered listings are optionally kept as snapshots
//     (memory/local/GCS) and every finished run is published to Pub/Sub.
//   - HTTP API: internal/api serves the catalog, cart, run ledger, probes, and
//     /metrics with chi.
//
// Configuration comes from an optional file, MENU_* environment variables, and an
// optional .env file loaded first. The process drains on SIGINT/SIGTERM: the
// current run is interrupted between restaurants and recorded, then the HTTP
// server, browser, publisher, and pool are closed.
//
// Quick checklist:
//   - Point MENU_DB_DSN at Postgres and set MENU_DB_AUTO_MIGRATE=true on first run.
//   - Set MENU_HEADLESS_ENABLED=false where Chrome is unavailable; listing pages
//     are then fetched without scrolling.
//   - Run one pass and exit: go run ./cmd/menucrawler -once.
//   - Print the DDL for manual migration: go run ./cmd/menucrawler -schema.
package main
