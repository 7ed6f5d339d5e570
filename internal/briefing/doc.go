// Package briefing provides the business boundary for Hermes' daily
// briefing pipeline. It defines the Service (run-date locking, lifecycle,
// async dispatch), Engine (pure stage orchestration), Store interface
// (persisted run state and the published-fingerprint ledger), and domain
// models.
package briefing
