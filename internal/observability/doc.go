// Package observability provides the board's event log, event-derived
// metrics, Prometheus collectors, and alerting. Domain events are stored as
// JSON Lines (JSONL); metrics are derived on demand from that log while the
// alert engine inspects the live board.
package observability
