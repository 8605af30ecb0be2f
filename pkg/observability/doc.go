/*
Package observability provides tools for monitoring the run orchestrator.

Metrics exposes Prometheus collectors as domain.StepHooks that plug into the
step runner, LogHooks mirrors the same lifecycle into a structured logger, and
Chain combines several hook sets into one.
*/
package observability
