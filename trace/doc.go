// Package trace reconstructs structured timelines from recorded
// browser-automation session archives.
//
// An archive is a zip container holding newline-delimited JSON event streams
// and optional network activity. Two models are derived from the same family
// of archives:
//
//   - the basic model (ParseSession): a flat list of action spans, console
//     output, errors, and HAR-derived network requests with a summary;
//   - the enhanced model (Analyzer): a paired step timeline with timing,
//     status, visual-state deltas, and decision metadata, queried through a
//     set of read-only projections.
//
// The two models intentionally differ in how before/after events are
// treated: the basic model records each qualifying event as its own span,
// while the enhanced model pairs them into steps.
package trace
