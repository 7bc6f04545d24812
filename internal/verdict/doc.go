// Package verdict turns the scheduler's completion stream into one verdict
// per file.
//
// Aggregation is a single-writer fold: the driver feeds completions to an
// Aggregator one at a time and reads the Result once the stream is closed.
// Verdicts merge by severity and diagnostics are kept in a canonical order,
// so the Result does not depend on the order completions arrive in.
package verdict
