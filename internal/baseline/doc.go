// Package baseline persists the set of files tolerated as failing and
// reconciles it against a run's verdicts.
//
// The baseline file is plain text: one normalized relative path per line,
// sorted, newline-terminated. A missing file is an empty baseline.
//
// Reconciliation only ever shrinks the baseline. A file leaves it when it
// was submitted in this run and came back clean; files that were not
// submitted are left alone because they were not re-examined.
package baseline
