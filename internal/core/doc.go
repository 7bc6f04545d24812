// Package core provides the domain models shared by every stage of a run.
//
// A run submits one analysis job per file. Each job produces an Outcome,
// which later stages turn into verdicts and finally into a baseline
// decision. This package owns the pieces every stage agrees on:
//
//   - FileID: the normalized relative path that keys all per-file state.
//   - Outcome and Status: the structured result of one analyzer call.
//   - Invoker: the narrow contract through which the analyzer is reached.
//   - JobError: the job failure taxonomy (timeout, lost, crash, parse miss).
//
// The analyzer itself is opaque. Nothing in this package interprets its
// diagnostics; that belongs to package verdict.
package core
