// Package schedule runs analyzer jobs across a bounded worker pool.
//
// Jobs are independent and order-insensitive. The scheduler submits every
// job up front and delivers completions in whichever order they finish, so
// a slow or hung job never delays reporting of fast ones.
//
// Every submitted file yields exactly one Completion unless the run is
// cancelled. A Completion either carries an Outcome (success, rule failure,
// crash or timeout) or an error wrapping core.ErrJobLost when the job
// produced no result at all.
package schedule
