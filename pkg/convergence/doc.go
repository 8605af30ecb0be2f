// Package convergence reduces a run document to a single verdict.
//
// Derive is pure: it performs no I/O, reads no clock other than Input.Now and
// returns the same RunConvergence for the same input. Rules are evaluated in a
// fixed priority order and the first match wins.
package convergence
