// Package dedupe provides a time-bounded set of recently seen keys,
// used to avoid asking the same verification question twice in a row.
package dedupe
