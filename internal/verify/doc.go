// Package verify implements the knowledge-based verification gate.
//
// A Bank holds sealed questions with their accepted answers. A Selector
// draws a random subset for each challenge, Score compares submitted answers
// after normalization, and a Session tracks the single outstanding challenge
// and the authorization window it can turn into. Gate ties these together
// behind five operations: status, pick, check, add and setup.
//
// Answers never leave the package. Pick returns prompts and options only,
// and a failed check says nothing about which answer was wrong.
package verify
