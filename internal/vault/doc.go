// Package vault stores small named secrets encrypted at rest.
//
// Each value is sealed individually with a key derived from the master key
// and the document salt, with the entry key bound as associated data.
// Descriptions are kept in plaintext so List works without authorization.
// Get always consults an Authorizer, normally the verification gate.
package vault
