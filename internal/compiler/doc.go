// Package compiler validates parsed Vault programs and compiles them into
// sealed archives.
//
// Validate runs every structural check and returns all problems at once.
// Compile then replays each vault's operations against a key/value state
// seeded from the same-named dependency vault and seals the result.
package compiler
