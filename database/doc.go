// Package database provides connection management, sessions (units of work over
// a Bun transaction), configuration loading, driver error classification, query
// logging and table creation for registered models.
package database
