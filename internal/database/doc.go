// Package database provides the Postgres connection pool and schema used by
// the event writer.
package database
