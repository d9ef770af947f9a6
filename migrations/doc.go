// Package migrations registers the PostgreSQL schema as goose Go migrations.
// Import it for side effects and run goose against the "postgres" dialect.
package migrations
