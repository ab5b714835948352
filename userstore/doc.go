// Package userstore is a SQL implementation of authcore.UserStore.
//
// It runs on SQLite (modernc.org/sqlite, pure Go) or PostgreSQL
// (jackc/pgx/v5 stdlib driver) through sqlx. The schema is managed by goose
// migrations embedded in the binary and applied by [Open].
//
// Emails are stored lowercased. Usernames are compared as given.
package userstore
