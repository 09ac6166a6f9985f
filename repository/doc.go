// Package repository provides generic Bun statements (lookup by primary key,
// listing, counting, pagination, insert, column updates and deletes) that run
// on a *bun.DB or an open transaction.
package repository
