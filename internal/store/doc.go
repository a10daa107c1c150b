// Package store persists pins and photo records in SQLite, MongoDB or memory
package store
