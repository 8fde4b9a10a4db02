// Package system manages the one-time bootstrap state of a BioCard
// deployment: whether the instance has been initialised, the default
// language chosen at setup, and the creation of the first root account.
//
// The configuration is a single row in SQLite. Initialisation is
// write-once: once the row is marked initialised the setup endpoint is
// permanently closed. A startup integrity check repairs the half-open
// state where a root account exists but the row was never marked.
package system
