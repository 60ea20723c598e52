// Package integration contains end-to-end tests of the sync and enrichment
// services against a real PostgreSQL container and fake upstream APIs.
//
// The suite is skipped under -short.
package integration
