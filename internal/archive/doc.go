// Package archive writes expired samples to Parquet files before they are
// deleted from the live store. Archives are append-only cold storage: one
// file per cleanup run, named by run time, readable with any Parquet tool.
package archive
