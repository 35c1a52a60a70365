// Package metadata holds the job.Store backends:
//
//   - memory: process-local maps, for tests and single-node development
//   - sqlstore: PostgreSQL, MySQL or SQLite through database/sql
//   - badgerstore: an embedded BadgerDB database through badgerhold
//
// storetest runs the same behavioural suite against each of them.
package metadata
