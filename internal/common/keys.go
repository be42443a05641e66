package common

import "fmt"

// Key builders for the coordination records kept in the KV store. All keys
// share the "cira:" namespace to keep them apart from queue and robots data.

// JobControlKey holds a pending pause or stop request for a running job.
func JobControlKey(companyID string) string {
	return fmt.Sprintf("cira:job:%s:control", companyID)
}

// JobHeartbeatKey holds the last-seen timestamp of a running job, used by
// startup recovery to distinguish live jobs from abandoned ones.
func JobHeartbeatKey(companyID string) string {
	return fmt.Sprintf("cira:job:%s:heartbeat", companyID)
}

// JobStatusKey holds the JSON status snapshot mirrored from the database
// for cheap polling and recovery staleness checks.
func JobStatusKey(companyID string) string {
	return fmt.Sprintf("cira:job:%s:status", companyID)
}

// JobLockKey guards pause and resume against concurrent operators.
func JobLockKey(companyID string) string {
	return fmt.Sprintf("cira:job:%s:lock", companyID)
}
