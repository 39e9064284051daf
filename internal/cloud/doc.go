// Package cloud implements the REST client for the vendor's smart-home
// intent API.
//
// All calls share one envelope: a generated requestId plus a single-entry
// inputs array naming the intent (SYNC, QUERY, or EXECUTE). Responses are
// decoded into the convert package's vendor types and handed to the sync
// coordinator untranslated.
//
// The client never logs tokens and never retries; retry policy belongs to
// the coordinator, which knows whether stale cached state is an
// acceptable substitute for a failed call.
package cloud
