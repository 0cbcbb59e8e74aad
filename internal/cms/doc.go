// Package cms is the data access layer over the headless CMS REST API.
//
// The CMS has served two response shapes over its lifetime: entities with their
// fields nested under an "attributes" key, and entities with the fields flattened
// onto the object. Relations may or may not be wrapped in a {"data": ...} envelope.
// Every shape is normalized by a per-kind adapter in normalize.go, so callers only
// ever see the canonical [Item], [Category], [Comment], [Ticket] and [Order] types.
//
// Read operations never fail: a transport error, a non-2xx status or a malformed
// body is logged and degrades to an empty collection or a not-found result.
// Write operations (comments, profile, password, tickets) return errors, because
// their callers must tell the user the write did not happen.
//
// [Client.Search] fans out one substring query per searchable [Kind] and merges
// the results in a fixed order; a failing kind contributes nothing rather than
// failing the whole search.
package cms
