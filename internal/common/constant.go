package common

// SnapshotKey is the durable-storage key under which the full serialized
// application snapshot is written.
const SnapshotKey = "portkeeper"

// AuthorizationHeaderName is the HTTP header used to carry the access token
// on outbound API requests.
const AuthorizationHeaderName = "Authorization"
