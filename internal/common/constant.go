package common

// EntityTypeEntry tags diary entries in queue items, conflict records and
// sync requests. The engine currently syncs a single entity type, but the
// tag travels on the wire so the protocol stays open to more.
const EntityTypeEntry = "entry"

// DeviceType identifies this client platform to the sync server.
const DeviceType = "go-client"
