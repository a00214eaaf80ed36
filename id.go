package warrant

import "github.com/xraph/warrant/id"

// ID is the primary identifier type for all Warrant entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
