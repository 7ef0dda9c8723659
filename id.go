package feeledger

import "github.com/xraph/feeledger/id"

// ID is the identifier type for lots and journal entries.
type ID = id.ID

// LotID identifies a processing or distribution lot.
type LotID = id.LotID

// ParseLotID parses a "lot_" prefixed identifier.
var ParseLotID = id.ParseLotID
