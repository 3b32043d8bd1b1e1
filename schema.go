package controlconn

import "sync/atomic"

// SchemaTable identifies one of the eight logical schema tables spec §4.5
// names, independent of whether the server exposes it through the legacy
// or modern layout.
type SchemaTable int

const (
	SchemaKeyspaces SchemaTable = iota
	SchemaTables
	SchemaViews
	SchemaColumns
	SchemaIndexes
	SchemaUserTypes
	SchemaFunctions
	SchemaAggregates
)

func (t SchemaTable) String() string {
	switch t {
	case SchemaKeyspaces:
		return "keyspaces"
	case SchemaTables:
		return "tables"
	case SchemaViews:
		return "views"
	case SchemaColumns:
		return "columns"
	case SchemaIndexes:
		return "indexes"
	case SchemaUserTypes:
		return "user_types"
	case SchemaFunctions:
		return "functions"
	case SchemaAggregates:
		return "aggregates"
	default:
		return "unknown"
	}
}

// bulkQuery returns the literal SELECT for table, choosing legacy or
// modern layout from v, per the matrix in spec §4.5.
func (t SchemaTable) bulkQuery(v CassandraVersion) string {
	modern := v.usesModernSchema()
	switch t {
	case SchemaKeyspaces:
		if modern {
			return qryModernKeyspaces
		}
		return qryLegacyKeyspaces
	case SchemaTables:
		if modern {
			return qryModernTables
		}
		return qryLegacyTables
	case SchemaViews:
		return qryModernViews // only ever fetched when modern (gated below)
	case SchemaColumns:
		if modern {
			return qryModernColumns
		}
		return qryLegacyColumns
	case SchemaIndexes:
		return qryModernIndexes // only ever fetched when modern
	case SchemaUserTypes:
		if modern {
			return qryModernUserTypes
		}
		return qryLegacyUserTypes
	case SchemaFunctions:
		if modern {
			return qryModernFunctions
		}
		return qryLegacyFunctions
	case SchemaAggregates:
		if modern {
			return qryModernAggregates
		}
		return qryLegacyAggregates
	default:
		panic("controlconn: unknown schema table")
	}
}

// bulkPlan returns, in a fixed order, the set of logical tables the bulk
// schema refresh must read for server version v under the given tracking
// configuration (spec §4.5's version-gate table, plus the "keyspaces is
// always fetched if token-aware routing is on" rule).
func bulkPlan(v CassandraVersion, schemaTracking, tokenAware bool) []SchemaTable {
	if !schemaTracking && !tokenAware {
		return nil
	}
	if !schemaTracking && tokenAware {
		return []SchemaTable{SchemaKeyspaces}
	}

	plan := []SchemaTable{SchemaKeyspaces, SchemaTables, SchemaColumns}
	if v.AtLeast(3, 0, 0) {
		plan = append(plan, SchemaViews, SchemaIndexes)
	}
	if v.AtLeast(2, 1, 0) {
		plan = append(plan, SchemaUserTypes)
	}
	if v.AtLeast(2, 2, 0) {
		plan = append(plan, SchemaFunctions, SchemaAggregates)
	}
	return plan
}

// SchemaSnapshot is one complete, internally-consistent view of cluster
// schema metadata, keyed by logical table. It is immutable once built: a
// bulk refresh builds a new snapshot from scratch (the "back buffer") and
// the store swaps it in atomically (spec §4.5, §9 Design Notes: "Double-
// buffered metadata").
type SchemaSnapshot struct {
	Rows map[SchemaTable][]Row
}

func newSchemaSnapshot() *SchemaSnapshot {
	return &SchemaSnapshot{Rows: make(map[SchemaTable][]Row, 8)}
}

// schemaStore is the Go-idiomatic rendering of "two owned snapshots and an
// atomic pointer swap" from spec §9: rather than literally keeping a front
// and back buffer side by side, the back buffer is a local variable that
// is fully populated before a single atomic store makes it the front —
// equivalent to the swap, with no observer ever seeing a partial view.
type schemaStore struct {
	front atomic.Pointer[SchemaSnapshot]
}

func newSchemaStore() *schemaStore {
	s := &schemaStore{}
	s.front.Store(newSchemaSnapshot())
	return s
}

func (s *schemaStore) Load() *SchemaSnapshot {
	return s.front.Load()
}

func (s *schemaStore) Swap(back *SchemaSnapshot) {
	s.front.Store(back)
}
