package controlconn

import (
	"context"
	"fmt"
)

// This file implements the targeted schema refreshes of spec §4.5: one
// function per logical schema entity, each triggered by a corresponding
// SCHEMA_CHANGE CREATE/UPDATE push from eventhandler.go. Every targeted
// refresh shares the same failure discipline (spec §4.5, last paragraph):
// an empty result logs and is dropped, and is never retried.
//
// Grounded on gocql/scylla's per-entity schema query builders
// (metadata_scylla.go), collapsed to the subset of columns this module's
// MetadataStore actually consumes.

func (c *ControlConn) currentVersion() CassandraVersion {
	host, err := c.CurrentHost()
	if err != nil {
		return CassandraVersion{}
	}
	return host.Version()
}

func (c *ControlConn) refreshKeyspace(ctx context.Context, keyspace string) error {
	conn := c.currentConn()
	if conn == nil {
		return ErrNoControlConnection
	}
	modern := c.currentVersion().usesModernSchema()
	stmt := quotedKeyspaceQuery(modern, keyspace)

	res, err := c.runSingle(ctx, conn, stmt)
	if err != nil {
		return err
	}
	if len(res.Rows) == 0 {
		c.cfg.Logger.Printf("controlconn: keyspace refresh for %q found no rows, dropping", keyspace)
		return nil
	}
	c.session.Metadata().UpdateKeyspace(res.Rows[0])
	return nil
}

func quotedKeyspaceQuery(modern bool, keyspace string) string {
	table := "system.schema_keyspaces"
	col := "keyspace_name"
	if modern {
		table = "system_schema.keyspaces"
	}
	return fmt.Sprintf("SELECT * FROM %s WHERE %s='%s'", table, col, escapeIdentifier(keyspace))
}

// refreshTableOrView implements spec §4.5's "Table or view" targeted
// refresh: a chained read of table, view, columns, indexes (legacy: table
// and columns only), resolved by the "view if table empty but view
// non-empty" rule.
func (c *ControlConn) refreshTableOrView(ctx context.Context, keyspace, name string) error {
	conn := c.currentConn()
	if conn == nil {
		return ErrNoControlConnection
	}
	modern := c.currentVersion().usesModernSchema()

	table, err := c.runSingle(ctx, conn, quotedTableQuery(modern, keyspace, name))
	if err != nil {
		return err
	}
	columns, err := c.runSingle(ctx, conn, quotedColumnsQuery(modern, keyspace, name))
	if err != nil {
		return err
	}

	var viewRows, indexesRows []Row
	if modern {
		view, err := c.runSingle(ctx, conn, quotedViewQuery(keyspace, name))
		if err != nil {
			return err
		}
		indexes, err := c.runSingle(ctx, conn, quotedIndexesQuery(keyspace, name))
		if err != nil {
			return err
		}
		viewRows, indexesRows = view.Rows, indexes.Rows
	}

	if len(table.Rows) == 0 && len(viewRows) == 0 {
		c.cfg.Logger.Printf("controlconn: table/view refresh for %s.%s found no rows, dropping", keyspace, name)
		return nil
	}

	c.session.Metadata().UpdateTableOrView(keyspace, name, table.Rows, viewRows, columns.Rows, indexesRows)
	return nil
}

func quotedTableQuery(modern bool, keyspace, name string) string {
	table, col := "system.schema_columnfamilies", "columnfamily_name"
	if modern {
		table, col = "system_schema.tables", "table_name"
	}
	return fmt.Sprintf("SELECT * FROM %s WHERE keyspace_name='%s' AND %s='%s'", table, escapeIdentifier(keyspace), col, escapeIdentifier(name))
}

func quotedColumnsQuery(modern bool, keyspace, name string) string {
	table := "system.schema_columns"
	if modern {
		table = "system_schema.columns"
	}
	return fmt.Sprintf("SELECT * FROM %s WHERE keyspace_name='%s' AND table_name='%s'", table, escapeIdentifier(keyspace), escapeIdentifier(name))
}

func quotedViewQuery(keyspace, name string) string {
	return fmt.Sprintf("SELECT * FROM system_schema.views WHERE keyspace_name='%s' AND view_name='%s'", escapeIdentifier(keyspace), escapeIdentifier(name))
}

func quotedIndexesQuery(keyspace, name string) string {
	return fmt.Sprintf("SELECT * FROM system_schema.indexes WHERE keyspace_name='%s' AND table_name='%s'", escapeIdentifier(keyspace), escapeIdentifier(name))
}

func (c *ControlConn) refreshUserType(ctx context.Context, keyspace, name string) error {
	conn := c.currentConn()
	if conn == nil {
		return ErrNoControlConnection
	}
	modern := c.currentVersion().usesModernSchema()
	table, col := "system.schema_usertypes", "type_name"
	if modern {
		table, col = "system_schema.types", "type_name"
	}
	stmt := fmt.Sprintf("SELECT * FROM %s WHERE keyspace_name='%s' AND %s='%s'", table, escapeIdentifier(keyspace), col, escapeIdentifier(name))

	res, err := c.runSingle(ctx, conn, stmt)
	if err != nil {
		return err
	}
	if len(res.Rows) == 0 {
		c.cfg.Logger.Printf("controlconn: user type refresh for %s.%s found no rows, dropping", keyspace, name)
		return nil
	}
	c.session.Metadata().UpdateUserType(res.Rows[0])
	return nil
}

// refreshFunction and refreshAggregate implement spec §4.5's "parameterized
// prepared-style read by (keyspace, name, argument-types)". argumentTypes
// identifies the overload; it is bound as a list value rather than
// interpolated, since it is the one targeted refresh spec.md calls out as
// parameterized instead of string-quoted (spec §6, Wire queries).
func (c *ControlConn) refreshFunction(ctx context.Context, keyspace, name string, argumentTypes []string) error {
	conn := c.currentConn()
	if conn == nil {
		return ErrNoControlConnection
	}
	table := "system_schema.functions"
	if !c.currentVersion().usesModernSchema() {
		table = "system.schema_functions"
	}
	stmt := fmt.Sprintf("SELECT * FROM %s WHERE keyspace_name=? AND function_name=? AND argument_types=?", table)

	res, err := c.runSingle(ctx, conn, stmt, keyspace, name, argumentTypes)
	if err != nil {
		return err
	}
	if len(res.Rows) == 0 {
		c.cfg.Logger.Printf("controlconn: function refresh for %s.%s%v found no rows, dropping", keyspace, name, argumentTypes)
		return nil
	}
	c.session.Metadata().UpdateFunction(res.Rows[0])
	return nil
}

func (c *ControlConn) refreshAggregate(ctx context.Context, keyspace, name string, argumentTypes []string) error {
	conn := c.currentConn()
	if conn == nil {
		return ErrNoControlConnection
	}
	table := "system_schema.aggregates"
	if !c.currentVersion().usesModernSchema() {
		table = "system.schema_aggregates"
	}
	stmt := fmt.Sprintf("SELECT * FROM %s WHERE keyspace_name=? AND aggregate_name=? AND argument_types=?", table)

	res, err := c.runSingle(ctx, conn, stmt, keyspace, name, argumentTypes)
	if err != nil {
		return err
	}
	if len(res.Rows) == 0 {
		c.cfg.Logger.Printf("controlconn: aggregate refresh for %s.%s%v found no rows, dropping", keyspace, name, argumentTypes)
		return nil
	}
	c.session.Metadata().UpdateAggregate(res.Rows[0])
	return nil
}

// escapeIdentifier doubles single quotes in a CQL string literal, the
// minimal escaping the `'`-quoted targeted-query identifiers (spec §6)
// need.
func escapeIdentifier(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, '\'', '\'')
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}
