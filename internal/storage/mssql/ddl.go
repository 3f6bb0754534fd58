package mssql

import (
	"fmt"
	"strings"

	"statscan/internal/storage"
)

var msTypes = map[storage.ColumnType]string{
	storage.TypeText:  "NVARCHAR(MAX)",
	storage.TypeInt:   "BIGINT",
	storage.TypeFloat: "FLOAT",
	storage.TypeBool:  "BIT",
	storage.TypeTime:  "DATETIMEOFFSET",
}

// BuildCreateTableSQL returns a T-SQL script that creates t if it does not
// already exist. T-SQL has no CREATE TABLE IF NOT EXISTS, so the statement
// is wrapped in an OBJECT_ID guard:
//
//	IF OBJECT_ID(N'[dbo].[scan_runs]', N'U') IS NULL
//	BEGIN
//	  CREATE TABLE [dbo].[scan_runs] (...);
//	END
func BuildCreateTableSQL(t storage.TableDef) (string, error) {
	name := strings.TrimSpace(t.Name)
	if name == "" {
		return "", fmt.Errorf("mssql ddl: table name must not be empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("mssql ddl: table %s has no columns", name)
	}
	cols := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		typ, ok := msTypes[c.Type]
		if !ok {
			return "", fmt.Errorf("mssql ddl: column %s: unknown type %d", c.Name, c.Type)
		}
		cols = append(cols, fmt.Sprintf("    %s %s NULL", msIdent(c.Name), typ))
	}
	fqn := msFQN(name)
	var b strings.Builder
	fmt.Fprintf(&b, "IF OBJECT_ID(N'%s', N'U') IS NULL\nBEGIN\n", strings.ReplaceAll(fqn, "'", "''"))
	fmt.Fprintf(&b, "  CREATE TABLE %s (\n%s\n  );\nEND", fqn, strings.Join(cols, ",\n"))
	return b.String(), nil
}
