package sqlite

import (
	"fmt"
	"strings"

	"statscan/internal/storage"
)

var sqliteTypes = map[storage.ColumnType]string{
	storage.TypeText:  "TEXT",
	storage.TypeInt:   "INTEGER",
	storage.TypeFloat: "REAL",
	storage.TypeBool:  "INTEGER",
	storage.TypeTime:  "TEXT",
}

// BuildCreateTableSQL renders CREATE TABLE IF NOT EXISTS for t using SQLite
// type affinities.
func BuildCreateTableSQL(t storage.TableDef) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("sqlite ddl: table name must not be empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("sqlite ddl: table %s has no columns", t.Name)
	}
	defs := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		typ, ok := sqliteTypes[c.Type]
		if !ok {
			return "", fmt.Errorf("sqlite ddl: column %s: unknown type %d", c.Name, c.Type)
		}
		defs = append(defs, "  "+sqliteIdent(c.Name)+" "+typ)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n);", sqliteFQN(t.Name), strings.Join(defs, ",\n")), nil
}
