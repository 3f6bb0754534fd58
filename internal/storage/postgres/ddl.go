package postgres

import (
	"fmt"
	"strings"

	"statscan/internal/storage"
)

var pgTypes = map[storage.ColumnType]string{
	storage.TypeText:  "TEXT",
	storage.TypeInt:   "BIGINT",
	storage.TypeFloat: "DOUBLE PRECISION",
	storage.TypeBool:  "BOOLEAN",
	storage.TypeTime:  "TIMESTAMPTZ",
}

// BuildCreateTableSQL returns a CREATE TABLE IF NOT EXISTS statement for t.
func BuildCreateTableSQL(t storage.TableDef) (string, error) {
	name := strings.TrimSpace(t.Name)
	if name == "" {
		return "", fmt.Errorf("postgres ddl: table name must not be empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("postgres ddl: table %s has no columns", name)
	}
	cols := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		typ, ok := pgTypes[c.Type]
		if !ok {
			return "", fmt.Errorf("postgres ddl: column %s: unknown type %d", c.Name, c.Type)
		}
		cols = append(cols, fmt.Sprintf("  %s %s", pgIdent(c.Name), typ))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n);", pgFQN(name), strings.Join(cols, ",\n")), nil
}
