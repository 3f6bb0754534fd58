package mysql

import (
	"fmt"
	"strings"

	"statscan/internal/storage"
)

var myTypes = map[storage.ColumnType]string{
	storage.TypeText:  "TEXT",
	storage.TypeInt:   "BIGINT",
	storage.TypeFloat: "DOUBLE",
	storage.TypeBool:  "BOOLEAN",
	storage.TypeTime:  "DATETIME(6)",
}

// BuildCreateTableSQL renders CREATE TABLE IF NOT EXISTS for t.
func BuildCreateTableSQL(t storage.TableDef) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("mysql ddl: table name must not be empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("mysql ddl: table %s has no columns", t.Name)
	}
	defs := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		typ, ok := myTypes[c.Type]
		if !ok {
			return "", fmt.Errorf("mysql ddl: column %s: unknown type %d", c.Name, c.Type)
		}
		defs = append(defs, "  "+myIdent(c.Name)+" "+typ+" NULL")
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n)", myFQN(t.Name), strings.Join(defs, ",\n")), nil
}
