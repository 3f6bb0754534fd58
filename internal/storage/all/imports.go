// Package all wires every built-in storage backend into the storage factory.
// Importing it for side effects registers the "postgres", "mssql",
// "mysql" and "sqlite" kinds together with their DDL builders.
package all

import (
	_ "statscan/internal/storage/mssql"
	_ "statscan/internal/storage/mysql"
	_ "statscan/internal/storage/postgres"
	_ "statscan/internal/storage/sqlite"
)
