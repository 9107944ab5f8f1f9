package internal

import (
	// Database drivers for the sql and riverqueue publishers, registered by
	// their blank imports.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)
