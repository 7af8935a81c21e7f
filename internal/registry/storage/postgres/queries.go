package postgres

// SQL queries for the schema registry tables (see internal/migrations).

const (
	queryExists = `SELECT EXISTS (SELECT 1 FROM schemas WHERE id = $1)`

	queryName = `SELECT name FROM schemas WHERE id = $1`

	queryIDs = `SELECT id FROM schemas ORDER BY id`

	// queryCreate affects no row when the id is taken, leaving the first row
	// and its version_count untouched.
	queryCreate = `
		INSERT INTO schemas (id, name)
		VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING
	`

	// queryAppendVersion bumps version_count and inserts the payload under the
	// new count in one statement. The UPDATE takes the schema row lock, so
	// concurrent appenders are serialized and numbers stay dense.
	// Returns no rows if the schema does not exist.
	queryAppendVersion = `
		WITH next AS (
			UPDATE schemas
			SET version_count = version_count + 1
			WHERE id = $1
			RETURNING version_count
		)
		INSERT INTO schema_versions (schema_id, number, payload)
		SELECT $1, version_count, $2 FROM next
		RETURNING number
	`

	queryVersionCount = `SELECT version_count FROM schemas WHERE id = $1`

	queryVersion = `
		SELECT payload
		FROM schema_versions
		WHERE schema_id = $1 AND number = $2
	`
)
