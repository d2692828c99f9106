package database

import "database/sql"

// requireAffected turns a write that matched no rows into missing.
func requireAffected(result sql.Result, err, missing error) error {
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	switch {
	case err != nil:
		return err
	case n == 0:
		return missing
	default:
		return nil
	}
}
