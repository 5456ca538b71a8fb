package internal

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/lychee-technology/formtab"
)

// PostgresHealthCheck pings the database and verifies that every metadata and
// collaborator table exists. timeout may be 0 to use a default of 5s.
func PostgresHealthCheck(ctx context.Context, pool queryPool, tables formtab.TableNames, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rows, err := pool.Query(ctx, `SELECT table_name FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'`)
	if err != nil {
		return fmt.Errorf("postgres health query failed: %w", err)
	}
	defer rows.Close()

	var existing []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("failed to scan table name: %w", err)
		}
		existing = append(existing, name)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating rows: %w", err)
	}

	var missing []string
	for _, t := range requiredTables(tables) {
		if !slices.Contains(existing, t) {
			missing = append(missing, t)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("required tables are missing in the database: %v", missing)
	}
	return nil
}

func requiredTables(t formtab.TableNames) []string {
	return []string{
		t.Forms, t.Attributes, t.FormViews, t.AttributeViews, t.ChoiceSets, t.Choices,
		t.Prompts, t.Objects, t.Organizations, t.Restatements,
	}
}
