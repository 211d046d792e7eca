package cmd

import (
	"context"
	"fmt"

	"github.com/JakeFAU/shufersal-scraper/internal/app"
)

// requireConnection verifies the database server is reachable before any
// stage work starts.
func requireConnection(ctx context.Context, a App) error {
	err := a.CheckConnection(ctx)
	if app.IsConnectionError(err) {
		return fmt.Errorf("%w (check database.host, database.port, and credentials)", err)
	}
	return err
}

// requireDatabase additionally requires the catalog database to exist.
func requireDatabase(ctx context.Context, a App) error {
	if err := requireConnection(ctx, a); err != nil {
		return err
	}
	exists, err := a.SchemaExists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("database %q does not exist; run create first", a.Database())
	}
	return nil
}
