package pg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taoyao-code/ptsp01-gateway/internal/migrate"
)

// EnsureSchema 执行内置迁移，已应用的版本跳过
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := migrate.Default().Up(ctx, pool); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
