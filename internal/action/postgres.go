package action

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Querier is the subset of *pgxpool.Pool used by PostgresSource.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresSource reads actions from the actions table created by migrations/.
type PostgresSource struct {
	db Querier
}

func NewPostgresSource(db Querier) *PostgresSource {
	return &PostgresSource{db: db}
}

func (s *PostgresSource) Describe() string { return "postgres:actions" }

const selectActions = `
	SELECT id, name, instruction, format, COALESCE(max_length, ''),
	       COALESCE(category, ''), COALESCE(description, '')
	FROM actions
	WHERE enabled
	ORDER BY id
`

func (s *PostgresSource) Load(ctx context.Context) ([]Action, error) {
	rows, err := s.db.Query(ctx, selectActions)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	defer rows.Close()

	var actions []Action
	for rows.Next() {
		var (
			a      Action
			format string
		)
		if err := rows.Scan(&a.ID, &a.Name, &a.Instruction, &format, &a.MaxLength, &a.Category, &a.Description); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		if f, ok := ParseFormat(format); ok {
			a.Format = f
		}
		if err := a.Validate(); err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate actions: %w", err)
	}
	if len(actions) == 0 {
		return nil, fmt.Errorf("%w: actions table is empty", ErrSourceNotFound)
	}
	return actions, nil
}
