package column

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v4"
)

const metadataQuery = `
select column_name::text, data_type::text
from information_schema.columns
where table_schema = coalesce(nullif($2, ''), current_schema())
and table_name = $1
order by ordinal_position
`

// RowIDColumn is the system column projected first so decode errors can name the row.
const RowIDColumn = "ctid"

var ErrNoColumns = errors.New("table has no columns")

type Querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// LoadDescriptors reads the column list of table in declared order. table may be
// schema qualified, otherwise current_schema() is searched. When withRowID is set
// the ctid system column is prepended as a row-identifier descriptor.
func LoadDescriptors(ctx context.Context, q Querier, table string, withRowID bool) ([]Descriptor, error) {
	schema, name := "", table
	if i := strings.LastIndex(table, "."); i >= 0 {
		schema, name = table[:i], table[i+1:]
	}
	rows, err := q.Query(ctx, metadataQuery, name, schema)
	if err != nil {
		return nil, fmt.Errorf("error querying information_schema.columns: %w", err)
	}
	defer rows.Close()

	var cols []Descriptor
	if withRowID {
		cols = append(cols, NewDescriptor(RowIDColumn, "tid", 1))
	}
	for rows.Next() {
		var name, dataType string
		if err := rows.Scan(&name, &dataType); err != nil {
			return nil, fmt.Errorf("error scanning column metadata: %w", err)
		}
		cols = append(cols, NewDescriptor(name, dataType, len(cols)+1))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading column metadata: %w", err)
	}

	if len(cols) == 0 || (withRowID && len(cols) == 1) {
		return nil, fmt.Errorf("%w: %s", ErrNoColumns, table)
	}
	return cols, nil
}
