package models

import "time"

// Stat names recorded in ColumnStat.Unavailable when the query behind them fails.
const (
	StatCounts    = "counts"
	StatTopValues = "topValues"
	StatMinMax    = "minMax"
)

// Well-known column names used to pick a sampling order, in priority order.
const (
	SampleOrderCreatedAt = "created_at"
	SampleOrderID        = "id"
)

// TableMetadata is the cached document for one table. It is replaced
// wholesale on every refresh.
type TableMetadata struct {
	Columns       []Column              `json:"columns"`
	Relationships []Relationship        `json:"relationships"`
	Samples       []map[string]any      `json:"samples"`
	ColumnStats   map[string]ColumnStat `json:"columnStats"`
	RefreshedAt   *time.Time            `json:"refreshedAt,omitempty"`
}

// Column is a column name and its declared catalog type.
type Column struct {
	Name     string `json:"column_name"`
	DataType string `json:"data_type"`
}

// Relationship is a foreign-key edge from a column of the owning table to
// another table's column, stored verbatim from the catalog.
type Relationship struct {
	SourceColumn string `json:"source_column"`
	TargetTable  string `json:"target_table"`
	TargetColumn string `json:"target_column"`
}

// ColumnStat summarises the content of one column.
//
// Zero values mean either "no data" or "could not be computed"; the latter
// case is distinguished by the stat name appearing in Unavailable.
type ColumnStat struct {
	Distinct    int64            `json:"distinct"`
	NullCount   int64            `json:"nullCount"`
	TopValues   map[string]int64 `json:"topValues"`
	Min         any              `json:"min"`
	Max         any              `json:"max"`
	Unavailable []string         `json:"unavailable,omitempty"`
}

// NewColumnStat returns a stat with every field at its degraded default.
func NewColumnStat() ColumnStat {
	return ColumnStat{TopValues: map[string]int64{}}
}

// ColumnNames returns the column names in ordinal order.
func (m *TableMetadata) ColumnNames() []string {
	names := make([]string, len(m.Columns))
	for i, c := range m.Columns {
		names[i] = c.Name
	}
	return names
}

// SampleOrderColumn picks the column used to order sample rows newest-first:
// created_at if present, else id, else "" for engine order.
func SampleOrderColumn(columns []Column) string {
	var hasID bool
	for _, c := range columns {
		if c.Name == SampleOrderCreatedAt {
			return SampleOrderCreatedAt
		}
		if c.Name == SampleOrderID {
			hasID = true
		}
	}
	if hasID {
		return SampleOrderID
	}
	return ""
}
