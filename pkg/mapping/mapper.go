// Package mapping turns raw import rows into leads according to the user's field mappings.
package mapping

import (
	"sort"
	"strings"

	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
)

// Mapper applies a compiled set of field mappings to rows.
type Mapper struct {
	mappings []compiledMapping
	auto     bool
}

type compiledMapping struct {
	column     string
	field      models.LeadField
	transforms []string
}

// NewMapper validates mappings against the lead field table. With no mappings the
// mapper matches row columns to lead fields by name.
func NewMapper(mappings []models.FieldMapping) (*Mapper, error) {
	if len(mappings) == 0 {
		return &Mapper{auto: true}, nil
	}

	m := &Mapper{mappings: make([]compiledMapping, 0, len(mappings))}
	targets := make(map[string]string, len(mappings))
	for _, mapping := range mappings {
		column := headerKey(mapping.Column)
		if column == "" {
			return nil, fernerrors.NewMappingError("column is required").AddField(mapping.Field)
		}

		field, ok := models.FindLeadField(strings.TrimSpace(mapping.Field))
		if !ok || !field.Mappable {
			return nil, fernerrors.NewMappingErrorf("unknown lead field, expected one of %s", strings.Join(models.MappableColumns(), ", ")).
				AddColumn(mapping.Column).AddField(mapping.Field)
		}

		if previous, exists := targets[field.Column]; exists {
			return nil, fernerrors.NewMappingErrorf("field is already mapped from column '%s'", previous).
				AddColumn(mapping.Column).AddField(field.Column)
		}
		targets[field.Column] = mapping.Column

		for _, name := range mapping.Transforms {
			if _, ok := normalizers.Get(name); !ok {
				return nil, fernerrors.NewMappingErrorf("unknown transform '%s'", name).
					AddColumn(mapping.Column).AddField(field.Column)
			}
		}

		m.mappings = append(m.mappings, compiledMapping{
			column:     column,
			field:      field,
			transforms: mapping.Transforms,
		})
	}

	return m, nil
}

// MapRow builds a lead from one row. Values are trimmed before transforms run.
func (m *Mapper) MapRow(row map[string]string) models.Lead {
	values := make(map[string]string, len(row))
	for column, value := range row {
		values[headerKey(column)] = strings.TrimSpace(value)
	}

	var lead models.Lead
	if m.auto {
		for column, value := range values {
			if field, ok := models.FindLeadField(column); ok && field.Mappable && value != "" {
				field.Set(&lead, value)
			}
		}
		return lead
	}

	for _, mapping := range m.mappings {
		value, ok := values[mapping.column]
		if !ok {
			continue
		}
		if len(mapping.transforms) > 0 {
			value = normalizers.ApplyChain(value, mapping.transforms...)
		}
		if value != "" {
			mapping.field.Set(&lead, value)
		}
	}
	return lead
}

// MapRows maps every row in order.
func (m *Mapper) MapRows(rows []map[string]string) []models.Lead {
	leads := make([]models.Lead, len(rows))
	for i, row := range rows {
		leads[i] = m.MapRow(row)
	}
	return leads
}

// Columns returns the input columns the mapper reads, sorted.
func (m *Mapper) Columns() []string {
	columns := make([]string, 0, len(m.mappings))
	for _, mapping := range m.mappings {
		columns = append(columns, mapping.column)
	}
	sort.Strings(columns)
	return columns
}

func headerKey(column string) string {
	return strings.ToLower(strings.TrimSpace(column))
}
