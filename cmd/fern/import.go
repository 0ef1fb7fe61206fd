package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Ramsey-B/fern/pkg/importer"
	"github.com/Ramsey-B/fern/pkg/models"
)

var importOpts struct {
	file             string
	operationType    string
	source           string
	city             string
	state            string
	serviceType      string
	overrideLocation bool
	mappings         []string
	mappingsFile     string
	quiet            bool
}

var importCmd = &cobra.Command{
	Use:   "import --file leads.csv --source <source>",
	Short: "Import leads from a CSV file",
	Long: `Import leads from a CSV file with a header row.

Without --map, columns are matched to lead fields by name. Each --map takes
column=field, optionally followed by transforms:

  fern import --file leads.csv --source yelp --map "Business Name=company_name:trim,title"

Reusable mappings can live in a YAML file passed with --mappings-file:

  mappings:
    - column: Business Name
      field: company_name
      transforms: [trim, title]

--map flags are appended after the file's mappings.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		user, err := requireUser()
		if err != nil {
			return err
		}

		rows, err := readCSV(importOpts.file)
		if err != nil {
			return err
		}
		var mappings []models.FieldMapping
		if importOpts.mappingsFile != "" {
			if mappings, err = readMappingFile(importOpts.mappingsFile); err != nil {
				return err
			}
		}
		flagMappings, err := parseMappings(importOpts.mappings)
		if err != nil {
			return err
		}
		mappings = append(mappings, flagMappings...)

		req := importer.Request{
			UserID:        user,
			OperationType: models.OperationType(importOpts.operationType),
			Filename:      filepath.Base(importOpts.file),
			Rows:          rows,
			Mappings:      mappings,
			Defaults: models.ImportDefaults{
				Source:             importOpts.source,
				DefaultCity:        importOpts.city,
				DefaultState:       importOpts.state,
				DefaultServiceType: importOpts.serviceType,
				OverrideLocation:   importOpts.overrideLocation,
			},
		}

		return run(cmd.Context(), func(ctx context.Context, a *app) error {
			progress := func(percent int) {
				if !importOpts.quiet {
					fmt.Fprintf(os.Stderr, "\rimporting... %3d%%", percent)
				}
			}
			result, err := a.importer.Import(ctx, req, progress)
			if !importOpts.quiet {
				fmt.Fprintln(os.Stderr)
			}
			var incomplete *importer.IncompleteError
			if errors.As(err, &incomplete) {
				if printErr := printJSON(incomplete.Result); printErr != nil {
					return printErr
				}
				if incomplete.Result.OperationID != "" {
					return fmt.Errorf("%w; undo the partial import with: fern undo %s", err, incomplete.Result.OperationID)
				}
				return err
			}
			if err != nil {
				return err
			}
			return printJSON(result)
		})
	},
}

func init() {
	f := importCmd.Flags()
	f.StringVar(&importOpts.file, "file", "", "CSV file to import (required)")
	f.StringVar(&importOpts.operationType, "type", string(models.OperationTypeCSV), "operation type: csv, maps-import or api")
	f.StringVar(&importOpts.source, "source", "", "source recorded on every lead (required)")
	f.StringVar(&importOpts.city, "city", "", "default city")
	f.StringVar(&importOpts.state, "state", "", "default state")
	f.StringVar(&importOpts.serviceType, "service-type", "", "default service type")
	f.BoolVar(&importOpts.overrideLocation, "override-location", false, "force the default city and state onto every lead")
	f.StringArrayVar(&importOpts.mappings, "map", nil, "column=field[:transform,...] (repeatable)")
	f.StringVar(&importOpts.mappingsFile, "mappings-file", "", "YAML file with a mappings list")
	f.BoolVarP(&importOpts.quiet, "quiet", "q", false, "suppress progress output")
	_ = importCmd.MarkFlagRequired("file")
	_ = importCmd.MarkFlagRequired("source")
	rootCmd.AddCommand(importCmd)
}

// readCSV returns one map per data row keyed by header. Rows shorter than the
// header leave the missing columns empty.
func readCSV(path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%s is empty", path)
	}
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	var rows []map[string]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		row := make(map[string]string, len(header))
		for i, column := range header {
			if i < len(record) {
				row[column] = record[i]
			} else {
				row[column] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseMappings(specs []string) ([]models.FieldMapping, error) {
	mappings := make([]models.FieldMapping, 0, len(specs))
	for _, spec := range specs {
		column, target, ok := strings.Cut(spec, "=")
		if !ok || strings.TrimSpace(column) == "" || strings.TrimSpace(target) == "" {
			return nil, fmt.Errorf("invalid --map %q: want column=field[:transform,...]", spec)
		}
		field, transforms, _ := strings.Cut(target, ":")
		mapping := models.FieldMapping{
			Column: strings.TrimSpace(column),
			Field:  strings.TrimSpace(field),
		}
		if transforms != "" {
			for _, t := range strings.Split(transforms, ",") {
				if t = strings.TrimSpace(t); t != "" {
					mapping.Transforms = append(mapping.Transforms, t)
				}
			}
		}
		mappings = append(mappings, mapping)
	}
	return mappings, nil
}

type mappingFile struct {
	Mappings []models.FieldMapping `yaml:"mappings"`
}

func readMappingFile(path string) ([]models.FieldMapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mappings: %w", err)
	}
	var file mappingFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse mappings %s: %w", path, err)
	}
	for i, m := range file.Mappings {
		if strings.TrimSpace(m.Column) == "" || strings.TrimSpace(m.Field) == "" {
			return nil, fmt.Errorf("%s: mapping %d needs both column and field", path, i+1)
		}
	}
	return file.Mappings, nil
}
