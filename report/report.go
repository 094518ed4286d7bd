package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"time"

	"github.com/danthegoodman1/gojsonutils"
	"github.com/danthegoodman1/scanbench/runner"
	"github.com/danthegoodman1/scanbench/s3_helper"
	"github.com/danthegoodman1/scanbench/utils"
	"github.com/rs/zerolog"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"
)

const ContentType = "application/vnd.apache.parquet"

var (
	ErrNoSink = errors.New("no report destination, set S3_BUCKET_NAME or REPORT_DIR")

	unsafeName = regexp.MustCompile(`[^A-Za-z0-9_]`)
)

// Rows renders one flat row per partition, keyed by parquet-safe column names.
func Rows(s *runner.Summary) ([]map[string]any, error) {
	var rows []map[string]any
	for _, p := range s.Partitions {
		nested := map[string]any{
			"runID":     s.RunID,
			"table":     s.Table,
			"workers":   s.Workers,
			"fetchSize": s.FetchSize,
			"startedAt": s.StartedAt.UTC().Format(time.RFC3339Nano),
			"partition": p,
		}
		// round trip through JSON so every value is a plain JSON type
		b, err := json.Marshal(nested)
		if err != nil {
			return nil, fmt.Errorf("error in json.Marshal: %w", err)
		}
		var jsonMap map[string]any
		if err := json.Unmarshal(b, &jsonMap); err != nil {
			return nil, fmt.Errorf("error in json.Unmarshal: %w", err)
		}

		flat, err := gojsonutils.Flatten(jsonMap, nil)
		if err != nil {
			return nil, fmt.Errorf("error in gojsonutils.Flatten: %w", err)
		}
		flatMap, ok := flat.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("flatten returned %T, not a map", flat)
		}

		row := make(map[string]any, len(flatMap))
		for k, v := range flatMap {
			row[unsafeName.ReplaceAllString(k, "_")] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func schemaFor(rows []map[string]any) (string, error) {
	sa := NewSchemaAccumulator()
	for _, row := range rows {
		sa.WriteRow(row)
	}
	return sa.SchemaString()
}

func writeRows(pw *writer.JSONWriter, rows []map[string]any) error {
	for _, row := range rows {
		b, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("error in json.Marshal: %w", err)
		}
		if err := pw.Write(string(b)); err != nil {
			return fmt.Errorf("error in JSONWriter.Write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("error in JSONWriter.WriteStop: %w", err)
	}
	return nil
}

// Encode renders the summary as an in-memory parquet file.
func Encode(s *runner.Summary) ([]byte, error) {
	rows, err := Rows(s)
	if err != nil {
		return nil, err
	}
	schema, err := schemaFor(rows)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	pw, err := writer.NewJSONWriterFromWriter(schema, &buf, 4)
	if err != nil {
		return nil, fmt.Errorf("error in writer.NewJSONWriterFromWriter: %w", err)
	}
	if err := writeRows(pw, rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func FileName(s *runner.Summary) string {
	return s.RunID + ".parquet"
}

// SaveLocal writes the report into dir and returns the file path.
func SaveLocal(dir string, s *runner.Summary) (string, error) {
	rows, err := Rows(s)
	if err != nil {
		return "", err
	}
	schema, err := schemaFor(rows)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, FileName(s))
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return "", fmt.Errorf("error in local.NewLocalFileWriter: %w", err)
	}
	if err := writeFile(fw, schema, rows); err != nil {
		return "", err
	}
	return path, nil
}

// writeFile writes rows into fw and closes it, a failed close fails the write.
func writeFile(fw source.ParquetFile, schema string, rows []map[string]any) error {
	pw, err := writer.NewJSONWriter(schema, fw, 4)
	if err != nil {
		fw.Close()
		return fmt.Errorf("error in writer.NewJSONWriter: %w", err)
	}
	if err := writeRows(pw, rows); err != nil {
		fw.Close()
		return err
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("error closing report file: %w", err)
	}
	return nil
}

// SaveS3 uploads the report under reports/ in S3_BUCKET_NAME.
func SaveS3(ctx context.Context, s *runner.Summary) (string, error) {
	b, err := Encode(s)
	if err != nil {
		return "", err
	}
	key := "reports/" + FileName(s)
	if _, err := s3_helper.WriteBytesToS3(ctx, key, bytes.NewReader(b), utils.Ptr(ContentType)); err != nil {
		return "", fmt.Errorf("error in s3_helper.WriteBytesToS3: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", utils.S3_BUCKET_NAME, key), nil
}

// Save picks S3 when a bucket is configured, REPORT_DIR otherwise.
func Save(ctx context.Context, s *runner.Summary) (string, error) {
	logger := zerolog.Ctx(ctx)
	var (
		location string
		err      error
	)
	switch {
	case utils.S3_BUCKET_NAME != "":
		location, err = SaveS3(ctx, s)
	case utils.REPORT_DIR != "":
		location, err = SaveLocal(utils.REPORT_DIR, s)
	default:
		return "", ErrNoSink
	}
	if err != nil {
		return "", err
	}
	logger.Info().Str("runID", s.RunID).Str("location", location).Int("partitions", len(s.Partitions)).Msg("wrote report")
	return location, nil
}
