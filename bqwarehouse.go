package jiraslackpm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
)

// BigQueryWarehouse stores rows in one BigQuery dataset.
type BigQueryWarehouse struct {
	Log     *slog.Logger
	Client  *bigquery.Client
	Dataset *bigquery.Dataset
}

var _ Warehouse = (*BigQueryWarehouse)(nil)

// OpenBigQuery connects to projectID and makes sure datasetID exists.
// The caller must Close the result.
func OpenBigQuery(ctx context.Context, log *slog.Logger, projectID, datasetID string) (*BigQueryWarehouse, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("new bigquery client: %w", err)
	}

	ds := client.Dataset(datasetID)
	createCtx, cancel := context.WithTimeout(ctx, CreateTimeout)
	defer cancel()
	err = ds.Create(createCtx, &bigquery.DatasetMetadata{})
	switch {
	case err == nil:
		log.Info("created dataset", "dataset", datasetID)
	case isStatus(err, http.StatusConflict):
		log.Debug("dataset exists", "dataset", datasetID)
	default:
		client.Close()
		return nil, fmt.Errorf("create dataset %s: %w", datasetID, err)
	}

	return &BigQueryWarehouse{
		Log:     log,
		Client:  client,
		Dataset: ds,
	}, nil
}

func isStatus(err error, code int) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == code
}

func (w *BigQueryWarehouse) GetTable(ctx context.Context, name string) (*Table, error) {
	md, err := w.Dataset.Table(name).Metadata(ctx)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, fmt.Errorf("%s: %w", name, ErrTableNotFound)
		}
		return nil, err
	}
	return &Table{Name: name, Schema: md.Schema}, nil
}

func (w *BigQueryWarehouse) CreateTable(ctx context.Context, name string, schema bigquery.Schema) (*Table, error) {
	err := w.Dataset.Table(name).Create(ctx, &bigquery.TableMetadata{Schema: schema})
	if err != nil {
		if isStatus(err, http.StatusConflict) {
			return nil, fmt.Errorf("%s: %w", name, ErrTableExists)
		}
		return nil, err
	}
	w.Log.Info("created table", "table", name)
	return &Table{Name: name, Schema: schema}, nil
}

func (w *BigQueryWarehouse) DeleteTable(ctx context.Context, name string) error {
	err := w.Dataset.Table(name).Delete(ctx)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return fmt.Errorf("%s: %w", name, ErrTableNotFound)
		}
		return err
	}
	return nil
}

func (w *BigQueryWarehouse) Insert(ctx context.Context, table string, rows []bigquery.ValueSaver) error {
	if len(rows) == 0 {
		return nil
	}
	err := w.Dataset.Table(table).Inserter().Put(ctx, rows)
	var multiErr bigquery.PutMultiError
	if errors.As(err, &multiErr) {
		return putMultiToInsertError(table, multiErr)
	}
	return err
}

func putMultiToInsertError(table string, multiErr bigquery.PutMultiError) *InsertError {
	ie := &InsertError{Table: table}
	for _, rowErr := range multiErr {
		var reasons []string
		for _, e := range rowErr.Errors {
			reasons = append(reasons, e.Error())
		}
		ie.Rows = append(ie.Rows, RowError{
			Index:  rowErr.RowIndex,
			Reason: strings.Join(reasons, ", "),
		})
	}
	return ie
}

// Close releases the BigQuery client.
func (w *BigQueryWarehouse) Close() error {
	return w.Client.Close()
}
