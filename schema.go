package jiraslackpm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/bigquery"
)

// CreateTimeout bounds every table and dataset creation call.
const CreateTimeout = 30 * time.Second

// ProvisionPolicy decides what happens to an existing table at the start of
// a load.
type ProvisionPolicy int

const (
	// ProvisionCreateIfAbsent keeps existing tables and their rows.
	ProvisionCreateIfAbsent ProvisionPolicy = iota
	// ProvisionRecreate drops and recreates the table, losing every row.
	// Only for full rebuilds.
	ProvisionRecreate
)

func (p ProvisionPolicy) String() string {
	switch p {
	case ProvisionCreateIfAbsent:
		return "create-if-absent"
	case ProvisionRecreate:
		return "recreate"
	default:
		return fmt.Sprintf("ProvisionPolicy(%d)", int(p))
	}
}

// EnsureTable returns the table called name, creating it with schema if it
// does not exist. created reports whether this call created it. An existing
// table is returned as is; its schema is never migrated.
func EnsureTable(ctx context.Context, w Warehouse, name string, schema bigquery.Schema) (table *Table, created bool, err error) {
	table, err = w.GetTable(ctx, name)
	if err == nil {
		return table, false, nil
	}
	if !errors.Is(err, ErrTableNotFound) {
		return nil, false, fmt.Errorf("get table %s: %w", name, err)
	}

	createCtx, cancel := context.WithTimeout(ctx, CreateTimeout)
	defer cancel()
	table, err = w.CreateTable(createCtx, name, schema)
	if err == nil {
		return table, true, nil
	}
	if !errors.Is(err, ErrTableExists) {
		return nil, false, fmt.Errorf("create table %s: %w", name, err)
	}

	// Somebody else created it between our get and create.
	table, err = w.GetTable(ctx, name)
	if err != nil {
		return nil, false, fmt.Errorf("get table %s after conflict: %w", name, err)
	}
	return table, false, nil
}

// DeleteTable drops the table called name. A table that is already gone is
// not an error.
func DeleteTable(ctx context.Context, log *slog.Logger, w Warehouse, name string) error {
	err := w.DeleteTable(ctx, name)
	if errors.Is(err, ErrTableNotFound) {
		log.Info("table already deleted", "table", name)
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete table %s: %w", name, err)
	}
	return nil
}

// ProvisionTable prepares the table called name according to policy.
func ProvisionTable(
	ctx context.Context,
	log *slog.Logger,
	w Warehouse,
	policy ProvisionPolicy,
	name string,
	schema bigquery.Schema,
) (*Table, bool, error) {
	switch policy {
	case ProvisionCreateIfAbsent:
	case ProvisionRecreate:
		if err := DeleteTable(ctx, log, w, name); err != nil {
			return nil, false, err
		}
	default:
		return nil, false, fmt.Errorf("unknown provision policy %v", policy)
	}
	table, created, err := EnsureTable(ctx, w, name, schema)
	if err != nil {
		return nil, false, err
	}
	log.Debug("table ready", "table", name, "created", created, "policy", policy.String())
	return table, created, nil
}
