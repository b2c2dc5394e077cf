package jiraslackpm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
)

var (
	ErrTableNotFound = errors.New("table not found")
	ErrTableExists   = errors.New("table already exists")
)

// Table is a handle to a warehouse table.
type Table struct {
	Name   string
	Schema bigquery.Schema
}

// Warehouse is a destination for User and Issue rows.
//
// Implementations report a missing table with ErrTableNotFound and a
// conflicting create with ErrTableExists. Insert reports rows the warehouse
// refused with an *InsertError; the other rows are stored.
type Warehouse interface {
	GetTable(ctx context.Context, name string) (*Table, error)
	CreateTable(ctx context.Context, name string, schema bigquery.Schema) (*Table, error)
	DeleteTable(ctx context.Context, name string) error
	Insert(ctx context.Context, table string, rows []bigquery.ValueSaver) error
	Close() error
}

// RowError is a row refused by the warehouse.
type RowError struct {
	// Index is the position of the row in the Insert call.
	Index  int
	Reason string
}

// InsertError is returned by Warehouse.Insert when some rows were refused.
type InsertError struct {
	Table string
	Rows  []RowError
}

func (e *InsertError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "insert into %s: %d rows rejected", e.Table, len(e.Rows))
	for i, r := range e.Rows {
		if i == 3 {
			fmt.Fprintf(&sb, "; and %d more", len(e.Rows)-i)
			break
		}
		fmt.Fprintf(&sb, "; row %d: %s", r.Index, r.Reason)
	}
	return sb.String()
}

func userRows(users []User) []bigquery.ValueSaver {
	rows := make([]bigquery.ValueSaver, len(users))
	for i := range users {
		rows[i] = &users[i]
	}
	return rows
}

func issueRows(issues []Issue) []bigquery.ValueSaver {
	rows := make([]bigquery.ValueSaver, len(issues))
	for i := range issues {
		rows[i] = &issues[i]
	}
	return rows
}
