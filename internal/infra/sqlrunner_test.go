package infra

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/rs/zerolog"
)

const markedQuery = `--sql 6a0f3f7e-2c1b-4f65-9a51-0d6b2f1e7c42
select token from integration_tokens where provider = $1;`

func TestSQLRunnerStripsMarker(t *testing.T) {
	pool, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherEqual))
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	var buf bytes.Buffer
	runner := NewSQLRunner(pool, zerolog.New(&buf).Level(zerolog.DebugLevel))

	pool.ExpectQuery("select token from integration_tokens where provider = $1;").
		WithArgs("replicate").
		WillReturnRows(pgxmock.NewRows([]string{"token"}).AddRow("r8_abc"))

	var token string
	if err := runner.QueryRow(context.Background(), markedQuery, "replicate").Scan(&token); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if token != "r8_abc" {
		t.Fatalf("unexpected token %q", token)
	}
	if !strings.Contains(buf.String(), `"sql":"6a0f3f7e-2c1b-4f65-9a51-0d6b2f1e7c42"`) {
		t.Fatalf("marker not logged: %s", buf.String())
	}
	if err := pool.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSQLRunnerRejectsUnmarkedQueries(t *testing.T) {
	pool, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()
	runner := NewSQLRunner(pool, zerolog.Nop())

	if _, err := runner.Exec(context.Background(), "delete from superhero_generations"); !errors.Is(err, ErrSQLMarker) {
		t.Fatalf("exec: expected ErrSQLMarker, got %v", err)
	}
	if _, err := runner.Query(context.Background(), "--sql not-a-uuid\nselect 1"); !errors.Is(err, ErrSQLMarker) {
		t.Fatalf("query: expected ErrSQLMarker, got %v", err)
	}
	var n int
	if err := runner.QueryRow(context.Background(), "select 1").Scan(&n); !errors.Is(err, ErrSQLMarker) {
		t.Fatalf("query row: expected ErrSQLMarker, got %v", err)
	}
	if err := pool.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSQLRunnerNoRowsIsQuiet(t *testing.T) {
	pool, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	var buf bytes.Buffer
	runner := NewSQLRunner(pool, zerolog.New(&buf))
	pool.ExpectQuery("select token").WillReturnError(pgx.ErrNoRows)

	var token string
	err = runner.QueryRow(context.Background(), markedQuery, "replicate").Scan(&token)
	if !IsNoRows(err) {
		t.Fatalf("expected no rows, got %v", err)
	}
	if strings.Contains(buf.String(), "scan failed") {
		t.Fatalf("no rows logged as failure: %s", buf.String())
	}
}
