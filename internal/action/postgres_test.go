package action

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
)

var actionColumns = []string{"id", "name", "instruction", "format", "max_length", "category", "description"}

func TestPostgresSource_Load(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	mock.ExpectQuery("SELECT id, name, instruction").WillReturnRows(
		mock.NewRows(actionColumns).
			AddRow("default", "Assistant", "Tu es un assistant.", "conversational", "", "", "").
			AddRow("dental_diagnosis", "Diagnostic", "Aide au diagnostic.", "medical_analysis", "", "Médical", "Diagnostic dentaire"),
	)

	actions, err := NewPostgresSource(mock).Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(actions) != 2 {
		t.Fatalf("expected 2 actions, got %d", len(actions))
	}
	if actions[1].Format != FormatMedicalAnalysis {
		t.Errorf("expected medical_analysis, got %s", actions[1].Format)
	}
	if actions[1].Category != "Médical" {
		t.Errorf("expected category Médical, got %q", actions[1].Category)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresSource_EmptyTable(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	mock.ExpectQuery("SELECT id, name, instruction").WillReturnRows(mock.NewRows(actionColumns))

	_, err = NewPostgresSource(mock).Load(context.Background())
	if !errors.Is(err, ErrSourceNotFound) {
		t.Fatalf("expected ErrSourceNotFound, got %v", err)
	}
}

func TestPostgresSource_InvalidRow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	mock.ExpectQuery("SELECT id, name, instruction").WillReturnRows(
		mock.NewRows(actionColumns).AddRow("broken", "Broken", "", "conversational", "", "", ""),
	)

	_, err = NewPostgresSource(mock).Load(context.Background())
	if !errors.Is(err, ErrInvalidAction) {
		t.Fatalf("expected ErrInvalidAction, got %v", err)
	}
}

func TestPostgresSource_QueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	mock.ExpectQuery("SELECT id, name, instruction").WillReturnError(errors.New("connection refused"))

	r := NewRegistry(context.Background(), NewPostgresSource(mock), Options{Logger: quietLogger(), PersistDefaults: true})
	if !r.Stats().Defaults {
		t.Error("expected registry to fall back to defaults when the database is unreachable")
	}
}
