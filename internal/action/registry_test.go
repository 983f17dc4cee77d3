package action

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const sampleYAML = `
response_modes:
  default:
    name: Assistant
    instruction: "Tu es un assistant."
  resume:
    name: Résumé
    instruction: "Résume le texte."
    format: bullet_points
    max_length: 5_bullets
  triage:
    name: Triage
    instruction: "Oriente le patient."
    category: Urgences
`

func TestNewRegistry_LoadsYAMLFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "actions.yaml", sampleYAML)
	r := NewRegistry(context.Background(), NewFileSource(path), Options{Logger: quietLogger()})

	if got := len(r.List()); got != 3 {
		t.Fatalf("expected 3 actions, got %d", got)
	}
	a, err := r.Resolve("resume")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Format != FormatBulletPoints {
		t.Errorf("expected bullet_points, got %s", a.Format)
	}
	if a.MaxLength != "5_bullets" {
		t.Errorf("expected max_length 5_bullets, got %q", a.MaxLength)
	}

	def, _ := r.Resolve("default")
	if def.Format != FormatConversational {
		t.Errorf("expected missing format to default to conversational, got %s", def.Format)
	}
	if r.Stats().Defaults {
		t.Error("expected registry to report file-backed actions")
	}
}

func TestNewRegistry_LoadsJSONFile(t *testing.T) {
	content := `{"response_modes": {"default": {"name": "Assistant", "instruction": "Bonjour", "format": "conversational"}}}`
	path := writeFile(t, t.TempDir(), "actions.json", content)
	r := NewRegistry(context.Background(), NewFileSource(path), Options{Logger: quietLogger()})

	if !r.Has("default") {
		t.Fatal("expected default action from JSON file")
	}
	if len(r.List()) != 1 {
		t.Errorf("expected 1 action, got %d", len(r.List()))
	}
}

func TestNewRegistry_MissingFileWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "configs", "actions.yaml")
	r := NewRegistry(context.Background(), NewFileSource(path), Options{
		Logger:          quietLogger(),
		PersistDefaults: true,
	})

	if got, want := len(r.List()), len(DefaultActions()); got != want {
		t.Fatalf("expected %d default actions, got %d", want, got)
	}
	if !r.Stats().Defaults {
		t.Error("expected registry to report defaults")
	}

	// The written file must load back into the same set.
	reloaded := NewRegistry(context.Background(), NewFileSource(path), Options{Logger: quietLogger()})
	if reloaded.Stats().Defaults {
		t.Fatal("expected persisted file to be readable")
	}
	if got, want := len(reloaded.List()), len(DefaultActions()); got != want {
		t.Errorf("expected %d actions after reload, got %d", want, got)
	}
}

func TestNewRegistry_MalformedFileFallsBackWithoutOverwriting(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"syntax", "response_modes: [unterminated"},
		{"missing modes", "default_settings:\n  language: fr\n"},
		{"missing instruction", "response_modes:\n  default:\n    name: Assistant\n"},
		{"missing name", "response_modes:\n  default:\n    instruction: Bonjour\n"},
		{"missing default action", "response_modes:\n  short:\n    name: Court\n    instruction: Une phrase.\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "actions.yaml", tt.content)
			r := NewRegistry(context.Background(), NewFileSource(path), Options{
				Logger:          quietLogger(),
				PersistDefaults: true,
			})

			if !r.Stats().Defaults {
				t.Error("expected fallback to defaults")
			}
			if !r.Has("default") {
				t.Error("expected default action to be available")
			}
			data, _ := os.ReadFile(path)
			if string(data) != tt.content {
				t.Error("malformed file must not be overwritten")
			}
		})
	}
}

func TestReload_KeepsSnapshotOnError(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "actions.yaml", sampleYAML)
	r := NewRegistry(context.Background(), NewFileSource(path), Options{Logger: quietLogger()})

	writeFile(t, dir, "actions.yaml", "response_modes: {broken")
	if err := r.Reload(context.Background()); err == nil {
		t.Fatal("expected reload error")
	}
	if !r.Has("triage") {
		t.Error("expected previous snapshot to survive a failed reload")
	}
}

func TestReload_RejectsSetWithoutDefaultAction(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "actions.yaml", sampleYAML)
	r := NewRegistry(context.Background(), NewFileSource(path), Options{Logger: quietLogger()})

	writeFile(t, dir, "actions.yaml", "response_modes:\n  short:\n    name: Court\n    instruction: Une phrase.\n")
	if err := r.Reload(context.Background()); !errors.Is(err, ErrInvalidAction) {
		t.Fatalf("expected ErrInvalidAction, got %v", err)
	}
	if !r.Has("default") || r.Has("short") {
		t.Error("expected previous snapshot to survive")
	}
}

func TestNewRegistry_CustomDefaultAction(t *testing.T) {
	path := writeFile(t, t.TempDir(), "actions.yaml", "response_modes:\n  short:\n    name: Court\n    instruction: Une phrase.\n")
	r := NewRegistry(context.Background(), NewFileSource(path), Options{Logger: quietLogger(), DefaultAction: "short"})

	if r.Stats().Defaults {
		t.Fatal("a file defining the configured default action must be accepted")
	}
	if !r.Has("short") {
		t.Error("expected short action")
	}
}

func TestResolve_Unknown(t *testing.T) {
	r := NewRegistry(context.Background(), nil, Options{Logger: quietLogger()})

	_, err := r.Resolve("nonexistent")
	if !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
}

func TestAddCustom(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "actions.yaml", sampleYAML)
	r := NewRegistry(context.Background(), NewFileSource(path), Options{Logger: quietLogger()})

	tests := []struct {
		name    string
		action  Action
		wantErr bool
	}{
		{"valid", Action{ID: "recall", Name: "Rappel", Instruction: "Rédige un rappel.", Format: FormatConversational}, false},
		{"overwrite", Action{ID: "resume", Name: "Résumé court", Instruction: "Trois points.", Format: FormatBulletPoints}, false},
		{"missing id", Action{Instruction: "x", Format: FormatOther}, true},
		{"missing instruction", Action{ID: "x", Format: FormatOther}, true},
		{"missing format", Action{ID: "x", Instruction: "x"}, true},
	}

	for _, tt := range tests {
		err := r.AddCustom(tt.action)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidAction) {
				t.Errorf("%s: expected ErrInvalidAction, got %v", tt.name, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tt.name, err)
		}
	}

	got, _ := r.Resolve("resume")
	if got.Instruction != "Trois points." {
		t.Errorf("expected overwritten instruction, got %q", got.Instruction)
	}

	if err := r.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !r.Has("recall") {
		t.Error("expected custom action to survive reload")
	}
}

func TestAddCustom_ConcurrentReaders(t *testing.T) {
	r := NewRegistry(context.Background(), nil, Options{Logger: quietLogger()})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = r.AddCustom(Action{ID: "custom", Name: "C", Instruction: "I", Format: FormatOther})
		}()
		go func() {
			defer wg.Done()
			if a, err := r.Resolve("custom"); err == nil && a.Instruction != "I" {
				t.Errorf("observed partial action: %+v", a)
			}
			_ = r.List()
		}()
	}
	wg.Wait()
}

func TestCategories(t *testing.T) {
	path := writeFile(t, t.TempDir(), "actions.yaml", sampleYAML)
	r := NewRegistry(context.Background(), NewFileSource(path), Options{Logger: quietLogger()})

	cats := r.Categories()
	if ids := cats["Urgences"]; len(ids) != 1 || ids[0] != "triage" {
		t.Errorf("expected explicit category Urgences=[triage], got %v", ids)
	}
	if ids := cats["Communication"]; len(ids) != 1 || ids[0] != "resume" {
		t.Errorf("expected Communication=[resume], got %v", ids)
	}
	if ids := cats["Général"]; len(ids) != 1 || ids[0] != "default" {
		t.Errorf("expected Général=[default], got %v", ids)
	}
	if _, ok := cats["Traduction"]; ok {
		t.Error("expected empty categories to be omitted")
	}
}

func TestCategoryOf_Defaults(t *testing.T) {
	tests := []struct {
		id       string
		category string
	}{
		{"translate_fr", "Traduction"},
		{"pdf_analysis", "Analyse"},
		{"image_analysis", "Analyse"},
		{"short", "Communication"},
		{"dental_diagnosis", "Médical"},
		{"appointment_scheduler", "Médical"},
		{"default", "Général"},
	}
	for _, tt := range tests {
		if got := CategoryOf(Action{ID: tt.id}); got != tt.category {
			t.Errorf("CategoryOf(%q) = %q, want %q", tt.id, got, tt.category)
		}
	}
}

func TestSuggest(t *testing.T) {
	r := NewRegistry(context.Background(), nil, Options{Logger: quietLogger()})

	got := r.Suggest("Resume")
	if len(got) != 1 || got[0] != "resume" {
		t.Errorf("expected [resume], got %v", got)
	}
	if got := r.Suggest("completely_unrelated"); len(got) != 0 {
		t.Errorf("expected no suggestions, got %v", got)
	}
}

func TestDescriptionOf(t *testing.T) {
	if got := DescriptionOf(Action{ID: "x"}); got != "Action personnalisée: x" {
		t.Errorf("unexpected description %q", got)
	}
	if got := DescriptionOf(Action{ID: "x", Description: "d"}); got != "d" {
		t.Errorf("unexpected description %q", got)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input string
		want  Format
		ok    bool
	}{
		{"conversational", FormatConversational, true},
		{"bullet_points", FormatBulletPoints, true},
		{"medical_analysis", FormatMedicalAnalysis, true},
		{"medical", FormatOther, true},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseFormat(tt.input)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseFormat(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.want, tt.ok)
		}
	}
}
