package etl

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/doctis-ai/doctis-mvp/engine/domain"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestNormalizeColumns_Idempotent(t *testing.T) {
	in := Table{Columns: []string{" Disease ", "Symptom 1", "SYMPTOM 2"}}
	once := NormalizeColumns(in)
	twice := NormalizeColumns(once)

	want := []string{"disease", "symptom_1", "symptom_2"}
	if !reflect.DeepEqual(once.Columns, want) {
		t.Errorf("normalized columns = %v, want %v", once.Columns, want)
	}
	if !reflect.DeepEqual(twice.Columns, once.Columns) {
		t.Errorf("normalize not idempotent: %v != %v", twice.Columns, once.Columns)
	}
}

func TestReadCSV_MissingFileIsEmptyTable(t *testing.T) {
	tbl, err := ReadCSV(filepath.Join(t.TempDir(), "nope.csv"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tbl.Empty() {
		t.Error("expected empty table for missing file")
	}
}

func TestReadCSV_MissingCells(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "t.csv", "disease,symptom_1,symptom_2\nFlu,fever,nan\nCold,,cough\n")

	tbl, err := ReadCSV(filepath.Join(dir, "t.csv"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tbl.Cell(0, 2).Valid {
		t.Error(`"nan" cell should be invalid`)
	}
	if tbl.Cell(1, 1).Valid {
		t.Error("empty cell should be invalid")
	}
	if c := tbl.Cell(0, 1); !c.Valid || c.Value != "fever" {
		t.Errorf("cell(0,1) = %+v, want valid fever", c)
	}
}

func TestBuildRecords_SymptomAggregation(t *testing.T) {
	src := Sources{
		WideSymptoms: NormalizeColumns(Table{
			Columns: []string{"disease", "symptom_1", "symptom_2", "symptom_3"},
			Rows: [][]Cell{
				{{Value: "Flu", Valid: true}, {Value: "fever", Valid: true}, {Value: "cough", Valid: true}, {}},
			},
		}),
	}

	records, err := BuildRecords(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].AllSymptoms != "fever, cough" {
		t.Errorf("all_symptoms = %q, want %q", records[0].AllSymptoms, "fever, cough")
	}
}

func TestBuildRecords_DuplicateWideRowsConcatenate(t *testing.T) {
	src := Sources{
		WideSymptoms: Table{
			Columns: []string{"disease", "symptom_1", "symptom_2"},
			Rows: [][]Cell{
				{{Value: "Flu", Valid: true}, {Value: "fever", Valid: true}, {Value: "cough", Valid: true}},
				{{Value: "Flu", Valid: true}, {Value: "chills", Valid: true}, {}},
			},
		},
	}

	records, err := BuildRecords(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].AllSymptoms != "fever, cough, chills" {
		t.Errorf("all_symptoms = %q, want %q", records[0].AllSymptoms, "fever, cough, chills")
	}
}

func TestBuildRecords_OuterMergeKeepsFreeTextOnlyDiseases(t *testing.T) {
	src := Sources{
		WideSymptoms: Table{
			Columns: []string{"disease", "symptom_1"},
			Rows:    [][]Cell{{{Value: "Flu", Valid: true}, {Value: "fever", Valid: true}}},
		},
		FreeText: Table{
			Columns: []string{"label", "text"},
			Rows: [][]Cell{
				{{Value: "Psoriasis", Valid: true}, {Value: "dry scaly skin patches", Valid: true}},
				{{Value: "Psoriasis", Valid: true}, {Value: "itching and flaking", Valid: true}},
				{{Value: "Flu", Valid: true}, {Value: "body aches all over", Valid: true}},
			},
		},
	}

	records, err := BuildRecords(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	byDisease := make(map[string]domain.DiseaseRecord)
	for _, r := range records {
		byDisease[r.Disease] = r
	}

	flu, ok := byDisease["Flu"]
	if !ok {
		t.Fatal("Flu missing from merge")
	}
	if flu.AllSymptoms != "fever, body aches all over" {
		t.Errorf("Flu symptoms = %q", flu.AllSymptoms)
	}

	pso, ok := byDisease["Psoriasis"]
	if !ok {
		t.Fatal("free-text-only disease missing from outer merge")
	}
	if pso.AllSymptoms != "dry scaly skin patches, itching and flaking" {
		t.Errorf("Psoriasis symptoms = %q", pso.AllSymptoms)
	}
}

func TestBuildRecords_PrecautionSelfExclusion(t *testing.T) {
	src := Sources{
		WideSymptoms: Table{
			Columns: []string{"disease", "symptom_1"},
			Rows:    [][]Cell{{{Value: "Flu", Valid: true}, {Value: "fever", Valid: true}}},
		},
		Precautions: Table{
			Columns: []string{"disease", "precaution_1", "precaution_2"},
			Rows: [][]Cell{
				{{Value: "Flu", Valid: true}, {Value: "Flu", Valid: true}, {Value: "rest", Valid: true}},
			},
		},
	}

	records, err := BuildRecords(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if records[0].Precautions != "Rest" {
		t.Errorf("precautions = %q, want %q", records[0].Precautions, "Rest")
	}
}

func TestBuildRecords_DescriptionJoinAndSentinelFill(t *testing.T) {
	src := Sources{
		WideSymptoms: Table{
			Columns: []string{"disease", "symptom_1"},
			Rows: [][]Cell{
				{{Value: "Flu", Valid: true}, {Value: "fever", Valid: true}},
				{{Value: "Cold", Valid: true}, {Value: "sneezing", Valid: true}},
			},
		},
		Descriptions: Table{
			Columns: []string{"disease", "description"},
			Rows:    [][]Cell{{{Value: "Flu", Valid: true}, {Value: "A viral infection.", Valid: true}}},
		},
	}

	records, err := BuildRecords(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if records[0].Description != "A viral infection." {
		t.Errorf("Flu description = %q", records[0].Description)
	}
	if records[1].Description != domain.Unspecified {
		t.Errorf("Cold description = %q, want sentinel", records[1].Description)
	}
	if records[1].Precautions != domain.Unspecified {
		t.Errorf("Cold precautions = %q, want sentinel", records[1].Precautions)
	}
}

func TestBuildRecords_NoData(t *testing.T) {
	_, err := BuildRecords(Sources{
		Descriptions: Table{Columns: []string{"disease", "description"}},
	})
	if !errors.Is(err, ErrNoData) {
		t.Errorf("expected ErrNoData, got %v", err)
	}
}

func TestTitleCase(t *testing.T) {
	tests := map[string]string{
		"drink plenty of water": "Drink Plenty Of Water",
		"REST":                  "Rest",
		"rest":                  "Rest",
	}
	for in, want := range tests {
		if got := titleCase(in); got != want {
			t.Errorf("titleCase(%q) = %q, want %q", in, got, want)
		}
	}
}
