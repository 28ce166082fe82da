package etl

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/doctis-ai/doctis-mvp/engine/domain"
)

// Source file names inside the data directory. Any subset may be absent.
const (
	WideSymptomsFile = "dataset.csv"
	FreeTextFile     = "Symptom2Disease.csv"
	DescriptionFile  = "symptom_Description.csv"
	PrecautionFile   = "symptom_precaution.csv"
)

// ErrNoData is returned when neither symptom source is available. Callers
// treat it as "knowledge base unavailable" and degrade to generation-only.
var ErrNoData = errors.New("no data found")

// Sources holds the raw tables the builder merges.
type Sources struct {
	WideSymptoms Table // disease, symptom_1..n
	FreeText     Table // label, text
	Descriptions Table // disease, description
	Precautions  Table // disease, precaution_1..4
}

// LoadSources reads every known source table from dir. Missing files come
// back as empty tables.
func LoadSources(dir string) (Sources, error) {
	var src Sources
	for _, it := range []struct {
		name string
		dst  *Table
	}{
		{WideSymptomsFile, &src.WideSymptoms},
		{FreeTextFile, &src.FreeText},
		{DescriptionFile, &src.Descriptions},
		{PrecautionFile, &src.Precautions},
	} {
		t, err := ReadCSV(filepath.Join(dir, it.name))
		if err != nil {
			return Sources{}, err
		}
		*it.dst = NormalizeColumns(t)
	}
	return src, nil
}

// BuildRecords merges the sources into the canonical per-disease table.
//
// Merge order mirrors the build pipeline contract: wide-table symptom
// aggregation, outer-join with the grouped free-text source, then
// description and precaution left-joins, then sentinel fill.
func BuildRecords(src Sources) ([]domain.DiseaseRecord, error) {
	if src.WideSymptoms.Empty() && src.FreeText.Empty() {
		return nil, ErrNoData
	}

	// order preserves first appearance across sources; index is the join map.
	var order []string
	index := make(map[string]*domain.DiseaseRecord)

	record := func(disease string) *domain.DiseaseRecord {
		if r, ok := index[disease]; ok {
			return r
		}
		r := &domain.DiseaseRecord{Disease: disease}
		index[disease] = r
		order = append(order, disease)
		return r
	}

	// 1. Wide table: join every valid cell after the disease column.
	// Duplicate disease rows concatenate their symptoms; the source keeps
	// such rows and neither side may be dropped.
	for i := range src.WideSymptoms.Rows {
		disease := src.WideSymptoms.Cell(i, 0)
		if !disease.Valid {
			continue
		}
		var symptoms []string
		for j := 1; j < len(src.WideSymptoms.Rows[i]); j++ {
			if c := src.WideSymptoms.Cell(i, j); c.Valid {
				symptoms = append(symptoms, c.Value)
			}
		}
		if len(symptoms) > 0 {
			r := record(disease.Value)
			r.AllSymptoms = strings.Trim(r.AllSymptoms+", "+strings.Join(symptoms, ", "), ", ")
		} else {
			record(disease.Value)
		}
	}

	// 2. Free-text table (label, text): group rows by disease, concatenate,
	// then outer-join so diseases present only here still get a row.
	if !src.FreeText.Empty() {
		labelCol, textCol := src.FreeText.Col("label"), src.FreeText.Col("text")
		grouped := make(map[string][]string)
		var groupOrder []string
		for i := range src.FreeText.Rows {
			disease := src.FreeText.Cell(i, labelCol)
			text := src.FreeText.Cell(i, textCol)
			if !disease.Valid || !text.Valid {
				continue
			}
			if _, ok := grouped[disease.Value]; !ok {
				groupOrder = append(groupOrder, disease.Value)
			}
			grouped[disease.Value] = append(grouped[disease.Value], text.Value)
		}
		for _, disease := range groupOrder {
			r := record(disease)
			// concatenate both sides rather than overwriting; stray
			// separators from an empty side are stripped in finalization.
			r.AllSymptoms = r.AllSymptoms + ", " + strings.Join(grouped[disease], ", ")
		}
	}

	// 3. Descriptions: left join on trimmed disease.
	if !src.Descriptions.Empty() {
		dCol, descCol := src.Descriptions.Col("disease"), src.Descriptions.Col("description")
		for i := range src.Descriptions.Rows {
			disease := src.Descriptions.Cell(i, dCol)
			desc := src.Descriptions.Cell(i, descCol)
			if !disease.Valid || !desc.Valid {
				continue
			}
			if r, ok := index[disease.Value]; ok && r.Description == "" {
				r.Description = desc.Value
			}
		}
	}

	// 4. Precautions: left join; drop any cell repeating the disease name
	// (a known artifact of the source table) and title-case the rest.
	if !src.Precautions.Empty() {
		dCol := src.Precautions.Col("disease")
		for i := range src.Precautions.Rows {
			disease := src.Precautions.Cell(i, dCol)
			if !disease.Valid {
				continue
			}
			r, ok := index[disease.Value]
			if !ok || r.Precautions != "" {
				continue
			}
			var precautions []string
			for j := range src.Precautions.Rows[i] {
				c := src.Precautions.Cell(i, j)
				if !c.Valid || c.Value == disease.Value {
					continue
				}
				precautions = append(precautions, titleCase(c.Value))
			}
			r.Precautions = strings.Join(precautions, ", ")
		}
	}

	// 5. Finalize: strip stray separators, fill remaining gaps with the
	// sentinel so the prompt layer never sees an empty placeholder.
	records := make([]domain.DiseaseRecord, 0, len(order))
	for _, disease := range order {
		r := index[disease]
		r.AllSymptoms = strings.Trim(r.AllSymptoms, ", ")
		if r.AllSymptoms == "" {
			r.AllSymptoms = domain.Unspecified
		}
		if r.Description == "" {
			r.Description = domain.Unspecified
		}
		if r.Precautions == "" {
			r.Precautions = domain.Unspecified
		}
		records = append(records, *r)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("etl: %w", ErrNoData)
	}
	return records, nil
}

// titleCase upper-cases the first letter of each word, lower-casing the
// rest, matching how precaution phrases are displayed.
func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
