package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/openworm/wormgraph/internal/core"
	"github.com/openworm/wormgraph/internal/models"
	"github.com/openworm/wormgraph/internal/rdf"
)

// SeedFile is the YAML layout accepted by the import command.
type SeedFile struct {
	Documents []models.DocumentSpec `yaml:"documents"`
	Neurons   []models.CellSpec     `yaml:"neurons"`
	Muscles   []models.CellSpec     `yaml:"muscles"`
}

// SeedSkip names an entry that was not stored.
type SeedSkip struct {
	Section string `json:"section"`
	Index   int    `json:"index"`
	Reason  string `json:"reason"`
}

// ImportSummary reports what one imported file produced.
type ImportSummary struct {
	File    string     `json:"file"`
	Format  string     `json:"format"`
	Saved   []string   `json:"saved"`
	Skipped []SeedSkip `json:"skipped,omitempty"`
}

func importFile(ctx context.Context, engine *core.Engine, path string) (*ImportSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".nt") {
		return importNTriples(ctx, engine, path, f)
	}

	seed, err := decodeSeed(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	summary, err := importSeed(ctx, engine, seed)
	if summary != nil {
		summary.File = path
	}
	return summary, err
}

func decodeSeed(r io.Reader) (*SeedFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var seed SeedFile
	if err := dec.Decode(&seed); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid seed file: %w", err)
	}
	return &seed, nil
}

func importNTriples(ctx context.Context, engine *core.Engine, path string, r io.Reader) (*ImportSummary, error) {
	stmts, err := rdf.ParseNTriples(r, "import:"+filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	result, err := engine.ImportStatements(ctx, stmts)
	summary := &ImportSummary{File: path, Format: "ntriples", Saved: []string{}}
	if result != nil {
		summary.Saved = result.Saved
		for _, skip := range result.Skipped {
			summary.Skipped = append(summary.Skipped, SeedSkip{Section: "subjects", Index: skip.Index, Reason: skip.Reason})
		}
	}
	return summary, err
}

// importSeed stores the documents as one batch, then each cell.
func importSeed(ctx context.Context, engine *core.Engine, seed *SeedFile) (*ImportSummary, error) {
	summary := &ImportSummary{Format: "yaml", Saved: []string{}}

	docs := make([]*models.Document, 0, len(seed.Documents))
	positions := make([]int, 0, len(seed.Documents))
	for i, spec := range seed.Documents {
		doc, err := engine.NewDocument(spec)
		if err != nil {
			summary.Skipped = append(summary.Skipped, SeedSkip{Section: "documents", Index: i, Reason: err.Error()})
			continue
		}
		docs = append(docs, doc)
		positions = append(positions, i)
	}
	if len(docs) > 0 {
		result, err := engine.SaveDocuments(ctx, docs)
		if result != nil {
			summary.Saved = append(summary.Saved, result.Saved...)
			for _, skip := range result.Skipped {
				summary.Skipped = append(summary.Skipped, SeedSkip{Section: "documents", Index: positions[skip.Index], Reason: skip.Reason})
			}
		}
		if err != nil {
			return summary, err
		}
	}

	for _, section := range []struct {
		name  string
		kind  models.CellKind
		specs []models.CellSpec
	}{
		{"neurons", models.KindNeuron, seed.Neurons},
		{"muscles", models.KindMuscle, seed.Muscles},
	} {
		for i, spec := range section.specs {
			_, rec, err := engine.SaveCell(ctx, section.kind, spec)
			if err != nil {
				if ctx.Err() != nil {
					return summary, ctx.Err()
				}
				summary.Skipped = append(summary.Skipped, SeedSkip{Section: section.name, Index: i, Reason: err.Error()})
				continue
			}
			summary.Saved = append(summary.Saved, rec.IRI)
		}
	}
	return summary, nil
}
