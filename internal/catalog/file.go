package catalog

import (
	"context"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// File is the on-disk layout of a curated catalog:
//
//	[[book]]
//	title = "The Left Hand of Darkness"
//	author = "Ursula K. Le Guin"
//	complexity = 6
//	themes = ["identity", "politics"]
type File struct {
	Books []Record `toml:"book"`
}

// FileProvider answers lookups from a TOML catalog loaded once at startup.
type FileProvider struct {
	path    string
	records []Record
}

var _ Provider = (*FileProvider)(nil)

// LoadFileProvider parses the catalog at path.
func LoadFileProvider(path string) (*FileProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	var file File
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog file %s: %w", path, err)
	}
	for i, r := range file.Books {
		if r.Title == "" && r.ISBN == "" {
			return nil, fmt.Errorf("catalog file %s: book %d has neither title nor isbn", path, i+1)
		}
		if r.Confidence == 0 {
			file.Books[i].Confidence = 1
		}
	}
	return &FileProvider{path: path, records: file.Books}, nil
}

// Name identifies the provider in logs.
func (p *FileProvider) Name() string { return "file" }

// Len returns the number of catalog records.
func (p *FileProvider) Len() int { return len(p.records) }

// Lookup matches by ISBN first, then by title and author similarity.
func (p *FileProvider) Lookup(ctx context.Context, q Query) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Unknown, err
	}
	return bestMatch(q, p.records), nil
}
