package catalog

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// UniversitySource loads the current set of universities.
type UniversitySource interface {
	LoadUniversities(ctx context.Context) ([]University, error)
}

// ProgramSource loads the current set of programs.
type ProgramSource interface {
	LoadPrograms(ctx context.Context) ([]Program, error)
}

// Source provides both record kinds.
type Source interface {
	UniversitySource
	ProgramSource
}

// Memory is a Source over in-process slices. Replace swaps the contents,
// which running engines pick up on their next rebuild.
type Memory struct {
	mu           sync.RWMutex
	universities []University
	programs     []Program
}

func NewMemory(universities []University, programs []Program) *Memory {
	return &Memory{universities: universities, programs: programs}
}

func (m *Memory) LoadUniversities(ctx context.Context) ([]University, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]University(nil), m.universities...), nil
}

func (m *Memory) LoadPrograms(ctx context.Context) ([]Program, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Program(nil), m.programs...), nil
}

// Replace swaps the stored records.
func (m *Memory) Replace(universities []University, programs []Program) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.universities = universities
	m.programs = programs
}

// Document is the on-disk YAML catalog layout.
type Document struct {
	Universities []University `yaml:"universities"`
	Programs     []Program    `yaml:"programs"`
}

// File is a Source backed by a YAML catalog on disk. The file is re-read on
// every load so edits are picked up at the next index refresh.
type File struct {
	Path string
}

func NewFile(path string) *File {
	return &File{Path: path}
}

// Read parses the catalog file and fills in program university names from
// the university list where they are missing.
func (f *File) Read() (*Document, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog %s: %w", f.Path, err)
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing catalog %s: %w", f.Path, err)
	}
	names := make(map[string]string, len(doc.Universities))
	for _, u := range doc.Universities {
		names[u.ID] = u.Name
	}
	for i := range doc.Programs {
		if doc.Programs[i].UniversityName == "" {
			doc.Programs[i].UniversityName = names[doc.Programs[i].UniversityID]
		}
	}
	return &doc, nil
}

// Write stores doc at the file path.
func (f *File) Write(doc *Document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding catalog: %w", err)
	}
	if err := os.WriteFile(f.Path, data, 0o644); err != nil {
		return fmt.Errorf("writing catalog %s: %w", f.Path, err)
	}
	return nil
}

func (f *File) LoadUniversities(ctx context.Context) ([]University, error) {
	doc, err := f.Read()
	if err != nil {
		return nil, err
	}
	return doc.Universities, nil
}

func (f *File) LoadPrograms(ctx context.Context) ([]Program, error) {
	doc, err := f.Read()
	if err != nil {
		return nil, err
	}
	return doc.Programs, nil
}
