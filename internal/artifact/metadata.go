package artifact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/zhusy54/PTOTestingFramework/internal/testcase"
	schemafs "github.com/zhusy54/PTOTestingFramework/schema"
)

// ConfigSnapshot is the part of the run configuration recorded alongside
// the generated files.
type ConfigSnapshot struct {
	Platform     string  `json:"platform"`
	DeviceID     int     `json:"device_id"`
	Strategy     string  `json:"strategy"`
	AbsTolerance float64 `json:"abs_tolerance"`
	RelTolerance float64 `json:"rel_tolerance"`
	DumpPasses   bool    `json:"dump_passes"`
	CodegenOnly  bool    `json:"codegen_only"`
}

// Metadata is the record written next to every artifact set.
type Metadata struct {
	TestName  string         `json:"test_name"`
	CreatedAt string         `json:"created_at"`
	Config    ConfigSnapshot `json:"config"`
	Files     []string       `json:"files"`
}

// NewMetadata builds the metadata record for a freshly generated set.
// The file manifest is discovered by walking the directory so it reflects
// what was actually written, not what the generators intended.
func NewMetadata(dir, testName string, cfg testcase.Config) (*Metadata, error) {
	files, err := manifest(dir)
	if err != nil {
		return nil, err
	}
	return &Metadata{
		TestName:  testName,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Config: ConfigSnapshot{
			Platform:     string(cfg.Platform),
			DeviceID:     cfg.DeviceID,
			Strategy:     cfg.Strategy.String(),
			AbsTolerance: cfg.AbsTolerance,
			RelTolerance: cfg.RelTolerance,
			DumpPasses:   cfg.DumpPasses,
			CodegenOnly:  cfg.CodegenOnly,
		},
		Files: files,
	}, nil
}

// Write validates the record against the embedded schema and writes it to
// dir/metadata.json.
func (m *Metadata) Write(dir string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := ValidateMetadata(data); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, MetadataFile), data, 0o644)
}

// ReadMetadata loads and schema-validates the metadata record of an
// existing artifact directory.
func ReadMetadata(dir string) (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	if err != nil {
		return nil, err
	}
	if err := ValidateMetadata(data); err != nil {
		return nil, err
	}
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse metadata: %w", err)
	}
	return &m, nil
}

var (
	metadataSchema *jsonschema.Schema
	compileOnce    sync.Once
	compileErr     error
)

func compileSchema() error {
	compileOnce.Do(func() {
		data, err := schemafs.FS.ReadFile("metadata.schema.json")
		if err != nil {
			compileErr = fmt.Errorf("read metadata schema: %w", err)
			return
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
		if err != nil {
			compileErr = fmt.Errorf("unmarshal metadata schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("metadata.schema.json", doc); err != nil {
			compileErr = fmt.Errorf("add metadata schema resource: %w", err)
			return
		}
		metadataSchema, compileErr = compiler.Compile("metadata.schema.json")
	})
	return compileErr
}

// ValidateMetadata validates raw JSON against the metadata schema.
func ValidateMetadata(data []byte) error {
	if err := compileSchema(); err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := metadataSchema.Validate(v); err != nil {
		return fmt.Errorf("metadata validation failed: %w", err)
	}
	return nil
}

// manifest lists every regular file under dir, relative, sorted.
func manifest(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
