package artifact

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zhusy54/PTOTestingFramework/internal/testcase"
)

func TestNewWorkDir_EphemeralIsUnique(t *testing.T) {
	cfg := testcase.DefaultConfig()

	first, err := NewWorkDir(cfg, t.TempDir(), "tile_add")
	if err != nil {
		t.Fatal(err)
	}
	defer first.Cleanup()
	second, err := NewWorkDir(cfg, t.TempDir(), "tile_add")
	if err != nil {
		t.Fatal(err)
	}
	defer second.Cleanup()

	if first.Path == second.Path {
		t.Errorf("two ephemeral work dirs share path %q", first.Path)
	}
	if !first.Ephemeral() {
		t.Error("non-save work dir must be ephemeral")
	}
}

func TestWorkDir_CleanupRemovesEphemeral(t *testing.T) {
	cfg := testcase.DefaultConfig()
	wd, err := NewWorkDir(cfg, t.TempDir(), "tile_add")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(wd.Path, "x"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	wd.Cleanup()
	if _, err := os.Stat(wd.Path); !os.IsNotExist(err) {
		t.Errorf("ephemeral dir still exists after Cleanup: %v", err)
	}
}

func TestNewWorkDir_SavedIsPersistent(t *testing.T) {
	cfg := testcase.DefaultConfig()
	cfg.SaveArtifacts = true
	cfg.ArtifactsDir = t.TempDir()

	wd, err := NewWorkDir(cfg, t.TempDir(), "matmul_64x64")
	if err != nil {
		t.Fatal(err)
	}
	if wd.Ephemeral() {
		t.Error("saved work dir must not be ephemeral")
	}
	want := filepath.Join(cfg.ArtifactsDir, "matmul_64x64")
	if wd.Path != want {
		t.Errorf("Path = %q, want %q", wd.Path, want)
	}

	wd.Cleanup()
	if _, err := os.Stat(wd.Path); err != nil {
		t.Errorf("saved dir removed by Cleanup: %v", err)
	}
}

func TestMetadata_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	for _, f := range []string{ConfigFile, GoldenFile} {
		if err := os.WriteFile(filepath.Join(dir, f), []byte("{}"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	cfg := testcase.DefaultConfig()
	meta, err := NewMetadata(dir, "tile_add_128x128", cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := meta.Write(dir); err != nil {
		t.Fatal(err)
	}

	got, err := ReadMetadata(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got.TestName != "tile_add_128x128" {
		t.Errorf("TestName = %q", got.TestName)
	}
	if got.Config.Platform != "simulated" || got.Config.Strategy != "default" {
		t.Errorf("Config snapshot = %+v", got.Config)
	}

	// Manifest is discovered from disk, sorted.
	if len(got.Files) != 2 {
		t.Fatalf("Files = %v", got.Files)
	}
	for i, f := range []string{"golden.json", "kernel_config.yaml"} {
		if got.Files[i] != f {
			t.Errorf("Files[%d] = %q, want %q", i, got.Files[i], f)
		}
	}
}

func TestValidateMetadata_RejectsBadRecords(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"missing test_name", `{"created_at":"x","config":{"platform":"simulated","strategy":"default"},"files":[]}`},
		{"bad platform", `{"test_name":"t","created_at":"x","config":{"platform":"a2a3","strategy":"default"},"files":[]}`},
		{"unknown field", `{"test_name":"t","created_at":"x","config":{"platform":"simulated","strategy":"default"},"files":[],"extra":1}`},
		{"not json", `{{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateMetadata([]byte(tt.json)); err == nil {
				t.Error("ValidateMetadata() = nil, want error")
			}
		})
	}
}

func TestSessionDir_StableWithinProcess(t *testing.T) {
	base := t.TempDir()
	first, err := SessionDir(base)
	if err != nil {
		t.Fatal(err)
	}
	second, err := SessionDir(filepath.Join(base, "other"))
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("session dir changed within one process: %q vs %q", first, second)
	}
	if !strings.Contains(filepath.Base(first), "output_") {
		t.Errorf("session dir %q missing output_ prefix", first)
	}
}
