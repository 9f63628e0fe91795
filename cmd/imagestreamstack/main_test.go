package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/image/tiff"

	"imagestreamstack/internal/testsupport"
	"imagestreamstack/pkg/channels"
)

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func writeTestArchive(t *testing.T, dir string) string {
	t.Helper()
	page := func(w, h int, v uint16) []byte {
		return testsupport.EncodeTIFF(t, testsupport.Gray16(w, h, testsupport.Constant(v)))
	}
	return testsupport.WriteArchive(t, dir, []testsupport.Entry{
		{Name: "D1/c1_Ch1.tif", Data: page(4, 4, 10)},
		{Name: "D1/c1_Ch2.tif", Data: page(2, 2, 20)},
		{Name: "D1/c2_Ch1.tif", Data: page(4, 4, 30)},
		{Name: "D1/c2_Ch2.tif", Data: page(2, 2, 40)},
		{Name: "D1/c3_Ch1.tif", Data: page(4, 4, 50)},
	})
}

func TestRunWritesStacks(t *testing.T) {
	dir := t.TempDir()
	archivePath := writeTestArchive(t, dir)
	docPath := filepath.Join(dir, "names.toml")
	if err := (channels.Override{1: "BF", 2: "DAPI"}).Save(docPath); err != nil {
		t.Fatalf("save channel document: %v", err)
	}

	out, stderr, err := runCLI(t, "run", archivePath,
		"--suffix", "tif", "--channels", docPath, "--pixel-size", "0.5",
		"--no-progress", "--log-format", "json")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, stderr)
	}
	requireContains(t, out, "written")
	requireContains(t, stderr, `"run_id"`)
	requireContains(t, stderr, `"particle":"c3"`)

	target := filepath.Join(dir, "merged_tiffs", "D1.tif")
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("expected stack at %s: %v", target, err)
	}
	img, err := tiff.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode stack: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 4 || b.Dy() != 4 {
		t.Fatalf("expected 4x4 planes, got %v", b)
	}
}

func TestRunRejectsBadPixelSize(t *testing.T) {
	archivePath := writeTestArchive(t, t.TempDir())
	_, _, err := runCLI(t, "run", archivePath, "--suffix", "tif", "--pixel-size", "0")
	if err == nil {
		t.Fatal("expected error for zero pixel size")
	}
}

func TestInspectListsChannels(t *testing.T) {
	archivePath := writeTestArchive(t, t.TempDir())

	out, _, err := runCLI(t, "inspect", archivePath, "--suffix", ".tif", "--log-level", "error")
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	requireContains(t, out, "D1 : (3 cells 2 channels)")
	requireContains(t, out, "--")

	out, _, err = runCLI(t, "inspect", archivePath, "--suffix", ".tif", "--default-names")
	if err != nil {
		t.Fatalf("inspect with default names: %v", err)
	}
	requireContains(t, out, "Ch2")
}

func TestChannelsTemplateRoundTrips(t *testing.T) {
	dir := t.TempDir()
	archivePath := writeTestArchive(t, dir)
	target := filepath.Join(dir, "D1.toml")

	out, _, err := runCLI(t, "channels", "template", archivePath, "--suffix", "tif", "--default-names", "--out", target)
	if err != nil {
		t.Fatalf("channels template: %v", err)
	}
	requireContains(t, out, "Wrote 2 channels")

	doc, err := channels.Load(target)
	if err != nil {
		t.Fatalf("load template: %v", err)
	}
	if doc[1] != "Ch1" || doc[2] != "Ch2" {
		t.Fatalf("unexpected template %v", doc)
	}

	_, _, err = runCLI(t, "channels", "template", archivePath, "--suffix", "tif", "--dataset", "D9")
	if err == nil {
		t.Fatal("expected error for unknown dataset")
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.yaml")

	out, _, err := runCLI(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote default configuration")

	if _, _, err := runCLI(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected error when config already exists")
	}

	out, _, err = runCLI(t, "--config", target, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
}
