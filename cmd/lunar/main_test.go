package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	bc "github.com/xirelogy/go-lunar/internal/bytecode"
	"github.com/xirelogy/go-lunar/internal/undump"
)

func writeChunk(t *testing.T, dir string, main *bc.Prototype) string {
	t.Helper()
	data, err := undump.DumpBytes(&bc.Chunk{Header: bc.DefaultHeader(), Main: main}, false)
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	path := filepath.Join(dir, "luac.out")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func greetingProto() *bc.Prototype {
	return &bc.Prototype{
		Source:    "@greet.lua",
		Constants: []*bc.Constant{bc.StringConst("msg"), bc.StringConst("hello"), bc.NumberConst(4)},
		Code: []bc.Instruction{
			bc.MustDecode(bc.EncodeABx(bc.OP_LOADK, 0, 1)),
			bc.MustDecode(bc.EncodeABx(bc.OP_SETGLOBAL, 0, 0)),
			bc.MustDecode(bc.EncodeABx(bc.OP_LOADK, 1, 2)),
			bc.MustDecode(bc.EncodeABC(bc.OP_RETURN, 0, 3, 0)),
		},
	}
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(append([]string{"-no-color", "-log-level", "warn"}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunPrintsOutput(t *testing.T) {
	path := writeChunk(t, t.TempDir(), greetingProto())
	code, stdout, stderr := runCLI(t, path)
	if code != 0 {
		t.Fatalf("exit %d, stderr: %s", code, stderr)
	}
	if stdout != "Output: [\"hello\", 4]\n" {
		t.Fatalf("unexpected stdout %q", stdout)
	}
}

func TestRunDecompile(t *testing.T) {
	path := writeChunk(t, t.TempDir(), greetingProto())
	code, stdout, stderr := runCLI(t, "-decompile", path)
	if code != 0 {
		t.Fatalf("exit %d, stderr: %s", code, stderr)
	}
	want := "msg = \"hello\"\nlocal lv_0 = 4\n"
	if stdout != want {
		t.Fatalf("decompile = %q, want %q", stdout, want)
	}
}

func TestRunDisassemble(t *testing.T) {
	path := writeChunk(t, t.TempDir(), greetingProto())
	code, stdout, stderr := runCLI(t, "-disasm", path)
	if code != 0 {
		t.Fatalf("exit %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "function main") || !strings.Contains(stdout, "SETGLOBAL") {
		t.Fatalf("missing disassembly in %q", stdout)
	}
	if !strings.HasSuffix(stdout, "Output: [\"hello\", 4]\n") {
		t.Fatalf("missing output line in %q", stdout)
	}
}

func TestRunExportFormats(t *testing.T) {
	path := writeChunk(t, t.TempDir(), greetingProto())
	code, stdout, stderr := runCLI(t, "-format", "json", path)
	if code != 0 {
		t.Fatalf("exit %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, `"source": "@greet.lua"`) {
		t.Fatalf("unexpected json %q", stdout)
	}
	if strings.Contains(stdout, "Output:") {
		t.Fatalf("export should not run the chunk")
	}

	code, stdout, _ = runCLI(t, "-format", "yaml", path)
	if code != 0 || !strings.Contains(stdout, "op: SETGLOBAL") {
		t.Fatalf("unexpected yaml export (exit %d): %q", code, stdout)
	}

	code, _, stderr = runCLI(t, "-format", "xml", path)
	if code != 1 || !strings.Contains(stderr, "unknown export format") {
		t.Fatalf("expected format error, got exit %d: %q", code, stderr)
	}
}

func TestRunConfigFile(t *testing.T) {
	dir := t.TempDir()
	writeChunk(t, dir, greetingProto())
	cfgPath := filepath.Join(dir, "lunar.toml")
	content := "chunk = \"luac.out\"\n\n[log]\nlevel = \"error\"\npretty = false\n\n[output]\ncolor = false\n"
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	var stdout, stderr bytes.Buffer
	code := run([]string{"-config", cfgPath}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit %d, stderr: %s", code, stderr.String())
	}
	if stdout.String() != "Output: [\"hello\", 4]\n" {
		t.Fatalf("unexpected stdout %q", stdout.String())
	}
}

func TestRunErrors(t *testing.T) {
	code, _, stderr := runCLI(t, filepath.Join(t.TempDir(), "missing.out"))
	if code != 1 || !strings.HasPrefix(stderr, "Error: ") {
		t.Fatalf("expected error exit for missing chunk, got %d: %q", code, stderr)
	}

	failing := &bc.Prototype{
		Code: []bc.Instruction{bc.MustDecode(bc.EncodeABx(bc.OP_GETGLOBAL, 0, 0))},
	}
	path := writeChunk(t, t.TempDir(), failing)
	code, stdout, stderr := runCLI(t, path)
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if stdout != "" {
		t.Fatalf("expected no output, got %q", stdout)
	}
	if !strings.Contains(stderr, "missing global") {
		t.Fatalf("expected missing global error, got %q", stderr)
	}

	code, _, _ = runCLI(t, "-limit", "1", writeChunk(t, t.TempDir(), greetingProto()))
	if code != 1 {
		t.Fatalf("expected instruction limit failure, got exit %d", code)
	}
}

func TestRunBadFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"-bogus"}, &stdout, &stderr); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if !strings.Contains(stderr.String(), "usage: lunar") {
		t.Fatalf("expected usage, got %q", stderr.String())
	}
}
