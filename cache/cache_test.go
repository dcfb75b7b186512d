package cache

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/chazu/curly/vm"
)

func sampleProgram() *vm.Program {
	b := vm.NewBuilder()
	b.SetLine(1)
	f := b.EmitFunc(vm.OpDeclareFunc, "inc", []string{"n"}, true)
	b.EmitName(vm.OpLoad, "n")
	b.EmitNum(vm.OpLoadNumConst, 1)
	b.Emit(vm.OpAdd)
	b.PatchFunc(f, b.Emit(vm.OpReturn))
	b.SetLine(2)
	b.EmitName(vm.OpLoad, "inc")
	b.EmitNum(vm.OpLoadNumConst, 41)
	b.EmitArg(vm.OpCall, 1)
	return b.Program()
}

func openTemp(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "nested", "cache.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestPutGet(t *testing.T) {
	c := openTemp(t)
	prog := sampleProgram()
	hash := vm.SourceHash("function inc(n) { return n + 1 }\ninc(41)")

	if _, err := c.Get(hash); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get before Put = %v, want ErrNotFound", err)
	}
	if err := c.Put(hash, prog); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := c.Get(hash)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if vm.Disassemble(got) != vm.Disassemble(prog) {
		t.Errorf("cached program:\n%s\nwant:\n%s", vm.Disassemble(got), vm.Disassemble(prog))
	}
	if got.Line(got.Len()-1) != 2 {
		t.Errorf("line table lost: %v", got.Lines)
	}

	v, err := vm.New().Run(got)
	if err != nil {
		t.Fatalf("Run cached program: %v", err)
	}
	if !vm.StrictEquals(v, vm.Number(42)) {
		t.Errorf("result = %s, want 42", vm.ToString(v))
	}
}

func TestPutReplaces(t *testing.T) {
	c := openTemp(t)
	first := sampleProgram()
	b := vm.NewBuilder()
	b.Emit(vm.OpLoadTrue)
	second := b.Program()

	if err := c.Put("h", first); err != nil {
		t.Fatal(err)
	}
	if err := c.Put("h", second); err != nil {
		t.Fatal(err)
	}
	got, err := c.Get("h")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Len() != 1 || got.Code[0].Op != vm.OpLoadTrue {
		t.Errorf("Get after replace:\n%s", vm.Disassemble(got))
	}
}

func TestStatsAndPurge(t *testing.T) {
	c := openTemp(t)
	for _, h := range []string{"a", "b"} {
		if err := c.Put(h, sampleProgram()); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 3; i++ {
		if _, err := c.Get("a"); err != nil {
			t.Fatal(err)
		}
	}

	s, err := c.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if s.Entries != 2 || s.Hits != 3 || s.Bytes <= 0 {
		t.Errorf("Stats = %+v, want 2 entries, 3 hits, some bytes", s)
	}

	n, err := c.Purge()
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if n != 2 {
		t.Errorf("Purge = %d, want 2", n)
	}
	if s, _ := c.Stats(); s.Entries != 0 || s.Bytes != 0 || s.Hits != 0 {
		t.Errorf("Stats after Purge = %+v", s)
	}
}

func TestCorruptEntry(t *testing.T) {
	c := openTemp(t)
	if _, err := c.db.Exec("INSERT INTO programs (hash, image, created_at) VALUES ('bad', x'FF00', 0)"); err != nil {
		t.Fatal(err)
	}
	_, err := c.Get("bad")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("Get(corrupt) = %v, want decode error", err)
	}
}

func TestHashMismatch(t *testing.T) {
	c := openTemp(t)
	data, err := vm.MarshalImage(sampleProgram(), "other")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.db.Exec("INSERT INTO programs (hash, image, created_at) VALUES ('mine', ?, 0)", data); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get("mine"); err == nil {
		t.Error("Get returned a program recorded for another source")
	}
}

func TestReopenPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	c, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Put("k", sampleProgram()); err != nil {
		t.Fatal(err)
	}
	c.Close()

	c, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if c.Path() != path {
		t.Errorf("Path = %q, want %q", c.Path(), path)
	}
	if _, err := c.Get("k"); err != nil {
		t.Errorf("Get after reopen: %v", err)
	}
}

func TestMemoryCache(t *testing.T) {
	c, err := Open(Memory)
	if err != nil {
		t.Fatalf("Open(memory): %v", err)
	}
	defer c.Close()
	if err := c.Put("m", sampleProgram()); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get("m"); err != nil {
		t.Errorf("Get: %v", err)
	}
}
