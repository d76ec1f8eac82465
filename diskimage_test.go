package cpm

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileDiskProviderSanitizePathRejectsEscape(t *testing.T) {
	root := t.TempDir()
	p := NewFileDiskProvider(root)

	if _, err := p.sanitizePath("../../etc/passwd"); err == nil {
		t.Fatalf("expected error escaping root, got nil")
	}
	if _, err := p.sanitizePath("a/../../b"); err == nil {
		t.Fatalf("expected error escaping root via traversal, got nil")
	}
}

func TestFileDiskProviderSanitizePathAllowsWithinRoot(t *testing.T) {
	root := t.TempDir()
	p := NewFileDiskProvider(root)

	full, err := p.sanitizePath("drives/a.dsk")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := filepath.Join(root, "drives", "a.dsk")
	if full != want {
		t.Fatalf("sanitizePath = %q, want %q", full, want)
	}
}

func TestFileDiskProviderMountReadWriteRoundTrip(t *testing.T) {
	root := t.TempDir()
	imgPath := filepath.Join(root, "a.dsk")
	if err := os.WriteFile(imgPath, make([]byte, diskImageSize), 0o644); err != nil {
		t.Fatalf("seed image: %v", err)
	}

	p := NewFileDiskProvider(root)
	if err := p.Mount(0, "a.dsk", false); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if !p.IsMounted(0) {
		t.Fatalf("expected drive 0 mounted")
	}

	out := make([]byte, diskSectorBytes)
	for i := range out {
		out[i] = byte(i)
	}
	if err := p.WriteSector(0, 1, 1, out); err != nil {
		t.Fatalf("WriteSector: %v", err)
	}

	in := make([]byte, diskSectorBytes)
	if err := p.ReadSector(0, 1, 1, in); err != nil {
		t.Fatalf("ReadSector: %v", err)
	}
	for i := range out {
		if in[i] != out[i] {
			t.Fatalf("sector mismatch at %d: got 0x%02X want 0x%02X", i, in[i], out[i])
		}
	}

	p.Unmount(0)
	if p.IsMounted(0) {
		t.Fatalf("expected drive 0 unmounted")
	}
}

func TestFileDiskProviderShortReadPadsWithE5(t *testing.T) {
	root := t.TempDir()
	imgPath := filepath.Join(root, "short.dsk")
	if err := os.WriteFile(imgPath, []byte{1, 2, 3}, 0o644); err != nil {
		t.Fatalf("seed image: %v", err)
	}

	p := NewFileDiskProvider(root)
	if err := p.Mount(0, "short.dsk", true); err != nil {
		t.Fatalf("Mount: %v", err)
	}

	buf := make([]byte, diskSectorBytes)
	if err := p.ReadSector(0, 0, 1, buf); err != nil {
		t.Fatalf("ReadSector: %v", err)
	}
	if buf[0] != 1 || buf[1] != 2 || buf[2] != 3 {
		t.Fatalf("leading bytes mismatch: %v", buf[:3])
	}
	for i := 3; i < diskSectorBytes; i++ {
		if buf[i] != 0xE5 {
			t.Fatalf("buf[%d] = 0x%02X, want 0xE5 pad", i, buf[i])
		}
	}
}

func TestFileDiskProviderWriteToReadOnlyFails(t *testing.T) {
	root := t.TempDir()
	imgPath := filepath.Join(root, "a.dsk")
	if err := os.WriteFile(imgPath, make([]byte, diskImageSize), 0o644); err != nil {
		t.Fatalf("seed image: %v", err)
	}

	p := NewFileDiskProvider(root)
	if err := p.Mount(0, "a.dsk", true); err != nil {
		t.Fatalf("Mount: %v", err)
	}

	if err := p.WriteSector(0, 0, 1, make([]byte, diskSectorBytes)); err == nil {
		t.Fatalf("expected error writing to read-only mount")
	}
}

func TestMemoryDiskProviderShortPad(t *testing.T) {
	p := NewMemoryDiskProvider()
	p.MountImage(0, []byte{9, 9}, false)

	buf := make([]byte, diskSectorBytes)
	if err := p.ReadSector(0, 0, 1, buf); err != nil {
		t.Fatalf("ReadSector: %v", err)
	}
	if buf[0] != 9 || buf[1] != 9 {
		t.Fatalf("leading bytes mismatch: %v", buf[:2])
	}
	if buf[2] != 0xE5 {
		t.Fatalf("buf[2] = 0x%02X, want 0xE5 pad", buf[2])
	}
}

func TestMemoryDiskProviderWriteReadRoundTrip(t *testing.T) {
	p := NewMemoryDiskProvider()
	p.MountImage(3, make([]byte, diskImageSize), false)

	out := make([]byte, diskSectorBytes)
	for i := range out {
		out[i] = byte(200 + i)
	}
	if err := p.WriteSector(3, 5, 10, out); err != nil {
		t.Fatalf("WriteSector: %v", err)
	}

	in := make([]byte, diskSectorBytes)
	if err := p.ReadSector(3, 5, 10, in); err != nil {
		t.Fatalf("ReadSector: %v", err)
	}
	for i := range out {
		if in[i] != out[i] {
			t.Fatalf("mismatch at %d: got 0x%02X want 0x%02X", i, in[i], out[i])
		}
	}
}

func TestMemoryDiskProviderReadOnlyRejectsWrite(t *testing.T) {
	p := NewMemoryDiskProvider()
	p.MountImage(0, make([]byte, diskImageSize), true)

	if !p.IsReadOnly(0) {
		t.Fatalf("expected drive 0 reported read-only")
	}
	if err := p.WriteSector(0, 0, 1, make([]byte, diskSectorBytes)); err == nil {
		t.Fatalf("expected error writing to read-only memory disk")
	}
}
