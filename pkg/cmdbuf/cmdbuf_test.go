//go:build unit

package cmdbuf

import (
	"errors"
	"testing"
)

func TestNewBufferIsEmpty(t *testing.T) {
	b := New()
	if b.Len() != 0 {
		t.Errorf("Len() = %d, expected 0", b.Len())
	}
	if b.Cap() != 0 {
		t.Errorf("Cap() = %d, expected 0", b.Cap())
	}
	if b.Attached() {
		t.Error("new buffer should not be attached")
	}
}

func TestEnsureCapacityGrows(t *testing.T) {
	b := New()
	if err := b.EnsureCapacity(16); err != nil {
		t.Fatalf("EnsureCapacity failed: %v", err)
	}
	if b.Cap() != 16 {
		t.Errorf("Cap() = %d, expected 16", b.Cap())
	}
}

func TestEnsureCapacityNoOpKeepsCursor(t *testing.T) {
	b := New()
	if err := b.EnsureCapacity(16); err != nil {
		t.Fatalf("EnsureCapacity failed: %v", err)
	}
	b.Emit(0x11111111)
	b.Emit(0x22222222)

	if err := b.EnsureCapacity(8); err != nil {
		t.Fatalf("smaller EnsureCapacity failed: %v", err)
	}
	if b.Len() != 2 {
		t.Errorf("Len() = %d after no-op ensure, expected 2", b.Len())
	}
	if b.Words()[1] != 0x22222222 {
		t.Error("no-op ensure lost contents")
	}
}

func TestClearZeroesWholeStore(t *testing.T) {
	b := New()
	if err := b.EnsureCapacity(8); err != nil {
		t.Fatalf("EnsureCapacity failed: %v", err)
	}
	b.EmitRepeat(0xdeadbeaf, 8)
	b.Reset()
	b.Emit(0x12345678)

	b.Clear()
	if b.Len() != 0 {
		t.Errorf("Len() = %d after Clear, expected 0", b.Len())
	}
	for i, w := range b.words {
		if w != 0 {
			t.Fatalf("word %d = %#x after Clear, expected 0", i, w)
		}
	}
}

func TestClearZeroesAttachedMemory(t *testing.T) {
	backing := []uint32{1, 2, 3, 4}
	b := New()
	if err := b.Attach(backing); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	b.Clear()
	for i, w := range backing {
		if w != 0 {
			t.Errorf("caller word %d = %#x after Clear, expected 0", i, w)
		}
	}
	if !b.Attached() {
		t.Error("Clear dropped the attachment")
	}
}

func TestEnsureCapacityGrowthResetsCursor(t *testing.T) {
	b := New()
	if err := b.EnsureCapacity(4); err != nil {
		t.Fatalf("EnsureCapacity failed: %v", err)
	}
	b.Emit(0xdeadbeaf)

	if err := b.EnsureCapacity(64); err != nil {
		t.Fatalf("growing EnsureCapacity failed: %v", err)
	}
	if b.Len() != 0 {
		t.Errorf("Len() = %d after growth, expected 0", b.Len())
	}
	if b.Cap() != 64 {
		t.Errorf("Cap() = %d, expected 64", b.Cap())
	}
}

func TestAttachWritesThroughToCallerMemory(t *testing.T) {
	backing := make([]uint32, 8)
	b := New()
	if err := b.Attach(backing); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	if !b.Attached() {
		t.Error("buffer should report attached")
	}

	b.Emit(0xffff1000)
	b.Emit(0xffff1000)

	if backing[0] != 0xffff1000 || backing[1] != 0xffff1000 {
		t.Errorf("caller memory = %#x %#x, expected emitted words", backing[0], backing[1])
	}
}

func TestAttachOverAttachedFails(t *testing.T) {
	b := New()
	if err := b.Attach(make([]uint32, 4)); err != nil {
		t.Fatalf("first Attach failed: %v", err)
	}

	err := b.Attach(make([]uint32, 4))
	if !errors.Is(err, ErrAlreadyBound) {
		t.Errorf("second Attach = %v, expected ErrAlreadyBound", err)
	}
}

func TestAttachOverOwnedDropsOwned(t *testing.T) {
	b := New()
	if err := b.EnsureCapacity(4); err != nil {
		t.Fatalf("EnsureCapacity failed: %v", err)
	}
	b.Emit(1)

	backing := make([]uint32, 2)
	if err := b.Attach(backing); err != nil {
		t.Fatalf("Attach over owned failed: %v", err)
	}
	if b.Len() != 0 {
		t.Errorf("Len() = %d after attach, expected 0", b.Len())
	}
	if b.Cap() != 2 {
		t.Errorf("Cap() = %d, expected caller capacity 2", b.Cap())
	}
}

func TestEnsureCapacityRefusesGrowingAttached(t *testing.T) {
	backing := make([]uint32, 4)
	b := New()
	if err := b.Attach(backing); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	b.Emit(0xaaaaaaaa)

	err := b.EnsureCapacity(8)
	if !errors.Is(err, ErrAlreadyBound) {
		t.Errorf("growth of attached buffer = %v, expected ErrAlreadyBound", err)
	}

	// The binding and caller memory must be untouched.
	if !b.Attached() {
		t.Error("failed growth must not detach")
	}
	if backing[0] != 0xaaaaaaaa {
		t.Error("failed growth must not clobber caller memory")
	}

	// Requests within the caller capacity stay fine.
	if err := b.EnsureCapacity(4); err != nil {
		t.Errorf("in-capacity ensure on attached buffer failed: %v", err)
	}
}

func TestEmitSequence(t *testing.T) {
	b := New()
	if err := b.EnsureCapacity(8); err != nil {
		t.Fatalf("EnsureCapacity failed: %v", err)
	}

	b.Emit(0xc0032200)
	b.Emit(0x00000500)
	b.Emit(0x12345678)

	words := b.Words()
	if len(words) != 3 {
		t.Fatalf("Words() length = %d, expected 3", len(words))
	}
	expected := []uint32{0xc0032200, 0x00000500, 0x12345678}
	for i, w := range expected {
		if words[i] != w {
			t.Errorf("words[%d] = %#x, expected %#x", i, words[i], w)
		}
	}
}

func TestEmitAligned(t *testing.T) {
	b := New()
	if err := b.EnsureCapacity(32); err != nil {
		t.Fatalf("EnsureCapacity failed: %v", err)
	}
	b.Emit(1)

	b.EmitAligned(7, 0x80000000)
	if b.Len() != 8 {
		t.Errorf("Len() = %d after aligning to 8, expected 8", b.Len())
	}
	for i := 1; i < 8; i++ {
		if b.Words()[i] != 0x80000000 {
			t.Errorf("pad word %d = %#x, expected nop", i, b.Words()[i])
		}
	}

	// Already aligned emits nothing.
	b.EmitAligned(7, 0x80000000)
	if b.Len() != 8 {
		t.Errorf("Len() = %d after aligned align, expected 8", b.Len())
	}
}

func TestEmitRepeat(t *testing.T) {
	b := New()
	if err := b.EnsureCapacity(16); err != nil {
		t.Fatalf("EnsureCapacity failed: %v", err)
	}

	b.EmitRepeat(0xffff1000, 16)
	if b.Len() != 16 {
		t.Errorf("Len() = %d, expected 16", b.Len())
	}
	for i, w := range b.Words() {
		if w != 0xffff1000 {
			t.Errorf("words[%d] = %#x, expected nop", i, w)
		}
	}
}

func TestEmitAtOffsetDoesNotAdvance(t *testing.T) {
	b := New()
	if err := b.EnsureCapacity(8); err != nil {
		t.Fatalf("EnsureCapacity failed: %v", err)
	}
	b.Emit(0x11111111)

	b.EmitAtOffset(0x99999999, 2)
	if b.Len() != 1 {
		t.Errorf("Len() = %d after patch, expected 1", b.Len())
	}

	// The patched word sits past the cursor; emit over the gap to see it.
	b.Emit(0x22222222)
	b.Emit(0x33333333)
	if b.Words()[3-1] != 0x33333333 {
		t.Errorf("emit after patch misplaced: %#x", b.Words()[2])
	}

	full := b.words[:4]
	if full[3] != 0x99999999 {
		t.Errorf("patched word = %#x, expected 0x99999999", full[3])
	}
}

func TestEmitBuf(t *testing.T) {
	b := New()
	if err := b.EnsureCapacity(8); err != nil {
		t.Fatalf("EnsureCapacity failed: %v", err)
	}
	b.Emit(0xaaaaaaaa)

	blob := []byte{0x78, 0x56, 0x34, 0x12, 0xf0, 0xde, 0xbc, 0x9a}
	b.EmitBuf(blob, 4, 8)

	if b.Len() != 1+1+2 {
		t.Errorf("Len() = %d, expected 4 (one word, one gap, two copied)", b.Len())
	}
	words := b.Words()
	if words[2] != 0x12345678 {
		t.Errorf("words[2] = %#x, expected little-endian 0x12345678", words[2])
	}
	if words[3] != 0x9abcdef0 {
		t.Errorf("words[3] = %#x, expected little-endian 0x9abcdef0", words[3])
	}
}

func TestEmitBufZeroOffset(t *testing.T) {
	b := New()
	if err := b.EnsureCapacity(4); err != nil {
		t.Fatalf("EnsureCapacity failed: %v", err)
	}

	blob := []byte{0x01, 0x00, 0x00, 0x00}
	b.EmitBuf(blob, 0, 4)
	if b.Len() != 1 || b.Words()[0] != 1 {
		t.Errorf("blob copy at offset 0 wrote %v", b.Words())
	}
}

func TestResetKeepsBackingStore(t *testing.T) {
	b := New()
	if err := b.EnsureCapacity(8); err != nil {
		t.Fatalf("EnsureCapacity failed: %v", err)
	}
	b.Emit(1)
	b.Emit(2)

	b.Reset()
	if b.Len() != 0 {
		t.Errorf("Len() = %d after reset, expected 0", b.Len())
	}
	if b.Cap() != 8 {
		t.Errorf("Cap() = %d after reset, expected 8", b.Cap())
	}

	b.Emit(3)
	if b.Words()[0] != 3 {
		t.Error("emit after reset did not start at word 0")
	}
}

func mustPanic(t *testing.T, name string, f func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s did not panic", name)
		}
	}()
	f()
}

func TestBoundsViolationsPanic(t *testing.T) {
	t.Run("emit past capacity", func(t *testing.T) {
		b := New()
		if err := b.EnsureCapacity(1); err != nil {
			t.Fatalf("EnsureCapacity failed: %v", err)
		}
		b.Emit(1)
		mustPanic(t, "Emit", func() { b.Emit(2) })
	})

	t.Run("emit with no capacity", func(t *testing.T) {
		b := New()
		mustPanic(t, "Emit", func() { b.Emit(1) })
	})

	t.Run("patch past capacity", func(t *testing.T) {
		b := New()
		if err := b.EnsureCapacity(2); err != nil {
			t.Fatalf("EnsureCapacity failed: %v", err)
		}
		mustPanic(t, "EmitAtOffset", func() { b.EmitAtOffset(1, 2) })
	})

	t.Run("negative patch offset", func(t *testing.T) {
		b := New()
		if err := b.EnsureCapacity(2); err != nil {
			t.Fatalf("EnsureCapacity failed: %v", err)
		}
		mustPanic(t, "EmitAtOffset", func() { b.EmitAtOffset(1, -1) })
	})

	t.Run("unaligned blob offset", func(t *testing.T) {
		b := New()
		if err := b.EnsureCapacity(4); err != nil {
			t.Fatalf("EnsureCapacity failed: %v", err)
		}
		mustPanic(t, "EmitBuf", func() { b.EmitBuf(make([]byte, 8), 2, 4) })
	})

	t.Run("unaligned blob size", func(t *testing.T) {
		b := New()
		if err := b.EnsureCapacity(4); err != nil {
			t.Fatalf("EnsureCapacity failed: %v", err)
		}
		mustPanic(t, "EmitBuf", func() { b.EmitBuf(make([]byte, 8), 0, 6) })
	})

	t.Run("blob past capacity", func(t *testing.T) {
		b := New()
		if err := b.EnsureCapacity(1); err != nil {
			t.Fatalf("EnsureCapacity failed: %v", err)
		}
		mustPanic(t, "EmitBuf", func() { b.EmitBuf(make([]byte, 8), 0, 8) })
	})

	t.Run("negative capacity request", func(t *testing.T) {
		b := New()
		mustPanic(t, "EnsureCapacity", func() { _ = b.EnsureCapacity(-1) })
	})
}
