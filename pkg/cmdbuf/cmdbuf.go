// Package cmdbuf accumulates 32-bit command words for GPU indirect
// buffers. A Buffer either owns its backing store or is attached to
// caller-provided memory, typically a mapped indirect buffer; the two
// modes differ only in who controls the memory's lifetime.
package cmdbuf

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrAlreadyBound is returned when an operation would replace or discard
// an attached caller buffer.
var ErrAlreadyBound = errors.New("cmdbuf: buffer already attached")

// Buffer is a bounds-checked accumulator of command words. Capacity and
// alignment violations are programmer errors and panic; only binding
// conflicts surface as errors.
type Buffer struct {
	words    []uint32
	cdw      int
	attached bool
}

// New returns an empty Buffer. It has no capacity until EnsureCapacity
// or Attach provides one.
func New() *Buffer {
	return &Buffer{}
}

// EnsureCapacity makes room for at least the given number of words in an
// owned backing store. Growing replaces the store and resets the write
// cursor; contents are not carried over. If enough capacity already
// exists this is a no-op and the cursor stays put. An attached buffer is
// never grown: the caller owns that memory, so a request beyond its
// capacity fails with ErrAlreadyBound.
func (b *Buffer) EnsureCapacity(words int) error {
	if words < 0 {
		panic(fmt.Sprintf("cmdbuf: negative capacity request %d", words))
	}
	if words <= len(b.words) {
		return nil
	}
	if b.attached {
		return fmt.Errorf("cmdbuf: cannot grow %d-word attached buffer to %d words: %w",
			len(b.words), words, ErrAlreadyBound)
	}
	b.words = make([]uint32, words)
	b.cdw = 0
	return nil
}

// Attach binds the Buffer to caller-owned memory and resets the write
// cursor. Emitted words land directly in that memory. Attaching over an
// existing attachment fails with ErrAlreadyBound; an owned backing store
// is simply dropped.
func (b *Buffer) Attach(words []uint32) error {
	if b.attached {
		return ErrAlreadyBound
	}
	b.words = words
	b.cdw = 0
	b.attached = true
	return nil
}

// Emit appends one command word.
func (b *Buffer) Emit(v uint32) {
	if b.cdw >= len(b.words) {
		panic(fmt.Sprintf("cmdbuf: emit beyond capacity (cdw=%d cap=%d)", b.cdw, len(b.words)))
	}
	b.words[b.cdw] = v
	b.cdw++
}

// EmitAligned emits the fill word until the cursor has no mask bits set.
func (b *Buffer) EmitAligned(mask, fill uint32) {
	for uint32(b.cdw)&mask != 0 {
		b.Emit(fill)
	}
}

// EmitRepeat emits the word count times.
func (b *Buffer) EmitRepeat(v uint32, count int) {
	for i := 0; i < count; i++ {
		b.Emit(v)
	}
}

// EmitAtOffset writes a word at the given dword offset past the cursor
// without advancing it.
func (b *Buffer) EmitAtOffset(v uint32, offsetDwords int) {
	pos := b.cdw + offsetDwords
	if offsetDwords < 0 || pos >= len(b.words) {
		panic(fmt.Sprintf("cmdbuf: patch beyond capacity (cdw=%d offset=%d cap=%d)",
			b.cdw, offsetDwords, len(b.words)))
	}
	b.words[pos] = v
}

// EmitBuf copies a raw little-endian word blob into the stream at a byte
// offset past the cursor, then advances the cursor over both the gap and
// the blob. Offset and size must be multiples of four bytes.
func (b *Buffer) EmitBuf(p []byte, offsetBytes, sizeBytes int) {
	if offsetBytes%4 != 0 || sizeBytes%4 != 0 {
		panic(fmt.Sprintf("cmdbuf: unaligned blob copy (offset=%d size=%d)", offsetBytes, sizeBytes))
	}
	if sizeBytes > len(p) {
		panic(fmt.Sprintf("cmdbuf: blob copy of %d bytes from %d-byte source", sizeBytes, len(p)))
	}
	offsetDwords := offsetBytes / 4
	sizeDwords := sizeBytes / 4
	if b.cdw+offsetDwords+sizeDwords > len(b.words) {
		panic(fmt.Sprintf("cmdbuf: blob copy beyond capacity (cdw=%d offset=%d size=%d cap=%d)",
			b.cdw, offsetDwords, sizeDwords, len(b.words)))
	}
	for i := 0; i < sizeDwords; i++ {
		b.words[b.cdw+offsetDwords+i] = binary.LittleEndian.Uint32(p[i*4:])
	}
	b.cdw += offsetDwords + sizeDwords
}

// Reset rewinds the write cursor, keeping the backing store and binding.
func (b *Buffer) Reset() {
	b.cdw = 0
}

// Clear zeroes the whole backing store, including words past the
// cursor, and rewinds the cursor. Encoders use it when trailing
// garbage in the buffer must not reach the hardware.
func (b *Buffer) Clear() {
	for i := range b.words {
		b.words[i] = 0
	}
	b.cdw = 0
}

// Len returns the number of words emitted so far.
func (b *Buffer) Len() int {
	return b.cdw
}

// Cap returns the word capacity of the backing store.
func (b *Buffer) Cap() int {
	return len(b.words)
}

// Words returns the emitted prefix of the backing store. The slice
// aliases the store; it is valid until the next growth or attach.
func (b *Buffer) Words() []uint32 {
	return b.words[:b.cdw]
}

// Attached reports whether the Buffer writes into caller-owned memory.
func (b *Buffer) Attached() bool {
	return b.attached
}
