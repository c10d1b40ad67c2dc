package ledstrip

import (
	"errors"
	"testing"
)

func TestFakeWriter(t *testing.T) {
	f := NewFakeWriter()

	var fr Frame
	fr[0] = Color{R: 10}
	if err := f.Write(fr); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.Write(Blank); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if f.Count() != 2 {
		t.Fatalf("count: got %d, want 2", f.Count())
	}
	if f.Frames()[0] != fr {
		t.Error("first frame mismatch")
	}
	last, ok := f.Last()
	if !ok || !last.IsBlank() {
		t.Error("last frame should be blank")
	}
}

func TestFakeWriterError(t *testing.T) {
	f := NewFakeWriter()
	f.SetError(errors.New("simulated error"))

	if err := f.Write(Blank); err == nil {
		t.Error("expected error")
	}
	if f.Count() != 0 {
		t.Errorf("expected no frames recorded on error, got %d", f.Count())
	}

	f.Reset()
	if err := f.Write(Blank); err != nil {
		t.Errorf("unexpected error after reset: %v", err)
	}
	if _, ok := f.Last(); !ok {
		t.Error("expected a frame after reset")
	}
}

func TestFrameIsBlank(t *testing.T) {
	if !Blank.IsBlank() {
		t.Error("Blank should be blank")
	}
	var f Frame
	f[3] = Color{B: 1}
	if f.IsBlank() {
		t.Error("frame with a lit LED is not blank")
	}
}
