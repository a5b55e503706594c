package audio

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestRingBuffer_WriteRead(t *testing.T) {
	rb := NewRingBuffer(10)

	data := []byte{1, 2, 3, 4, 5}
	if dropped := rb.Write(data); dropped != 0 {
		t.Errorf("Expected 0 dropped bytes, got %d", dropped)
	}
	if rb.Available() != 5 {
		t.Errorf("Expected available 5, got %d", rb.Available())
	}

	out := make([]byte, 5)
	if n := rb.Read(out); n != 5 {
		t.Errorf("Expected to read 5 bytes, got %d", n)
	}
	if !bytes.Equal(out, data) {
		t.Errorf("Expected %v, got %v", data, out)
	}
	if rb.Available() != 0 {
		t.Errorf("Expected empty buffer, got %d available", rb.Available())
	}
}

func TestRingBuffer_OverflowDropsOldest(t *testing.T) {
	rb := NewRingBuffer(4)

	rb.Write([]byte{1, 2, 3, 4})
	if dropped := rb.Write([]byte{5, 6}); dropped != 2 {
		t.Errorf("Expected 2 dropped bytes, got %d", dropped)
	}

	out := make([]byte, 4)
	rb.Read(out)
	expected := []byte{3, 4, 5, 6}
	if !bytes.Equal(out, expected) {
		t.Errorf("Expected %v after overflow, got %v", expected, out)
	}
}

func TestRingBuffer_ReadShortWhenEmpty(t *testing.T) {
	rb := NewRingBuffer(8)
	rb.Write([]byte{1, 2, 3})

	out := make([]byte, 8)
	if n := rb.Read(out); n != 3 {
		t.Errorf("Expected to read 3 bytes, got %d", n)
	}
	if n := rb.Read(out); n != 0 {
		t.Errorf("Expected 0 bytes from empty buffer, got %d", n)
	}
}

func TestRingBuffer_WrapAround(t *testing.T) {
	rb := NewRingBuffer(4)
	out := make([]byte, 2)

	for i := byte(0); i < 10; i += 2 {
		rb.Write([]byte{i, i + 1})
		rb.Read(out)
		if !bytes.Equal(out, []byte{i, i + 1}) {
			t.Fatalf("Expected %v, got %v", []byte{i, i + 1}, out)
		}
	}
}

func TestRingBuffer_Reset(t *testing.T) {
	rb := NewRingBuffer(8)
	rb.Write([]byte{1, 2, 3, 4})
	rb.Reset()
	if rb.Available() != 0 {
		t.Errorf("Expected empty buffer after reset, got %d", rb.Available())
	}
}

func TestCaptureArgs(t *testing.T) {
	args := captureArgs(CaptureOptions{
		InputFormat: "alsa",
		InputDevice: "hw:0",
		SampleRate:  16000,
	})

	expectPairs := map[string]string{
		"-i":  "hw:0",
		"-ar": "16000",
		"-ac": "1",
	}
	for flag, want := range expectPairs {
		found := false
		for i, a := range args {
			if a == flag && i+1 < len(args) && args[i+1] == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expected %s %s in args %v", flag, want, args)
		}
	}
	if args[len(args)-1] != "-" {
		t.Errorf("Expected output to stdout, got %q", args[len(args)-1])
	}
}

func TestCaptureChunkSize(t *testing.T) {
	c := NewCapture(CaptureOptions{SampleRate: 16000}, testLogger())
	// 100ms of 16-bit mono at 16kHz.
	if c.chunkSize != 3200 {
		t.Errorf("Expected chunk size 3200, got %d", c.chunkSize)
	}
}
