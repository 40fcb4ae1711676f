package input

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"strings"
	"testing"

	"github.com/kisansathi/orchestrator/internal/domain"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestNormalizeTextOnly(t *testing.T) {
	segs, err := Normalize("f42", "when should I sow wheat?", "", nil)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(segs) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segs))
	}
	if segs[0].Kind != domain.SegmentText {
		t.Fatalf("expected text segment, got %s", segs[0].Kind)
	}
	if !strings.HasPrefix(segs[0].Text, "My farmer ID is f42.") {
		t.Errorf("missing farmer identity marker: %q", segs[0].Text)
	}
	if !strings.Contains(segs[0].Text, "when should I sow wheat?") {
		t.Errorf("missing query text: %q", segs[0].Text)
	}
}

func TestNormalizeMergesTranscript(t *testing.T) {
	segs, err := Normalize("f42", "", "mera gehu kharab ho raha hai", nil)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if !strings.Contains(segs[0].Text, "mera gehu kharab ho raha hai") {
		t.Errorf("transcript not merged: %q", segs[0].Text)
	}
}

func TestNormalizeOrdersMediaBeforeText(t *testing.T) {
	segs, err := Normalize("f42", "what is wrong with my tomato?", "", pngBytes(t))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(segs) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segs))
	}
	if segs[0].Kind != domain.SegmentImage {
		t.Errorf("first segment should be the image, got %s", segs[0].Kind)
	}
	if segs[0].MIMEType != "image/png" {
		t.Errorf("expected image/png, got %s", segs[0].MIMEType)
	}
	if segs[1].Kind != domain.SegmentText || segs[2].Kind != domain.SegmentText {
		t.Errorf("text segments should follow the media segment")
	}
	if !strings.Contains(segs[2].Text, "image is attached") {
		t.Errorf("missing image instruction note: %q", segs[2].Text)
	}
}

func TestNormalizeDropsUndecodableImage(t *testing.T) {
	segs, err := Normalize("f42", "diagnose this", "", []byte("definitely not an image"))
	if !errors.Is(err, ErrInvalidMedia) {
		t.Fatalf("expected ErrInvalidMedia, got %v", err)
	}
	if len(segs) != 1 {
		t.Fatalf("expected 1 segment after dropping media, got %d", len(segs))
	}
	if segs[0].Kind != domain.SegmentText {
		t.Errorf("surviving segment should be text, got %s", segs[0].Kind)
	}
}

func TestNormalizeDropsTruncatedImage(t *testing.T) {
	data := pngBytes(t)[:8] // magic bytes only
	segs, err := Normalize("f42", "diagnose this", "", data)
	if !errors.Is(err, ErrInvalidMedia) {
		t.Fatalf("expected ErrInvalidMedia, got %v", err)
	}
	for _, s := range segs {
		if s.Kind == domain.SegmentImage {
			t.Fatalf("image segment should have been dropped")
		}
	}
}
