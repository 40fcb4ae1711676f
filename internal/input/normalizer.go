// Package input normalizes raw user input into ordered content segments.
package input

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"net/http"
	"strings"

	// Registered decoders determine what counts as a valid still image.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/kisansathi/orchestrator/internal/domain"
)

// ErrInvalidMedia reports image bytes that could not be decoded as a still
// image. The returned segments are still usable: the bad media is dropped
// and the turn proceeds on text alone.
var ErrInvalidMedia = errors.New("invalid media")

const imageNote = "An image is attached to this query. Use it when diagnosing crop conditions."

// Normalize converts raw user input into the canonical segment sequence.
//
// The text segment always opens with the farmer identity marker so
// downstream tools can attribute actions without re-deriving identity from
// session state. An optional pre-transcribed audio transcript is merged
// into the text segment. Validated media segments come first, then text,
// so the oracle conditions its text interpretation on the media; this
// ordering is a fixed contract.
func Normalize(userID, text, transcript string, imageBytes []byte) ([]domain.Segment, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "My farmer ID is %s.", userID)
	if text != "" {
		sb.WriteString("\n")
		sb.WriteString(text)
	}
	if transcript != "" {
		sb.WriteString("\n")
		sb.WriteString(transcript)
	}
	textSeg := domain.TextSegment(sb.String())

	if len(imageBytes) == 0 {
		return []domain.Segment{textSeg}, nil
	}

	mimeType, err := verifyImage(imageBytes)
	if err != nil {
		// Degrade gracefully: drop the image, keep the text.
		return []domain.Segment{textSeg}, fmt.Errorf("%w: %v", ErrInvalidMedia, err)
	}

	return []domain.Segment{
		domain.ImageSegment(imageBytes, mimeType),
		textSeg,
		domain.TextSegment(imageNote),
	}, nil
}

// verifyImage checks that the bytes decode as a still image and returns
// the detected MIME type. Content is sniffed from magic bytes, not trusted
// from the caller.
func verifyImage(data []byte) (string, error) {
	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		return "", fmt.Errorf("not an image (detected %s)", mimeType)
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("undecodable image: %v", err)
	}
	return mimeType, nil
}
