// Package pixels holds the local CV extractors: pure pixel work over the
// decoded artifact, no network.
package pixels

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"sort"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"

	"github.com/joshband/copy-that-sub005/internal/domain"
	"github.com/joshband/copy-that-sub005/internal/extraction"
	"github.com/joshband/copy-that-sub005/internal/platform/logger"
)

// ColorHistogram extracts dominant colors by quantized histogram over a
// downscaled copy of the artifact. Coverage (pixel fraction) feeds both the
// candidate weight and the confidence heuristic.
type ColorHistogram struct {
	log *logger.Logger

	// MaxColors caps emitted candidates; MinCoverage drops noise bins.
	MaxColors   int
	MinCoverage float64

	scaleTo int
}

func NewColorHistogram(log *logger.Logger) *ColorHistogram {
	return &ColorHistogram{
		log:         log.With("component", "pixels.ColorHistogram"),
		MaxColors:   8,
		MinCoverage: 0.02,
		scaleTo:     96,
	}
}

func (e *ColorHistogram) ID() string                 { return "pixels.color_histogram" }
func (e *ColorHistogram) Category() domain.TokenType { return domain.TypeColor }

func (e *ColorHistogram) Extract(ctx context.Context, in extraction.Input) ([]domain.Candidate, error) {
	img, _, err := image.Decode(bytes.NewReader(in.Artifact))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", in.Name, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scaled := e.downscale(img)
	bins := map[uint32]*bin{}
	bounds := scaled.Bounds()
	total := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := scaled.At(x, y).RGBA()
			if a < 0x8000 {
				continue // transparent pixels are not design colors
			}
			r8, g8, b8 := uint8(r>>8), uint8(g>>8), uint8(b>>8)
			key := quantKey(r8, g8, b8)
			bn := bins[key]
			if bn == nil {
				bn = &bin{}
				bins[key] = bn
			}
			bn.count++
			bn.r += uint64(r8)
			bn.g += uint64(g8)
			bn.b += uint64(b8)
			total++
		}
	}
	if total == 0 {
		return nil, nil
	}

	ordered := make([]*bin, 0, len(bins))
	for _, bn := range bins {
		ordered = append(ordered, bn)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].count > ordered[j].count })

	out := []domain.Candidate{}
	for _, bn := range ordered {
		if len(out) >= e.MaxColors {
			break
		}
		coverage := float64(bn.count) / float64(total)
		if coverage < e.MinCoverage {
			break
		}
		n := uint64(bn.count)
		value := fmt.Sprintf("#%02x%02x%02x", uint8(bn.r/n), uint8(bn.g/n), uint8(bn.b/n))
		out = append(out, domain.Candidate{
			Value:      value,
			SourceID:   e.ID(),
			Confidence: colorConfidence(coverage),
			Weight:     coverage,
			Attributes: map[string]any{"pixel_coverage": coverage},
		})
	}
	e.log.Debug("color histogram extracted", "artifact", in.Name, "candidates", len(out))
	return out, nil
}

type bin struct {
	count   int
	r, g, b uint64
}

// quantKey buckets each channel to 5 bits, merging near-identical shades
// before the perceptual pass in the deduplicator.
func quantKey(r, g, b uint8) uint32 {
	return uint32(r>>3)<<10 | uint32(g>>3)<<5 | uint32(b>>3)
}

func (e *ColorHistogram) downscale(img image.Image) image.Image {
	b := img.Bounds()
	if b.Dx() <= e.scaleTo && b.Dy() <= e.scaleTo {
		return img
	}
	w, h := b.Dx(), b.Dy()
	if w >= h {
		h = h * e.scaleTo / w
		w = e.scaleTo
	} else {
		w = w * e.scaleTo / h
		h = e.scaleTo
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// colorConfidence maps coverage to [0.5, 0.95]: even a small but real
// region is a usable signal, a dominant fill is near certain.
func colorConfidence(coverage float64) float64 {
	c := 0.5 + coverage
	if c > 0.95 {
		c = 0.95
	}
	return c
}
