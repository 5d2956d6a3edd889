package pixels

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"sort"

	"github.com/joshband/copy-that-sub005/internal/domain"
	"github.com/joshband/copy-that-sub005/internal/extraction"
	"github.com/joshband/copy-that-sub005/internal/platform/logger"
)

// DimensionScan derives spacing candidates from edge runs: it walks rows and
// columns of the greyscale image, records distances between luminance edges,
// and emits the recurring distances as pixel dimensions. A spacing that shows
// up once is layout noise; one that shows up across many scan lines is a
// grid step.
type DimensionScan struct {
	log *logger.Logger

	// EdgeDelta is the minimum luminance jump (0..255) treated as an edge.
	EdgeDelta int
	// MinSupport is the fraction of scan lines a spacing must appear on.
	MinSupport float64
	// MaxDimensions caps emitted candidates.
	MaxDimensions int
}

func NewDimensionScan(log *logger.Logger) *DimensionScan {
	return &DimensionScan{
		log:           log.With("component", "pixels.DimensionScan"),
		EdgeDelta:     32,
		MinSupport:    0.25,
		MaxDimensions: 6,
	}
}

func (e *DimensionScan) ID() string                 { return "pixels.dimension_scan" }
func (e *DimensionScan) Category() domain.TokenType { return domain.TypeDimension }

func (e *DimensionScan) Extract(ctx context.Context, in extraction.Input) ([]domain.Candidate, error) {
	img, _, err := image.Decode(bytes.NewReader(in.Artifact))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", in.Name, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	grey := toGrey(img)
	b := grey.Bounds()

	// spacing -> number of scan lines it occurred on
	rowHits := map[int]int{}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		line := func(i int) int { return int(grey.GrayAt(b.Min.X+i, y).Y) }
		for _, gap := range edgeGaps(line, b.Dx(), e.EdgeDelta) {
			rowHits[gap]++
		}
	}
	colHits := map[int]int{}
	for x := b.Min.X; x < b.Max.X; x++ {
		line := func(i int) int { return int(grey.GrayAt(x, b.Min.Y+i).Y) }
		for _, gap := range edgeGaps(line, b.Dy(), e.EdgeDelta) {
			colHits[gap]++
		}
	}

	type spacing struct {
		px      int
		support float64
	}
	found := []spacing{}
	for px, hits := range rowHits {
		if s := float64(hits) / float64(b.Dy()); s >= e.MinSupport {
			found = append(found, spacing{px, s})
		}
	}
	for px, hits := range colHits {
		if s := float64(hits) / float64(b.Dx()); s >= e.MinSupport {
			found = append(found, spacing{px, s})
		}
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].support != found[j].support {
			return found[i].support > found[j].support
		}
		return found[i].px < found[j].px
	})

	out := []domain.Candidate{}
	seen := map[int]bool{}
	for _, sp := range found {
		if len(out) >= e.MaxDimensions {
			break
		}
		if seen[sp.px] {
			continue
		}
		seen[sp.px] = true
		conf := 0.4 + 0.5*sp.support
		if conf > 0.9 {
			conf = 0.9
		}
		out = append(out, domain.Candidate{
			Value:      fmt.Sprintf("%dpx", sp.px),
			SourceID:   e.ID(),
			Confidence: conf,
			Weight:     sp.support,
			Attributes: map[string]any{"scanline_support": sp.support},
		})
	}
	e.log.Debug("dimension scan extracted", "artifact", in.Name, "candidates", len(out))
	return out, nil
}

// edgeGaps returns the distances between consecutive luminance edges along a
// single scan line. Sub-4px gaps are anti-aliasing artifacts and dropped.
func edgeGaps(at func(int) int, n, delta int) []int {
	gaps := []int{}
	last := -1
	for i := 1; i < n; i++ {
		d := at(i) - at(i-1)
		if d < 0 {
			d = -d
		}
		if d < delta {
			continue
		}
		if last >= 0 {
			if gap := i - last; gap >= 4 {
				gaps = append(gaps, gap)
			}
		}
		last = i
	}
	return gaps
}

func toGrey(img image.Image) *image.Gray {
	b := img.Bounds()
	grey := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			grey.Set(x, y, img.At(x, y))
		}
	}
	return grey
}
