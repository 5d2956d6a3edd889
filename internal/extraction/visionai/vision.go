// Package visionai wraps the GCP Vision image-properties API as a color
// extractor. It is the expensive, high-latency tier next to the local pixel
// pass; the orchestrator runs both concurrently and the deduplicator merges
// their overlapping findings.
package visionai

import (
	"context"
	"fmt"
	"math"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/googleapis/gax-go/v2"

	"github.com/joshband/copy-that-sub005/internal/domain"
	"github.com/joshband/copy-that-sub005/internal/extraction"
	"github.com/joshband/copy-that-sub005/internal/platform/envutil"
	"github.com/joshband/copy-that-sub005/internal/platform/logger"
)

// Annotator is the slice of the Vision client the extractor needs; tests
// substitute a fake.
type Annotator interface {
	BatchAnnotateImages(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest, opts ...gax.CallOption) (*visionpb.BatchAnnotateImagesResponse, error)
	Close() error
}

type Extractor struct {
	log    *logger.Logger
	client Annotator

	maxColors   int
	costPerCall float64
	callTimeout time.Duration
}

// New dials the Vision API with credentials from the environment. Use
// NewWithClient to inject a fake in tests.
func New(log *logger.Logger) (*Extractor, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	client, err := vision.NewImageAnnotatorClient(context.Background(), ClientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	return NewWithClient(log, client), nil
}

func NewWithClient(log *logger.Logger, client Annotator) *Extractor {
	return &Extractor{
		log:         log.With("component", "visionai.Extractor"),
		client:      client,
		maxColors:   10,
		costPerCall: envutil.Float("VISION_COST_PER_CALL_USD", 0.0015),
		callTimeout: envutil.Duration("VISION_CALL_TIMEOUT", 30*time.Second),
	}
}

func (e *Extractor) ID() string                 { return "visionai.image_properties" }
func (e *Extractor) Category() domain.TokenType { return domain.TypeColor }

// EstimateCost is a flat per-call price: image properties is one billable
// feature regardless of artifact size.
func (e *Extractor) EstimateCost(extraction.Input) float64 { return e.costPerCall }

func (e *Extractor) Close() error {
	if e == nil || e.client == nil {
		return nil
	}
	return e.client.Close()
}

func (e *Extractor) Extract(ctx context.Context, in extraction.Input) ([]domain.Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image: &visionpb.Image{Content: in.Artifact},
			Features: []*visionpb.Feature{
				{Type: visionpb.Feature_IMAGE_PROPERTIES, MaxResults: int32(e.maxColors)},
			},
		}},
	}
	resp, err := e.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("vision BatchAnnotateImages: %w", err)
	}
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return nil, nil
	}
	r0 := resp.Responses[0]
	if r0.Error != nil && r0.Error.Message != "" {
		return nil, fmt.Errorf("vision annotate error: %s", r0.Error.Message)
	}
	props := r0.ImagePropertiesAnnotation
	if props == nil || props.DominantColors == nil {
		return nil, nil
	}

	out := make([]domain.Candidate, 0, len(props.DominantColors.Colors))
	for _, ci := range props.DominantColors.Colors {
		if ci == nil || ci.Color == nil {
			continue
		}
		out = append(out, domain.Candidate{
			Value:      hexFromProto(float64(ci.Color.Red), float64(ci.Color.Green), float64(ci.Color.Blue)),
			SourceID:   e.ID(),
			Confidence: clamp01(float64(ci.Score)),
			Weight:     clamp01(float64(ci.PixelFraction)),
			Attributes: map[string]any{"pixel_fraction": float64(ci.PixelFraction)},
		})
		if len(out) >= e.maxColors {
			break
		}
	}
	e.log.Debug("vision colors extracted", "artifact", in.Name, "candidates", len(out))
	return out, nil
}

// hexFromProto rounds the API's float channels (0..255) to #rrggbb.
func hexFromProto(r, g, b float64) string {
	return fmt.Sprintf("#%02x%02x%02x", roundChan(r), roundChan(g), roundChan(b))
}

func roundChan(v float64) uint8 {
	n := math.Round(v)
	if n < 0 {
		n = 0
	}
	if n > 255 {
		n = 255
	}
	return uint8(n)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
