package visionai

import (
	"context"
	"errors"
	"testing"

	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/googleapis/gax-go/v2"
	colorpb "google.golang.org/genproto/googleapis/type/color"

	"github.com/joshband/copy-that-sub005/internal/extraction"
	"github.com/joshband/copy-that-sub005/internal/platform/logger"
)

type fakeAnnotator struct {
	resp *visionpb.BatchAnnotateImagesResponse
	err  error
	got  *visionpb.BatchAnnotateImagesRequest
}

func (f *fakeAnnotator) BatchAnnotateImages(_ context.Context, req *visionpb.BatchAnnotateImagesRequest, _ ...gax.CallOption) (*visionpb.BatchAnnotateImagesResponse, error) {
	f.got = req
	return f.resp, f.err
}

func (f *fakeAnnotator) Close() error { return nil }

func colorResponse(colors ...*visionpb.ColorInfo) *visionpb.BatchAnnotateImagesResponse {
	return &visionpb.BatchAnnotateImagesResponse{
		Responses: []*visionpb.AnnotateImageResponse{{
			ImagePropertiesAnnotation: &visionpb.ImageProperties{
				DominantColors: &visionpb.DominantColorsAnnotation{Colors: colors},
			},
		}},
	}
}

func testInput() extraction.Input {
	return extraction.Input{Name: "screen.png", MIME: "image/png", Artifact: []byte{0x89, 0x50}}
}

func TestExtractMapsDominantColors(t *testing.T) {
	fake := &fakeAnnotator{resp: colorResponse(
		&visionpb.ColorInfo{Color: &colorpb.Color{Red: 255, Green: 87, Blue: 51}, Score: 0.82, PixelFraction: 0.4},
		&visionpb.ColorInfo{Color: &colorpb.Color{Red: 0, Green: 0, Blue: 0}, Score: 1.3, PixelFraction: 0.1},
	)}
	e := NewWithClient(logger.NewNop(), fake)

	got, err := e.Extract(context.Background(), testInput())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].Value != "#ff5733" {
		t.Fatalf("value = %q, want #ff5733", got[0].Value)
	}
	if got[0].Confidence != 0.82 || got[0].Weight != 0.4 {
		t.Fatalf("confidence/weight wrong: %+v", got[0])
	}
	// out-of-range score from the API is clamped, never rejected
	if got[1].Confidence != 1 {
		t.Fatalf("score must clamp to 1, got %v", got[1].Confidence)
	}
	if got[0].SourceID != "visionai.image_properties" {
		t.Fatalf("source id = %q", got[0].SourceID)
	}

	req := fake.got.Requests[0]
	if req.Features[0].Type != visionpb.Feature_IMAGE_PROPERTIES {
		t.Fatalf("wrong feature requested: %v", req.Features[0].Type)
	}
}

func TestExtractSurfacesAPIError(t *testing.T) {
	e := NewWithClient(logger.NewNop(), &fakeAnnotator{err: errors.New("quota exceeded")})
	if _, err := e.Extract(context.Background(), testInput()); err == nil {
		t.Fatalf("expected error from annotator")
	}
}

func TestExtractEmptyAnnotationYieldsNoCandidates(t *testing.T) {
	fake := &fakeAnnotator{resp: &visionpb.BatchAnnotateImagesResponse{
		Responses: []*visionpb.AnnotateImageResponse{{}},
	}}
	e := NewWithClient(logger.NewNop(), fake)
	got, err := e.Extract(context.Background(), testInput())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no candidates, got %+v", got)
	}
}

func TestCostIsFlatPerCall(t *testing.T) {
	e := NewWithClient(logger.NewNop(), &fakeAnnotator{})
	if c := e.EstimateCost(testInput()); c <= 0 {
		t.Fatalf("cost must be positive, got %v", c)
	}
}
