package pipeline

import (
	"testing"

	"brandkit/internal/gateway/entity"
)

func TestValidImageTransition(t *testing.T) {
	allowed := [][2]entity.ImageStatus{
		{entity.ImageUploading, entity.ImageUploaded},
		{entity.ImageUploaded, entity.ImageAnalyzing},
		{entity.ImageUploaded, entity.ImageAnalyzed},
		{entity.ImageUploaded, entity.ImageRejected},
		{entity.ImageAnalyzing, entity.ImageAnalyzed},
		{entity.ImageAnalyzed, entity.ImageAnalyzing},
		{entity.ImageAnalyzed, entity.ImageAnalyzed},
	}
	for _, tc := range allowed {
		if !ValidImageTransition(tc[0], tc[1]) {
			t.Fatalf("%s -> %s should be allowed", tc[0], tc[1])
		}
	}

	forbidden := [][2]entity.ImageStatus{
		{entity.ImageAnalyzed, entity.ImageUploaded},
		{entity.ImageAnalyzed, entity.ImageRejected},
		{entity.ImageRejected, entity.ImageUploaded},
		{entity.ImageError, entity.ImageAnalyzing},
		{entity.ImageUploading, entity.ImageAnalyzed},
	}
	for _, tc := range forbidden {
		if ValidImageTransition(tc[0], tc[1]) {
			t.Fatalf("%s -> %s must be forbidden", tc[0], tc[1])
		}
	}
}

func TestAnalysisBatch(t *testing.T) {
	imgs := []entity.Image{
		{ID: 1, Status: entity.ImageUploaded},
		{ID: 2, Status: entity.ImageAnalyzed},
		{ID: 3, Status: entity.ImageRejected},
		{ID: 4, Status: entity.ImageError},
		{ID: 5, Status: entity.ImageUploading},
	}

	batch, err := AnalysisBatch(imgs, false)
	if err != nil {
		t.Fatalf("AnalysisBatch: %v", err)
	}
	if len(batch) != 1 || batch[0].ID != 1 {
		t.Fatalf("default batch = %v", batch)
	}

	batch, err = AnalysisBatch(imgs, true)
	if err != nil {
		t.Fatalf("AnalysisBatch reanalyze: %v", err)
	}
	if len(batch) != 2 || batch[0].ID != 1 || batch[1].ID != 2 {
		t.Fatalf("reanalyze batch = %v", batch)
	}

	if _, err := AnalysisBatch(nil, false); KindOf(err) != KindValidation {
		t.Fatalf("empty batch must be a validation fault, got %v", err)
	}
	if _, err := AnalysisBatch([]entity.Image{{Status: entity.ImageRejected}}, true); KindOf(err) != KindValidation {
		t.Fatalf("all-terminal batch must be a validation fault, got %v", err)
	}
}
