package pipeline

import "brandkit/internal/gateway/entity"

// imageTransitions is the allowed status graph for session images.
// Analyzed never transitions backward; rejected and error are terminal.
// analyzed -> analyzing covers explicit re-analysis, which is idempotent
// rather than an error.
var imageTransitions = map[entity.ImageStatus][]entity.ImageStatus{
	entity.ImageUploading: {entity.ImageUploaded, entity.ImageError},
	entity.ImageUploaded:  {entity.ImageAnalyzing, entity.ImageAnalyzed, entity.ImageRejected, entity.ImageError},
	entity.ImageAnalyzing: {entity.ImageAnalyzed, entity.ImageError},
	entity.ImageAnalyzed:  {entity.ImageAnalyzing, entity.ImageAnalyzed},
	entity.ImageRejected:  {},
	entity.ImageError:     {},
}

// ValidImageTransition reports whether from -> to is an allowed move.
func ValidImageTransition(from, to entity.ImageStatus) bool {
	for _, next := range imageTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AnalysisBatch selects the images eligible for a vision pass. The default
// batch is the session's uploaded images; with reanalyze set, already
// analyzed images are included again. Rejected and error images are always
// excluded. An empty batch is a validation fault: there is nothing to
// analyze.
func AnalysisBatch(images []entity.Image, reanalyze bool) ([]entity.Image, error) {
	var batch []entity.Image
	for _, img := range images {
		switch img.Status {
		case entity.ImageUploaded:
			batch = append(batch, img)
		case entity.ImageAnalyzed:
			if reanalyze {
				batch = append(batch, img)
			}
		}
	}
	if len(batch) == 0 {
		return nil, faultf(KindValidation, "no images eligible for analysis")
	}
	return batch, nil
}
