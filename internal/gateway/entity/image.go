package entity

import "time"

// ImageStatus tracks an uploaded or generated asset through the vision
// pipeline. Analyzed is sticky: an image never transitions backward out of
// it. Rejected and Error are terminal.
type ImageStatus string

const (
	ImageUploading ImageStatus = "uploading"
	ImageUploaded  ImageStatus = "uploaded"
	ImageAnalyzing ImageStatus = "analyzing"
	ImageAnalyzed  ImageStatus = "analyzed"
	ImageRejected  ImageStatus = "rejected"
	ImageError     ImageStatus = "error"
)

// ImageRole distinguishes user uploads from pipeline-generated test images.
type ImageRole string

const (
	ImageRoleUser      ImageRole = "user"
	ImageRoleGenerated ImageRole = "generated"
)

// Image is one stored asset belonging to a session.
type Image struct {
	ID        int64
	SessionID SessionID
	Path      string // object-storage key
	MIME      string
	Size      int64
	SHA256    string
	Role      ImageRole
	Status    ImageStatus
	CreatedAt time.Time
}

// VisualGuide is the structured imagery ruleset derived from vision
// analysis. At most one per session; writes are upserts and all-or-nothing.
type VisualGuide struct {
	SessionID      SessionID
	StyleDirection string
	Palette        []string
	Imagery        []string
	ProducerNotes  string
	Summary        string // markdown summary shown to the user
	UpdatedAt      time.Time
}
