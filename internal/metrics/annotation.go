package metrics

import "time"

// AnnotationName marks the boundaries of a run.
type AnnotationName string

const (
	AnnotationStarted AnnotationName = "started"
	AnnotationEnded   AnnotationName = "ended"
)

// Annotation is a start or end marker sent alongside window snapshots.
type Annotation struct {
	Name      AnnotationName    `json:"eventName"`
	Timestamp time.Time         `json:"timestamp"`
	Tags      map[string]string `json:"tags,omitempty"`
}
