package ingestion

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pulseops-lab/pulseops/internal/bus"
)

// Batch bounds for POST /events/batch.
const (
	MinBatchSize = 1
	MaxBatchSize = 1000
)

// Ingestion kinds reported to the Recorder.
const (
	KindSingle = "single"
	KindBatch  = "batch"
)

// Recorder receives ingestion measurements.
type Recorder interface {
	EventsIngested(kind string, n int)
	IngestionDuration(kind string, d time.Duration)
	IngestionError(kind, reason string)
}

type nopRecorder struct{}

func (nopRecorder) EventsIngested(string, int)              {}
func (nopRecorder) IngestionDuration(string, time.Duration) {}
func (nopRecorder) IngestionError(string, string)           {}

type Service struct {
	publisher        bus.Publisher
	maxBodySizeBytes int
	recorder         Recorder
	now              func() time.Time
}

func NewService(pub bus.Publisher, maxBodySizeMB int) *Service {
	if pub == nil {
		panic("ingestion: publisher must not be nil")
	}
	if maxBodySizeMB <= 0 {
		maxBodySizeMB = 1 // default to 1MB
	}
	return &Service{
		publisher:        pub,
		maxBodySizeBytes: maxBodySizeMB * 1024 * 1024,
		recorder:         nopRecorder{},
		now:              time.Now,
	}
}

// SetRecorder installs the metrics sink. Call before serving traffic.
func (s *Service) SetRecorder(r Recorder) {
	if r == nil {
		r = nopRecorder{}
	}
	s.recorder = r
}

// RegisterRoutes registers the ingestion routes on an authenticated group.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.POST("/events", s.IngestHandler)
	r.POST("/events/batch", s.IngestBatchHandler)
}
