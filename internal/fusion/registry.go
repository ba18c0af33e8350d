package fusion

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gaitworks/flexion/internal/align"
	"github.com/gaitworks/flexion/internal/imu"
	"github.com/gaitworks/flexion/internal/pose"
)

// ErrSessionNotFound is returned for lookups of unknown or torn-down
// sessions.
var ErrSessionNotFound = errors.New("fusion: session not found")

// Session holds the accumulated inputs and results for one capture. All
// methods are safe for concurrent use; the live ingest path and the HTTP
// handlers share a session.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu      sync.Mutex
	cfg     FilterConfig
	fps     float64
	frames  []pose.Frame
	vision  map[pose.JointID][]pose.AngleSample
	imu     []imu.Sample
	align   *align.Result
	fused   map[pose.JointID][]FrameAngle
	metrics []pose.FrameMetrics
	summary *pose.SessionSummary
}

// FPS returns the frame rate the session's vision series was built at.
func (s *Session) FPS() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fps
}

// SetVision stores the per-joint angle series, replacing any previous
// upload, and clears stale fusion results.
func (s *Session) SetVision(series map[pose.JointID][]pose.AngleSample, fps float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vision = series
	s.fps = fps
	s.clearResultsLocked()
}

// SetFrames stores raw keypoint frames and derives the per-joint angle
// series from them, replacing any previous upload.
func (s *Session) SetFrames(frames []pose.Frame, fps float64, norm *pose.Normalizer) {
	series := pose.BuildAllSeries(frames, fps, norm)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = frames
	s.vision = series
	s.fps = fps
	s.clearResultsLocked()
}

func (s *Session) clearResultsLocked() {
	s.fused = nil
	s.align = nil
	s.metrics = nil
	s.summary = nil
}

// AddIMU appends inertial samples. They must continue the strictly
// increasing timestamp order of what is already stored.
func (s *Session) AddIMU(samples []imu.Sample) error {
	if err := imu.ValidateSeries(samples); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.imu) > 0 && len(samples) > 0 &&
		samples[0].TimestampMS <= s.imu[len(s.imu)-1].TimestampMS {
		return imu.ErrNonMonotonic
	}
	s.imu = append(s.imu, samples...)
	return nil
}

// Vision returns the stored per-joint series.
func (s *Session) Vision() map[pose.JointID][]pose.AngleSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vision
}

// IMU returns a copy of the stored inertial series.
func (s *Session) IMU() []imu.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]imu.Sample, len(s.imu))
	copy(out, s.imu)
	return out
}

// Run fuses every stored joint series with the inertial stream and records
// the clock-offset estimate against alignJoint's angular rate. Results are
// retrievable with Fused and Alignment until the next SetVision.
func (s *Session) Run(alignJoint pose.JointID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.vision) == 0 {
		return errors.New("fusion: session has no vision series")
	}

	s.fused = make(map[pose.JointID][]FrameAngle, len(s.vision))
	for id, series := range s.vision {
		s.fused[id] = Process(series, s.imu, s.cfg)
	}

	s.align = nil
	if len(s.imu) >= 2 {
		if base, ok := s.vision[alignJoint]; ok {
			res, err := alignAgainst(base, s.imu)
			if err == nil {
				s.align = &res
			}
		}
	}

	if len(s.frames) > 0 {
		s.metrics = pose.AnalyzeFrames(s.frames, s.fps, nil)
		sum := pose.Summarize(s.metrics, s.fps)
		s.summary = &sum
	}
	return nil
}

// Metrics returns the per-frame knee metrics from the last Run. Empty when
// the session was fed pre-built angle series rather than raw frames.
func (s *Session) Metrics() []pose.FrameMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}

// Summary returns the aggregate metrics from the last Run.
func (s *Session) Summary() (pose.SessionSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.summary == nil {
		return pose.SessionSummary{}, false
	}
	return *s.summary, true
}

// Fused returns the per-frame result for one joint. Run must have been
// called since the last vision upload.
func (s *Session) Fused(id pose.JointID) ([]FrameAngle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out, ok := s.fused[id]
	return out, ok
}

// Alignment returns the clock-offset estimate from the last Run, if the
// session had enough inertial data to compute one.
func (s *Session) Alignment() (align.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.align == nil {
		return align.Result{}, false
	}
	return *s.align, true
}

// alignAgainst cross-correlates the inertial rates with the vision series'
// finite-difference angular rate.
func alignAgainst(base []pose.AngleSample, samples []imu.Sample) (align.Result, error) {
	rates, rateTS := pose.AngularRate(base)
	imuTS := make([]float64, len(samples))
	imuRates := make([]float64, len(samples))
	for i, s := range samples {
		imuTS[i] = s.TimestampMS
		imuRates[i] = s.RateDegS
	}
	return align.Align(imuRates, imuTS, rates, rateTS, align.Config{})
}

// Registry is the explicit session store. No package-level instance exists;
// owners create one and pass it where needed.
type Registry struct {
	mu       sync.Mutex
	cfg      FilterConfig
	sessions map[string]*Session
}

// NewRegistry creates an empty registry whose sessions fuse with cfg.
func NewRegistry(cfg FilterConfig) *Registry {
	return &Registry{cfg: cfg, sessions: make(map[string]*Session)}
}

// Create registers a new session with a fresh uuid and returns it.
func (r *Registry) Create() *Session {
	s := &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		cfg:       r.cfg,
	}
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	return s
}

// Get looks up a session by ID.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Delete tears down a session. Deleting an unknown ID is an error so
// callers can distinguish a retry from a miss.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(r.sessions, id)
	return nil
}

// List returns the registered sessions ordered by creation time.
func (r *Registry) List() []*Session {
	r.mu.Lock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
