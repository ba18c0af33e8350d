package api

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"

	"github.com/gaitworks/flexion/internal/db"
	"github.com/gaitworks/flexion/internal/fusion"
	"github.com/gaitworks/flexion/internal/imu"
	"github.com/gaitworks/flexion/internal/pose"
)

// capturePublisher records published fused samples for assertions.
type capturePublisher struct {
	mu        sync.Mutex
	published []string
}

func (p *capturePublisher) PublishFused(sessionID string, joint pose.JointID, sample fusion.FrameAngle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, sessionID+"/"+string(joint))
	return nil
}

func newTestServer(t *testing.T, store *db.DB, pub Publisher) *Server {
	t.Helper()
	return NewServer(fusion.NewRegistry(fusion.DefaultFilterConfig()), store, nil, pub)
}

// standingFrame returns a plausible upright pose with unit confidences.
func standingFrame(index int) pose.Frame {
	f := pose.Frame{Index: index}
	for i := range f.Keypoints {
		f.Keypoints[i] = pose.Keypoint{
			X:          0.1 * float64(i%5),
			Y:          1.8 - 0.07*float64(i),
			Z:          0.05 * float64(i%3),
			Confidence: 1,
		}
	}
	return f
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func createSession(t *testing.T, mux *http.ServeMux) string {
	t.Helper()
	rec := doJSON(t, mux, http.MethodPost, "/api/sessions", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session: status = %d, body %s", rec.Code, rec.Body)
	}
	var resp struct {
		ID string `json:"session_id"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	return resp.ID
}

func TestHealth(t *testing.T) {
	mux := newTestServer(t, nil, nil).ServeMux()
	rec := doJSON(t, mux, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestSessionLifecycle(t *testing.T) {
	mux := newTestServer(t, nil, nil).ServeMux()

	id := createSession(t, mux)

	rec := doJSON(t, mux, http.MethodGet, "/api/sessions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status = %d", rec.Code)
	}
	var list []map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("listed %d sessions, want 1", len(list))
	}

	rec = doJSON(t, mux, http.MethodGet, "/api/sessions/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("get: status = %d", rec.Code)
	}

	rec = doJSON(t, mux, http.MethodDelete, "/api/sessions/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("delete: status = %d", rec.Code)
	}

	rec = doJSON(t, mux, http.MethodGet, "/api/sessions/"+id, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete: status = %d, want 404", rec.Code)
	}
}

func TestUnknownSessionIs404(t *testing.T) {
	mux := newTestServer(t, nil, nil).ServeMux()
	for _, path := range []string{
		"/api/sessions/nope",
		"/api/sessions/nope/trajectory",
		"/api/sessions/nope/summary",
	} {
		rec := doJSON(t, mux, http.MethodGet, path, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", path, rec.Code)
		}
	}
}

func uploadStandingSession(t *testing.T, mux *http.ServeMux, id string, frames int) {
	t.Helper()
	upload := poseUpload{FPS: 30}
	for i := 0; i < frames; i++ {
		upload.Frames = append(upload.Frames, standingFrame(i))
	}
	rec := doJSON(t, mux, http.MethodPost, "/api/sessions/"+id+"/pose", upload)
	if rec.Code != http.StatusOK {
		t.Fatalf("pose upload: status = %d, body %s", rec.Code, rec.Body)
	}

	var samples []imu.Sample
	for ts := 5.0; ts < float64(frames)*1000/30; ts += 5 {
		samples = append(samples, imu.Sample{TimestampMS: ts, RateDegS: 0})
	}
	rec = doJSON(t, mux, http.MethodPost, "/api/sessions/"+id+"/imu", samples)
	if rec.Code != http.StatusOK {
		t.Fatalf("imu upload: status = %d, body %s", rec.Code, rec.Body)
	}
}

func TestProcessAndResults(t *testing.T) {
	store, err := db.NewDB(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	pub := &capturePublisher{}
	mux := newTestServer(t, store, pub).ServeMux()

	id := createSession(t, mux)
	uploadStandingSession(t, mux, id, 90)

	rec := doJSON(t, mux, http.MethodPost, "/api/sessions/"+id+"/process", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("process: status = %d, body %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, mux, http.MethodGet, "/api/sessions/"+id+"/trajectory?joint=left_knee_flexion", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("trajectory: status = %d, body %s", rec.Code, rec.Body)
	}
	var traj trajectoryResponse
	if err := json.NewDecoder(rec.Body).Decode(&traj); err != nil {
		t.Fatal(err)
	}
	if len(traj.Frames) != 90 {
		t.Errorf("trajectory frames = %d, want 90", len(traj.Frames))
	}

	rec = doJSON(t, mux, http.MethodGet, "/api/sessions/"+id+"/summary", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("summary: status = %d, body %s", rec.Code, rec.Body)
	}

	// The processed session is persisted.
	got, err := store.GetSession(id)
	if err != nil {
		t.Fatalf("persisted session missing: %v", err)
	}
	if got.FPS != 30 {
		t.Errorf("persisted fps = %v, want 30", got.FPS)
	}
	rows, err := store.GetTrajectory(id, pose.LeftKneeFlexion)
	if err != nil || len(rows) != 90 {
		t.Errorf("persisted trajectory rows = %d (err %v), want 90", len(rows), err)
	}

	// Every tracked joint's latest fused angle is published.
	pub.mu.Lock()
	published := len(pub.published)
	pub.mu.Unlock()
	if published != len(pose.TrackedJoints) {
		t.Errorf("published %d fused updates, want %d", published, len(pose.TrackedJoints))
	}
}

func TestProcessWithoutPose(t *testing.T) {
	mux := newTestServer(t, nil, nil).ServeMux()
	id := createSession(t, mux)

	rec := doJSON(t, mux, http.MethodPost, "/api/sessions/"+id+"/process", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestUploadRejections(t *testing.T) {
	mux := newTestServer(t, nil, nil).ServeMux()
	id := createSession(t, mux)

	rec := doJSON(t, mux, http.MethodPost, "/api/sessions/"+id+"/pose", poseUpload{FPS: 30})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty pose upload: status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, mux, http.MethodPost, "/api/sessions/"+id+"/imu",
		[]imu.Sample{{TimestampMS: 10, RateDegS: 0}, {TimestampMS: 5, RateDegS: 0}})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("non-monotonic imu upload: status = %d, want 400", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/pose",
		strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("malformed body: status = %d, want 400", rr.Code)
	}

	rec = doJSON(t, mux, http.MethodGet, "/api/sessions/"+id+"/trajectory?joint=left_elbow", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown joint: status = %d, want 400", rec.Code)
	}
}

func TestTrajectoryEqualsSessionFused(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	mux := srv.ServeMux()
	id := createSession(t, mux)
	uploadStandingSession(t, mux, id, 30)

	if rec := doJSON(t, mux, http.MethodPost, "/api/sessions/"+id+"/process", nil); rec.Code != http.StatusOK {
		t.Fatalf("process: status = %d", rec.Code)
	}

	rec := doJSON(t, mux, http.MethodGet, "/api/sessions/"+id+"/trajectory", nil)
	var traj trajectoryResponse
	if err := json.NewDecoder(rec.Body).Decode(&traj); err != nil {
		t.Fatal(err)
	}

	sess, err := srv.registry.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := sess.Fused(pose.LeftKneeFlexion)
	if diff := cmp.Diff(want, traj.Frames); diff != "" {
		t.Errorf("trajectory mismatch (-want +got):\n%s", diff)
	}
}

func TestTrajectoryUnitsParam(t *testing.T) {
	mux := newTestServer(t, nil, nil).ServeMux()
	id := createSession(t, mux)
	uploadStandingSession(t, mux, id, 30)

	if rec := doJSON(t, mux, http.MethodPost, "/api/sessions/"+id+"/process", nil); rec.Code != http.StatusOK {
		t.Fatalf("process: status = %d", rec.Code)
	}

	var deg, rad trajectoryResponse
	rec := doJSON(t, mux, http.MethodGet, "/api/sessions/"+id+"/trajectory", nil)
	if err := json.NewDecoder(rec.Body).Decode(&deg); err != nil {
		t.Fatal(err)
	}
	rec = doJSON(t, mux, http.MethodGet, "/api/sessions/"+id+"/trajectory?units=rad", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("units=rad: status = %d, body %s", rec.Code, rec.Body)
	}
	if err := json.NewDecoder(rec.Body).Decode(&rad); err != nil {
		t.Fatal(err)
	}

	want := deg.Frames[0].AngleDeg * math.Pi / 180
	if got := rad.Frames[0].AngleDeg; math.Abs(got-want) > 1e-9 {
		t.Errorf("converted angle = %v, want %v", got, want)
	}

	rec = doJSON(t, mux, http.MethodGet, "/api/sessions/"+id+"/trajectory?units=furlongs", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bogus units: status = %d, want 400", rec.Code)
	}
}

func TestIMUWebsocketIngest(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	mux := srv.ServeMux()
	id := createSession(t, mux)

	ts := httptest.NewServer(mux)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/sessions/" + id + "/imu"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	// A batch message and a single-sample message.
	batch := []imu.Sample{{TimestampMS: 5, RateDegS: 1}, {TimestampMS: 10, RateDegS: 2}}
	if err := conn.WriteJSON(batch); err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteJSON(imu.Sample{TimestampMS: 15, RateDegS: 3}); err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")); err != nil {
		t.Fatal(err)
	}
	conn.Close()

	sess, err := srv.registry.Get(id)
	if err != nil {
		t.Fatal(err)
	}

	// The server flushes its queue when the socket closes.
	var got []imu.Sample
	for i := 0; i < 200; i++ {
		got = sess.IMU()
		if len(got) == 3 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(got) != 3 {
		t.Fatalf("session has %d imu samples, want 3", len(got))
	}
	if got[2].TimestampMS != 15 || got[2].RateDegS != 3 {
		t.Errorf("last sample = %+v, want {15 3}", got[2])
	}
}
