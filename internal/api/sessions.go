package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gaitworks/flexion/internal/db"
	"github.com/gaitworks/flexion/internal/fusion"
	"github.com/gaitworks/flexion/internal/httputil"
	"github.com/gaitworks/flexion/internal/imu"
	"github.com/gaitworks/flexion/internal/monitoring"
	"github.com/gaitworks/flexion/internal/pose"
	"github.com/gaitworks/flexion/internal/units"
)

// maxUploadBytes caps request bodies; a full session of frames stays well
// under this.
const maxUploadBytes = 64 << 20

type sessionInfo struct {
	ID        string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	FPS       float64   `json:"fps,omitempty"`
}

func (s *Server) sessionFromPath(w http.ResponseWriter, r *http.Request) (*fusion.Session, bool) {
	sess, err := s.registry.Get(r.PathValue("id"))
	if err != nil {
		httputil.NotFound(w, "session not found")
		return nil, false
	}
	return sess, true
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	sess := s.registry.Create()
	httputil.WriteJSON(w, http.StatusCreated, sessionInfo{
		ID:        sess.ID,
		CreatedAt: sess.CreatedAt,
	})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.registry.List()
	out := make([]sessionInfo, len(sessions))
	for i, sess := range sessions {
		out[i] = sessionInfo{ID: sess.ID, CreatedAt: sess.CreatedAt, FPS: sess.FPS()}
	}
	httputil.WriteJSONOK(w, out)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFromPath(w, r)
	if !ok {
		return
	}

	resp := map[string]any{
		"session_id": sess.ID,
		"created_at": sess.CreatedAt,
		"fps":        sess.FPS(),
	}
	if res, ok := sess.Alignment(); ok {
		resp["alignment"] = res
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.registry.Delete(id); err != nil {
		httputil.NotFound(w, "session not found")
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"deleted": id})
}

type poseUpload struct {
	FPS float64 `json:"fps"`
	// Remap converts keypoints from the pose model's axis convention
	// (x, z, -y) into the y-up working frame before any processing.
	Remap  bool         `json:"remap"`
	Frames []pose.Frame `json:"frames"`
}

func (s *Server) uploadPose(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFromPath(w, r)
	if !ok {
		return
	}

	var upload poseUpload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadBytes)).Decode(&upload); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid pose upload: %v", err))
		return
	}
	if len(upload.Frames) == 0 {
		httputil.BadRequest(w, "pose upload has no frames")
		return
	}
	fps := upload.FPS
	if fps == 0 {
		fps = s.cfg.GetFPS()
	}
	if fps <= 0 {
		httputil.BadRequest(w, "fps must be positive")
		return
	}

	frames := upload.Frames
	if upload.Remap {
		remapped := make([]pose.Frame, len(frames))
		for i, f := range frames {
			remapped[i] = pose.RemapFrame(f)
		}
		frames = remapped
	}

	norm := pose.NewNormalizer()
	norm.TorsoNormMin = s.cfg.GetTorsoNormMin()
	sess.SetFrames(frames, fps, norm)

	httputil.WriteJSONOK(w, map[string]any{"frames": len(frames), "fps": fps})
}

func (s *Server) uploadIMU(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFromPath(w, r)
	if !ok {
		return
	}

	var samples []imu.Sample
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadBytes)).Decode(&samples); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid imu upload: %v", err))
		return
	}
	if err := sess.AddIMU(samples); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("rejected imu samples: %v", err))
		return
	}
	httputil.WriteJSONOK(w, map[string]int{"samples": len(samples)})
}

func jointParam(r *http.Request) (pose.JointID, error) {
	raw := r.URL.Query().Get("joint")
	if raw == "" {
		return pose.LeftKneeFlexion, nil
	}
	if _, ok := pose.JointByID(pose.JointID(raw)); !ok {
		return "", fmt.Errorf("unknown joint %q", raw)
	}
	return pose.JointID(raw), nil
}

func (s *Server) processSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFromPath(w, r)
	if !ok {
		return
	}
	joint, err := jointParam(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	if err := sess.Run(joint); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("processing failed: %v", err))
		return
	}

	if s.db != nil {
		if err := s.persist(sess); err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to persist session: %v", err))
			return
		}
	}
	if s.pub != nil {
		s.publishFused(sess)
	}

	resp := map[string]any{"session_id": sess.ID}
	if res, ok := sess.Alignment(); ok {
		resp["alignment"] = res
	}
	if sum, ok := sess.Summary(); ok {
		resp["summary"] = sum
	}
	httputil.WriteJSONOK(w, resp)
}

// persist writes the session row, every joint trajectory, and the summary.
func (s *Server) persist(sess *fusion.Session) error {
	rec := db.SessionRecord{ID: sess.ID, CreatedAt: sess.CreatedAt, FPS: sess.FPS()}
	if res, ok := sess.Alignment(); ok {
		rec.OffsetMS = &res.OffsetMS
		rec.CorrelationScore = &res.Score
	}
	if err := s.db.InsertSession(rec); err != nil {
		return err
	}

	for id, raw := range sess.Vision() {
		fused, ok := sess.Fused(id)
		if !ok {
			continue
		}
		if err := s.db.InsertTrajectory(sess.ID, id, raw, fused); err != nil {
			return err
		}
	}

	if sum, ok := sess.Summary(); ok {
		if err := s.db.InsertSummary(sess.ID, sum); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) publishFused(sess *fusion.Session) {
	for _, spec := range pose.TrackedJoints {
		fused, ok := sess.Fused(spec.ID)
		if !ok || len(fused) == 0 {
			continue
		}
		if err := s.pub.PublishFused(sess.ID, spec.ID, fused[len(fused)-1]); err != nil {
			monitoring.Logf("api: publish fused angle for %s/%s: %v", sess.ID, spec.ID, err)
		}
	}
}

type trajectoryResponse struct {
	SessionID string              `json:"session_id"`
	Joint     pose.JointID        `json:"joint"`
	Frames    []fusion.FrameAngle `json:"frames"`
}

func (s *Server) getTrajectory(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFromPath(w, r)
	if !ok {
		return
	}
	joint, err := jointParam(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	fused, ok := sess.Fused(joint)
	if !ok {
		httputil.NotFound(w, "no processed trajectory; POST /process first")
		return
	}

	// Angles are stored in degrees; convert on the way out if asked.
	if target := r.URL.Query().Get("units"); target != "" && target != units.Degrees {
		if !units.IsValid(target) {
			httputil.BadRequest(w, fmt.Sprintf("invalid 'units' parameter %q", target))
			return
		}
		converted := make([]fusion.FrameAngle, len(fused))
		for i, fa := range fused {
			fa.AngleDeg = units.ConvertAngle(fa.AngleDeg, target)
			converted[i] = fa
		}
		fused = converted
	}
	httputil.WriteJSONOK(w, trajectoryResponse{SessionID: sess.ID, Joint: joint, Frames: fused})
}

func (s *Server) getSummary(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFromPath(w, r)
	if !ok {
		return
	}

	if sum, ok := sess.Summary(); ok {
		httputil.WriteJSONOK(w, sum)
		return
	}

	// Fall back to the store for sessions processed in earlier runs.
	if s.db != nil {
		sum, err := s.db.GetSummary(sess.ID)
		if err == nil {
			httputil.WriteJSONOK(w, sum)
			return
		}
		if !errors.Is(err, sql.ErrNoRows) {
			httputil.InternalServerError(w, fmt.Sprintf("failed to load summary: %v", err))
			return
		}
	}
	httputil.NotFound(w, "no summary; POST /process first")
}
