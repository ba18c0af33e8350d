package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/gaitworks/flexion/internal/httputil"
	"github.com/gaitworks/flexion/internal/imu"
	"github.com/gaitworks/flexion/internal/monitoring"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // strap bridge connects from the local network
	},
}

// Live ingest buffers samples in a bounded drop-oldest queue and flushes
// them into the session in batches, so a stalled pipeline sheds the oldest
// data instead of blocking the socket.
const (
	wsQueueCapacity = 4096
	wsFlushBatch    = 256
)

// imuWebsocket ingests live inertial samples for a session. Each text
// message is either a single sample object or an array of samples, in the
// same JSON shape as the POST /imu endpoint.
func (s *Server) imuWebsocket(w http.ResponseWriter, r *http.Request) {
	sess, err := s.registry.Get(r.PathValue("id"))
	if err != nil {
		httputil.NotFound(w, "session not found")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("api: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	queue := imu.NewSampleQueue(wsQueueCapacity)

	flush := func() {
		batch := queue.Drain()
		if len(batch) == 0 {
			return
		}
		if err := sess.AddIMU(batch); err != nil {
			monitoring.Logf("api: rejected %d live imu samples for %s: %v", len(batch), sess.ID, err)
		}
	}
	defer flush()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				monitoring.Logf("api: websocket read error: %v", err)
			}
			break
		}

		samples, err := decodeSampleMessage(data)
		if err != nil {
			monitoring.Logf("api: skipping malformed imu message for %s: %v", sess.ID, err)
			continue
		}
		queue.Push(samples...)
		if queue.Len() >= wsFlushBatch {
			flush()
		}
	}

	if dropped := queue.Dropped(); dropped > 0 {
		monitoring.Logf("api: dropped %d live imu samples for %s (queue full)", dropped, sess.ID)
	}
}

// decodeSampleMessage accepts either a sample array or a single sample
// object.
func decodeSampleMessage(data []byte) ([]imu.Sample, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty message")
	}
	if data[0] == '[' {
		var out []imu.Sample
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	var single imu.Sample
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, err
	}
	return []imu.Sample{single}, nil
}
