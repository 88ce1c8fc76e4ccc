package main

import (
	"fmt"
	"net/http"

	"sc2tap.ai/internal/relay"
)

func healthz(rw http.ResponseWriter, r *http.Request) {
	rw.WriteHeader(http.StatusOK)
	_, _ = rw.Write([]byte("ok"))
}

func (a *app) metricsHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP sc2tap_sessions_total Relay sessions started.\n")
		fmt.Fprintf(rw, "# TYPE sc2tap_sessions_total counter\n")
		fmt.Fprintf(rw, "sc2tap_sessions_total %d\n", a.sessions.Load())

		fmt.Fprintf(rw, "# HELP sc2tap_entities Entities currently tracked.\n")
		fmt.Fprintf(rw, "# TYPE sc2tap_entities gauge\n")
		fmt.Fprintf(rw, "sc2tap_entities %d\n", a.reg.Len())

		fmt.Fprintf(rw, "# HELP sc2tap_entities_skipped_total Unit records skipped for a missing tag or position.\n")
		fmt.Fprintf(rw, "# TYPE sc2tap_entities_skipped_total counter\n")
		fmt.Fprintf(rw, "sc2tap_entities_skipped_total %d\n", a.reg.Skipped())

		if s := a.current.Load(); s != nil {
			writeSessionMetrics(rw, s)
		}

		vs := a.viewer.Stats()
		fmt.Fprintf(rw, "# HELP sc2tap_viewers Connected viewers.\n")
		fmt.Fprintf(rw, "# TYPE sc2tap_viewers gauge\n")
		fmt.Fprintf(rw, "sc2tap_viewers %d\n", vs.Viewers)
		fmt.Fprintf(rw, "# TYPE sc2tap_viewer_sent_total counter\n")
		fmt.Fprintf(rw, "sc2tap_viewer_sent_total %d\n", vs.Sent)
		fmt.Fprintf(rw, "# TYPE sc2tap_viewer_dropped_total counter\n")
		fmt.Fprintf(rw, "sc2tap_viewer_dropped_total %d\n", vs.Dropped)

		if a.index != nil {
			st := a.index.Stats()
			fmt.Fprintf(rw, "# TYPE sc2tap_index_queue_depth gauge\n")
			fmt.Fprintf(rw, "sc2tap_index_queue_depth %d\n", st.QueueDepth)
			fmt.Fprintf(rw, "# TYPE sc2tap_index_dropped_total counter\n")
			fmt.Fprintf(rw, "sc2tap_index_dropped_total{kind=\"session\"} %d\n", st.DropSessionTotal)
			fmt.Fprintf(rw, "sc2tap_index_dropped_total{kind=\"unit\"} %d\n", st.DropUnitTotal)
			fmt.Fprintf(rw, "sc2tap_index_dropped_total{kind=\"result\"} %d\n", st.DropResultTotal)
			fmt.Fprintf(rw, "# TYPE sc2tap_index_write_errors_total counter\n")
			fmt.Fprintf(rw, "sc2tap_index_write_errors_total %d\n", st.WriteErrorTotal)
		}

		if a.upload != nil {
			st := a.upload.Stats()
			fmt.Fprintf(rw, "# TYPE sc2tap_upload_queue_depth gauge\n")
			fmt.Fprintf(rw, "sc2tap_upload_queue_depth %d\n", st.QueueDepth)
			fmt.Fprintf(rw, "# TYPE sc2tap_upload_total counter\n")
			fmt.Fprintf(rw, "sc2tap_upload_total{result=\"ok\"} %d\n", st.Uploaded)
			fmt.Fprintf(rw, "sc2tap_upload_total{result=\"failed\"} %d\n", st.Failed)
			fmt.Fprintf(rw, "sc2tap_upload_total{result=\"dropped\"} %d\n", st.Dropped)
			fmt.Fprintf(rw, "# TYPE sc2tap_upload_last_success_unix gauge\n")
			fmt.Fprintf(rw, "sc2tap_upload_last_success_unix %d\n", st.LastOKUnix)
		}
	}
}

func writeSessionMetrics(rw http.ResponseWriter, s *session) {
	st := s.relay.Stats()
	id := s.relay.ID()

	fmt.Fprintf(rw, "# HELP sc2tap_relay_state Relay state of the current session (one series set to 1).\n")
	fmt.Fprintf(rw, "# TYPE sc2tap_relay_state gauge\n")
	for _, state := range []relay.State{relay.StateIdle, relay.StateConnectingUpstream, relay.StateWaitingForClient, relay.StateBridging, relay.StateClosed} {
		v := 0
		if st.State == state {
			v = 1
		}
		fmt.Fprintf(rw, "sc2tap_relay_state{session=%q,state=%q} %d\n", id, state.String(), v)
	}

	fmt.Fprintf(rw, "# HELP sc2tap_relay_frames_total Frames forwarded by direction.\n")
	fmt.Fprintf(rw, "# TYPE sc2tap_relay_frames_total counter\n")
	fmt.Fprintf(rw, "sc2tap_relay_frames_total{session=%q,dir=%q} %d\n", id, relay.Upstream, st.FramesUp)
	fmt.Fprintf(rw, "sc2tap_relay_frames_total{session=%q,dir=%q} %d\n", id, relay.Downstream, st.FramesDown)

	fmt.Fprintf(rw, "# TYPE sc2tap_relay_decode_failures_total counter\n")
	fmt.Fprintf(rw, "sc2tap_relay_decode_failures_total{session=%q} %d\n", id, st.DecodeFailures)
	fmt.Fprintf(rw, "# TYPE sc2tap_relay_published_total counter\n")
	fmt.Fprintf(rw, "sc2tap_relay_published_total{session=%q} %d\n", id, st.Published)
	fmt.Fprintf(rw, "# TYPE sc2tap_relay_dropped_total counter\n")
	fmt.Fprintf(rw, "sc2tap_relay_dropped_total{session=%q} %d\n", id, st.Dropped)
	fmt.Fprintf(rw, "# TYPE sc2tap_relay_subscribers gauge\n")
	fmt.Fprintf(rw, "sc2tap_relay_subscribers{session=%q} %d\n", id, st.Subscribers)

	ts := s.tracker.Stats()
	fmt.Fprintf(rw, "# TYPE sc2tap_game_loop gauge\n")
	fmt.Fprintf(rw, "sc2tap_game_loop{session=%q} %d\n", id, ts.LastGameLoop)
	fmt.Fprintf(rw, "# TYPE sc2tap_terrain_layer_errors_total counter\n")
	fmt.Fprintf(rw, "sc2tap_terrain_layer_errors_total{session=%q} %d\n", id, ts.LayerErrors)

	if s.recorder != nil {
		rs := s.recorder.Stats()
		fmt.Fprintf(rw, "# TYPE sc2tap_record_frames_total counter\n")
		fmt.Fprintf(rw, "sc2tap_record_frames_total{session=%q} %d\n", id, rs.Written)
		fmt.Fprintf(rw, "# TYPE sc2tap_record_dropped_total counter\n")
		fmt.Fprintf(rw, "sc2tap_record_dropped_total{session=%q} %d\n", id, rs.Dropped)
	}
}
