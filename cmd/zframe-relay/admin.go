package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/multifrost/zframe"
)

// relayStatus is one entry of GET /relays.
type relayStatus struct {
	Name      string                      `json:"name"`
	Endpoints zframe.RelayEndpoints       `json:"endpoints"`
	Running   bool                        `json:"running"`
	Metrics   zframe.RelayMetricsSnapshot `json:"metrics"`
}

// newAdminRouter serves relay health, status and Prometheus metrics.
func newAdminRouter(s *supervisor) (http.Handler, error) {
	reg := prometheus.NewRegistry()
	for _, r := range s.relays {
		if err := reg.Register(r.Metrics()); err != nil {
			return nil, err
		}
	}
	promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "zframe_relays_running",
		Help: "Relays whose worker is active.",
	}, func() float64 {
		return float64(s.running())
	})

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if s.running() < len(s.relays) {
			http.Error(w, "relay stopped", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/relays", func(w http.ResponseWriter, _ *http.Request) {
		out := make([]relayStatus, 0, len(s.relays))
		for _, rl := range s.relays {
			out = append(out, relayStatus{
				Name:      rl.Name(),
				Endpoints: rl.Endpoints(),
				Running:   rl.Running(),
				Metrics:   rl.Metrics().Snapshot(),
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	})

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return r, nil
}
