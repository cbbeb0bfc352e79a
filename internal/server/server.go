package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"fuelgauge/internal/max17048"
)

// Gauge is the subset of *max17048.Dev the server reads.
type Gauge interface {
	GetStatus() (float64, float64, error)
	Config() (max17048.ConfigRegister, error)
	QuickStart() error
	ClearAlert() error
}

type BatteryResponse struct {
	Level          int     `json:"sensor.battery_level"`
	Voltage        float64 `json:"sensor.battery_voltage"`
	State          string  `json:"sensor.battery_state"`
	AlertThreshold int     `json:"sensor.alert_threshold"`
	IsSleeping     bool    `json:"sensor.is_sleeping"`
}

type Server struct {
	// mu serialises gauge access; the driver's config updates are not atomic.
	mu    sync.Mutex
	gauge Gauge
}

func New(gauge Gauge) *Server {
	return &Server{gauge: gauge}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", s.rootHandler)
	mux.HandleFunc("POST /quickstart", s.commandHandler(Gauge.QuickStart))
	mux.HandleFunc("POST /alert/clear", s.commandHandler(Gauge.ClearAlert))
	return mux
}

func Run(port int, gauge Gauge) error {
	s := New(gauge)

	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	log.Printf("Listening on %s", addr)
	return srv.ListenAndServe()
}

func (s *Server) rootHandler(w http.ResponseWriter, r *http.Request) {
	resp := BatteryResponse{State: "Unknown"}
	status := http.StatusOK

	s.mu.Lock()
	vol, soc, err := s.gauge.GetStatus()
	var cfg max17048.ConfigRegister
	if err == nil {
		cfg, err = s.gauge.Config()
	}
	s.mu.Unlock()

	if err != nil {
		log.Printf("Error reading MAX17048: %v", err)
		status = http.StatusServiceUnavailable
	} else {
		resp.Level = int(soc)
		resp.Voltage = vol
		resp.AlertThreshold = int(cfg.AlertThreshold)
		resp.IsSleeping = cfg.Sleep
		switch {
		case cfg.Sleep:
			resp.State = "Sleeping"
		case cfg.AlertFlag:
			resp.State = "Low"
		default:
			resp.State = "Normal"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func (s *Server) commandHandler(cmd func(Gauge) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		err := cmd(s.gauge)
		s.mu.Unlock()

		if err != nil {
			log.Printf("MAX17048 command %s failed: %v", r.URL.Path, err)
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
