package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/pmoneynz/QuickLoops/internal/audio"
	"github.com/pmoneynz/QuickLoops/internal/config"
	"github.com/pmoneynz/QuickLoops/internal/library"
	"github.com/pmoneynz/QuickLoops/internal/midictl"
	"github.com/pmoneynz/QuickLoops/internal/player"
	"github.com/pmoneynz/QuickLoops/internal/transport"
)

// Transport is the status surface the API reads.
type Transport interface {
	Status() transport.Status
}

// Controls is the action and mapping surface, served by the note router so
// HTTP-triggered actions behave exactly like MIDI-triggered ones.
type Controls interface {
	Trigger(action midictl.Action)
	Mapping() config.NoteMapping
	SetMapping(m config.NoteMapping)
	Connected() (string, bool)
}

// Library is the loop store surface the API exposes.
type Library interface {
	Loops() []library.Loop
	Save(tempPath, name string) (library.Loop, error)
}

// Devices lists audio input devices for the device picker.
type Devices interface {
	ListDevices() ([]audio.Device, error)
}

// RateControl adjusts and reports the playback rate.
type RateControl interface {
	Rate() float64
	SetRate(rate float64)
}

// Meter reports the current input level.
type Meter interface {
	Level() float64
}

// Handler manages API endpoints
type Handler struct {
	config     *config.Config
	configPath string
	transport  Transport
	controls   Controls
	library    Library
	devices    Devices
	rate       RateControl
	meter      Meter
}

// New creates a new API handler
func NewHandler(cfg *config.Config, configPath string, tr Transport, controls Controls, lib Library, devices Devices, rate RateControl, meter Meter) *Handler {
	return &Handler{
		config:     cfg,
		configPath: configPath,
		transport:  tr,
		controls:   controls,
		library:    lib,
		devices:    devices,
		rate:       rate,
		meter:      meter,
	}
}

// RegisterRoutes registers all API routes on the given mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/status", h.handleStatus)
	mux.HandleFunc("/api/transport/record", h.transportAction(midictl.ActionRecord))
	mux.HandleFunc("/api/transport/play", h.transportAction(midictl.ActionPlay))
	mux.HandleFunc("/api/transport/stop", h.transportAction(midictl.ActionStop))
	mux.HandleFunc("/api/transport/clear", h.transportAction(midictl.ActionClear))
	mux.HandleFunc("/api/rate", h.handleRate)
	mux.HandleFunc("/api/mapping", h.handleMapping)
	mux.HandleFunc("/api/loops", h.handleLoops)
	mux.HandleFunc("/api/loops/save", h.handleLoopSave)
	mux.HandleFunc("/api/devices", h.handleDevices)
}

// statusResponse is the document served by GET /api/status
type statusResponse struct {
	State       string  `json:"state"`
	HasAudio    bool    `json:"has_audio"`
	Rate        float64 `json:"rate"`
	RatePercent string  `json:"rate_percent"`
	InputLevel  float64 `json:"input_level"`
	MIDIPort    string  `json:"midi_port,omitempty"`
	MIDIOnline  bool    `json:"midi_online"`
}

// handleStatus handles GET /api/status
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.writeStatus(w)
}

func (h *Handler) writeStatus(w http.ResponseWriter) {
	st := h.transport.Status()
	port, online := h.controls.Connected()
	rate := h.rate.Rate()

	var level float64
	if h.meter != nil {
		level = h.meter.Level()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(statusResponse{
		State:       st.State.String(),
		HasAudio:    st.HasAudio,
		Rate:        rate,
		RatePercent: player.RatePercent(rate),
		InputLevel:  level,
		MIDIPort:    port,
		MIDIOnline:  online,
	})
}

// transportAction builds a POST handler firing one transport action.
// Off-guard actions are no-ops; the response carries the resulting state.
func (h *Handler) transportAction(action midictl.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		h.controls.Trigger(action)
		h.writeStatus(w)
	}
}

// handleRate handles GET and PUT /api/rate
func (h *Handler) handleRate(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.writeStatus(w)
	case http.MethodPut:
		var req struct {
			Rate float64 `json:"rate"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		h.rate.SetRate(req.Rate)
		h.writeStatus(w)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleMapping handles GET and PUT /api/mapping
func (h *Handler) handleMapping(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(h.controls.Mapping())
	case http.MethodPut:
		h.putMapping(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// putMapping replaces the note mapping and persists it
func (h *Handler) putMapping(w http.ResponseWriter, r *http.Request) {
	var mapping config.NoteMapping
	if err := json.NewDecoder(r.Body).Decode(&mapping); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	for _, note := range []uint8{mapping.Record, mapping.Play, mapping.Stop, mapping.Clear} {
		if note > 127 {
			http.Error(w, fmt.Sprintf("invalid note number: %d", note), http.StatusBadRequest)
			return
		}
	}

	h.controls.SetMapping(mapping)
	h.config.SetMapping(mapping)
	if err := h.config.Save(h.configPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to save config: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "success",
	})
}

// handleLoops handles GET /api/loops
func (h *Handler) handleLoops(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	loops := h.library.Loops()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"loops": loops,
	})
}

// handleLoopSave handles POST /api/loops/save
func (h *Handler) handleLoopSave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	st := h.transport.Status()
	if !st.HasAudio || st.LoopPath == "" {
		http.Error(w, "No loop to save", http.StatusConflict)
		return
	}

	loop, err := h.library.Save(st.LoopPath, req.Name)
	if err != nil {
		if errors.Is(err, library.ErrDuplicateName) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, fmt.Sprintf("Failed to save loop: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(loop)
}

// Device represents an audio device
type Device struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	IsDefault bool   `json:"is_default"`
}

// handleDevices handles GET /api/devices
func (h *Handler) handleDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	audioDevices, err := h.devices.ListDevices()
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to list audio devices: %v", err), http.StatusInternalServerError)
		return
	}

	devices := make([]Device, 0, len(audioDevices))
	for _, dev := range audioDevices {
		devices = append(devices, Device{
			ID:        dev.ID,
			Name:      dev.Name,
			IsDefault: dev.IsDefault,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"devices": devices,
	})
}
