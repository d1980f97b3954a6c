package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/pmoneynz/QuickLoops/internal/audio"
	"github.com/pmoneynz/QuickLoops/internal/config"
	"github.com/pmoneynz/QuickLoops/internal/library"
	"github.com/pmoneynz/QuickLoops/internal/logger"
	"github.com/pmoneynz/QuickLoops/internal/midictl"
	"github.com/pmoneynz/QuickLoops/internal/notification"
	"github.com/pmoneynz/QuickLoops/internal/player"
	"github.com/pmoneynz/QuickLoops/internal/recording"
	"github.com/pmoneynz/QuickLoops/internal/server"
	"github.com/pmoneynz/QuickLoops/internal/transport"
	"github.com/pmoneynz/QuickLoops/internal/tray"
)

const version = "0.1.0"

// App holds all application state
type App struct {
	logger     *logger.Logger
	config     *config.Config
	configPath string

	engine   *audio.PortAudioEngine
	tap      *audio.TapMux
	meter    *audio.LevelMeter
	recorder *recording.Recorder
	player   *player.Player
	machine  *transport.Machine
	router   *midictl.Router
	store    *library.Store
	notifier *notification.NotificationManager

	trayMgr    *tray.Manager
	httpServer *server.Server
}

func init() {
	// The tray event loop must run on the main thread on macOS
	runtime.LockOSThread()
}

func main() {
	app := &App{}

	loggerConfig := logger.DefaultConfig()
	var err error
	app.logger, err = logger.New(loggerConfig)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer app.logger.Close()

	app.logger.Info("QuickLoops v%s starting", version)

	app.configPath = config.GetConfigPath()
	app.config = config.Load(app.configPath)
	app.logger.Info("configuration loaded from %s", app.configPath)

	app.notifier = notification.NewNotificationManager("QuickLoops")

	app.store, err = library.Open(app.config.LoopsDir, app.logger)
	if err != nil {
		app.logger.Error("failed to open loop library: %v", err)
		log.Fatalf("failed to open loop library: %v", err)
	}

	app.trayMgr = tray.NewManager(tray.Config{
		OnReady:        app.onReady,
		OnRecord:       func() { app.trigger(midictl.ActionRecord) },
		OnPlay:         func() { app.trigger(midictl.ActionPlay) },
		OnStop:         func() { app.trigger(midictl.ActionStop) },
		OnClear:        func() { app.trigger(midictl.ActionClear) },
		OnSaveLoop:     app.handleSaveLoop,
		OnDeviceChange: app.handleDeviceChange,
		OnQuit:         app.handleQuit,
	})

	app.logger.Info("starting tray loop")

	// Blocking call; everything else is initialized from onReady.
	app.trayMgr.Run()
}

// onReady finishes initialization once the tray loop is up
func (a *App) onReady() {
	a.logger.Info("tray ready, initializing audio")

	audioConfig := audio.DefaultConfig()
	audioConfig.DeviceID = a.config.AudioDeviceID

	var err error
	a.engine, err = audio.NewPortAudioEngine(audioConfig)
	if err != nil {
		a.logger.Error("failed to open audio engine: %v", err)
		a.notifier.DeviceNotFound()
	}

	if a.engine != nil {
		a.tap = audio.NewTapMux(a.engine)
		a.recorder = recording.New(a.tap, a.logger, recording.DefaultConfig())
		a.meter, err = audio.NewLevelMeter(a.tap)
		if err != nil {
			a.logger.Warn("failed to start input metering: %v", err)
		}
		a.refreshDeviceMenu()
	}

	a.player = player.New(a.logger)
	outputRate := 44100
	if a.engine != nil {
		outputRate = int(a.engine.Format().SampleRate)
	}
	if err := a.player.Open(outputRate); err != nil {
		a.logger.Error("failed to open playback output: %v", err)
		a.notifier.SendError("QuickLoops", "Could not open the audio output")
	}

	if a.recorder != nil {
		a.machine = transport.New(a.recorder, a.player, a.logger, transport.DefaultConfig())
		a.machine.SetOnChange(a.onTransportChange)
	}

	if a.machine != nil {
		driver, err := midictl.NewRTMIDIDriver()
		if err != nil {
			a.logger.Error("failed to open MIDI driver: %v", err)
		} else {
			routerConfig := midictl.DefaultConfig()
			routerConfig.Mapping = a.config.GetMapping()
			a.router = midictl.NewRouter(driver, a.machine, a.logger, routerConfig)
			a.router.SetOnMappingChange(a.persistMapping)
			if err := a.router.Start(); err != nil {
				a.logger.Error("failed to start MIDI router: %v", err)
			}
		}
	}

	if a.router != nil && a.engine != nil {
		var meter server.Meter
		if a.meter != nil {
			meter = a.meter
		}
		handler := server.NewHandler(a.config, a.configPath, a.machine, a.router, a.store, a.engine, a.player, meter)
		serverConfig := server.DefaultConfig()
		serverConfig.Port = a.config.HTTPPort
		a.httpServer = server.New(serverConfig, handler, a.logger)
		if err := a.httpServer.Start(); err != nil {
			a.logger.Error("failed to start HTTP server: %v", err)
		}
	}

	a.trayMgr.SetLoopInfo(len(a.store.Loops()))

	// Signal handling for clean shutdown from the terminal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		a.logger.Info("shutdown signal received")
		a.handleQuit()
		a.trayMgr.Quit()
	}()

	a.logger.Info("initialization complete")
	if a.httpServer != nil && a.httpServer.IsRunning() {
		fmt.Printf("QuickLoops v%s - control API at %s\n", version, a.httpServer.URL())
	}
}

// trigger routes a tray action through the note router when present so the
// triggered indicator behaves the same for MIDI and menu input. Without a
// MIDI driver the transport is driven directly.
func (a *App) trigger(action midictl.Action) {
	if a.machine == nil {
		return
	}
	if a.router != nil {
		a.router.Trigger(action)
		return
	}

	var err error
	switch action {
	case midictl.ActionRecord:
		err = a.machine.Record()
	case midictl.ActionPlay:
		err = a.machine.Play()
	case midictl.ActionStop:
		err = a.machine.Stop()
	case midictl.ActionClear:
		err = a.machine.Clear()
	}
	if err != nil {
		a.logger.Error("%s failed: %v", action, err)
		a.notifier.RecordingFailed(err.Error())
	}
}

// onTransportChange mirrors transport state into the tray icon
func (a *App) onTransportChange(st transport.Status) {
	switch st.State {
	case transport.Recording:
		a.trayMgr.SetState(tray.StateRecording)
	case transport.Playing:
		a.trayMgr.SetState(tray.StatePlaying)
	default:
		a.trayMgr.SetState(tray.StateIdle)
	}
}

// handleSaveLoop stores the current take in the library under a
// timestamped name
func (a *App) handleSaveLoop() {
	if a.machine == nil {
		return
	}
	st := a.machine.Status()
	if !st.HasAudio || st.LoopPath == "" {
		a.notifier.SaveFailed("no loop to save")
		return
	}

	name := time.Now().Format("Loop 2006-01-02 15.04.05")
	go func() {
		loop, err := a.store.Save(st.LoopPath, name)
		if err != nil {
			a.logger.Error("save failed: %v", err)
			a.notifier.SaveFailed(err.Error())
			return
		}
		a.logger.Info("loop saved as %q", loop.Name)
		a.trayMgr.SetLoopInfo(len(a.store.Loops()))
	}()
}

// handleDeviceChange persists the selected input device. The running
// capture keeps its stream; the next recording adopts the new device.
func (a *App) handleDeviceChange(deviceID int) {
	a.logger.Info("input device changed to %d", deviceID)
	a.config.AudioDeviceID = deviceID
	if err := a.config.Save(a.configPath); err != nil {
		a.logger.Error("failed to save config: %v", err)
	}
	a.refreshDeviceMenu()
}

func (a *App) refreshDeviceMenu() {
	if a.engine == nil {
		return
	}
	devices, err := a.engine.ListDevices()
	if err != nil {
		a.logger.Warn("failed to list devices: %v", err)
		return
	}

	items := make([]tray.Device, 0, len(devices))
	for _, d := range devices {
		items = append(items, tray.Device{
			ID:        d.ID,
			Name:      d.Name,
			IsDefault: d.IsDefault,
			IsCurrent: d.ID == a.config.AudioDeviceID,
		})
	}
	a.trayMgr.UpdateDeviceMenu(items)
}

// persistMapping saves a mapping learned from the controller
func (a *App) persistMapping(m config.NoteMapping) {
	a.config.SetMapping(m)
	if err := a.config.Save(a.configPath); err != nil {
		a.logger.Error("failed to persist note mapping: %v", err)
	}
}

// handleQuit shuts everything down in reverse order of startup
func (a *App) handleQuit() {
	a.logger.Info("shutting down")

	if a.httpServer != nil && a.httpServer.IsRunning() {
		if err := a.httpServer.Stop(); err != nil {
			a.logger.Error("failed to stop HTTP server: %v", err)
		}
	}

	if a.router != nil {
		if err := a.router.Close(); err != nil {
			a.logger.Error("failed to close MIDI router: %v", err)
		}
	}

	if a.machine != nil {
		a.machine.Stop()
	}

	if a.meter != nil {
		if err := a.meter.Close(); err != nil {
			a.logger.Error("failed to stop input metering: %v", err)
		}
	}

	if a.player != nil {
		a.player.Close()
	}

	if a.engine != nil {
		if err := a.engine.Close(); err != nil {
			a.logger.Error("failed to close audio engine: %v", err)
		}
	}

	a.logger.Info("shutdown complete")
}
