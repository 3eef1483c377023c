package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"walktale/internal/api"
	"walktale/pkg/audio"
	"walktale/pkg/config"
	"walktale/pkg/content"
	"walktale/pkg/db"
	"walktale/pkg/geo"
	"walktale/pkg/geocode"
	"walktale/pkg/guide"
	"walktale/pkg/llm/gemini"
	"walktale/pkg/logging"
	"walktale/pkg/model"
	"walktale/pkg/request"
	"walktale/pkg/route"
	"walktale/pkg/routing"
	"walktale/pkg/sampler"
	"walktale/pkg/session"
	"walktale/pkg/store"
	"walktale/pkg/tracker"
	"walktale/pkg/tts/googletts"
	"walktale/pkg/version"
)

var (
	initConfig = flag.Bool("init-config", false, "Generate default config file and exit")
	configPath = flag.String("config", "configs/walktale.yaml", "Path to config file")
)

func main() {
	flag.Parse()

	if *initConfig {
		if err := config.GenerateDefault(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Config file generated:", *configPath)
		return
	}

	if err := run(context.Background(), *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Secrets may live in a local .env during development.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("Walktale started", "version", version.Version, "language", cfg.Language)

	dbConn, err := db.Init(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbConn.Close()
	st := store.New(dbConn)

	// A stored language preference overrides the config until changed again.
	if lang, err := st.GetPref(ctx, "language"); err == nil && lang != "" && lang != cfg.Language {
		slog.Info("restoring language preference", "language", lang)
		cfg.Language = lang
	}

	tr := tracker.New()
	reqClient := request.New(st, tr,
		time.Duration(cfg.Request.Timeout),
		cfg.Request.Retries,
		request.NewProviderBackoff(
			time.Duration(cfg.Request.Backoff.BaseDelay),
			time.Duration(cfg.Request.Backoff.MaxDelay)))

	llmClient, err := gemini.NewClient(cfg.LLM, "logs/prompts.log", tr)
	if err != nil {
		return fmt.Errorf("failed to initialize LLM provider: %w", err)
	}
	if err := llmClient.HealthCheck(ctx); err != nil {
		slog.Warn("LLM provider not ready, narration will fail until it is", "error", err)
	}

	sessionMgr := session.New(tr, cfg.TTS.Mode)
	llmClient.SetUsageFunc(sessionMgr.AddTokens)

	speaker, cleanupAudio := initSpeaker(cfg, tr, sessionMgr)
	defer cleanupAudio()

	geocoder := geocode.New(reqClient, cfg.Routing.GoogleKey, cfg.Language, cfg.Geocode.CacheResolution)
	contentProv := content.New(llmClient, geocoder, st, cfg.Language, cfg.Quota)

	routeTracker := route.New(initRouting(cfg, reqClient), cfg.Route)
	guideCtl := guide.New(cfg.Guide, contentProv, speaker, sessionMgr)

	routeTracker.SetCallbacks(
		func(pos model.Position) {
			guideCtl.HandleArrival(routeTracker.Status(pos).DestinationName)
		},
		func(pos model.Position) {
			slog.Info("walker left the route", "lat", pos.Lat, "lon", pos.Lon)
			logging.LogEvent(&model.TourEvent{
				Type: "DEVIATION", Timestamp: time.Now(), Lat: pos.Lat, Lon: pos.Lon,
			})
		})

	go guideCtl.Run(ctx)

	if err := startSampler(ctx, cfg, guideCtl, routeTracker); err != nil {
		return err
	}

	return runServer(ctx, cfg, guideCtl, routeTracker, contentProv, sessionMgr, st)
}

// silentSpeaker stands in when no TTS engine is configured. Narrations are
// logged instead of spoken, which keeps development machines quiet.
type silentSpeaker struct{}

func (silentSpeaker) Speak(ctx context.Context, text, title string) error {
	slog.Info("narration (muted)", "title", title, "chars", len(text))
	return nil
}
func (silentSpeaker) IsSpeaking() bool { return false }
func (silentSpeaker) Stop()            {}

func initSpeaker(cfg *config.Config, tr *tracker.Tracker, sessionMgr *session.Manager) (guide.Speaker, func()) {
	if cfg.TTS.Engine != "google" {
		slog.Warn("no TTS engine configured, narrating to the log only", "engine", cfg.TTS.Engine)
		return silentSpeaker{}, func() {}
	}

	ttsProv := googletts.NewProvider(cfg.TTS, cfg.Language, tr)
	ttsProv.SetCharFunc(sessionMgr.AddTTSChars)

	player := audio.New()
	narrator := audio.NewNarrator(ttsProv, player, cfg.TTS.TmpDir)
	return narrator, player.Shutdown
}

func initRouting(cfg *config.Config, reqClient *request.Client) *routing.Selector {
	var primary, fallback routing.Provider
	if cfg.Routing.GoogleKey != "" {
		primary = routing.NewGoogle(reqClient, cfg.Routing.GoogleKey)
	} else {
		slog.Warn("no Google Maps key, relying on OSRM and straight-line routing")
	}
	if cfg.Routing.OSRMBase != "" {
		fallback = routing.NewOSRM(reqClient, cfg.Routing.OSRMBase)
	}
	regions := geo.NewRegionIndex(cfg.Regions)
	return routing.NewSelector(primary, fallback, regions, cfg.Route.WalkSpeedMS)
}

// startSampler launches the configured position source. The "ws" source is
// passive: fixes arrive through the API's websocket endpoint instead.
func startSampler(ctx context.Context, cfg *config.Config, guideCtl *guide.Controller, routeTracker *route.Tracker) error {
	sink := func(pos model.Position) {
		guideCtl.OnPosition(pos)
		routeTracker.OnPosition(ctx, pos)
	}

	var src sampler.Source
	switch cfg.Sampler.Source {
	case "", "ws":
		slog.Info("expecting position fixes over the API websocket")
		return nil
	case "remote":
		if cfg.Sampler.FeedURL == "" {
			return fmt.Errorf("sampler.feed_url is required for the remote source")
		}
		src = sampler.NewWebsocket(cfg.Sampler.FeedURL)
	case "mock":
		src = sampler.NewWalker(sampler.WalkerConfig{
			StartLat: cfg.Sampler.StartLat,
			StartLon: cfg.Sampler.StartLon,
			JitterM:  3,
		})
	default:
		return fmt.Errorf("unknown sampler source %q", cfg.Sampler.Source)
	}

	go func() {
		if err := src.Run(ctx, sink); err != nil && ctx.Err() == nil {
			slog.Error("position source stopped", "source", src.Name(), "error", err)
		}
	}()
	return nil
}

func runServer(ctx context.Context, cfg *config.Config, guideCtl *guide.Controller, routeTracker *route.Tracker, contentProv *content.Provider, sessionMgr *session.Manager, st *store.Store) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	shutdownFunc := func() { quit <- syscall.SIGTERM }

	srv := api.NewServer(cfg.Server.Addr,
		api.NewTourHandler(guideCtl, routeTracker, contentProv),
		api.NewPositionHandler(guideCtl, routeTracker),
		api.NewStatusHandler(guideCtl, routeTracker, sessionMgr),
		api.NewPrefsHandler(st, cfg.Language),
		shutdownFunc)
	srv.Handler = loggingMiddleware(srv.Handler)

	slog.Info("Starting server", "addr", srv.Addr)
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	select {
	case <-quit:
		slog.Info("Shutting down server...")
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}

	if guideCtl.Touring() {
		if _, err := guideCtl.StopTour(); err != nil {
			slog.Warn("failed to stop tour during shutdown", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("request processed", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
