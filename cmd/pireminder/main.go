package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"pireminder/internal/app"
	"pireminder/internal/backend"
	"pireminder/internal/button"
	"pireminder/internal/capture"
	"pireminder/internal/chat"
	"pireminder/internal/config"
	"pireminder/internal/google"
	"pireminder/internal/ics"
	appLog "pireminder/internal/log"
	"pireminder/internal/news"
	"pireminder/internal/notify"
	"pireminder/internal/reminder"
	"pireminder/internal/store"
	"pireminder/internal/voice"
	"pireminder/internal/web"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	once       bool
	noVoice    bool
	dump       bool
	debug      bool
}

func main() {
	appLog.Info("pireminder starting", "version", "0.1.0")

	flags := parseFlags()

	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
	}

	// .env is optional; it carries API keys (OPENAI_API_KEY etc.) so they
	// stay out of the config file.
	if err := godotenv.Load(); err == nil {
		appLog.Info("loaded .env")
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.noVoice {
		conf.TTS.Enabled = false
		conf.Speech.Command = ""
	}

	loc := resolveLocation(conf.Timezone)

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", loc.String(),
		"source", conf.Source,
		"refresh", conf.RefreshCron,
		"tick_seconds", conf.Reminder.TickSeconds,
		"tts_enabled", conf.TTS.Enabled,
		"chatbot_enabled", conf.Chatbot.Enabled,
		"once", flags.once,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	// Event source.
	source, markTriggered, err := buildSource(ctx, conf, loc)
	if err != nil {
		appLog.Error("failed to initialize event source", err, "source", conf.Source)
		os.Exit(1)
	}

	eventStore := store.New(source, loc)

	speech := notify.NewSpeech(conf.TTS)
	defer speech.Close()

	scheduler := reminder.NewScheduler(reminder.WindowsFromConfig(conf.Reminder), speech)
	chatbot := chat.NewClient(conf.Chatbot)

	controller := app.New(conf, loc, app.Options{
		Store:         eventStore,
		Scheduler:     scheduler,
		Speaker:       speech,
		Chatbot:       chatbot,
		MarkTriggered: markTriggered,
	})

	if flags.once {
		runOnce(ctx, controller, eventStore)
		return
	}

	// HTTP dashboard + API.
	server := web.NewServer(conf, controller, news.NewFetcher(conf.News), flags.debug)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
		if err := http.ListenAndServe(conf.Listen, server.Handler()); err != nil {
			appLog.Error("HTTP server exited", err)
			cancel()
		}
	}()

	// Voice input.
	listener := voice.NewListener(conf.Speech, controller.HandleTranscript)
	go listener.Run(ctx)

	// Physical stop button.
	watcher := button.DefaultWatcher(conf.Button.Pin)
	go func() {
		if err := watcher.Watch(ctx, controller.StopAll); err != nil && ctx.Err() == nil {
			appLog.Error("stop button watcher failed", err, "pin", conf.Button.Pin)
		}
	}()

	if flags.dump {
		go dumpPreview(ctx, conf, flags.debug)
	}

	if err := controller.Run(ctx); err != nil && ctx.Err() == nil {
		appLog.Error("evaluation loop failed", err)
		os.Exit(1)
	}

	// Give in-flight speech a moment to wind down.
	time.Sleep(100 * time.Millisecond)
	appLog.Info("pireminder exiting")
}

// buildSource constructs the configured event source. For the backend
// source, the returned write-back function reports dismissed events
// upstream; other sources have nowhere to write back to.
func buildSource(ctx context.Context, conf *config.Config, loc *time.Location) (store.Source, func(context.Context, string) error, error) {
	switch conf.Source {
	case "google":
		src, err := google.NewSource(ctx, conf.Google, loc)
		if err != nil {
			return nil, nil, err
		}
		return src, nil, nil
	case "ics":
		return ics.NewSource(conf.ICS, loc), nil, nil
	default:
		fetcher := backend.NewFetcher(conf.Backend, loc)
		return fetcher, fetcher.MarkTriggered, nil
	}
}

// runOnce performs a single fetch + evaluation and prints the result.
func runOnce(ctx context.Context, controller *app.App, eventStore *store.Store) {
	if err := eventStore.Refresh(ctx, time.Now()); err != nil {
		appLog.Error("fetch failed", err)
		os.Exit(1)
	}

	for _, es := range controller.Tick(ctx, time.Now()) {
		fmt.Printf("%s  %-14s %s\n",
			es.Event.ScheduledTime.Format("15:04"),
			es.Status,
			es.Event.Title,
		)
	}
}

// dumpPreview captures the dashboard once the server has had a moment to
// come up, for headless inspection of what the screen shows.
func dumpPreview(ctx context.Context, conf *config.Config, debug bool) {
	time.Sleep(3 * time.Second)

	outPath := "/var/lib/pireminder/preview.png"
	if debug {
		_ = os.MkdirAll("./cache", 0o755)
		outPath = "./cache/preview.png"
	}

	err := capture.DashboardPNG(ctx, capture.Options{
		URL:        "http://" + conf.Listen + "/",
		OutputPath: outPath,
	})
	if err != nil {
		appLog.Error("dashboard capture failed", err)
		return
	}
	appLog.Info("dashboard preview written", "path", outPath)
}

func resolveLocation(name string) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Warn("invalid timezone, using system local", "timezone", name)
		return time.Local
	}
	return loc
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/pireminder/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one fetch+evaluate cycle, print statuses and exit")
	flag.BoolVar(&cfg.noVoice, "no-voice", false, "Disable TTS output and voice recognition")
	flag.BoolVar(&cfg.dump, "dump", false, "Capture a dashboard preview PNG after startup")
	flag.BoolVar(&cfg.debug, "debug", false, "Debug logging and local cache paths")

	flag.Parse()

	return cfg
}
