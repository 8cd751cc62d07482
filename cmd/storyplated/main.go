// StoryPlated: recipes narrated by their characters, driven by voice.
//
// Usage:
//
//	storyplated [-config storyplated.yaml] [-voice] [-wakeword] [-verbose] [-quiet]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	stdlog "log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/hammamikhairi/storyplated/internal/config"
	"github.com/hammamikhairi/storyplated/internal/conversation"
	"github.com/hammamikhairi/storyplated/internal/display"
	"github.com/hammamikhairi/storyplated/internal/domain"
	"github.com/hammamikhairi/storyplated/internal/engine"
	"github.com/hammamikhairi/storyplated/internal/gpt"
	"github.com/hammamikhairi/storyplated/internal/logger"
	"github.com/hammamikhairi/storyplated/internal/observe"
	"github.com/hammamikhairi/storyplated/internal/recipe"
	"github.com/hammamikhairi/storyplated/internal/speech"
	"github.com/hammamikhairi/storyplated/internal/storage"
	"github.com/hammamikhairi/storyplated/internal/wakeword"
	"github.com/hammamikhairi/storyplated/internal/watcher"
)

const defaultConfigPath = "storyplated.yaml"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", defaultConfigPath, "path to the YAML config file")
	verbose := flag.Bool("verbose", false, "enable verbose/debug logging")
	quiet := flag.Bool("quiet", false, "disable all logging")
	logFile := flag.String("log-file", "", "file to write logs to (use \"stderr\" to log to console)")
	noSpeech := flag.Bool("no-speech", false, "disable narration even if Azure keys are set")
	noAI := flag.Bool("no-ai", false, "answer questions with the offline echo even if GPT keys are set")
	voice := flag.Bool("voice", false, "enable voice commands via local Whisper STT")
	wake := flag.Bool("wakeword", false, "re-arm the microphone with the wake word (needs -voice)")
	whisperBin := flag.String("whisper-bin", "", "path to the whisper-cpp CLI binary")
	whisperModel := flag.String("whisper-model", "", "path to the Whisper GGML model file")
	recipesFile := flag.String("recipes", "", "YAML recipe catalog (default: built-in recipes)")
	metricsAddr := flag.String("metrics-addr", "", "serve Prometheus metrics on this address")
	flag.Parse()

	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	cfg, err := loadConfig(*configPath, set["config"])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Flags override the file.
	if *verbose {
		cfg.Log.Level = "verbose"
	}
	if *quiet {
		cfg.Log.Level = "off"
	}
	if set["log-file"] {
		cfg.Log.File = *logFile
	}
	if *noSpeech {
		off := false
		cfg.Narration.Enabled = &off
	}
	if *noAI {
		off := false
		cfg.Assistant.Enabled = &off
	}
	if *voice {
		cfg.Speech.Enabled = true
	}
	if *wake {
		cfg.Wakeword.Enabled = true
	}
	if set["whisper-bin"] {
		cfg.Speech.WhisperBin = *whisperBin
	}
	if set["whisper-model"] {
		cfg.Speech.WhisperModel = *whisperModel
	}
	if set["recipes"] {
		cfg.Recipes.File = *recipesFile
	}
	if set["metrics-addr"] {
		cfg.Metrics.Addr = *metricsAddr
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid configuration:\n%v\n", err)
		os.Exit(1)
	}

	logLevel, _ := logger.ParseLevel(cfg.Log.Level)

	// Direct logs to a file by default so the prompt stays clean.
	var logOut io.Writer = os.Stderr
	if cfg.Log.File != "" && cfg.Log.File != "stderr" {
		if dir := filepath.Dir(cfg.Log.File); dir != "" && dir != "." {
			_ = os.MkdirAll(dir, 0o755)
		}
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not open log file %s: %v (falling back to stderr)\n", cfg.Log.File, err)
		} else {
			logOut = f
			defer f.Close()
		}
	}

	// Third-party libraries (the whisper transcriber among them) log
	// through the standard logger; keep them off the terminal.
	stdlog.SetOutput(logOut)
	stdlog.SetFlags(stdlog.Ltime)

	log := logger.New(logLevel, logOut)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, config.SecretsFromEnv(os.Getenv), log); err != nil {
		log.Error("%v", err)
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file. A missing default file means defaults.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil && !explicit && errors.Is(err, fs.ErrNotExist) {
		return config.LoadFromReader(strings.NewReader(""))
	}
	return cfg, err
}

func run(ctx context.Context, cfg *config.Config, secrets config.Secrets, log *logger.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Metrics: the provider must be installed before the first instrument.
	if cfg.Metrics.Addr != "" {
		shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
		if err != nil {
			return err
		}
		defer func() { _ = shutdown(context.Background()) }()
	}
	metrics := observe.DefaultMetrics()

	// Wire dependencies.
	var recipes domain.RecipeSource
	if cfg.Recipes.File != "" {
		recipes = recipe.NewFileSource(cfg.Recipes.File, log.Named("recipes"))
	} else {
		var opts []recipe.MemoryOption
		if cfg.Recipes.Latency > 0 {
			opts = append(opts, recipe.WithLatency(cfg.Recipes.Latency))
		}
		recipes = recipe.NewMemorySource(log.Named("recipes"), opts...)
	}
	store := storage.NewMemoryStore(log)
	ui := display.NewUI(store)
	notifier := conversation.NewCLINotifier(log, ui.Printf)

	eng := engine.New(recipes, store, log,
		engine.WithNarrator(narratorFactory(ctx, cfg, secrets, log)),
		engine.WithRecognizer(recognizerFactory(cfg, log)),
		engine.WithQuestionAnswerer(answerer(cfg, secrets, log)),
		engine.WithEngineMetrics(metrics),
	)
	// Every exit path (quit, Ctrl-C, SIGTERM, a failing goroutine) ends
	// here, so no session keeps the microphone or speaker.
	defer eng.StopAll(context.Background())

	app := &cliApp{
		engine:   eng,
		catalog:  engine.NewCatalog(recipes, log, metrics),
		parser:   conversation.NewKeywordParser(log),
		notifier: notifier,
		ui:       ui,
		log:      log,
		voiceOn:  cfg.Speech.Enabled,
	}

	if cfg.Wakeword.Enabled {
		wcfg := wakeword.Config{
			WakewordModel:  cfg.Wakeword.Model,
			MelspecModel:   cfg.Wakeword.MelspecModel,
			EmbeddingModel: cfg.Wakeword.EmbeddingModel,
			OnnxLib:        cfg.Wakeword.OnnxLib,
			Threshold:      cfg.Wakeword.Threshold,
		}
		if err := wcfg.Validate(); err != nil {
			log.Warn("wake word disabled: %v", err)
		} else {
			app.detector = wakeword.New(wcfg, log.Named("wakeword"), func() { app.onWakeWord(ctx) })
		}
	}

	fmt.Println(display.RenderBanner(conversation.LineTagline()))
	switch {
	case app.detector != nil:
		fmt.Println(display.BannerStyle.Render("  Voice mode ON. Say the wake word to re-arm the mic, or type commands."))
	case app.voiceOn:
		fmt.Println(display.BannerStyle.Render("  Voice mode ON. Type 'listen' to re-arm the mic."))
	default:
		fmt.Println(display.BannerStyle.Render("  Type 'help' for commands, 'quit' to exit."))
	}
	fmt.Println()

	g, gctx := errgroup.WithContext(ctx)

	// Bubble Tea owns the terminal; when it exits everything else stops.
	g.Go(func() error {
		defer cancel()
		if err := ui.Run(); err != nil {
			return fmt.Errorf("display: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		ui.WaitReady()
		defer ui.Quit()
		return app.run(gctx)
	})

	w := watcher.New(store, notifier, log.Named("watcher"), watcher.WithInterval(cfg.Watcher.Interval))
	g.Go(func() error { return w.Run(gctx) })

	if app.detector != nil {
		g.Go(func() error {
			// Losing the wake word is not fatal; listen still works.
			if err := app.detector.Run(gctx); err != nil {
				log.Error("wake word stopped: %v", err)
			}
			return nil
		})
	}

	if cfg.Metrics.Addr != "" {
		g.Go(func() error {
			if err := observe.Serve(gctx, cfg.Metrics.Addr, log.Named("metrics")); err != nil {
				log.Error("%v", err)
			}
			return nil
		})
	}

	return g.Wait()
}

// narratorFactory builds each session's narrator in the recipe character's
// voice, or a silent sink when narration is off.
func narratorFactory(ctx context.Context, cfg *config.Config, secrets config.Secrets, log *logger.Logger) engine.NarratorFactory {
	silent := func(domain.Recipe) (domain.NarrationSink, error) {
		return speech.NewSilent(log.Named("narrator")), nil
	}

	if !cfg.NarrationEnabled() {
		return silent
	}
	if !secrets.HasSpeech() {
		log.Info("narration disabled: set %s and %s env vars to enable", config.EnvAzureSpeechKey, config.EnvAzureSpeechRegion)
		return silent
	}

	player, err := speech.NewPlayer(log)
	if err != nil {
		log.Error("audio player init failed, narration disabled: %v", err)
		return silent
	}
	synth := speech.NewAzureClient(secrets.AzureSpeechKey, secrets.AzureSpeechRegion, log)
	cache := speech.NewAudioCache(cfg.Narration.CacheDir, cfg.DiskCache(), log)
	voices := speech.VoiceMap(cfg.Narration.Voices)
	log.Info("narration enabled (region=%s)", secrets.AzureSpeechRegion)

	return func(r domain.Recipe) (domain.NarrationSink, error) {
		voice := voices.ResolveOr(r.Character.VoiceID, cfg.Narration.DefaultVoice)
		n := speech.NewNarrator(synth, player, cache, voice, log.Named("narrator"))

		steps := make([]string, len(r.Steps))
		for i, s := range r.Steps {
			steps[i] = s.Instruction
		}
		n.Prefetch(ctx, steps...)
		return n, nil
	}
}

// recognizerFactory builds each session's Ear, or a source that always
// fails to start when voice input is off.
func recognizerFactory(cfg *config.Config, log *logger.Logger) engine.RecognizerFactory {
	if !cfg.Speech.Enabled {
		return func(domain.NarrationSink) (domain.RecognitionSource, error) {
			return speech.NewDisabled(), nil
		}
	}

	sc := cfg.Speech
	if err := os.MkdirAll(sc.TempDir, 0o755); err != nil {
		log.Warn("creating %s: %v", sc.TempDir, err)
	}
	log.Info("voice input enabled (bin=%s, model=%s, chunk=%s)", sc.WhisperBin, sc.WhisperModel, sc.Chunk)

	return func(sink domain.NarrationSink) (domain.RecognitionSource, error) {
		rec := speech.NewWhisperRecorder(sc.WhisperBin, sc.WhisperModel, sc.TempDir, log.Named("whisper"))
		opts := []speech.EarOption{
			speech.WithChunkDuration(sc.Chunk),
			speech.WithSilenceWindow(sc.SilenceWindow),
			speech.WithPreflight(
				speech.CheckWhisper(sc.WhisperBin, sc.WhisperModel),
				speech.ProbeCapture(log),
			),
		}
		if g, ok := sink.(speech.EchoGuard); ok {
			opts = append(opts, speech.WithEchoGuard(g))
		}
		return speech.NewEar(rec, log.Named("ear"), opts...), nil
	}
}

// answerer returns the chat-backed character agent, or the offline echo.
func answerer(cfg *config.Config, secrets config.Secrets, log *logger.Logger) domain.Answerer {
	echo := gpt.NewEcho(gpt.DefaultEchoDelay, log)

	if !cfg.AssistantEnabled() {
		return echo
	}
	if !secrets.HasGPT() {
		log.Info("chat assistant disabled: set %s and %s env vars to enable", config.EnvGPTKey, config.EnvGPTEndpoint)
		return echo
	}

	model := cfg.Assistant.Model
	if secrets.GPTModel != "" {
		model = secrets.GPTModel
	}
	opts := []gpt.ClientOption{
		gpt.WithModel(model),
		gpt.WithHTTPTimeout(cfg.Assistant.Timeout),
	}
	if secrets.GPTAPIVersion != "" {
		opts = append(opts, gpt.WithAzure(secrets.GPTAPIVersion))
	}

	client, err := gpt.NewClient(secrets.GPTEndpoint, secrets.GPTKey, log, opts...)
	if err != nil {
		log.Error("chat client: %v; falling back to echo", err)
		return echo
	}
	log.Info("chat assistant enabled (model=%s)", model)
	return gpt.NewAgent(client, log)
}
