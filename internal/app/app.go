package app

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/studymill/studymill-backend/internal/clients/gcp"
	"github.com/studymill/studymill-backend/internal/clients/openai"
	"github.com/studymill/studymill-backend/internal/db"
	"github.com/studymill/studymill-backend/internal/extract"
	httpx "github.com/studymill/studymill-backend/internal/http"
	httpH "github.com/studymill/studymill-backend/internal/http/handlers"
	"github.com/studymill/studymill-backend/internal/media"
	"github.com/studymill/studymill-backend/internal/observability"
	"github.com/studymill/studymill-backend/internal/pipeline"
	"github.com/studymill/studymill-backend/internal/platform/logger"
	"github.com/studymill/studymill-backend/internal/progress"
	"github.com/studymill/studymill-backend/internal/repos"
	"github.com/studymill/studymill-backend/internal/storage"
	"github.com/studymill/studymill-backend/internal/structurer"
	"github.com/studymill/studymill-backend/internal/transcribe"
)

type App struct {
	Log    *logger.Logger
	DB     *gorm.DB
	Router *gin.Engine
	Cfg    Config

	Worker *pipeline.Worker
	Runner *pipeline.Runner

	bus         progress.Bus
	hub         *progress.Hub
	cancel      context.CancelFunc
	stopTracing func(context.Context) error
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	cfg := LoadConfig(log)

	stopTracing, err := observability.Init(context.Background(), log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()

	store, err := storage.NewGCSStore(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init object store: %w", err)
	}

	jobRepo := repos.NewJobRepo(theDB, log)

	// Progress fan-out: bus across processes, hub to connected SSE clients.
	hub := progress.NewHub(log)
	var sink progress.Sink
	bus, err := progress.NewRedisBus(log)
	if err != nil {
		log.Warn("progress bus unavailable; events stay in-process", "error", err)
		bus = nil
		sink = progress.NewHubSink(hub)
	} else {
		sink = progress.NewBusSink(log, bus)
	}

	// Media path.
	prober := media.NewProber(log)
	normCfg := media.DefaultNormalizerConfig()
	normCfg.ChunkSeconds = float64(cfg.ChunkMinutes * 60)
	normalizer := media.NewNormalizer(log, prober, normCfg)

	provider, err := transcribe.NewProvider(log, cfg.TranscribeProvider)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init transcription provider: %w", err)
	}
	transcriber, err := transcribe.NewTranscriber(log, provider, transcribe.DefaultTranscriberConfig())
	if err != nil {
		log.Sync()
		return nil, err
	}

	// Document path.
	extractor, err := extract.NewDocumentExtractor(log)
	if err != nil {
		log.Sync()
		return nil, err
	}
	vision, err := gcp.NewVision(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init vision client: %w", err)
	}
	ocr, err := extract.NewOCREngine(log, vision)
	if err != nil {
		log.Sync()
		return nil, err
	}
	assessor := extract.NewQualityAssessor(extract.DefaultQualityThresholds())
	docs, err := extract.NewDocumentPipeline(log, extractor, ocr, assessor, extract.DefaultDocumentPipelineConfig())
	if err != nil {
		log.Sync()
		return nil, err
	}

	// Structuring.
	llm, err := openai.NewClient(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init llm client: %w", err)
	}
	textStructurer, err := structurer.NewStructurer(log, llm)
	if err != nil {
		log.Sync()
		return nil, err
	}

	runner, err := pipeline.NewRunner(log, pipeline.RunnerDeps{
		Jobs:        jobRepo,
		Store:       store,
		Normalizer:  normalizer,
		Transcriber: transcriber,
		Docs:        docs,
		Structurer:  textStructurer,
		Sink:        sink,
	})
	if err != nil {
		log.Sync()
		return nil, err
	}
	worker, err := pipeline.NewWorker(log, runner)
	if err != nil {
		log.Sync()
		return nil, err
	}

	router := httpx.NewRouter(httpx.RouterConfig{
		JobHandler:    httpH.NewJobHandler(log, jobRepo, store, runner, worker),
		EventsHandler: httpH.NewEventsHandler(log, hub),
		HealthHandler: httpH.NewHealthHandler(log),
	})

	return &App{
		Log:         log,
		DB:          theDB,
		Router:      router,
		Cfg:         cfg,
		Worker:      worker,
		Runner:      runner,
		bus:         bus,
		hub:         hub,
		stopTracing: stopTracing,
	}, nil
}

// Start launches the worker pool and the bus-to-hub forwarder.
func (a *App) Start() error {
	if a == nil || a.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.Worker.Start(ctx)

	if a.bus != nil {
		if err := a.bus.StartForwarder(ctx, a.hub.Broadcast); err != nil {
			return fmt.Errorf("start progress forwarder: %w", err)
		}
	}
	return nil
}

func (a *App) Run() error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Router.Run(a.Cfg.HTTPAddr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.bus != nil {
		_ = a.bus.Close()
	}
	if a.stopTracing != nil {
		_ = a.stopTracing(context.Background())
		a.stopTracing = nil
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
