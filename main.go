package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"camtrap/catalog"
	"camtrap/classify"
	"camtrap/config"
	"camtrap/filter"
	"camtrap/notify"
	"camtrap/output"
	"camtrap/serve"
	"camtrap/util"
	"camtrap/video"
	"camtrap/video/source"
)

var (
	port       = flag.Int("port", 8080, "Port to host web frontend.")
	configPath = flag.String("config", "camtrap.json", "Path to the settings file.")
	replayDir  = flag.String("replay", "", "Replay a recorded event directory instead of attaching a camera.")
	prototxt   = flag.String("model_prototxt", "", "MobileNet SSD network definition. Empty keeps every event.")
	weights    = flag.String("model_weights", "", "MobileNet SSD weights.")
	verbose    = flag.Bool("verbose", false, "Enable debug logging.")
	warmup     = flag.Duration("warmup", 5*time.Second, "Camera settle time before motion monitoring starts.")
)

// keepAll confirms every event. Used when no model is configured, turning
// the trap into a plain motion-triggered recorder.
type keepAll struct{}

func (keepAll) Run([]byte) (classify.Result, error) {
	return classify.Result{Animal: true}, nil
}

// teeHandler fans the camera streams into the recorder and mirrors raw
// frames to the live preview.
type teeHandler struct {
	rec     *video.Recorder
	preview *serve.Preview
}

func (t *teeHandler) HandleMotion(vectors []byte, ts time.Time) {
	t.rec.HandleMotion(vectors, ts)
}

func (t *teeHandler) HandleVideo(chunk []byte, kind video.FrameKind, ts time.Time) {
	t.rec.HandleVideo(chunk, kind, ts)
}

func (t *teeHandler) HandleRaw(frame []byte, ts time.Time) {
	t.rec.HandleRaw(frame, ts)
	t.preview.HandleFrame(frame)
}

func newClassifier(settings *config.Settings) classify.Classifier {
	if *prototxt == "" || *weights == "" {
		log.Warnf("No detector model configured, keeping all motion events")
		return keepAll{}
	}
	proto, err := os.ReadFile(*prototxt)
	if err != nil {
		log.Fatalf("Cannot read model definition: %v", err)
	}
	model, err := os.ReadFile(*weights)
	if err != nil {
		log.Fatalf("Cannot read model weights: %v", err)
	}
	dnn, err := classify.NewDNN(proto, model, settings.Camera, settings.Animal)
	if err != nil {
		log.Fatalf("Cannot load detector: %v", err)
	}
	return dnn
}

func main() {
	flag.Parse()
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	settings, err := config.FromFile(*configPath)
	if err != nil {
		log.Fatalf("Cannot load configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ffmpeg, err := util.LocateFFmpeg()
	if err != nil {
		log.Warnf("No ffmpeg binary found, events will not be remuxed to mp4: %v", err)
		ffmpeg = ""
	}

	store, err := video.NewEventStore(settings.Output.BasePath)
	if err != nil {
		log.Fatalf("Cannot open event store: %v", err)
	}
	cat, err := catalog.Open(settings.Output.DatabasePath)
	if err != nil {
		log.Fatalf("Cannot open event catalog: %v", err)
	}

	// Capture side: motion scoring and the three ring buffers.
	mf, err := filter.NewMotionFilter(settings.Motion, float64(settings.Camera.Framerate))
	if err != nil {
		log.Fatalf("Cannot build motion filter: %v", err)
	}
	rows, cols := settings.Camera.VectorGrid()
	motionBuf := video.NewMotionBuffer(mf, video.MotionBufferOptions{
		Rows:           rows,
		Cols:           cols,
		Framerate:      settings.Camera.Framerate,
		BufferSeconds:  settings.Processing.BufferSeconds,
		ContextLengthS: settings.Processing.ContextLengthS,
		SoTVThreshold:  settings.Motion.SoTVThreshold,
	})
	videoBuf := video.NewVideoBuffer(video.VideoBufferOptions{
		BitrateBps:     settings.Processing.BitrateBps,
		BufferSeconds:  settings.Processing.BufferSeconds,
		Framerate:      settings.Camera.Framerate,
		ContextLengthS: settings.Processing.ContextLengthS,
	})
	rawBuf := video.NewRawBuffer(video.RawBufferOptions{
		FrameSize:      settings.Camera.RawFrameSize(),
		Framerate:      settings.Camera.Framerate,
		BufferSeconds:  settings.Processing.BufferSeconds,
		ContextLengthS: settings.Processing.ContextLengthS,
	})
	go motionBuf.Run()
	defer motionBuf.Close()

	rec := video.NewRecorder(motionBuf, videoBuf, rawBuf, store, video.RecorderOptions{
		ContextLength:  time.Duration(settings.Processing.ContextLengthS * float64(time.Second)),
		MaxEventLength: time.Duration(settings.Processing.MaxSequencePeriodS * float64(time.Second)),
		BufferDuration: time.Duration(settings.Processing.BufferSeconds) * time.Second,
		Warmup:         *warmup,
		FlushOnFill:    settings.Processing.FlushOnFill,
		DropOldest:     settings.Processing.DropOldestEvent,
	})
	go func() {
		if err := rec.Run(ctx); err != nil && ctx.Err() == nil {
			log.Fatalf("Recorder failed: %v", err)
		}
	}()

	// Confirmation side: index finished events and run the animal filter.
	indexer := filter.NewIndexer(settings.Camera.RawFrameSize(), rec.Events(), 0)
	processor := filter.NewProcessor(newClassifier(settings), settings.Processing.DetectorFraction)
	animalFilter := filter.NewEventFilter(indexer, processor, store, 0)
	go indexer.Run(ctx)
	go animalFilter.Run(ctx)

	// Output side: remux, catalog, notify.
	webPush, err := notify.NewWebPush(cat.DB())
	if err != nil {
		log.Fatalf("Cannot initialize web push: %v", err)
	}
	eventsWS := serve.NewEventUpdater()
	notifier := notify.NewNotifier(settings.Notify, webPush, eventsWS)

	sender := output.NewSender(output.SenderOptions{
		FFmpeg:    ffmpeg,
		Framerate: settings.Camera.Framerate,
		RawWidth:  settings.Camera.RawWidth,
		RawHeight: settings.Camera.RawHeight,
	}, animalFilter.Events(), cat, notifier)
	go sender.Run(ctx)

	// Attach the camera source. The preview taps the raw stream on its way
	// into the buffers.
	preview := serve.NewPreview(settings.Camera)
	var src source.Source
	if *replayDir != "" {
		src = source.NewReplay(*replayDir, settings.Camera)
	} else {
		log.Fatalf("No camera adapter configured; use -replay to drive the pipeline from a recorded event")
	}
	if err := src.Attach(&teeHandler{rec: rec, preview: preview}); err != nil {
		log.Fatalf("Cannot attach source: %v", err)
	}
	defer src.Close()

	// Threshold settings apply live on rewrite; geometry changes require a
	// restart since the buffers are sized from them.
	if err := config.Watch(ctx, *configPath, func(s *config.Settings) {
		if s.Camera != settings.Camera {
			log.Warnf("Camera geometry changed in configuration; restart to apply")
		}
		motionBuf.SetThreshold(s.Motion.SoTVThreshold)
		processor.SetFraction(s.Processing.DetectorFraction)
	}); err != nil {
		log.Fatalf("Cannot watch configuration: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/events", &serve.StatusServer{Catalog: cat, Pipeline: rec})
	mux.Handle("/eventsws", eventsWS)
	mux.Handle("/video", serve.NewVideoServer(settings.Output.BasePath))
	mux.Handle("/thumb", serve.NewThumbServer(settings.Output.BasePath))
	mux.Handle("/rawvideo", serve.NewRawVideoServer(settings.Output.BasePath))
	mux.Handle("/mjpeg", preview)
	mux.Handle("/delete", &serve.DeleteServer{Store: store, Catalog: cat, Updated: eventsWS.EventPublished})
	mux.Handle("/metrics", promhttp.Handler())
	// pprof registers itself on the default mux.
	mux.Handle("/debug/pprof/", http.DefaultServeMux)
	webPush.RegisterHandlers(mux)

	go func() {
		log.Infof("Hosting web frontend on port %d", *port)
		h := handlers.LoggingHandler(os.Stderr, mux)
		log.Errorf("%v", http.ListenAndServe(fmt.Sprintf(":%d", *port), h))
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigs
	log.Infof("Caught signal %v, shutting down", sig)
	cancel()
	sender.WaitStopped()
}
