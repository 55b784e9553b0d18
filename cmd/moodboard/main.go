package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"moodboard/internal/capture"
	"moodboard/internal/config"
	"moodboard/internal/export"
	"moodboard/internal/logging"
	"moodboard/internal/server"
	"moodboard/internal/store"
	"moodboard/internal/storyboard"
	"moodboard/internal/trip"
)

var Version = "0.1.0"

const usage = `usage: moodboard [-config path] [-log-level level] <command> [args]

commands:
  video <trip>                 render the trip as a video
  storyboard [-format f] <trip> render day sheets as png, webp or pdf
  import <trip.json>           save a trip file into the local store
  list                         list stored trips and recent exports
  probe                        show the video encoders available
  serve                        run the local HTTP API

<trip> is a trip JSON file, a stored trip id or a stored trip slug.
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Fatalf("fatal error: %v", err)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("moodboard", flag.ContinueOnError)
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	configPath := fs.String("config", config.DefaultSettingsPath(), "settings file")
	logLevel := fs.String("log-level", "", "override the configured log level")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return flag.ErrHelp
	}

	settings, err := config.LoadSettings(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	if *logLevel != "" {
		settings.LogLevel = *logLevel
	}
	if err := settings.Validate(); err != nil {
		return err
	}

	logger := logging.NewLogger(settings.LogLevel, settings.LogFormat)
	logger.Debug("settings loaded", "path", logging.SanitizePath(*configPath), "data_dir", logging.SanitizePath(settings.DataDir))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(settings, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "video":
		return runVideo(ctx, app, rest)
	case "storyboard":
		return runStoryboard(ctx, app, rest)
	case "import":
		return runImport(ctx, app, rest)
	case "list":
		return runList(ctx, app, os.Stdout)
	case "probe":
		fmt.Println(capture.Probe(ctx, settings.FFmpegPath).Describe())
		return nil
	case "serve":
		return runServe(ctx, app)
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// resolveTrip reads a trip file, or looks the argument up by id then slug.
// The returned directory anchors relative media paths.
func resolveTrip(ctx context.Context, app *App, arg string) (trip.Trip, string, error) {
	if info, err := os.Stat(arg); err == nil && !info.IsDir() {
		f, err := os.Open(arg)
		if err != nil {
			return trip.Trip{}, "", err
		}
		defer f.Close()
		t, err := trip.Decode(f)
		if err != nil {
			return trip.Trip{}, "", err
		}
		if t.ID == "" {
			t.ID = trip.Slugify(t.Title)
		}
		if t.ID == "" {
			t.ID = "untitled"
		}
		return t, filepath.Dir(arg), nil
	}

	t, err := app.store.GetTrip(ctx, arg)
	if errors.Is(err, store.ErrNotFound) {
		t, err = app.store.GetTripBySlug(ctx, arg)
	}
	if err != nil {
		return trip.Trip{}, "", fmt.Errorf("trip %q: %w", arg, err)
	}
	return t, "", nil
}

func runVideo(ctx context.Context, app *App, args []string) error {
	fs := flag.NewFlagSet("video", flag.ContinueOnError)
	outDir := fs.String("o", app.settings.OutputDir, "output directory")
	formats := fs.String("formats", "", "comma separated containers to allow, in order of preference")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("video: expected exactly one trip")
	}
	if *formats != "" {
		app.settings.Formats = strings.Split(*formats, ",")
		if err := app.settings.Validate(); err != nil {
			return err
		}
	}

	t, baseDir, err := resolveTrip(ctx, app, fs.Arg(0))
	if err != nil {
		return err
	}
	loader, err := app.loader(baseDir)
	if err != nil {
		return err
	}

	progress := newProgressPrinter(os.Stderr, "video")
	orch := app.videoExporter(ctx, loader, export.Callbacks{OnProgress: progress.update})
	fmt.Fprintf(os.Stderr, "exporting %q (about %s of playback)\n", t.Title, orch.Estimate(t))

	res, err := orch.Export(ctx, t)
	progress.done()
	if err != nil {
		if msg := export.Message(err); msg != err.Error() {
			return fmt.Errorf("%s: %w", msg, err)
		}
		return err
	}
	path, err := publish(app, res.URL, *outDir, res.Filename)
	if err != nil {
		return err
	}
	fmt.Printf("%s (%s, %d frames, %d bytes)\n", path, res.Codec, res.Frames, res.Size)
	return nil
}

func runStoryboard(ctx context.Context, app *App, args []string) error {
	fs := flag.NewFlagSet("storyboard", flag.ContinueOnError)
	outDir := fs.String("o", app.settings.OutputDir, "output directory")
	format := fs.String("format", "png", "png, webp or pdf")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("storyboard: expected exactly one trip")
	}
	f, err := storyboard.ParseFormat(*format)
	if err != nil {
		return err
	}

	t, baseDir, err := resolveTrip(ctx, app, fs.Arg(0))
	if err != nil {
		return err
	}
	loader, err := app.loader(baseDir)
	if err != nil {
		return err
	}

	progress := newProgressPrinter(os.Stderr, "storyboard")
	res, err := app.storyboardExporter(loader).Export(ctx, t, f, progress.update)
	progress.done()
	if err != nil {
		return err
	}
	path, err := publish(app, res.URL, *outDir, res.Filename)
	if err != nil {
		return err
	}
	fmt.Printf("%s (%d days, %d bytes)\n", path, res.Days, res.Size)
	return nil
}

// publish moves a finished blob into outDir under its download name.
func publish(app *App, url, outDir, filename string) (string, error) {
	id, ok := app.blobs.IDFromURL(url)
	if !ok {
		return "", fmt.Errorf("unexpected output url %q", url)
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}
	dst := filepath.Join(outDir, strings.ReplaceAll(filename, string(os.PathSeparator), "-"))
	if err := moveFile(app.blobs.Path(id), dst); err != nil {
		return "", err
	}
	if err := app.blobs.Revoke(id); err != nil {
		app.logger.Warn("failed to revoke blob", "blob_id", id, "error", err)
	}
	return dst, nil
}

func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open output: %w", err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy output: %w", err)
	}
	return out.Close()
}

func runImport(ctx context.Context, app *App, args []string) error {
	if len(args) != 1 {
		return errors.New("import: expected exactly one trip file")
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	t, err := trip.Decode(f)
	if err != nil {
		return err
	}
	if err := app.store.SaveTrip(ctx, &t); err != nil {
		return err
	}
	fmt.Printf("%s\t%s\n", t.ID, trip.Slugify(t.Title))
	return nil
}

func runList(ctx context.Context, app *App, w io.Writer) error {
	trips, err := app.store.ListTrips(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSLUG\tTITLE\tDAYS\tITEMS\tUPDATED")
	for _, s := range trips {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n", s.ID, s.Slug, s.Title, s.Days, s.Items, s.UpdatedAt.Local().Format(time.DateTime))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	recent, err := app.store.ListJobs(ctx, 10)
	if err != nil {
		return err
	}
	if len(recent) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EXPORT\tKIND\tTRIP\tSTATUS\tFILE")
	for _, j := range recent {
		detail := j.Filename
		if j.Error != "" {
			detail = j.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", j.ID[:8], j.Kind, j.TripTitle, j.Status, detail)
	}
	return tw.Flush()
}

func runServe(ctx context.Context, app *App) error {
	loader, err := app.loader(app.settings.DataDir)
	if err != nil {
		return err
	}
	srv := server.New(server.Config{
		Addr:        app.settings.ServerAddr,
		Store:       app.store,
		Blobs:       app.blobs,
		Videos:      app.videoExporter(ctx, loader, export.Callbacks{}),
		Storyboards: app.storyboardExporter(loader),
		Context:     ctx,
		Logger:      app.logger,
		Version:     Version,
	})
	if err := srv.Start(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "moodboard %s listening on %s\n", Version, srv.URL())

	<-ctx.Done()
	app.logger.Info("initiating graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// progressPrinter redraws a single percentage line.
type progressPrinter struct {
	w     io.Writer
	label string
	last  int
}

func newProgressPrinter(w io.Writer, label string) *progressPrinter {
	return &progressPrinter{w: w, label: label, last: -1}
}

func (p *progressPrinter) update(percent int) {
	if percent == p.last {
		return
	}
	p.last = percent
	fmt.Fprintf(p.w, "\r%s: %3d%%", p.label, percent)
}

func (p *progressPrinter) done() {
	if p.last >= 0 {
		fmt.Fprintln(p.w)
	}
}
