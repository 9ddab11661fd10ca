// Command reco runs the offline R0->DL2 reconstruction pipeline against a
// single event-stream file, a directory of them, or merges a set of already
// written output groups into one.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
	"github.com/alitto/pond"
	"github.com/urfave/cli/v2"

	"github.com/telarray/reco"
	"github.com/telarray/reco/search"
)

// process runs the full pipeline against a single event-stream file,
// writing one output group.
func process(inputURI, configURI, outputURI string, overwrite bool) error {
	cfg, err := reco.LoadConfig(configURI)
	if err != nil {
		return err
	}
	if outputURI != "" {
		cfg.DataWriter.OutputPath = outputURI
	}
	if overwrite {
		cfg.DataWriter.OverwriteExisting = true
	}

	tdbCfg, err := tiledb.NewConfig()
	if err != nil {
		return err
	}
	defer tdbCfg.Free()

	ctx, err := tiledb.NewContext(tdbCfg)
	if err != nil {
		return err
	}
	defer ctx.Free()

	return processOne(ctx, inputURI, cfg)
}

// processOne runs the calibration/image/shower stages over every event of
// one file and writes the result, using an already-constructed context so
// that callers (e.g. the trawl command) can share it across a worker pool.
func processOne(ctx *tiledb.Context, inputURI string, cfg reco.Config) error {
	log.Println("Processing:", inputURI)

	src, err := reco.NewArraySource(ctx, inputURI, cfg.EventSource)
	if err != nil {
		return errors.Join(err, errors.New("opening event stream: "+inputURI))
	}
	defer src.Close()

	calibrator, err := reco.NewCalibrator(src.Subarray, cfg.Calibrator)
	if err != nil {
		return err
	}
	imageProcessor, err := reco.NewImageProcessor(src.Subarray, cfg.ImageProcessor.ImageCleanerType, cfg.ImageProcessor.TailcutsCleaner)
	if err != nil {
		return err
	}
	selector, err := cfg.ShowerProcessor.BuildShowerSelector()
	if err != nil {
		return err
	}

	reconstructorTypes := cfg.ShowerProcessor.ReconstructorTypes
	if len(reconstructorTypes) == 0 {
		reconstructorTypes = []string{"HillasReconstructor"}
	}
	showerProcessors := make([]*reco.ShowerProcessor, len(reconstructorTypes))
	for i, name := range reconstructorTypes {
		showerProcessors[i] = reco.NewShowerProcessor(src.Subarray, name, selector)
	}

	writer := reco.NewDataWriter(ctx, cfg.DataWriter)
	if err := writer.Open(src.Subarray); err != nil {
		return err
	}

	count := 0
	for {
		event, err := src.Next()
		if errors.Is(err, reco.ErrEndOfStream) {
			break
		}
		if err != nil {
			return errors.Join(err, errors.New("reading event from: "+inputURI))
		}

		calibrator.Process(event)
		imageProcessor.Process(event)
		for _, sp := range showerProcessors {
			sp.Process(event)
		}

		if err := writer.WriteEvent(event); err != nil {
			return err
		}
		count++
	}

	if err := writer.Close(); err != nil {
		return err
	}
	log.Println("Finished:", inputURI, "events:", count)
	return nil
}

// processTrawl discovers every event-stream file under uri and processes
// each into its own sibling output group, spreading the work across a fixed
// worker pool sized to the host.
func processTrawl(uri, configURI, outdirURI string) error {
	tdbCfg, err := tiledb.NewConfig()
	if err != nil {
		return err
	}
	defer tdbCfg.Free()

	ctx, err := tiledb.NewContext(tdbCfg)
	if err != nil {
		return err
	}
	defer ctx.Free()

	log.Println("Searching uri:", uri)
	items, err := search.FindEventFiles(ctx, uri)
	if err != nil {
		return err
	}
	log.Println("Number of event files to process:", len(items))

	baseCfg, err := reco.LoadConfig(configURI)
	if err != nil {
		return err
	}

	// A Ctrl+C mid-trawl lets in-flight files finish rather than corrupting
	// their output groups; queued-but-unstarted files are simply dropped.
	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	n := runtime.NumCPU() * 2
	pool := pond.New(n, 0, pond.MinWorkers(n), pond.Context(runCtx))
	defer pool.StopAndWait()

	failures := make(chan error, len(items))
	for _, name := range items {
		itemURI := name
		cfg := baseCfg
		dir, file := filepath.Split(itemURI)
		if outdirURI != "" {
			dir = outdirURI
		}
		cfg.DataWriter.OutputPath = filepath.Join(dir, file+".reco")

		pool.Submit(func() {
			if err := processOne(ctx, itemURI, cfg); err != nil {
				failures <- err
			}
		})
	}
	pool.StopAndWait()
	close(failures)

	var joined error
	for err := range failures {
		joined = errors.Join(joined, err)
	}
	return joined
}

// merge combines a set of already-written output groups into one, summing
// each input's stored run-level statistics.
func merge(inputs []string, outputURI string, overwrite bool) error {
	if len(inputs) == 0 {
		return errors.Join(reco.ErrInvalidConfig, errors.New("merge: no inputs given"))
	}

	tdbCfg, err := tiledb.NewConfig()
	if err != nil {
		return err
	}
	defer tdbCfg.Free()

	ctx, err := tiledb.NewContext(tdbCfg)
	if err != nil {
		return err
	}
	defer ctx.Free()

	outputCfg := reco.DataWriterConfig{
		OutputPath:        outputURI,
		WriteLevels:       []string{"dl0", "dl1", "dl2"},
		OverwriteExisting: overwrite,
	}

	stats, err := reco.MergeFiles(ctx, inputs, outputCfg)
	if err != nil {
		return err
	}
	log.Println("Merged", len(inputs), "inputs into", outputURI, "- events processed:", stats.EventsProcessed)
	return nil
}

func main() {
	os.Exit(run(os.Args))
}

// run wires the CLI surface and maps errors to the documented exit codes:
// 0 on success, 1 on argument error, 2 on processing error.
func run(args []string) int {
	app := &cli.App{
		Name:  "reco",
		Usage: "offline R0 -> DL2 reconstruction for a ground-based imaging array",
		Commands: []*cli.Command{
			{
				Name:  "process",
				Usage: "run the pipeline against a single event-stream file",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "URI or pathname to an event-stream file."},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "URI or pathname for the output group."},
					&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "URI or pathname to a JSON pipeline configuration."},
					&cli.BoolFlag{Name: "overwrite", Usage: "Overwrite an existing output group."},
				},
				Action: func(cCtx *cli.Context) error {
					input := cCtx.String("input")
					if input == "" {
						return errors.Join(reco.ErrInvalidConfig, errors.New("process: --input is required"))
					}
					return process(input, cCtx.String("config"), cCtx.String("output"), cCtx.Bool("overwrite"))
				},
			},
			{
				Name:  "process-trawl",
				Usage: "discover and process every event-stream file under a directory",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "uri", Usage: "URI or pathname to a directory of event-stream files."},
					&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "URI or pathname to a JSON pipeline configuration."},
					&cli.StringFlag{Name: "outdir", Usage: "URI or pathname for output groups; defaults to alongside each input."},
				},
				Action: func(cCtx *cli.Context) error {
					uri := cCtx.String("uri")
					if uri == "" {
						return errors.Join(reco.ErrInvalidConfig, errors.New("process-trawl: --uri is required"))
					}
					return processTrawl(uri, cCtx.String("config"), cCtx.String("outdir"))
				},
			},
			{
				Name:  "merge",
				Usage: "merge already-processed output groups into one",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "input", Aliases: []string{"i"}, Usage: "URI or pathname of an input group; may be repeated."},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "URI or pathname for the merged output group."},
					&cli.BoolFlag{Name: "overwrite", Usage: "Overwrite an existing output group."},
				},
				Action: func(cCtx *cli.Context) error {
					output := cCtx.String("output")
					if output == "" {
						return errors.Join(reco.ErrInvalidConfig, errors.New("merge: --output is required"))
					}
					return merge(cCtx.StringSlice("input"), output, cCtx.Bool("overwrite"))
				},
			},
		},
	}

	if err := app.Run(args); err != nil {
		log.Println(err)
		if errors.Is(err, reco.ErrInvalidConfig) {
			return 1
		}
		return 2
	}
	return 0
}
