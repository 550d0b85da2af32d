package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/trinity/internal/automation"
	"github.com/san-kum/trinity/internal/client"
	"github.com/san-kum/trinity/internal/config"
	"github.com/san-kum/trinity/internal/export"
	"github.com/san-kum/trinity/internal/logging"
	"github.com/san-kum/trinity/internal/loop"
	"github.com/san-kum/trinity/internal/render"
	"github.com/san-kum/trinity/internal/storage"
	"github.com/san-kum/trinity/internal/trinity"
	"github.com/san-kum/trinity/internal/viz"
)

const defaultConfigFile = "trinity.yaml"

var (
	configFile string
	dataDir    string
	endpoint   string
	transport  string
	logLevel   string

	// fetch
	fetchPreset  string
	fetchDamping string
	fetchOut     string
	fetchPlot    bool
	fetchWait    time.Duration

	// plot
	plotSVG string

	// serve
	serveAddr        string
	serveLatency     time.Duration
	serveJitter      time.Duration
	serveFailureRate float64
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "trinity",
		Short:         "trinity dynamics damping panel",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runPanel,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "config file (default ./"+defaultConfigFile+" if present)")
	pf.StringVar(&dataDir, "data", "", "data directory for exported renders")
	pf.StringVar(&endpoint, "endpoint", "", "render service base URL")
	pf.StringVar(&transport, "transport", "", "transport: http or ws")
	pf.StringVar(&logLevel, "log-level", "", "log level (DEBUG, INFO, WARN, ERROR)")

	panelCmd := &cobra.Command{
		Use:   "panel",
		Short: "interactive panel",
		RunE:  runPanel,
	}

	fetchCmd := &cobra.Command{
		Use:   "fetch",
		Short: "render one selection headlessly",
		RunE:  runFetch,
	}
	fetchCmd.Flags().StringVar(&fetchPreset, "preset", string(trinity.DefaultPreset), "preset name")
	fetchCmd.Flags().StringVar(&fetchDamping, "damping", "", "custom damping value (implies Custom)")
	fetchCmd.Flags().StringVar(&fetchOut, "out", "", "export the render to this directory")
	fetchCmd.Flags().BoolVar(&fetchPlot, "plot", false, "plot the reference step response")
	fetchCmd.Flags().DurationVar(&fetchWait, "wait", time.Minute, "give up after this long")

	runCmd := &cobra.Command{
		Use:   "run [scenario.yaml]",
		Short: "run an automation scenario",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list damping presets",
		RunE:  listPresets,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "run the reference render service",
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address")
	serveCmd.Flags().DurationVar(&serveLatency, "latency", 0, "base response latency")
	serveCmd.Flags().DurationVar(&serveJitter, "jitter", 0, "random extra latency")
	serveCmd.Flags().Float64Var(&serveFailureRate, "failure-rate", 0, "fraction of requests that fail")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list exported renders",
		RunE:  listRenders,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [render_id]",
		Short: "plot the step response of an exported render",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRender,
	}
	plotCmd.Flags().StringVar(&plotSVG, "svg", "", "also write the response as SVG to this file")

	initCmd := &cobra.Command{
		Use:   "init-config [path]",
		Short: "write a default config file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := defaultConfigFile
			if len(args) > 0 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := config.Save(path, config.DefaultConfig()); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	}

	rootCmd.AddCommand(panelCmd, fetchCmd, runCmd, presetsCmd, serveCmd, listCmd, plotCmd, initCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

// loadConfig layers defaults, the config file, .env, TRINITY_* variables
// and finally command-line flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := config.LoadEnv(); err != nil {
		return nil, err
	}

	cfg := config.DefaultConfig()
	path := configFile
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		}
	}
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.ApplyEnv()

	flags := cmd.Flags()
	if flags.Changed("data") {
		cfg.DataDir = dataDir
	}
	if flags.Changed("endpoint") {
		cfg.Endpoint = endpoint
	}
	if flags.Changed("transport") {
		cfg.Transport = transport
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newFetcher builds the transport named by cfg. The returned function
// releases it.
func newFetcher(ctx context.Context, cfg *config.Config, log *slog.Logger) (trinity.Fetcher, func(), error) {
	opts := []client.Option{
		client.WithTimeout(cfg.Timeout),
		client.WithRetries(cfg.Retries, cfg.RetryDelay),
		client.WithLogger(log),
	}
	if cfg.Transport == config.TransportWS {
		f, err := client.DialWS(ctx, cfg.Endpoint, opts...)
		if err != nil {
			return nil, nil, err
		}
		return f, func() { f.Close() }, nil
	}
	return client.NewHTTPFetcher(cfg.Endpoint, opts...), func() {}, nil
}

func runPanel(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// the alt-screen owns the terminal, so logs always go to a file
	if cfg.Log.Path == "" {
		cfg.Log.Path = filepath.Join(cfg.DataDir, "trinity.log")
	}
	log, closeLog, err := logging.Setup(cfg.Log, nil)
	if err != nil {
		return err
	}
	defer closeLog()

	f, closeFetcher, err := newFetcher(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer closeFetcher()

	log.Info("panel starting", "endpoint", cfg.Endpoint, "transport", cfg.Transport)
	return viz.Run(viz.NewPanel(f,
		viz.WithStore(storage.New(cfg.DataDir)),
		viz.WithTheme(cfg.Theme),
		viz.WithLogger(log),
		viz.WithInitialPreset(cfg.InitialPreset()),
	))
}

// headless wires a loop around a text sink on stdout.
type headless struct {
	loop     *loop.Loop
	sink     *loop.TextSink
	rendered trinity.Request
	close    func()
}

func newHeadless(cmd *cobra.Command) (*headless, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	log, closeLog, err := logging.Setup(cfg.Log, os.Stderr)
	if err != nil {
		return nil, err
	}
	f, closeFetcher, err := newFetcher(cmd.Context(), cfg, log)
	if err != nil {
		closeLog()
		return nil, err
	}

	h := &headless{sink: loop.NewTextSink(os.Stdout)}
	ctrl := trinity.NewController(trinity.NewDispatcher(f, h.sink, trinity.WithLogger(log)))
	h.loop = loop.New(ctrl, loop.WithLogger(log), loop.WithObserver(func(c trinity.Completion, o trinity.Outcome) {
		if o == trinity.OutcomeRendered {
			h.rendered = c.Request
		}
		log.Debug("completion", "seq", c.Request.Seq, "outcome", o, "elapsed", c.Elapsed)
	}))
	h.loop.Start(cmd.Context())
	h.close = func() {
		h.loop.Stop()
		closeFetcher()
		closeLog()
	}
	return h, nil
}

func runFetch(cmd *cobra.Command, args []string) error {
	p, err := trinity.ParsePreset(fetchPreset)
	if err != nil {
		return err
	}
	if fetchDamping != "" && cmd.Flags().Changed("preset") && p != trinity.Custom {
		return fmt.Errorf("--damping only applies to %s", trinity.Custom)
	}
	if fetchDamping == "" && p == trinity.Custom {
		return errors.New("preset Custom needs --damping")
	}

	h, err := newHeadless(cmd)
	if err != nil {
		return err
	}
	defer h.close()

	if fetchDamping != "" {
		_, err = h.loop.CommitCustom(fetchDamping)
	} else {
		_, err = h.loop.SelectPreset(p)
	}
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), fetchWait)
	defer cancel()
	if err := h.loop.Wait(ctx); err != nil {
		return err
	}
	if err := h.sink.Err(); err != nil {
		return err
	}
	res := h.sink.Last()
	if res == nil {
		return errors.New("no render received")
	}

	if fetchPlot {
		if err := plotSnapshot(h.rendered.Snapshot); err != nil {
			return err
		}
	}
	if fetchOut != "" {
		id, err := storage.New(fetchOut).Save(h.rendered, res)
		if err != nil {
			return err
		}
		fmt.Printf("saved %s\n", filepath.Join(fetchOut, id))
	}
	return nil
}

func runScenario(cmd *cobra.Command, args []string) error {
	sc, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}
	h, err := newHeadless(cmd)
	if err != nil {
		return err
	}
	defer h.close()

	fmt.Printf("scenario: %s\n", sc.Name)
	if sc.Description != "" {
		fmt.Printf("  %s\n", sc.Description)
	}
	rep, err := automation.Run(cmd.Context(), sc, h.loop)
	if err != nil {
		return err
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tEVENT\tSEQ\tERROR")
	for _, st := range rep.Steps {
		seq, msg := "-", ""
		if st.Seq > 0 {
			seq = strconv.FormatUint(st.Seq, 10)
		}
		if st.Err != nil {
			msg = st.Err.Error()
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", st.Index, st.Event, seq, msg)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\ndispatched %d, rejected %d in %s\n", rep.Stats.Dispatched, rep.Stats.Rejected, rep.Elapsed.Round(time.Millisecond))
	for _, o := range []trinity.Outcome{trinity.OutcomeRendered, trinity.OutcomeErrored, trinity.OutcomeSuperseded, trinity.OutcomeAbandoned, trinity.OutcomeUnknown} {
		if n := rep.Stats.Outcomes[o]; n > 0 {
			fmt.Printf("  %-10s %d\n", o, n)
		}
	}
	return nil
}

func listPresets(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDAMPING\tDESCRIPTION")
	for _, p := range config.ListPresets() {
		damp := fmt.Sprintf("%.2f", p.Damping)
		if p.Name == trinity.Custom {
			damp = fmt.Sprintf("%.1f-%.1f", trinity.MinDamping, trinity.MaxDamping)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", p.Name, damp, p.Description)
	}
	return w.Flush()
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, closeLog, err := logging.Setup(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Server.Addr = serveAddr
	}
	if flags.Changed("latency") {
		cfg.Server.Latency = serveLatency
	}
	if flags.Changed("jitter") {
		cfg.Server.Jitter = serveJitter
	}
	if flags.Changed("failure-rate") {
		cfg.Server.FailureRate = serveFailureRate
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	srv := render.NewServer(append(render.FromConfig(cfg.Server), render.WithLogger(log))...)
	return srv.ListenAndServe(cmd.Context(), cfg.Server.Addr)
}

func listRenders(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	renders, err := storage.New(cfg.DataDir).List()
	if err != nil {
		return err
	}
	if len(renders) == 0 {
		fmt.Println("no renders found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPRESET\tDAMPING\tSTATUS\tTIME\tSTABILITY")
	for _, r := range renders {
		damp := "-"
		if r.Damping != nil {
			damp = strconv.FormatFloat(*r.Damping, 'g', -1, 64)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.3f\n",
			r.ID,
			r.Preset,
			damp,
			r.Status,
			r.Timestamp.Format("2006-01-02 15:04:05"),
			r.Metrics["stability"],
		)
	}
	return w.Flush()
}

func plotRender(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	meta, err := storage.New(cfg.DataDir).Load(args[0])
	if err != nil {
		return err
	}

	var snap trinity.Snapshot
	if meta.Damping != nil {
		snap, err = trinity.CustomSnapshot(*meta.Damping)
	} else {
		var p trinity.Preset
		if p, err = trinity.ParsePreset(meta.Preset); err == nil {
			snap, err = trinity.PresetSnapshot(p)
		}
	}
	if err != nil {
		return err
	}

	fmt.Printf("render: %s\n", meta.ID)
	fmt.Printf("preset: %s\n\n", snap)
	if err := plotSnapshot(snap); err != nil {
		return err
	}
	if plotSVG == "" {
		return nil
	}
	_, zeta, err := resolveSnapshot(snap)
	if err != nil {
		return err
	}
	svg := export.TraceSVG(render.Simulate(zeta, render.DefaultSimConfig()), 800, 400, "#00ff88")
	if err := os.WriteFile(plotSVG, []byte(svg), 0644); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", plotSVG)
	return nil
}

func resolveSnapshot(snap trinity.Snapshot) (trinity.Preset, float64, error) {
	var custom *float64
	if v, ok := snap.Damping(); ok {
		custom = &v
	}
	return render.ResolveDamping(snap.Preset().String(), custom)
}

// plotSnapshot draws the reference step response for snap.
func plotSnapshot(snap trinity.Snapshot) error {
	_, zeta, err := resolveSnapshot(snap)
	if err != nil {
		return err
	}
	tr := render.Simulate(zeta, render.DefaultSimConfig())
	graph := asciigraph.Plot(tr.Pos,
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.Caption(fmt.Sprintf("step response, ζ=%.3g", zeta)),
	)
	fmt.Println(graph)
	fmt.Println()
	return nil
}
