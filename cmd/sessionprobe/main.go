package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/rs/zerolog"

	"github.com/joncooperworks/sessionharness/crypto"
	"github.com/joncooperworks/sessionharness/fingerprint"
	"github.com/joncooperworks/sessionharness/harvest"
	"github.com/joncooperworks/sessionharness/introspect"
	"github.com/joncooperworks/sessionharness/logging"
	"github.com/joncooperworks/sessionharness/profile"
	"github.com/joncooperworks/sessionharness/refresh"
	"github.com/joncooperworks/sessionharness/remote"
)

const version = "0.1.0"

const usage = `Usage: sessionprobe [flags] <command>

Commands:
  channels   list installed client channels
  harvest    recover credentials (printed redacted)
  refresh    refresh the fingerprint from the best available source
  retry      reset the fingerprint, then refresh
  status     check the debug endpoint, refresh, and print mode and build number
  debug      print the effective fingerprint as JSON

Flags:
`

var (
	ok   = color.New(color.FgGreen).SprintFunc()
	warn = color.New(color.FgYellow).SprintFunc()
	bad  = color.New(color.FgRed).SprintFunc()
)

func main() {
	var (
		root       = flag.String("root", "", "Profile root directory (default: per-OS location, or $"+profile.RootEnv+")")
		port       = flag.Int("port", introspect.PortFromEnv(), "DevTools remote-debugging port")
		noLive     = flag.Bool("no-introspect", false, "Skip introspection of a running client")
		syncClient = flag.Bool("client-info", false, "Also record the published client version during refresh")
		verbose    = flag.Bool("v", false, "Verbose logging")
		exportLogs = flag.String("export-logs", "", "Write the redacted session log to this file on exit")
	)
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	ring := logging.NewRing()
	logger := logging.New(os.Stderr, level, ring)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch cmd := flag.Arg(0); cmd {
	case "channels":
		err = listChannels(*root)
	case "harvest":
		err = runHarvest(ctx, *root, logger)
	case "refresh", "retry", "debug":
		r := newRefresher(logger, *port, *noLive)
		err = runRefresh(ctx, os.Stdout, r, cmd, *syncClient)
	case "status":
		err = runStatus(ctx, os.Stdout, newRefresher(logger, *port, *noLive), *port, logger)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n", cmd)
		flag.Usage()
		os.Exit(2)
	}

	if *exportLogs != "" {
		if werr := writeLogs(ring, *exportLogs); werr != nil {
			fmt.Fprintf(os.Stderr, "Error exporting logs: %v\n", werr)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", bad("Error:"), err)
		os.Exit(1)
	}
}

func profileRoot(root string) (string, error) {
	if root != "" {
		return root, nil
	}
	return profile.DefaultRoot()
}

func listChannels(root string) error {
	root, err := profileRoot(root)
	if err != nil {
		return err
	}
	installed := profile.Installed(root)
	if len(installed) == 0 {
		fmt.Println("No client channels installed")
		return nil
	}
	fmt.Printf("Installed channels (%d):\n", len(installed))
	for _, p := range installed {
		fmt.Printf("  - %s (%s)\n", p.Channel, logging.RedactPath(p.Dir))
	}
	return nil
}

func runHarvest(ctx context.Context, root string, logger zerolog.Logger) error {
	root, err := profileRoot(root)
	if err != nil {
		return err
	}
	p, err := crypto.DefaultPlatform()
	if err != nil {
		return err
	}

	creds, err := harvest.New(p, root, harvest.WithLogger(logger)).Harvest(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%s %d credential(s)\n", ok("Found"), len(creds))
	for _, c := range creds {
		fmt.Printf("  - %s\n", logging.RedactToken(c))
	}
	return nil
}

func newRefresher(logger zerolog.Logger, port int, noLive bool) *refresh.Refresher {
	m := fingerprint.NewManager(fingerprint.WithLogger(logger))
	opts := []refresh.Option{
		refresh.WithLogger(logger),
		refresh.WithPort(port),
		refresh.WithScraper(remote.NewClient(remote.WithLogger(logger))),
		refresh.WithIntrospector(introspect.NewClient(introspect.WithLogger(logger))),
	}
	if noLive {
		opts = append(opts, refresh.WithIntrospector(nil))
	}
	return refresh.New(m, opts...)
}

func runRefresh(ctx context.Context, w io.Writer, r *refresh.Refresher, cmd string, syncClient bool) error {
	var res refresh.Result
	if cmd == "retry" {
		res = r.Retry(ctx)
	} else {
		res = r.Auto(ctx)
	}
	if syncClient {
		if err := r.SyncClientInfo(ctx); err != nil {
			fmt.Fprintf(w, "%s client info unavailable: %v\n", warn("!"), err)
		}
	}

	if cmd == "debug" {
		out, err := json.MarshalIndent(r.Manager.Debug(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(out))
		return nil
	}

	status := ok("refreshed")
	if !res.Success {
		status = warn("unchanged")
	}
	fmt.Fprintf(w, "Fingerprint %s: source %s", status, res.Mode.DisplayName())
	if res.BuildNumber != nil {
		fmt.Fprintf(w, ", build %d", *res.BuildNumber)
	}
	fmt.Fprintln(w)
	return nil
}

// runStatus probes the debug endpoint, then refreshes r so the reported
// source and build are the ones a request would carry right now.
func runStatus(ctx context.Context, w io.Writer, r *refresh.Refresher, port int, logger zerolog.Logger) error {
	st := introspect.NewClient(introspect.WithLogger(logger)).CheckAvailable(ctx, port)
	switch {
	case st.Connected:
		fmt.Fprintf(w, "Debug endpoint %s on port %d: %q\n", ok("connected"), port, st.TargetTitle)
	case st.Available:
		fmt.Fprintf(w, "Debug endpoint %s on port %d: %s\n", warn("available"), port, st.Error)
	default:
		fmt.Fprintf(w, "Debug endpoint %s on port %d: %s\n", bad("unreachable"), port, st.Error)
	}

	res := r.Auto(ctx)
	build := uint64(fingerprint.DefaultClientBuildNumber)
	if res.BuildNumber != nil {
		build = *res.BuildNumber
	}
	fmt.Fprintf(w, "Fingerprint source %s, build %d\n", res.Mode.DisplayName(), build)
	return nil
}

func writeLogs(ring *logging.Ring, path string) error {
	out, err := ring.Export(version)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o600)
}
