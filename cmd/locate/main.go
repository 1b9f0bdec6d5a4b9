// Command locate runs the delivery-location picker in a terminal against a
// running storefront API. Device positions are typed as commands.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/flicky/spice-storefront/internal/apiclient"
	"github.com/flicky/spice-storefront/internal/config"
	"github.com/flicky/spice-storefront/internal/geocode"
	"github.com/flicky/spice-storefront/internal/location"
	"github.com/flicky/spice-storefront/internal/logger"
)

type locateConfig struct {
	APIURL         string        `env:"LOCATE_API_URL" envDefault:"http://localhost:8080"`
	Token          string        `env:"LOCATE_TOKEN,required"`
	HTTPTimeout    time.Duration `env:"LOCATE_HTTP_TIMEOUT" envDefault:"10s"`
	DetectTimeout  time.Duration `env:"LOCATE_DETECT_TIMEOUT" envDefault:"15s"`
	Accuracy       float64       `env:"LOCATE_ACCURACY_THRESHOLD" envDefault:"30"`
	DirectGeocoder bool          `env:"LOCATE_DIRECT_GEOCODER" envDefault:"false"`

	// HistoryFile stores recent locations between runs. Empty means
	// spice-storefront/recent-locations.json under the user config dir.
	HistoryFile string `env:"LOCATE_HISTORY_FILE"`
	RecentLimit int    `env:"LOCATE_RECENT_LIMIT" envDefault:"5"`
	Geocoder    config.GeocoderConfig
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}
	var cfg locateConfig
	if err := env.Parse(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "parse config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New("development")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := run(ctx, cfg, os.Stdin, os.Stdout, log)
	if err != nil {
		log.Error("locate", zap.Error(err))
		os.Exit(1)
	}
	if result != "" {
		fmt.Println(result)
	}
}

func run(ctx context.Context, cfg locateConfig, in io.Reader, out io.Writer, log *zap.Logger) (string, error) {
	client := apiclient.New(cfg.APIURL, cfg.Token, cfg.HTTPTimeout)

	var reverser geocode.Reverser = client.Geocoder()
	if cfg.DirectGeocoder {
		reverser = geocode.NewNominatim(cfg.Geocoder)
	}

	history := openHistory(cfg, log)

	watcher := &lineWatcher{}
	flow := location.New(watcher, reverser, client.AddressBook(), location.Options{
		Timeout:           cfg.DetectTimeout,
		AccuracyThreshold: cfg.Accuracy,
		History:           history,
		Logger:            log,
		OnChange:          func(s location.Snapshot) { printSnapshot(out, s) },
	})
	defer flow.Close()

	if err := flow.Open(ctx); err != nil {
		log.Warn("saved addresses unavailable", zap.Error(err))
	}
	printLists(out, flow)
	fmt.Fprintln(out, usage)

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		var line string
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case l, ok := <-lines:
			if !ok {
				return "", nil
			}
			line = l
		}

		cmd, err := parseCommand(line)
		if err != nil {
			fmt.Fprintln(out, err)
			continue
		}
		result, done, err := execute(ctx, flow, watcher, cmd, out)
		if err != nil {
			fmt.Fprintln(out, "error:", err)
			continue
		}
		if done {
			return result, nil
		}
	}
}

// openHistory loads the recent-locations file. Any failure falls back to a
// history that lives for this run only.
func openHistory(cfg locateConfig, log *zap.Logger) *location.History {
	path := cfg.HistoryFile
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			log.Warn("recent locations will not be kept", zap.Error(err))
			return location.NewHistory(cfg.RecentLimit)
		}
		path = filepath.Join(dir, "spice-storefront", "recent-locations.json")
	}
	h, err := location.OpenHistory(path, cfg.RecentLimit)
	if err != nil {
		log.Warn("recent locations will not be kept", zap.String("path", path), zap.Error(err))
		return location.NewHistory(cfg.RecentLimit)
	}
	return h
}

// execute applies one command. done is set once a location was finalized
// or the user quit.
func execute(ctx context.Context, flow *location.Flow, w *lineWatcher, cmd command, out io.Writer) (result string, done bool, err error) {
	switch cmd.kind {
	case cmdHelp:
		fmt.Fprintln(out, usage)
	case cmdList:
		printLists(out, flow)
	case cmdQuit:
		return "", true, nil
	case cmdDetect:
		return "", false, flow.Detect(ctx)
	case cmdFix:
		if !w.send(location.Position{Fix: cmd.fix}) {
			fmt.Fprintln(out, "not watching; run detect first")
		}
	case cmdDenied:
		if !w.send(location.Position{Err: location.ErrPermissionDenied}) {
			fmt.Fprintln(out, "not watching; run detect first")
		}
	case cmdUnsupported:
		if !w.send(location.Position{Err: location.ErrUnsupported}) {
			fmt.Fprintln(out, "not watching; run detect first")
		}
	case cmdAccept:
		result, err = flow.Accept(ctx)
		return result, err == nil, err
	case cmdReject:
		return "", false, flow.Reject()
	case cmdManual:
		result, err = flow.SubmitManual(ctx, cmd.manual)
		return result, err == nil, err
	case cmdSaved:
		saved := flow.Saved()
		if cmd.index >= len(saved) {
			return "", false, fmt.Errorf("no saved address %d", cmd.index+1)
		}
		result, err = flow.SelectSaved(saved[cmd.index].ID)
		return result, err == nil, err
	case cmdRecent:
		result, err = flow.SelectRecent(cmd.text)
		return result, err == nil, err
	}
	return "", false, nil
}

func printSnapshot(out io.Writer, s location.Snapshot) {
	fmt.Fprintf(out, "[%s] tab=%s watching=%t", s.State, s.Tab, s.Watching)
	if s.Candidate != nil {
		fmt.Fprintf(out, " address=%q accuracy=%.0fm", s.Candidate.DisplayName, s.Candidate.Fix.Accuracy)
	}
	if s.Message != "" {
		fmt.Fprintf(out, " message=%q", s.Message)
	}
	fmt.Fprintln(out)
}

func printLists(out io.Writer, flow *location.Flow) {
	saved := flow.Saved()
	if len(saved) > 0 {
		fmt.Fprintln(out, "saved addresses:")
		for i, a := range saved {
			marker := ""
			if a.IsDefault {
				marker = " (default)"
			}
			fmt.Fprintf(out, "  %d. %s%s\n", i+1, a.Display, marker)
		}
	}
	if recent := flow.Recent(); len(recent) > 0 {
		fmt.Fprintln(out, "recent:")
		for _, r := range recent {
			fmt.Fprintf(out, "  - %s\n", r)
		}
	}
}
