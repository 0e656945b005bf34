// Command trailsearch is an interactive search box over the trail corpus
// and the geocoder. With arguments it prints one merged suggestion list and
// exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/trailhub/trailsuggest/internal/api"
	"github.com/trailhub/trailsuggest/internal/app"
	"github.com/trailhub/trailsuggest/internal/config"
	"github.com/trailhub/trailsuggest/internal/contract"
	"github.com/trailhub/trailsuggest/internal/logger"
	"github.com/trailhub/trailsuggest/internal/session"
	"github.com/trailhub/trailsuggest/suggest"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	trailsFile := flag.String("trails", "", "trail corpus file (JSON or YAML)")
	logPath := flag.String("log", "", "write logs to this file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *trailsFile != "" {
		cfg.Trails.File = *trailsFile
	}

	var logOut io.Writer = io.Discard
	if *logPath != "" {
		f, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		logOut = f
	}
	lg := logger.FromConfig(logOut, "trailsearch", cfg.Log.Level, cfg.Log.Format)

	ctx := context.Background()
	a, err := app.Build(ctx, cfg, nil, lg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	if args := flag.Args(); len(args) > 0 {
		if err := printSuggestions(ctx, os.Stdout, a, strings.Join(args, " ")); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		return
	}

	target, err := runInteractive(a, lg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "trailsearch: %v\n", err)
		os.Exit(1)
	}
	if target != "" {
		fmt.Println(target)
	}
}

func runInteractive(a *app.App, lg *log.Logger) (string, error) {
	updates := make(chan session.Snapshot, 1)
	nav := &navigation{}

	opts := a.SessionOptions(lg.WithPrefix("session"))
	opts.OnChange = latest(updates)
	sess := session.New(a.Controller,
		session.NavigatorFunc(func(query string) { nav.query = query }),
		a.Controller.Index(), opts)
	defer sess.Close()

	p := tea.NewProgram(newModel(sess, updates), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return "", err
	}
	if nav.query == "" {
		return "", nil
	}
	return api.SearchTarget(nav.query), nil
}

func printSuggestions(ctx context.Context, w io.Writer, a *app.App, query string) error {
	resp, err := a.Controller.Suggest(ctx, contract.Request{Query: query})
	if err != nil {
		return err
	}
	for _, s := range resp.Items {
		fmt.Fprintln(w, plainLine(s))
	}
	if resp.Degraded {
		fmt.Fprintf(w, "(geocoder degraded: %s)\n", resp.RetCode)
	}
	return nil
}

func plainLine(s suggest.Suggestion) string {
	fields := []string{string(s.Kind), s.DisplayName}
	if s.IsTrail() && s.DistanceLabel != "" {
		fields = append(fields, s.DistanceLabel)
	}
	if !s.IsTrail() && s.Location != "" {
		fields = append(fields, s.Location)
	}
	return strings.Join(fields, "\t")
}
