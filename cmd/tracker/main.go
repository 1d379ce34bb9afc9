// Command tracker runs the peer-discovery tracker: it wires a config, a
// swarm.Store, a tracker.Processor, and a dispatcher.Dispatcher together,
// then serves until SIGINT/SIGTERM, mirroring main.c's boot sequence
// (parse args, load config, create pool, create socket, serve, clean
// exit) and cmd/trakr/main.go's cobra+signal shutdown shape.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Xpolo29/torrent/config"
	"github.com/Xpolo29/torrent/dispatcher"
	"github.com/Xpolo29/torrent/pkg/log"
	"github.com/Xpolo29/torrent/pkg/publicip"
	"github.com/Xpolo29/torrent/pkg/stop"
	"github.com/Xpolo29/torrent/swarm"
	"github.com/Xpolo29/torrent/tracker"
	"github.com/Xpolo29/torrent/tracker/debug"
	"github.com/Xpolo29/torrent/tracker/stats"
)

// debugAddr is where /stats, /healthz, and /metrics are served, kept
// separate from the tracker's own line-protocol socket.
const debugAddr = "localhost:6880"

// exitError carries one of the original's 0/1/2/3/5/6 exit codes (§6)
// through cobra's error-returning RunE.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	// The command's own flags (-v, -h, -p, -c, -m, -t) are parsed by
	// config.ParseArgs rather than cobra's flag set, matching the
	// original's single hand-rolled arg loop; cobra here only supplies
	// the command skeleton and RunE's error-to-exit-code plumbing.
	root := &cobra.Command{
		Use:                "tracker [OPTION...] [OPTION VALUE]",
		Short:              "peer-discovery tracker for a file-sharing swarm",
		SilenceUsage:       true,
		SilenceErrors:      true,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args)
		},
	}

	if err := root.Execute(); err != nil {
		if err == config.ErrHelpRequested {
			config.Usage()
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		if ee, ok := err.(*exitError); ok {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.ParseArgs(args)
	if err != nil {
		if err == config.ErrHelpRequested {
			return err
		}
		return &exitError{1, err}
	}

	if err := cfg.LoadFile(); err != nil {
		return &exitError{2, err}
	}
	cfg.Resolve()

	log.SetLevel(cfg.LogLevel())
	logPath := "log/" + time.Now().Format("02-01-2006@15:04:05") + ".log"

	store := swarm.New(swarm.DefaultCapacity)
	st := stats.New(64)

	prober := publicip.New(5 * time.Second)
	processor := tracker.NewProcessor(store, cfg.CacheTime, prober, st)

	d, err := dispatcher.Listen(fmt.Sprintf(":%d", cfg.Port), processor, cfg.MaxConn)
	if err != nil {
		return &exitError{3, err}
	}

	group := stop.NewGroup()
	group.Add("dispatcher", d)
	group.AddFunc("stats", func() <-chan error {
		st.Close()
		return stop.AlreadyStopped
	})

	if closer, err := log.AddFileSink(logPath); err != nil {
		log.Warn("tracker: could not open log file sink", log.Err(err))
	} else {
		group.AddFunc("log-sink", stop.FromCloser(closer))
	}

	log.Info("tracker: debug surface listening", log.Fields{"addr": debugAddr})
	group.Add("debug-server", debug.NewServer(debugAddr, store, st))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("tracker: signal received, shutting down", log.Fields{})
		go group.Stop()
		<-sigCh
		log.Warn("tracker: second signal received, forcing exit", log.Fields{})
		os.Exit(6)
	}()

	log.Info("tracker: starting", log.Fields{
		"port":       cfg.Port,
		"max_conn":   cfg.MaxConn,
		"cache_time": cfg.CacheTime,
		"verbose":    cfg.Verbose,
	})

	if err := d.Serve(); err != nil {
		return &exitError{3, err}
	}

	log.Info("tracker: stopped", log.Fields{})
	return nil
}
