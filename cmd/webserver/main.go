// command webserver starts the reactor-based HTTP server.
//
// grounded on original_source/main.cpp's argument handling (argc<=1 usage
// bail, atoi(argv[1]) port, SIGPIPE ignored before anything else binds a
// socket) and the flag/signal wiring style of EvSecDev-SDSyslog's
// cmd/sdsyslog/main.go.
//
// The port comes from the -port flag or the config file; there is no
// positional port argument, and with neither set the built-in default
// port is used.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/kfcemployee/webserver/internal/app"
	"github.com/kfcemployee/webserver/internal/config"
)

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	flags := flag.NewFlagSet(filepath.Base(args[0]), flag.ContinueOnError)
	configPath := flags.String("config", "", "path to a key/value config file (defaults built in if omitted)")
	port := flags.Int("port", 0, "listen port, overrides the config file's port when nonzero")
	if err := flags.Parse(args[1:]); err != nil {
		return 1
	}

	cfg := config.Defaults()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "webserver: %v\n", err)
			return 1
		}
		cfg = loaded
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	// a client resetting its connection mid-write must not take the whole
	// process down with SIGPIPE, matching addsig(SIGPIPE, SIG_IGN).
	signal.Ignore(syscall.SIGPIPE)

	srv, err := app.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "webserver: %v\n", err)
		return 1
	}
	defer srv.Shutdown()

	srv.Log.Infof("listening on port %d, doc root %s", cfg.Server.Port, cfg.Server.DocRoot)
	srv.Log.Flush()

	if err := srv.Run(); err != nil {
		srv.Log.Errorf("reactor exited: %v", err)
		fmt.Fprintf(os.Stderr, "webserver: %v\n", err)
		return 1
	}
	return 0
}
