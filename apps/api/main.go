package main

import (
	"context"
	"expvar"
	"flag"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // register the /debug/pprof handlers
	"os"

	"github.com/jmoiron/sqlx"

	dig_container "github.com/skillsharp/lms/apps/api/di/dig"
	echoapi "github.com/skillsharp/lms/apps/api/echo"
	"github.com/skillsharp/lms/core"
	"github.com/skillsharp/lms/core/chat"
)

func main() {
	graph := flag.Bool("graph", false, "Print the dependency graph in DOT format and exit.")
	flag.Parse()

	c := dig_container.New()
	if *graph {
		fmt.Println(dig_container.Describe(c))
		return
	}

	must(c.Invoke(func(
		conf *core.Config,
		apiLogger core.Logger,
		dbLoggerParam dig_container.DBLoggerParam,
		db *sqlx.DB,
		bus chat.Bus,
		chatSvc chat.Service,
		server *echoapi.Server,
	) {
		// =========================================================================
		// Initialize App

		apiLogger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
		defer apiLogger.Info("Application stopped")

		if err := core.LoadEmailTemplates(conf); err != nil {
			apiLogger.Fatal(fmt.Sprintf("parsing email templates: %v", err), err)
		}

		if db != nil {
			dbLogger := dbLoggerParam.Logger
			defer func() {
				if err := db.Close(); err != nil {
					dbLogger.Error("Failed to close", err)
				}
			}()
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		defer func() {
			if err := bus.Close(); err != nil {
				apiLogger.Error(fmt.Sprintf("closing chat bus: %v", err), err)
			}
		}()
		if err := chatSvc.Run(ctx); err != nil {
			apiLogger.Fatal(fmt.Sprintf("starting chat forwarder: %v", err), err)
		}

		// =========================================================================
		// Start Debug Service
		//
		// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
		// /debug/vars - Added to the default mux by importing the expvar package.

		// Expose important info under /debug/vars.
		expvar.NewString("build").Set(conf.Build)
		expvar.NewString("env").Set(conf.Env)
		expvar.NewString("database").Set(conf.Database.Engine)
		expvar.NewString("storage").Set(conf.Storage.Backend)

		go func() {
			if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
				apiLogger.Error(fmt.Sprintf("debug server closed: %v", err), err)
			}
		}()

		// =========================================================================
		// Start API Service

		go func() {
			server.Start()
		}()

		// =========================================================================
		// Shutdown

		select {
		case err := <-server.Errors():
			apiLogger.Error(fmt.Sprintf("server error: %v", err), err)
			os.Exit(1)

		case sig := <-server.ShutdownSignal():
			apiLogger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

			// give outstanding requests a deadline for completion
			sctx, scancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
			defer scancel()

			// asking listener to shut down and shed load
			if err := server.Shutdown(sctx); err != nil {
				apiLogger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

				if err = server.Close(); err != nil {
					apiLogger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
				}
			}
		}
	}))
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
