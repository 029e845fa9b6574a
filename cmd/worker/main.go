package main

import (
	"log"
	"os"
	"os/signal"
	"runtime"

	"github.com/codegangsta/cli"

	"github.com/hallen/timefuse/internal/dispatch"
	"github.com/hallen/timefuse/internal/store"
	"github.com/hallen/timefuse/internal/worker"
)

func main() {
	app := cli.NewApp()
	app.Name = "timefuse-worker"
	app.Usage = "Account/calendar request worker"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "host",
			Value:  "",
			Usage:  "local host the worker dials out from (any interface if empty)",
			EnvVar: "TIMEFUSE_HOST",
		},
		cli.IntFlag{
			Name:   "port",
			Value:  0,
			Usage:  "local port the worker dials out from (any if 0)",
			EnvVar: "TIMEFUSE_PORT",
		},
		cli.StringFlag{
			Name:   "master-host",
			Value:  "127.0.0.1",
			Usage:  "master host to request clients from",
			EnvVar: "TIMEFUSE_MASTER_HOST",
		},
		cli.IntFlag{
			Name:   "master-port",
			Value:  3224,
			Usage:  "master port",
			EnvVar: "TIMEFUSE_MASTER_PORT",
		},
		cli.StringFlag{
			Name:  "redis",
			Value: "tcp://127.0.0.1:6379",
			Usage: "redis server address for the presence cache",
		},
		cli.IntFlag{
			Name:  "cache-size",
			Value: 1000,
			Usage: "account-info LRU cache capacity",
		},
		cli.IntFlag{
			Name:   "cpus",
			Value:  runtime.NumCPU(),
			Usage:  "runtime.GOMAXPROCS",
			EnvVar: "GOMAXPROCS",
		},
	}
	app.Action = func(c *cli.Context) {
		runtime.GOMAXPROCS(c.Int("cpus"))

		cfg, err := store.ConfigFromEnv()
		if err != nil {
			log.Printf("worker: %v\n", err)
			os.Exit(1)
		}

		db, err := store.Open(cfg)
		if err != nil {
			log.Printf("worker: db open: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()

		cached := store.NewAccountCache(db, c.Int("cache-size"))
		presence := store.NewPresenceCache(c.String("redis"))
		defer presence.Close()

		d := dispatch.New(store.WithPresence(cached, presence))

		m := worker.NewMachine(c.String("master-host"), c.Int("master-port"), d)
		m.Host = c.String("host")
		m.Port = c.Int("port")

		runDone := make(chan struct{})
		go func() {
			m.Run()
			close(runDone)
		}()

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, os.Kill)
		<-sig

		m.Stop()
		<-runDone
	}

	app.Run(os.Args)
}
