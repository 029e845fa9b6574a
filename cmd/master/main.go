package main

import (
	"log"
	"os"
	"os/signal"
	"runtime"

	"github.com/codegangsta/cli"

	"github.com/hallen/timefuse/internal/master"
)

func main() {
	app := cli.NewApp()
	app.Name = "timefuse-master"
	app.Usage = "TCP client/worker pairing brokerage"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "host",
			Value:  "0.0.0.0",
			Usage:  "listen host",
			EnvVar: "TIMEFUSE_HOST",
		},
		cli.IntFlag{
			Name:   "port",
			Value:  3224,
			Usage:  "listen port",
			EnvVar: "TIMEFUSE_PORT",
		},
		cli.StringFlag{
			Name:  "admin",
			Value: "",
			Usage: "admin HTTP status address, eg :7000 (disabled if empty)",
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

		srv, err := master.Listen(c.String("host"), c.Int("port"))
		if err != nil {
			log.Printf("master: listen: %v\n", err)
			os.Exit(1)
		}

		go srv.Engine.Run()
		go func() {
			if err := srv.Serve(); err != nil {
				log.Printf("master: serve: %v\n", err)
			}
		}()

		if admin := c.String("admin"); admin != "" {
			go master.StartAdmin(admin, srv.Engine)
		}

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, os.Kill)
		<-sig

		srv.Engine.Stop()
		if err := srv.Close(); err != nil {
			log.Printf("master: close: %v\n", err)
			os.Exit(2)
		}
	}

	app.Run(os.Args)
}
