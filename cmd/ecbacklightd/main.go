package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lumastack/ecbacklight/background"
	"github.com/lumastack/ecbacklight/controller"
	"github.com/lumastack/ecbacklight/system/power"

	suture "github.com/thejerf/suture/v4"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Compile time injected variables
var (
	Version     = "v0.0.0-dev"
	IsDebug     = "yes"
	logLocation = `C:\Logs\ecbacklightd.log`
)

func main() {

	var proxyTarget = flag.String("proxy-target", "", "relay brightness change requests to the named backlight endpoint, on systems which erroneously report EC backlight control")
	var maxReprobe = flag.Int("max-reprobe-attempts", controller.DefaultMaxReprobeAttempts, "limit of reprobe attempts when relaying brightness change requests")
	var restoreOnResume = flag.Bool("restore-level-on-resume", false, "restore the backlight level when resuming from suspend, on systems which reset the EC's backlight level on resume")

	flag.Parse()

	if IsDebug == "no" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   logLocation,
			MaxSize:    5,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   true,
		})
	}

	log.Printf("ecbacklightd version: %s\n", Version)

	conf := controller.RunConfig{
		ProxyTarget:          *proxyTarget,
		MaxReprobeAttempts:   *maxReprobe,
		RestoreLevelOnResume: *restoreOnResume,
		DryRun:               os.Getenv("DRY_RUN") != "",
	}

	if conf.DryRun {
		log.Println("[dry run] no hardware i/o will be performed")
	}

	dep, err := controller.GetDependencies(conf)
	if err != nil {
		log.Fatalf("[supervisor] cannot get dependencies: %+v\n", err)
	}

	control, err := controller.New(conf, dep)
	if err != nil {
		log.Fatalf("[supervisor] cannot create controller: %+v\n", err)
	}

	notifier := background.NewNotifier()

	versionChecker, err := background.NewVersionCheck(Version, "lumastack/ecbacklight", notifier.C)
	if err != nil {
		log.Fatalf("[supervisor] cannot get version checker: %+v\n", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	if !conf.DryRun {
		// feed suspend/resume notifications into the power hub
		if err := power.NewEventListener(ctx, dep.Power.C); err != nil {
			log.Printf("[supervisor] cannot listen for power events: %+v\n", err)
		}
	}

	/*
		How the supervisor tree is structured:

					rootSupervisor
						+    +
						|    |
		backgroundSupervisor    controllerSupervisor
				+ +                  + +
				| |                  | |
				| +-> notifier       | +-> power notifier
				|                    |
				+---> versionChecker +---> controller

		A deferred attach surfaces as a controller service error, so the
		controllerSupervisor re-invokes the attach sequence with backoff.
	*/

	backgroundSupervisor := suture.New("backgroundSupervisor", suture.Spec{})
	backgroundSupervisor.Add(notifier)
	backgroundSupervisor.Add(versionChecker)

	controllerSupervisor := suture.New("controllerSupervisor", suture.Spec{})
	controllerSupervisor.Add(dep.Power)
	controllerSupervisor.Add(control)

	rootSupervisor := suture.New("Supervisor", suture.Spec{})
	rootSupervisor.Add(backgroundSupervisor)
	rootSupervisor.Add(controllerSupervisor)

	sigc := make(chan os.Signal, 1)

	go func() {
		supervisorErr := rootSupervisor.Serve(ctx)
		if supervisorErr != nil {
			log.Printf("[supervisor] rootSupervisor returns error: %+v\n", supervisorErr)
			sigc <- syscall.SIGTERM
		}
	}()

	signal.Notify(
		sigc,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)

	sig := <-sigc
	log.Printf("[supervisor] signal received: %+v\n", sig)

	cancel()
	dep.ConfigRegistry.Close()
	time.Sleep(time.Second) // 1 second for grace period
}
