package main

import (
	"os"
	"sync/atomic"
	"time"

	"github.com/lonng/nanokrnl"
	"github.com/lonng/nanokrnl/internal/log"
	"github.com/pingcap/errors"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.NewApp()
	app.Name = "kiclock"
	app.Usage = "Drive the kernel timer wheel"
	app.Version = nanokrnl.VERSION
	app.Commands = []*cli.Command{
		{
			Name:  "run",
			Usage: "Run the kernel clock with periodic timers",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "config",
					Usage: "TOML config file",
					Value: "",
				},
				&cli.IntFlag{
					Name:  "timers",
					Usage: "Number of periodic timers",
					Value: 64,
				},
				&cli.DurationFlag{
					Name:  "period",
					Usage: "Timer period",
					Value: 10 * time.Millisecond,
				},
				&cli.DurationFlag{
					Name:  "duration",
					Usage: "Run time, 0 waits for a signal",
					Value: 0,
				},
				&cli.BoolFlag{
					Name:  "debug",
					Usage: "Enable debug logs and table checks",
				},
			},
			Action: runClock,
		},
		{
			Name:  "step",
			Usage: "Step the clock by hand and report sweep statistics",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  "ticks",
					Usage: "Number of clock ticks",
					Value: 16384,
				},
				&cli.IntFlag{
					Name:  "timers",
					Usage: "Number of one-shot timers",
					Value: 1024,
				},
			},
			Action: runStep,
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal("Run kiclock error.", err)
	}
}

func kernelOptions(args *cli.Context) []nanokrnl.Option {
	var opts []nanokrnl.Option
	if path := args.String("config"); path != "" {
		opts = append(opts, nanokrnl.WithConfigFile(path))
	}
	if args.Bool("debug") {
		opts = append(opts, nanokrnl.WithDebugMode(), nanokrnl.WithDebugKernel())
	}
	return opts
}

func runClock(args *cli.Context) error {
	count := args.Int("timers")
	period := args.Duration("period")
	if count <= 0 {
		return errors.Errorf("timers must be positive: %d", count)
	}
	if period < time.Millisecond {
		return errors.Errorf("period must be at least 1ms: %v", period)
	}

	k, err := nanokrnl.New(kernelOptions(args)...)
	if err != nil {
		return err
	}
	if err = k.Startup(); err != nil {
		return err
	}

	var fired atomic.Int64
	for i := 0; i < count; i++ {
		// 错开首次到期, 让定时器散落到不同的桶
		first := period + time.Duration(i)*time.Millisecond
		if _, err = k.AfterFunc(first, period, func() { fired.Add(1) }); err != nil {
			k.Shutdown()
			return err
		}
	}
	log.Info("Armed %v periodic timers, period %v.", count, period)

	if d := args.Duration("duration"); d > 0 {
		time.Sleep(d)
		k.Shutdown()
	} else {
		k.Wait()
	}
	stats := k.Stats()
	log.Info("Timers fired %v times, %v sweeps, %v batch flushes, %v skipped checks.",
		fired.Load(), stats.Sweeps, stats.BatchFlushes, stats.SkippedChecks)
	return nil
}

func runStep(args *cli.Context) error {
	ticks := args.Int("ticks")
	count := args.Int("timers")
	if ticks <= 0 {
		return errors.Errorf("ticks must be positive: %d", ticks)
	}
	k, err := nanokrnl.New()
	if err != nil {
		return err
	}

	// 每个定时器的 DPC 向同一个线程排一个 APC, 最后一次投递
	thread := nanokrnl.NewThread(1)
	var fired, delivered int
	for i := 0; i < count; i++ {
		timer := &nanokrnl.Timer{}
		dpc := &nanokrnl.Dpc{}
		nanokrnl.InitializeTimer(timer, nanokrnl.NotificationTimer)
		nanokrnl.InitializeDpc(dpc, func(_ *nanokrnl.Dpc, _ any, arg1, arg2 uintptr) {
			fired++
			apc := &nanokrnl.Apc{}
			nanokrnl.InitializeApc(apc, thread, nanokrnl.KernelMode, func(any, uintptr, uintptr) { delivered++ }, nil)
			k.InsertQueueApc(apc, arg1, arg2)
		}, nil)
		due := -int64(i%ticks+1) * int64(k.Config().TickIncrement)
		k.SetTimer(timer, due, 0, dpc)
	}

	start := time.Now()
	for i := 0; i < ticks; i++ {
		k.ClockTick(1)
		k.RetireDpcList()
	}
	if thread.ApcPending(nanokrnl.KernelMode) {
		k.DeliverApcs(thread, nanokrnl.KernelMode)
	}
	stats := k.Stats()
	log.Info("Stepped %v ticks in %v, %v of %v timers fired, %v apcs delivered, %v sweeps, %v batch flushes.",
		ticks, time.Since(start), fired, count, delivered, stats.Sweeps, stats.BatchFlushes)
	return nil
}
