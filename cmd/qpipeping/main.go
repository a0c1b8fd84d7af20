package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/qpipe/qpipe"
	"github.com/urfave/cli/v2"
	"go.uber.org/ratelimit"
)

const echoCmd qpipe.Cmd = 1

func main() {
	app := &cli.App{
		Usage:     "loopback latency check for qpipe pair transports",
		UsageText: "qpipeping [-n count] [-r rate] [-s size]",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "count", Aliases: []string{"n"}, Value: 100, Usage: "number of echo roundtrips"},
			&cli.IntFlag{Name: "rate", Aliases: []string{"r"}, Value: 50, Usage: "requests per second"},
			&cli.IntFlag{Name: "size", Aliases: []string{"s"}, Value: 400, Usage: "payload size in bytes"},
		},
		Action: ping,
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func ping(c *cli.Context) error {
	count := c.Int("count")
	rate := c.Int("rate")
	size := c.Int("size")

	// each acquisition hands the near end to the provider and keeps the far
	// end for the in-process echo peer
	peerCh := make(chan net.Conn, 1)
	provider := qpipe.NewProvider(qpipe.HandleProviderFunc(func() (net.Conn, error) {
		ours, theirs := net.Pipe()
		peerCh <- theirs
		return ours, nil
	}), qpipe.Config{GroupName: "qpipeping"})

	t, err := provider.NewChannel()
	if err != nil {
		return err
	}
	defer t.Close()

	peer := <-peerCh

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var g run.Group

	g.Add(func() error {
		return echo(ctx, peer)
	}, func(error) {
		peer.Close()
		cancel()
	})

	g.Add(func() error {
		return pingLoop(t, count, rate, size)
	}, func(error) {
		t.Close()
		cancel()
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	g.Add(func() error {
		select {
		case sig := <-sigCh:
			return fmt.Errorf("received signal %s", sig)
		case <-ctx.Done():
			return ctx.Err()
		}
	}, func(error) {
		cancel()
	})

	return g.Run()
}

func pingLoop(t *qpipe.Transport, count, rate, size int) error {
	payload := make([]byte, size)
	for i := range payload {
		payload[i] = byte(i)
	}

	rl := ratelimit.New(rate)
	var total, worst time.Duration
	for i := 0; i < count; i++ {
		rl.Take()

		begin := time.Now()
		_, resp, err := t.Request(echoCmd, 0, payload)
		if err != nil {
			return err
		}
		if _, err = resp.GetFrame(); err != nil {
			return err
		}

		elapsed := time.Since(begin)
		total += elapsed
		if elapsed > worst {
			worst = elapsed
		}
	}

	fmt.Printf("%d roundtrips of %d bytes: avg %v, worst %v\n",
		count, size, total/time.Duration(count), worst)
	return nil
}

// echo reads frames off the far end of the pair and writes them back
// unmodified.
func echo(ctx context.Context, conn net.Conn) error {
	reader := qpipe.NewFrameReader(conn, qpipe.ReadNoTimeout, 0)
	writer := qpipe.NewFrameWriter(ctx, conn, qpipe.WriteNoTimeout)

	for {
		frame, err := reader.ReadFrame()
		if err != nil {
			return err
		}

		writer.StartWrite(frame.RequestID, frame.Cmd, frame.Flags)
		writer.WriteBytes(frame.Payload)
		err = writer.EndWrite()
		if err != nil {
			return err
		}
	}
}
