// Command muxcat is a small demo client/server exercising muxcore over a
// real TCP connection. In listen mode every stream a peer opens is echoed
// back frame by frame; in dial mode one stream is opened, each stdin line
// is sent over it, and the echoes are printed to stdout. Both ends speak
// muxcore's framing, so both must be muxcat.
package main

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"net"
	"os"

	"github.com/urfave/cli"

	"github.com/streammux/muxcore/internal/muxlog"
	"github.com/streammux/muxcore/muxcore"
)

// VERSION is injected by buildflags.
var VERSION = "SELFBUILD"

func main() {
	app := cli.NewApp()
	app.Name = "muxcat"
	app.Usage = "multiplex line-oriented echo streams over one TCP connection"
	app.Version = VERSION
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "listen, s",
			Usage: "run as the listening (server) side instead of dialing",
		},
		cli.StringFlag{
			Name:  "addr, a",
			Value: "127.0.0.1:7777",
			Usage: "address to listen on or dial",
		},
		cli.BoolFlag{
			Name:  "no-flow-control",
			Usage: "disable credit-based flow control",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	cfg := muxcore.DefaultConfig()
	if c.Bool("no-flow-control") {
		cfg.FlowControlStrategy = muxcore.FlowControlDisabled
	}

	if c.Bool("listen") {
		return serve(c.String("addr"), cfg)
	}
	return dial(c.String("addr"), cfg)
}

func serve(addr string, cfg *muxcore.Config) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	muxlog.Base.WithField("addr", addr).Info("muxcat: listening")

	for connID := uint32(0); ; connID++ {
		conn, err := ln.Accept()
		if err != nil {
			muxlog.Base.WithError(err).Warn("muxcat: accept failed")
			continue
		}
		go serveConn(connID, conn, cfg)
	}
}

func serveConn(id uint32, conn net.Conn, cfg *muxcore.Config) {
	defer conn.Close()

	driver, err := muxcore.NewDriver(id, conn, cfg, false)
	if err != nil {
		muxlog.Base.WithError(err).Error("muxcat: driver setup failed")
		return
	}
	go func() {
		if err := driver.Run(); err != nil && err != io.EOF {
			muxlog.ForSession(id).WithError(err).Warn("muxcat: connection ended")
		}
	}()

	for {
		stream, err := driver.Incoming.Accept()
		if err != nil {
			return
		}
		go echoStream(stream)
	}
}

func echoStream(stream *muxcore.StreamRef) {
	for {
		payload, err := stream.Recv()
		if err != nil {
			return
		}
		if err := stream.Release(uint32(len(payload))); err != nil {
			return
		}
		echoed := append([]byte("echo: "), payload...)
		if err := stream.Send(echoed); err != nil {
			return
		}
	}
}

func dial(addr string, cfg *muxcore.Config) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	driver, err := muxcore.NewDriver(0, conn, cfg, true)
	if err != nil {
		return err
	}
	go func() {
		if err := driver.Run(); err != nil && err != io.EOF {
			muxlog.ForSession(0).WithError(err).Warn("muxcat: connection ended")
		}
	}()

	stream, err := driver.Requests.Open(65536)
	if err != nil {
		return err
	}

	go func() {
		for {
			payload, err := stream.Recv()
			if err != nil {
				return
			}
			_ = stream.Release(uint32(len(payload)))
			fmt.Println(string(payload))
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if err := stream.Send(scanner.Bytes()); err != nil {
			return err
		}
	}
	return stream.Close()
}
