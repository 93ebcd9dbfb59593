package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/qsib-cbie/reader-controller/pkg/bus"
	"github.com/qsib-cbie/reader-controller/pkg/channel"
	"github.com/qsib-cbie/reader-controller/pkg/dispatch"
	"github.com/qsib-cbie/reader-controller/pkg/reader"
)

// Configuration flags
var (
	connType     = flag.String("conn", "serial", "Reader connection type: serial, tcp, or mock")
	serialDevice = flag.String("serial", "/dev/ttyUSB0", "Serial device path (conn=serial)")
	baudRate     = flag.Int("baud", 115200, "Serial baud rate (conn=serial)")
	tcpAddr      = flag.String("tcp-addr", "", "Reader TCP address, host:port (conn=tcp)")
	busEndpoint  = flag.String("bus-endpoint", bus.DefaultEndpoint, "ZMQ ROUTER bind endpoint for the request façade")
	maxAttempts  = flag.Int("max-attempts", reader.DefaultMaxAttempts, "Retry budget for device-required commands")
	verbosity    = flag.Int("v", 0, "Verbosity: 0=info, 1=debug, 2=trace")
)

func levelForVerbosity(v int) logrus.Level {
	switch {
	case v >= 2:
		return logrus.TraceLevel
	case v == 1:
		return logrus.DebugLevel
	default:
		return logrus.InfoLevel
	}
}

func openChannel() (channel.Channel, error) {
	switch *connType {
	case "mock":
		return channel.NewMockChannel(), nil
	case "tcp":
		return channel.DialTCP(*tcpAddr)
	default:
		return channel.OpenSerial(*serialDevice, *baudRate)
	}
}

func main() {
	flag.Parse()
	logrus.SetLevel(levelForVerbosity(*verbosity))
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	log := logrus.WithField("component", "main")
	log.WithFields(logrus.Fields{
		"conn":         *connType,
		"bus_endpoint": *busEndpoint,
		"max_attempts": *maxAttempts,
	}).Info("starting reader controller")

	ch, err := openChannel()
	if err != nil {
		log.WithError(err).Fatal("failed to open reader channel")
	}
	defer ch.Close()

	antenna := reader.NewAntennaState()
	antenna.MaxAttempts = *maxAttempts
	conn := reader.New(ch, antenna)
	defer conn.Close()

	protocol := dispatch.NewHapticDispatcher(conn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := bus.NewServer(protocol)
	if err := srv.Listen(ctx, *busEndpoint); err != nil {
		log.WithError(err).Fatal("failed to bind request façade")
	}
	defer srv.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("received shutdown signal")
		cancel()
	}()

	for {
		if err := srv.Serve(ctx); err != nil {
			if ctx.Err() != nil {
				log.Info("shutting down")
				return
			}
			log.WithError(err).Error("serve loop exited with error, restarting")
			continue
		}
		// A clean Stop exits the loop without re-serving.
		log.Info("received Stop, exiting")
		return
	}
}
