package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/juju/loggo"
	"google.golang.org/grpc"

	"github.com/nci/sdi/processing"
)

var logger = loggo.GetLogger("sdi.worker")

func main() {
	port := flag.Int("p", 6000, "gRPC server listening port.")
	poolSize := flag.Int("n", 8, "Maximum number of processes executed concurrently.")
	prefix := flag.String("prefix", "remote-", "Prefix of the authorities served by this worker.")
	debug := flag.Bool("debug", false, "verbose logging")
	flag.Parse()

	level := "<root>=INFO"
	if *debug {
		level = "<root>=DEBUG"
	}
	if err := loggo.ConfigureLoggers(level); err != nil {
		fmt.Fprintf(os.Stderr, "configuring loggers: %v\n", err)
		os.Exit(2)
	}

	reg := processing.NewRegistry()
	if err := processing.RegisterBuiltins(reg, *prefix); err != nil {
		logger.Errorf("Failed to register processes: %v", err)
		os.Exit(2)
	}
	p := processing.CreateProcessPool(*poolSize, reg)

	s := grpc.NewServer()
	processing.RegisterWorkerServer(s, reg, p)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-signals
		logger.Infof("stopping process worker")
		s.GracefulStop()
		p.Close()
	}()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", *port))
	if err != nil {
		logger.Errorf("failed to listen: %v", err)
		os.Exit(1)
	}
	logger.Infof("process worker serving %d slots on :%d", *poolSize, *port)
	if err := s.Serve(lis); err != nil {
		logger.Errorf("failed to serve: %v", err)
		os.Exit(1)
	}
}
