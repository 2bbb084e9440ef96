package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"google.golang.org/grpc"

	"xdao.co/ans104/config"
	"xdao.co/ans104/storage/casregistry"
	"xdao.co/ans104/storage/grpccas"

	_ "xdao.co/ans104/storage/localfs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	fs := pflag.NewFlagSet("ans104-payloadd", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	listen := fs.String("listen", "127.0.0.1:7777", "listen address")
	backend := fs.String("backend", "localfs", "payload store backend name")
	opts := fs.StringToString("opt", nil, "backend option as key=value (repeatable)")
	listBackends := fs.Bool("list-backends", false, "List supported backends and exit")
	logLevel := fs.String("log-level", "info", "debug, info, warn or error")
	logFormat := fs.String("log-format", "text", "text or json")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *listBackends {
		for _, b := range casregistry.List(casregistry.UsageDaemon) {
			if b.Description == "" {
				_, _ = fmt.Fprintf(out, "%s\n", b.Name)
				continue
			}
			_, _ = fmt.Fprintf(out, "%s\t%s\n", b.Name, b.Description)
		}
		return 0
	}
	if _, err := config.ParseLevel(*logLevel); err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	log := config.LogConfig{Level: *logLevel, Format: *logFormat}.NewLogger(errOut)

	cas, closeFn, err := casregistry.Open(*backend, casregistry.UsageDaemon, *opts)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	if closeFn != nil {
		defer closeFn()
	}

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if err := serve(ctx, lis, &grpccas.Server{CAS: cas, Logger: log}, log); err != nil {
		log.Error("serve failed", "error", err)
		return 1
	}
	return 0
}

// serve runs the gRPC server on lis until ctx is done.
func serve(ctx context.Context, lis net.Listener, srv *grpccas.Server, log *slog.Logger) error {
	s := grpc.NewServer()
	grpccas.RegisterCASServer(s, srv)

	go func() {
		<-ctx.Done()
		s.GracefulStop()
	}()
	log.Info("ans104-payloadd listening", "addr", lis.Addr().String())
	return s.Serve(lis)
}
