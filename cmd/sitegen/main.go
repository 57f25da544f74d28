package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	var opts options
	flag.BoolVar(&opts.noVoice, "no-voice", false, "do not open the microphone or transcription channel")
	flag.BoolVar(&opts.noPreview, "no-preview", false, "do not start the local preview server")
	flag.Parse()
	opts.logOutput = os.Stderr

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := NewApp(os.Stdin, os.Stdout)
	if err := app.Run(ctx, opts); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
