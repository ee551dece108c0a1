// Command runpipe is a demo CLI: it parses argv[1] as a pipeline
// expression, runs it with stdout/stderr wired to its own, and exits with
// the pipeline's aggregate return code.
package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/edirooss/procpipe"
	"github.com/edirooss/procpipe/internal/fmtx"
	"github.com/edirooss/procpipe/pkg/command"
)

func main() {
	logConfig := zap.NewDevelopmentConfig()
	logConfig.EncoderConfig.TimeKey = ""
	logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logConfig.DisableStacktrace = true
	logConfig.DisableCaller = true
	log := zap.Must(logConfig.Build())
	defer log.Sync()
	log = log.Named("runpipe")

	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s 'pipeline expression'\n", os.Args[0])
		os.Exit(2)
	}
	source := os.Args[1]

	p, err := procpipe.Run(source,
		procpipe.WithLogger(log),
		procpipe.WithStdin(command.Binding{}),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "runpipe: %v\n", err)
		if os.Getenv("RUNPIPE_DEBUG") != "" {
			fmtx.PrintErrChainDebug(err)
		} else {
			fmtx.PrintErrChain(err)
		}
		os.Exit(1)
	}

	if err := p.Wait(0); err != nil {
		fmt.Fprintf(os.Stderr, "runpipe: %v\n", err)
		os.Exit(1)
	}
	os.Exit(p.ReturnCode())
}
