// main.go
// In main.go we wire everything together: load the client and logging config,
// mount one session against the configured endpoint, and bind stdin to it.
// Every stdin line is the full value of the input field and is sent right away.
// Interrupt or end of input unmounts the session, which closes the connection.

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"

	"realtime-chat-client/internal/config"
	"realtime-chat-client/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) int {
	flags := flag.NewFlagSet("chat-client", flag.ContinueOnError)
	configFile := flags.String("config", "chat.yaml", "Path to client config YAML file")
	loggingConfig := flags.String("logging", "logging.yaml", "Path to logging config YAML file")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	logConfig, err := logger.LoadConfig(*loggingConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load logging config: %v\n", err)
		return 1
	}
	logFile := logger.Initialize(logConfig)
	defer logFile.Close()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return 1
	}

	client := Mount(ctx, optionsFromConfig(cfg, stdout))
	defer client.Unmount()
	logger.Info("session mounted", "client", client.ID(), "url", cfg.URL)

	lines := make(chan string)
	go readLines(ctx, stdin, lines)

	for {
		select {
		case <-ctx.Done():
			return 0
		case line, ok := <-lines:
			if !ok {
				return 0
			}
			client.Input(line)
			// Failures are logged by the session; the draft is kept.
			_ = client.Send()
		}
	}
}

// readLines feeds every input line, whatever its length, into lines and
// closes it at end of input.
func readLines(ctx context.Context, stdin io.Reader, lines chan<- string) {
	defer close(lines)

	reader := bufio.NewReader(stdin)
	for {
		line, err := reader.ReadString('\n')
		if line != "" || err == nil {
			line = strings.TrimSuffix(line, "\n")
			line = strings.TrimSuffix(line, "\r")
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Error("failed to read input", "error", err)
			}
			return
		}
	}
}

func optionsFromConfig(cfg *config.ClientConfig, stdout io.Writer) Options {
	var header http.Header
	if cfg.Origin != "" {
		header = http.Header{"Origin": []string{cfg.Origin}}
	}
	return Options{
		URL:            cfg.URL,
		Greeting:       cfg.Greeting,
		CloseTimeout:   cfg.CloseTimeout,
		MaxMessageSize: cfg.MaxMessageSize,
		Header:         header,
		Dialer:         &websocket.Dialer{Proxy: http.ProxyFromEnvironment},
		OnMessage: func(message string) {
			fmt.Fprintf(stdout, "< %s\n", message)
		},
	}
}
