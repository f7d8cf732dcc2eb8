package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/mwinata/crm-web-ui/internal/chatui"
	"github.com/mwinata/crm-web-ui/internal/models"
)

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "CRM server address")
	timeout := flag.Duration("timeout", 60*time.Second, "response watchdog duration")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := chatui.Dial(ctx, *serverURL, logger, chatui.WithResponseTimeout(*timeout))
	if err != nil {
		log.Fatalf("Failed to connect: %s", err)
	}
	defer client.Close()

	fmt.Printf("Connected, session %s. Empty line to quit.\n", client.SessionID())

	go func() {
		if err := client.Run(ctx); err != nil {
			logger.Error("Connection closed", slog.String("error", err.Error()))
		}
	}()

	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}

		if !client.Send(line) {
			// Renderer rejected the input; an empty line ends the session.
			return
		}

		if !waitForTurn(client) {
			fmt.Println("\nDisconnected.")
			return
		}
	}
}

// waitForTurn prints a turn's events as they arrive and returns once input is enabled
// again. It reports false when the connection is gone.
func waitForTurn(client *chatui.Client) bool {
	for {
		select {
		case u := <-client.Updates():
			switch {
			case u.TimedOut:
				fmt.Println("\n(no response, giving up on this turn)")
				return true
			case u.Event.Type == models.EventStreamingChunk:
				fmt.Print(u.Event.Text)
			case u.Event.Type == models.EventStreamingComplete:
				fmt.Println()
			case u.Event.Type == models.EventBotResponse:
				fmt.Println(u.Event.Message)
			}
			if u.TurnDone {
				return true
			}
		case <-client.Done():
			return false
		}
	}
}
