package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/creatorhub/messaging/internal/bus"
	"github.com/creatorhub/messaging/internal/config"
	"github.com/creatorhub/messaging/internal/realtime"
	"github.com/creatorhub/messaging/internal/wire"
	"go.uber.org/zap"
)

func main() {
	configFlag := flag.String("config", "", "path to config file (optional)")
	urlFlag := flag.String("url", "", "daemon WebSocket URL (overrides config)")
	tokenFlag := flag.String("token", os.Getenv("MESSAGING_TOKEN"), "bearer token (or MESSAGING_TOKEN)")
	flag.Parse()

	if *tokenFlag == "" {
		fmt.Fprintln(os.Stderr, "error: no token provided (use --token or MESSAGING_TOKEN)")
		os.Exit(1)
	}

	cfg := config.Default()
	if *configFlag != "" {
		loaded, err := config.Load(*configFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	url := cfg.Client.URL
	if *urlFlag != "" {
		url = *urlFlag
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	logger := zap.NewNop()
	b := bus.New()
	conn := realtime.New(realtime.Options{
		URL:                  url,
		Token:                *tokenFlag,
		ConnectTimeout:       cfg.Client.ConnectTimeout.Duration,
		MaxReconnectAttempts: cfg.Client.MaxReconnectAttempts,
		ReconnectDelay:       cfg.Client.ReconnectDelay.Duration,
		ReconnectDelayMax:    cfg.Client.ReconnectDelayMax.Duration,
	}, b, logger)
	defer conn.Disconnect()

	switch args[0] {
	case "watch":
		cmdWatch(conn, b)
	case "send":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: msgctl send <receiver> <text>")
			os.Exit(1)
		}
		cmdSend(conn, args[1], args[2])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: msgctl [--config <path>] [--url <ws-url>] [--token <jwt>] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  watch                  Print incoming events until interrupted")
	fmt.Fprintln(os.Stderr, "  send <receiver> <text> Send a text message")
}

func cmdWatch(conn *realtime.Conn, b *bus.Bus) {
	states, unsub := b.Subscribe(bus.NamespaceConn, 16)
	defer unsub()
	go func() {
		for evt := range states {
			if change, ok := evt.Payload.(realtime.StateChange); ok {
				fmt.Printf("-- connection: %s\n", change.To)
			}
		}
	}()

	conn.On(wire.NewMessage, func(data json.RawMessage) {
		var p wire.NewMessagePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return
		}
		ts := time.UnixMilli(p.Timestamp).Format("15:04:05")
		fmt.Printf("[%s] %s: %s\n", ts, p.SenderID, p.Message)
	})
	conn.On(wire.NewNotification, func(data json.RawMessage) {
		fmt.Printf("** notification: %s\n", data)
	})
	conn.On(wire.Error, func(data json.RawMessage) {
		var p wire.ErrorPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return
		}
		fmt.Fprintf(os.Stderr, "!! %s\n", p.Message)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err := conn.Connect(ctx)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
}

func cmdSend(conn *realtime.Conn, receiver, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := conn.Send(ctx, wire.SendMessage, wire.SendMessagePayload{
		ReceiverID: receiver,
		Message:    text,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("sent to %s\n", receiver)
}
