package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nidhogg/cognitive-core/internal/core"
	"github.com/nidhogg/cognitive-core/internal/notify"
	"github.com/nidhogg/cognitive-core/internal/rpc"
	"github.com/nidhogg/cognitive-core/internal/service"
	"github.com/nidhogg/cognitive-core/internal/state"
	"go.uber.org/zap"
)

const usage = `usage: corectl [flags] <command> [args]

commands:
  get                              print the cognitive core
  update <file.json> [path ...]    replace the core, or update only the listed paths
  record <conversation-id> <sender> <text>
  activate <trigger> [key=value ...]
  query <text>
  stream [update-type ...]         follow live updates (default ALL)
  tail                             follow the Redis mirror of the update feed
`

func main() {
	server := flag.String("server", "localhost:50051", "cognitive core gRPC address")
	clientID := flag.String("client", "corectl", "client id sent with requests")
	redisURL := flag.String("redis", "redis://localhost:6379/0", "Redis URL for tail")
	redisStream := flag.String("redis-stream", notify.DefaultStream, "Redis stream for tail")
	timeout := flag.Duration("timeout", 10*time.Second, "timeout for unary calls")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage); flag.PrintDefaults() }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if args[0] == "tail" {
		if err := tail(ctx, *redisURL, *redisStream); err != nil {
			printError("tail: %v", err)
			os.Exit(1)
		}
		return
	}

	client, err := rpc.Dial(*server)
	if err != nil {
		printError("connect: %v", err)
		os.Exit(1)
	}
	defer client.Close()

	if args[0] == "stream" {
		if err := stream(ctx, client, *clientID, args[1:]); err != nil {
			printError("stream: %v", err)
			os.Exit(1)
		}
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	out, err := unary(callCtx, client, *clientID, args[0], args[1:])
	if err != nil {
		printError("%s: %v", args[0], err)
		os.Exit(1)
	}
	printJSON(out)
}

func unary(ctx context.Context, client *rpc.Client, clientID, cmd string, args []string) (any, error) {
	switch cmd {
	case "get":
		return client.GetCognitiveCore(ctx, &service.GetRequest{ClientID: clientID})

	case "update":
		if len(args) < 1 {
			return nil, fmt.Errorf("missing core file")
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return nil, err
		}
		var c core.CognitiveCore
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("parse %s: %w", args[0], err)
		}
		return client.UpdateCognitiveCore(ctx, &service.UpdateRequest{
			Core:           &c,
			PartialUpdate:  len(args) > 1,
			FieldsToUpdate: args[1:],
			ClientID:       clientID,
		})

	case "record":
		if len(args) < 3 {
			return nil, fmt.Errorf("need conversation id, sender and text")
		}
		return client.RecordConversation(ctx, &service.RecordConversationRequest{
			ConversationID: args[0],
			Messages: []state.Message{{
				Sender:    args[1],
				Content:   strings.Join(args[2:], " "),
				Timestamp: time.Now().Unix(),
			}},
		})

	case "activate":
		if len(args) < 1 {
			return nil, fmt.Errorf("missing trigger")
		}
		params := make(map[string]string)
		for _, kv := range args[1:] {
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				return nil, fmt.Errorf("context parameter %q is not key=value", kv)
			}
			params[k] = v
		}
		return client.ActivateAwareness(ctx, &service.ActivateRequest{
			ClientID:          clientID,
			ActivationTrigger: args[0],
			ContextParameters: params,
		})

	case "query":
		return client.QueryMemory(ctx, &service.QueryRequest{QueryString: strings.Join(args, " ")})
	}
	return nil, fmt.Errorf("unknown command %q", cmd)
}

func stream(ctx context.Context, client *rpc.Client, clientID string, types []string) error {
	s, err := client.StreamUpdates(ctx, &service.StreamRequest{ClientID: clientID, UpdateTypes: types})
	if err != nil {
		return err
	}
	for {
		u, err := s.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		printUpdate(u)
	}
}

func tail(ctx context.Context, redisURL, streamName string) error {
	mirror, err := notify.NewRedisMirror(redisURL, streamName, 0, zap.NewNop())
	if err != nil {
		return err
	}
	defer mirror.Close()
	for u := range mirror.Tail(ctx) {
		printUpdate(u)
	}
	return nil
}

func printUpdate(u *notify.Update) {
	ts := time.Unix(u.Timestamp, 0).Format(time.TimeOnly)
	fmt.Printf("\033[36m[%s]\033[0m %s %s: %s\n", ts, u.UpdateType, u.Component, u.Description)
	if len(u.Payload) > 0 {
		fmt.Printf("  %s\n", u.Payload)
	}
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		printError("encode output: %v", err)
		return
	}
	fmt.Println(string(data))
}

func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "\033[31m"+format+"\033[0m\n", args...)
}
