// Command loadtest signs up a batch of users, pairs them off and has every
// pair exchange messages over the HTTP API while each user keeps a live
// WebSocket session and client-side chat state.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/johndosdos/dmchat/internal/chatstate"
	"github.com/johndosdos/dmchat/internal/client"
	"github.com/johndosdos/dmchat/internal/model"
)

type user struct {
	api    *client.Client
	socket *client.Socket
	state  *chatstate.Store
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "server base URL")
	users := flag.Int("users", 10, "number of users, rounded down to an even count")
	messages := flag.Int("messages", 20, "messages sent by each user")
	snapshot := flag.String("snapshot", "", "write the first user's chat state to this file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *baseURL, *users/2*2, *messages, *snapshot); err != nil {
		logger.Error("load test failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, baseURL string, n, perUser int, snapshotPath string) error {
	if n < 2 {
		return fmt.Errorf("need at least two users, got %d", n)
	}

	tag := uuid.NewString()[:8]
	all := make([]*user, 0, n)
	for i := 0; i < n; i++ {
		u, err := newUser(ctx, baseURL, fmt.Sprintf("load%s%d", tag, i))
		if err != nil {
			return err
		}
		all = append(all, u)
	}
	defer func() {
		for _, u := range all {
			u.state.Stop()
		}
	}()

	var sent, failed atomic.Int64
	start := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < n; i += 2 {
		a, b := all[i], all[i+1]
		for _, pair := range [][2]*user{{a, b}, {b, a}} {
			from, to := pair[0], pair[1]
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := from.state.OpenConversation(ctx, to.state.Self().ID); err != nil {
					slog.Warn("open conversation failed", "user", from.state.Self().Username, "error", err)
					failed.Add(int64(perUser))
					return
				}
				for j := 0; j < perUser; j++ {
					_, err := from.state.Send(ctx, chatstate.SendInput{Text: fmt.Sprintf("message %d", j)})
					if err != nil {
						failed.Add(1)
						continue
					}
					sent.Add(1)
				}
			}()
		}
	}
	wg.Wait()
	elapsed := time.Since(start)

	slog.Info("load test finished",
		"users", n,
		"sent", sent.Load(),
		"failed", failed.Load(),
		"elapsed", elapsed.Round(time.Millisecond),
		"rate", fmt.Sprintf("%.1f/s", float64(sent.Load())/elapsed.Seconds()))

	for _, u := range all {
		slog.Info("client state",
			"user", u.state.Self().Username,
			"messages", len(u.state.Messages()),
			"chats", len(u.state.Chats()))
	}

	if snapshotPath != "" {
		f, err := os.Create(snapshotPath)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := chatstate.SaveSnapshot(f, all[0].state.Snapshot()); err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
		slog.Info("snapshot written", "path", snapshotPath)
	}
	return nil
}

func newUser(ctx context.Context, baseURL, name string) (*user, error) {
	api, err := client.New(baseURL)
	if err != nil {
		return nil, err
	}
	self, err := api.Signup(ctx, name, name, name+"@loadtest.local", "loadtest-password")
	if err != nil {
		return nil, fmt.Errorf("signup %s: %s", name, client.UserMessage(err))
	}

	socket := client.NewSocket(api.SocketURL(), api.Token(), slog.Default())
	go func() {
		if err := socket.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("socket stopped", "user", name, "error", err)
		}
	}()

	state := chatstate.New(self, api, socket,
		chatstate.WithNotices(func(n chatstate.Notice) {
			slog.Warn("client notice", "user", name, "op", n.Op, "message", n.Message, "error", n.Err)
		}),
		chatstate.WithAlerts(func(a model.NotificationAlert) {
			slog.Debug("alert", "user", name, "from", a.SenderInfo.Username)
		}),
	)
	state.Start()
	if err := state.LoadChats(ctx); err != nil {
		return nil, fmt.Errorf("load chats for %s: %w", name, err)
	}
	return &user{api: api, socket: socket, state: state}, nil
}
