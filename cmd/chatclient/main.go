package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"pharmadeal-chat/config"
	"pharmadeal-chat/internal/cache"
	"pharmadeal-chat/internal/domain/chat"
	"pharmadeal-chat/internal/history"
	"pharmadeal-chat/internal/session"
	"pharmadeal-chat/internal/store"
	"pharmadeal-chat/internal/transport"
	"pharmadeal-chat/pkg/logger"

	goredis "github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.LoadConfig()

	l := logger.New(cfg.AppMode)
	defer l.Logger.Sync()
	logger.SetGlobalLogger(l)

	sess, err := session.Load(cfg.SessionFile)
	if err != nil {
		log.Fatalf("No session, log in first: %v", err)
	}
	if sess.UserID == "" {
		log.Fatal("Session has no user id")
	}

	snapshots := buildSnapshotter(cfg, sess.UserID)
	socket := transport.NewSocket(cfg.SocketURL, sess.UserID, l.Logger)
	client := history.NewHTTPClient(cfg.APIBaseURL, sess.Token)

	st := store.New(sess.UserID, socket, client, snapshots, l.Logger)
	defer st.Disconnect()

	notifier := newUnreadNotifier(st)
	st.SetOnChange(notifier.onStoreChange)

	ctx := context.Background()
	if err := st.InitializeSocket(ctx); err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	if err := st.LoadUserChats(ctx); err != nil {
		log.Fatalf("Failed to load chats: %v", err)
	}
	st.SetWidgetOpen(true)

	repl(ctx, st, sess.UserID)
}

func buildSnapshotter(cfg *config.Config, userID string) cache.Snapshotter {
	if cfg.CacheBackend == "redis" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisHost + ":" + cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return cache.NewRedisStore(client, userID, cache.DefaultRedisConfig())
	}
	return cache.NewFileStore(cfg.CacheFile)
}

func repl(ctx context.Context, st *store.Store, selfID string) {
	fmt.Println("commands: /rooms, /open <n>, /start <userId> [dealId], /quit; anything else sends")
	scanner := bufio.NewScanner(os.Stdin)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "/quit":
			return

		case line == "/rooms":
			printRooms(st)

		case strings.HasPrefix(line, "/open "):
			n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "/open ")))
			state := st.State()
			if err != nil || n < 1 || n > len(state.Rooms) {
				fmt.Println("no such room")
				continue
			}
			room := state.Rooms[n-1]
			if err := st.SelectChat(ctx, room); err != nil {
				fmt.Printf("open failed: %v\n", err)
				continue
			}
			printThread(st)

		case strings.HasPrefix(line, "/start "):
			fields := strings.Fields(strings.TrimPrefix(line, "/start "))
			if len(fields) == 0 {
				fmt.Println("usage: /start <userId> [dealId]")
				continue
			}
			otherID := fields[0]
			dealID := ""
			anchorType := ""
			if len(fields) > 1 {
				dealID = fields[1]
				anchorType = chat.AnchorTypeDeal
			}
			roomID, err := st.StartChat(ctx, otherID, dealID, anchorType, chat.UserInfo{ID: otherID, FullName: otherID})
			if err != nil {
				fmt.Printf("start failed: %v\n", err)
				continue
			}
			fmt.Printf("chatting in %s\n", roomID)

		case line != "":
			if err := st.SendMessage(line); err != nil {
				fmt.Printf("send failed: %v\n", err)
			}
		}
	}
}

func printRooms(st *store.Store) {
	state := st.State()
	if len(state.Rooms) == 0 {
		fmt.Println("no conversations")
		return
	}
	for i, room := range state.Rooms {
		marker := " "
		if room.ID == state.ActiveRoomID {
			marker = "*"
		}
		preview := ""
		if room.LastMessage != nil {
			preview = room.LastMessage.Text
		}
		fmt.Printf("%s %2d. %s (%d unread) %s\n", marker, i+1, room.OtherUser.FullName, room.UnreadCount, preview)
	}
	fmt.Printf("rooms needing attention: %d\n", state.TotalUnreadRooms)
}

func printThread(st *store.Store) {
	for _, msg := range st.ActiveMessages() {
		who := msg.SenderID
		if msg.IsOwn {
			who = "me"
		}
		suffix := ""
		if msg.Temp {
			suffix = " (sending)"
		}
		fmt.Printf("[%s] %s: %s%s\n", msg.Timestamp, who, msg.Content, suffix)
	}
}

// unreadNotifier rings the bell when a background room's unread count
// rises. Derived by diffing counts across changes; deliberately not a
// store responsibility.
type unreadNotifier struct {
	st   *store.Store
	seen map[string]int
}

func newUnreadNotifier(st *store.Store) *unreadNotifier {
	return &unreadNotifier{st: st, seen: make(map[string]int)}
}

func (n *unreadNotifier) onStoreChange() {
	state := n.st.State()
	for _, room := range state.Rooms {
		if room.ID != state.ActiveRoomID && room.UnreadCount > n.seen[room.ID] {
			fmt.Printf("\a[%s] new message\n", room.OtherUser.FullName)
		}
		n.seen[room.ID] = room.UnreadCount
	}
}
