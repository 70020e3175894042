// Package cli wires configuration, transports, the sync engine and the TUI
// behind the chatsync command.
package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/storefront-io/chatsync/internal/api"
	"github.com/storefront-io/chatsync/internal/config"
	"github.com/storefront-io/chatsync/internal/db"
	"github.com/storefront-io/chatsync/internal/events"
	"github.com/storefront-io/chatsync/internal/logging"
	"github.com/storefront-io/chatsync/internal/models"
	"github.com/storefront-io/chatsync/internal/push"
	"github.com/storefront-io/chatsync/internal/state"
	syncengine "github.com/storefront-io/chatsync/internal/sync"
	"github.com/storefront-io/chatsync/internal/tui"
)

// Execute runs the root command.
func Execute(version string) error {
	return newRootCmd(version).Execute()
}

func newRootCmd(version string) *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:           "chatsync",
		Short:         "Real-time conversation sync client",
		Long:          "chatsync keeps a local conversation view synchronized with the chat backend over REST and push.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(configFile)
		},
	}
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file path")

	cmd.AddCommand(
		newSendCmd(&configFile),
		newConversationsCmd(&configFile),
		newUnreadCmd(&configFile),
	)
	return cmd
}

// app holds everything the commands need, built once per invocation.
type app struct {
	cfg     *config.Config
	session *syncengine.Session
	channel *push.Channel
	cache   *db.Cache
	drafts  *state.Manager
}

func buildApp(configFile string, withPush bool) (*app, error) {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return nil, err
	}

	logging.Init(logging.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		EnableCaller: cfg.Logging.EnableCaller,
	})

	if strings.TrimSpace(cfg.Global.UserID) == "" {
		return nil, fmt.Errorf("global.user_id is required (set CHATSYNC_GLOBAL_USER_ID or the config file)")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	client, err := api.NewClient(api.Config{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.API.Timeout,
	})
	if err != nil {
		return nil, err
	}
	backend := api.NewBackend(client)

	var channel *push.Channel
	var publisher syncengine.PushPublisher
	if withPush {
		channel, err = push.NewChannel(push.Config{
			URL:               cfg.Push.URL,
			DialTimeout:       cfg.Push.DialTimeout,
			ReconnectInterval: cfg.Push.ReconnectInterval,
			SubscribeBuffer:   cfg.Push.SubscribeBuffer,
		})
		if err != nil {
			return nil, err
		}
		publisher = push.NewPublisher(channel)
	}

	var cache *db.Cache
	var engineCache syncengine.Cache
	if cfg.Cache.Enabled {
		cache, err = db.NewCache(context.Background(), db.Config{
			Path:           cfg.CachePath(),
			MaxConnections: cfg.Cache.MaxConnections,
			BusyTimeoutMs:  cfg.Cache.BusyTimeoutMs,
		})
		if err != nil {
			// The cache is best-effort; run without it rather than fail startup.
			logging.Warn().Err(err).Msg("offline cache unavailable")
			cache = nil
		}
	}
	if cache != nil {
		engineCache = cache
	}

	drafts := state.New(cfg.StatePath())
	if err := drafts.Load(); err != nil {
		logging.Warn().Err(err).Msg("state file unreadable, starting fresh")
	}

	session, err := syncengine.NewSession(syncengine.Options{
		SelfID:            cfg.Global.UserID,
		PageSize:          cfg.Sync.HistoryPageSize,
		ListPageSize:      syncengine.DefaultListPageSize,
		LoadMoreThreshold: cfg.Sync.LoadMoreThreshold,
	}, backend, publisher, drafts, engineCache, events.NewInMemoryBus())
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:     cfg,
		session: session,
		channel: channel,
		cache:   cache,
		drafts:  drafts,
	}, nil
}

func (a *app) close() {
	if a.channel != nil {
		_ = a.channel.Close()
	}
	if a.cache != nil {
		_ = a.cache.Close()
	}
	_ = a.drafts.Close()
}

func loadConfig(configFile string) (*config.Config, error) {
	if strings.TrimSpace(configFile) != "" {
		return config.LoadFromFile(configFile)
	}
	return config.LoadDefault()
}

func runTUI(configFile string) error {
	a, err := buildApp(configFile, true)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deliveries, stop := a.channel.Subscribe(ctx)
	defer stop()

	a.session.SeedListFromCache(ctx)

	return tui.Run(a.session, deliveries, a.drafts, tui.Config{
		SelfID: a.cfg.Global.UserID,
		Theme:  a.cfg.TUI.Theme,
	})
}

func newSendCmd(configFile *string) *cobra.Command {
	var conversationID, counterpartyID, shopID, receiverID, kind string

	cmd := &cobra.Command{
		Use:   "send <content>",
		Short: "Send one message and exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*configFile, conversationID != "")
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			if conversationID != "" && a.channel != nil {
				// The publisher needs a live connection for fire-and-forget sends.
				_, stop := a.channel.Subscribe(ctx)
				defer stop()

				waitCtx, cancel := context.WithTimeout(ctx, a.cfg.Push.DialTimeout)
				err := a.channel.WaitConnected(waitCtx)
				cancel()
				if err != nil {
					return fmt.Errorf("push endpoint unreachable: %w", err)
				}
			}

			result, err := a.session.Send(ctx, syncengine.SendInput{
				ConversationID: conversationID,
				CounterpartyID: counterpartyID,
				ShopID:         shopID,
				ReceiverID:     receiverID,
				Kind:           models.MessageKind(kind),
				Content:        args[0],
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", result.State, result.ConversationID)
			return nil
		},
	}

	cmd.Flags().StringVar(&conversationID, "conversation", "", "Existing conversation ID (omit to create one)")
	cmd.Flags().StringVar(&counterpartyID, "to", "", "Counterparty user ID for a new conversation")
	cmd.Flags().StringVar(&shopID, "shop", "", "Shop ID for a new conversation")
	cmd.Flags().StringVar(&receiverID, "receiver", "", "Receiver user ID for push routing")
	cmd.Flags().StringVar(&kind, "kind", string(models.MessageKindText), "Message kind (text, image, product, order)")
	return cmd
}

func newConversationsCmd(configFile *string) *cobra.Command {
	var keyword string

	cmd := &cobra.Command{
		Use:   "conversations",
		Short: "List conversations by recent activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*configFile, false)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.session.RefreshList(cmd.Context(), keyword, true); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, conv := range a.session.Conversations() {
				marker := " "
				if conv.UnreadFor(a.session.SelfID()) {
					marker = "*"
				}
				name := conv.Counterparty.Name
				if name == "" {
					name = conv.Counterparty.ID
				}
				preview := ""
				if conv.LastMessage != nil {
					preview = strings.ReplaceAll(conv.LastMessage.Content, "\n", " ")
				}
				fmt.Fprintf(out, "%s %-12s %-20s %s\n", marker, conv.ID, name, preview)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&keyword, "keyword", "", "Filter conversations by keyword")
	return cmd
}

func newUnreadCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "unread",
		Short: "Print the global unread-conversation count",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configFile)
			if err != nil {
				return err
			}
			client, err := api.NewClient(api.Config{
				BaseURL: cfg.API.BaseURL,
				Timeout: cfg.API.Timeout,
			})
			if err != nil {
				return err
			}
			count, err := client.UnreadCount(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), count)
			return nil
		},
	}
}
