package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fathima-sithara/chatlist-service/internal/auth"
	"github.com/fathima-sithara/chatlist-service/internal/chatlist"
	"github.com/fathima-sithara/chatlist-service/internal/config"
	"github.com/fathima-sithara/chatlist-service/internal/discovery"
	"github.com/fathima-sithara/chatlist-service/internal/domain"
	"github.com/fathima-sithara/chatlist-service/internal/logger"
	"github.com/fathima-sithara/chatlist-service/internal/repository"
	"github.com/fathima-sithara/chatlist-service/internal/rpcclient"
	"github.com/fathima-sithara/chatlist-service/internal/seed"
	"github.com/fathima-sithara/chatlist-service/internal/service"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const emptyListText = "No messages yet? Find something you like and start a conversation!"

type listOptions struct {
	token     string
	tokenFile string
	fixture   string
	open      int
	explore   bool
}

func newListCmd(configPath *string) *cobra.Command {
	var o listOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the chat list of the signed-in user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.App.Development(), cfg.App.Name)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			return runList(cmd.Context(), cmd.OutOrStdout(), cfg, o, log)
		},
	}
	cmd.Flags().StringVar(&o.token, "token", "", "session token")
	cmd.Flags().StringVar(&o.tokenFile, "token-file", "", "file holding the session token")
	cmd.Flags().StringVar(&o.fixture, "fixture", "", "answer from a YAML fixture in process instead of calling the service")
	cmd.Flags().IntVar(&o.open, "open", 0, "open the conversation at this 1-based position")
	cmd.Flags().BoolVar(&o.explore, "explore", false, "follow the explore call to action when the list is empty")
	return cmd
}

func runList(ctx context.Context, out io.Writer, cfg *config.Config, o listOptions, log *zap.Logger) error {
	var tokens auth.TokenSource
	switch {
	case o.tokenFile != "":
		tokens = auth.FileToken(o.tokenFile)
	default:
		tokens = auth.StaticToken(o.token)
	}

	agg, err := newAggregator(ctx, cfg, o.fixture, tokens, log)
	if err != nil {
		return err
	}

	ctrl := chatlist.New(
		auth.NewTokenIdentity(tokens),
		agg,
		consoleNavigator{w: out},
		chatlist.WithLogger(log),
		chatlist.WithTimeFormatter(chatlist.LayoutFormatter(cfg.Client.TimeLayout, nil)),
		chatlist.WithNotifier(chatlist.NotifierFunc(func(n chatlist.Notification) {
			fmt.Fprintf(out, "%s: %s\n", n.Title, n.Message)
		})),
	)
	defer ctrl.Close()

	if err := ctrl.Mount(ctx); err != nil {
		return err
	}
	st := ctrl.State()
	if st.ShowsExplore() {
		fmt.Fprintln(out, emptyListText)
		if o.explore {
			return ctrl.Explore()
		}
		return nil
	}
	printRows(out, st.Rows)

	if o.open > 0 {
		if o.open > len(st.Rows) {
			return fmt.Errorf("--open %d: list has %d conversations", o.open, len(st.Rows))
		}
		return ctrl.Select(st.Rows[o.open-1])
	}
	return nil
}

func newAggregator(ctx context.Context, cfg *config.Config, fixture string, tokens auth.TokenSource, log *zap.Logger) (chatlist.Aggregator, error) {
	if fixture != "" {
		f, err := seed.Load(afero.NewOsFs(), fixture)
		if err != nil {
			return nil, err
		}
		store := repository.NewMemoryStore()
		if _, err := seed.Apply(ctx, store, f, nil); err != nil {
			return nil, err
		}
		return localAggregator{svc: service.NewConversationService(store, log)}, nil
	}
	disc, err := discovery.New(cfg.Client.ConsulAddr, cfg.Client.Services, log)
	if err != nil {
		return nil, err
	}
	return rpcclient.New(disc, tokens, rpcclient.Config{Service: cfg.Client.Service, Timeout: cfg.ClientTimeout}), nil
}

// localAggregator serves records from an in-process service.
type localAggregator struct {
	svc *service.ConversationService
}

func (a localAggregator) LatestMessages(ctx context.Context, currentUserID string) ([]domain.LatestMessageRecord, error) {
	s, err := a.svc.ListConversations(ctx, currentUserID)
	if err != nil {
		return nil, err
	}
	return domain.Records(s), nil
}

type consoleNavigator struct {
	w io.Writer
}

func (n consoleNavigator) Navigate(route string, params map[string]string) error {
	if route == "" {
		return errors.New("empty route")
	}
	var b strings.Builder
	b.WriteString(route)
	if id, ok := params["userId"]; ok {
		fmt.Fprintf(&b, "?userId=%s&name=%s", id, params["name"])
	}
	_, err := fmt.Fprintf(n.w, "-> %s\n", b.String())
	return err
}

func printRows(w io.Writer, rows []chatlist.Row) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, r := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i+1, r.Name, r.LastMessage, r.TimeLabel, r.Avatar)
	}
	_ = tw.Flush()
}
