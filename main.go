package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/xiaoyuanzhu-com/my-life-chat/api"
	"github.com/xiaoyuanzhu-com/my-life-chat/backup"
	"github.com/xiaoyuanzhu-com/my-life-chat/chats"
	"github.com/xiaoyuanzhu-com/my-life-chat/config"
	"github.com/xiaoyuanzhu-com/my-life-chat/db"
	"github.com/xiaoyuanzhu-com/my-life-chat/log"
	"github.com/xiaoyuanzhu-com/my-life-chat/models"
	"github.com/xiaoyuanzhu-com/my-life-chat/server"
	"golang.org/x/sync/errgroup"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:           "my-life-chat",
		Short:         "Hierarchical chat store with an HTTP API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFile(configFile)
			if err != nil {
				return errors.Wrapf(err, "load config %s", configFile)
			}
			log.SetLevel(cfg.LogLevel)
			return nil
		},
		RunE: runServe,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (yaml, json or toml); environment variables still apply")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP server (default)",
			Args:  cobra.NoArgs,
			RunE:  runServe,
		},
		&cobra.Command{
			Use:   "tree",
			Short: "Print the chat tree",
			Args:  cobra.NoArgs,
			RunE:  runTree,
		},
		&cobra.Command{
			Use:   "export <file>",
			Short: "Write every chat to a .json, .yaml or .tar.gz file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return exportTo(cmd.Context(), args[0])
			},
		},
		&cobra.Command{
			Use:   "import <file>",
			Short: "Replace the whole tree with the contents of a backup file",
			Args:  cobra.ExactArgs(1),
			RunE:  runImport,
		},
		&cobra.Command{
			Use:   "backup",
			Short: "Quick-save the tree to CHAT_HISTORY_PATH",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				target := config.Get().HistoryPath
				if target == "" {
					return errors.New("CHAT_HISTORY_PATH is not set")
				}
				return exportTo(cmd.Context(), target)
			},
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := server.FromAppConfig(config.Get())

	srv, err := server.New(cfg)
	if err != nil {
		return err
	}
	api.SetupRoutes(srv.Router(), api.NewHandlers(srv))
	printNetworkAddresses(cfg.Port)

	eg, ctx := errgroup.WithContext(cmd.Context())
	eg.Go(srv.Start)
	eg.Go(func() error {
		<-ctx.Done()

		// Shutdown server with timeout to close remaining HTTP connections
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return eg.Wait()
}

// openStore opens the database and chat store for one-shot commands.
func openStore(ctx context.Context) (*db.DB, *chats.Store, error) {
	cfg := server.FromAppConfig(config.Get())
	database, err := db.Open(cfg.ToDBConfig())
	if err != nil {
		return nil, nil, err
	}
	store, err := chats.Open(ctx, database, cfg.ToStoreOptions(nil))
	if err != nil {
		database.Close()
		return nil, nil, err
	}
	return database, store, nil
}

func runTree(cmd *cobra.Command, args []string) error {
	database, store, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer database.Close()

	tree, err := store.Tree(cmd.Context())
	if err != nil {
		return err
	}
	active, _ := store.Active()
	printTree(cmd.OutOrStdout(), tree, active, 0)
	return nil
}

func printTree(w io.Writer, node *chats.TreeNode, active chats.Path, depth int) {
	for _, child := range node.Children {
		name := child.Name
		if child.Kind == models.KindGroup {
			name += "/"
		}
		marker := ""
		if child.Path.Equal(active) {
			marker = " *"
		}
		fmt.Fprintf(w, "%s%s%s\n", strings.Repeat("  ", depth), name, marker)
		printTree(w, child, active, depth+1)
	}
}

func exportTo(ctx context.Context, target string) error {
	database, store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	doc, err := store.Export(ctx)
	if err != nil {
		return err
	}
	return backup.Save(ctx, target, doc)
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	doc, err := backup.Load(ctx, args[0])
	if err != nil {
		return err
	}

	database, store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := store.Import(ctx, doc); err != nil {
		return err
	}
	log.Info().Str("file", args[0]).Int("chats", len(doc.Chats)).Msg("import complete")
	return nil
}

func printNetworkAddresses(port int) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok {
				if ip4 := ipnet.IP.To4(); ip4 != nil {
					log.Info().Str("url", fmt.Sprintf("http://%s:%d", ip4.String(), port)).Msg("network")
				}
			}
		}
	}
}
