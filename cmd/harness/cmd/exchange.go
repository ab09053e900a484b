package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"

	"split-harness-go/cache"
	"split-harness-go/config"
	"split-harness-go/exchange"
	"split-harness-go/harness"
	"split-harness-go/storage"
	"split-harness-go/util/log"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
)

var serveTaskID string

var exchangeCmd = &cobra.Command{
	Use:   "exchange",
	Short: "Exchange server commands",
}

func serveExchange(ctx context.Context, keys []string) error {
	cfg := config.GetConfig()
	store, err := storage.FromConfig(cfg)
	if err != nil {
		return err
	}
	b, err := buildScan(ctx, store, keys)
	if err != nil {
		return err
	}
	root, err := b.Plan()
	if err != nil {
		return err
	}
	m, err := harness.SplitsForOnlyLeaf(root, fileSplits(store, keys))
	if err != nil {
		return err
	}

	cursor, err := harness.OpenCursor(ctx, harness.CursorParameters{
		Plan:  root,
		Cache: cache.NewProvider(),
	}, harness.NewPendingSplits(m))
	if err != nil {
		return err
	}
	defer cursor.Close()

	srv := exchange.NewServer(nil,
		grpc.MaxSendMsgSize(cfg.MaxMessageBytes()),
		grpc.MaxRecvMsgSize(cfg.MaxMessageBytes()),
	)
	srv.Register(serveTaskID, cursor)

	lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Exchange.Host, cfg.Exchange.Port))
	if err != nil {
		return err
	}
	pass.Fprintf(os.Stderr, "serving task %s on %s\n", serveTaskID, lis.Addr())

	go func() {
		<-ctx.Done()
		srv.Stop()
	}()
	if err := srv.Serve(lis); err != nil {
		return err
	}
	log.Infow(ctx, "exchange stopped", "pending", srv.Pending())
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve [keys...]",
	Short: "Serve the batches of objects from the configured store to one exchange reader",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		if serveTaskID == "" {
			serveTaskID = uuid.NewString()
		}
		if err := serveExchange(ctx, args); err != nil {
			bailf("exchange failed: %s", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(exchangeCmd)
	exchangeCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&serveTaskID, "task-id", "", "", "task id readers fetch (random by default)")
}
