package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mdp/qrterminal/v3"
	"github.com/spf13/cobra"
	"github.com/talkincode/ispcare/config"
	"github.com/talkincode/ispcare/internal/adminapi"
	"github.com/talkincode/ispcare/internal/app"
	"github.com/talkincode/ispcare/internal/webserver"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "ispcare",
	Short: "ISP customer care over WhatsApp",
	Long: `ispcare runs the WhatsApp customer-care bot and its admin API.

Examples:
  ispcare serve -c /etc/ispcare.yml
  ispcare pair
  ispcare initdb --force`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot, background jobs and admin API",
	RunE:  runServe,
}

var initdbForce bool

var initdbCmd = &cobra.Command{
	Use:   "initdb",
	Short: "Drop and recreate every table, then seed defaults",
	RunE:  runInitdb,
}

var pairCmd = &cobra.Command{
	Use:   "pair",
	Short: "Link the bot's WhatsApp account by scanning a QR code",
	RunE:  runPair,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default ispcare.yml)")
	initdbCmd.Flags().BoolVar(&initdbForce, "force", false, "confirm dropping existing data")
	rootCmd.AddCommand(serveCmd, initdbCmd, pairCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func load() (*config.AppConfig, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, err
	}
	app.InitLogger(cfg)
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := load()
	if err != nil {
		return err
	}
	application := app.NewApplication(cfg)
	if err := application.Init(); err != nil {
		return err
	}
	defer application.Release()

	web := webserver.Init(cfg.Web.Secret, cfg.Web.TokenTTL, "/auth/login")
	adminapi.Init(newBackend(application))

	ctx, cancel := signalContext()
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return web.Start(ctx, fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port))
	})
	g.Go(func() error {
		return application.Run(ctx)
	})
	zap.L().Info("ispcare started", zap.Int("port", cfg.Web.Port), zap.Bool("whatsapp", cfg.WhatsApp.Enabled))
	err = g.Wait()
	zap.L().Info("ispcare stopped")
	return err
}

func newBackend(a app.AppContext) *adminapi.Backend {
	b := &adminapi.Backend{
		DB:       a.DB(),
		Tickets:  a.Tickets(),
		Requests: a.Requests(),
		Locker:   a.Locker(),
		Photos:   a.PhotoQueue(),
		Archive:  a.PhotoArchive(),
		Network:  a.QoS(),
	}
	if wa := a.WhatsApp(); wa != nil {
		b.WhatsApp = wa
	}
	return b
}

func runInitdb(cmd *cobra.Command, args []string) error {
	if !initdbForce {
		return fmt.Errorf("initdb drops all data, rerun with --force")
	}
	cfg, err := load()
	if err != nil {
		return err
	}
	cfg.WhatsApp.Enabled = false
	application := app.NewApplication(cfg)
	if err := application.Init(); err != nil {
		return err
	}
	defer application.Release()
	application.InitDb()
	zap.L().Info("database initialized")
	return nil
}

func runPair(cmd *cobra.Command, args []string) error {
	cfg, err := load()
	if err != nil {
		return err
	}
	cfg.WhatsApp.Enabled = true
	application := app.NewApplication(cfg)
	if err := application.Init(); err != nil {
		return err
	}
	defer application.Release()

	ctx, cancel := signalContext()
	defer cancel()
	wa := application.WhatsApp()
	defer wa.Disconnect()
	err = wa.Pair(ctx, func(code string) {
		fmt.Fprintln(os.Stdout, "Scan this code from WhatsApp > Linked devices:")
		qrterminal.GenerateHalfBlock(code, qrterminal.L, os.Stdout)
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, "Paired. Start the bot with: ispcare serve")
	return nil
}
