package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yeenbean/pauljac3-mastodon-bot/internal/api"
	"github.com/yeenbean/pauljac3-mastodon-bot/internal/config"
	"github.com/yeenbean/pauljac3-mastodon-bot/internal/integrations/paramstore"
	"github.com/yeenbean/pauljac3-mastodon-bot/internal/logx"
	"github.com/yeenbean/pauljac3-mastodon-bot/internal/service"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	cancel()
	if err != nil {
		os.Exit(1)
	}
}

// app is what every command gets after startup
type app struct {
	cfg *config.Config
	log *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "crossposter",
		Short: "Posts a rotating list of messages to Mastodon, Bluesky and X, and answers mentions",
		Long: `crossposter posts the next message of its content files every 30 minutes
and replies to new mentions every minute.

Run without a subcommand to start the scheduler.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.bootstrap(cmd.Context())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context())
		},
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Start the scheduler (default)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.run(cmd.Context())
			},
		},
		newReplyOnceCmd(a),
		newClearCmd(a),
		newDiagnoseCmd(a),
		newCheckCmd(a),
	)
	return root
}

// bootstrap loads configuration, resolves secrets and builds the logger
func (a *app) bootstrap(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Secrets.SSMPrefix != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return fmt.Errorf("load aws config: %w", err)
		}
		ps, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
		if err != nil {
			return err
		}
		if err := cfg.ResolveSecrets(ctx, ps); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log, err := logx.New(cfg.App.Env, cfg.DebugEnabled())
	if err != nil {
		return err
	}
	a.cfg, a.log = cfg, log
	return nil
}

// open builds the service; failures are logged at error level
func (a *app) open(ctx context.Context) (*service.Service, error) {
	svc, err := service.Open(ctx, a.cfg, a.log)
	if err != nil {
		a.log.Error("startup failed", zap.Error(err))
		return nil, err
	}
	return svc, nil
}

func (a *app) run(ctx context.Context) error {
	svc, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			a.log.Warn("close", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.cfg.Scheduler.Enabled {
		svc.Start(ctx)
	} else {
		a.log.Info("scheduler disabled")
	}

	var srv *api.Server
	if a.cfg.Server.Enabled {
		srv = api.NewServer(api.ServerCfg{
			Port:         a.cfg.Server.Port,
			ReadTimeout:  a.cfg.Server.ReadTimeout,
			WriteTimeout: a.cfg.Server.WriteTimeout,
			IdleTimeout:  a.cfg.Server.IdleTimeout,
		}, svc, svc.Registry(), a.log)
		go func() {
			if err := srv.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error("http server start", zap.Error(err))
				cancel()
			}
		}()
	}

	<-ctx.Done()
	a.log.Info("shutting down", zap.Error(context.Cause(ctx)))
	if srv != nil {
		shutdownCtx, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(shutdownCtx)
	}
	if svc.SchedulerRunning() {
		svc.Stop(errors.New("process shutting down"))
	}
	return nil
}
