package app

import (
	"context"
	"datapulse/cmd/datapulse/options"
	"datapulse/pkg/generic"
	baseoptions "datapulse/pkg/generic/options"
	"datapulse/pkg/web"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	utilserrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/klog/v2"
	"os"
	"os/signal"
	"syscall"
)

const (
	ComponentDataPulse = "datapulse"
)

func NewDataPulseCmd() *cobra.Command {
	cleanFlagSet := pflag.NewFlagSet(ComponentDataPulse, pflag.ContinueOnError)
	o := options.NewDefaultOptions()
	cmd := &cobra.Command{
		Use: ComponentDataPulse,
		Long: `DataPulse supervises one Modbus device: it evaluates alarm rules against live
values, logs point windows to a database, sweeps address ranges for active
points and serves a control API.`,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// initial flag parse, since we disable cobra's flag parsing
			if err := cleanFlagSet.Parse(args); err != nil {
				klog.ErrorS(err, "Failed to parse flag")
				_ = cmd.Usage()
				os.Exit(1)
			}

			// check if there are non-flag arguments in the command line
			cmds := cleanFlagSet.Args()
			if len(cmds) > 0 {
				klog.ErrorS(nil, "Unknown command", "command", cmds[0])
				_ = cmd.Usage()
				os.Exit(1)
			}

			// short-circuit on help
			baseoptions.PrintHelpAndExitIfRequested(cmd, cleanFlagSet)

			// short-circuit on defaultconfig
			baseoptions.PrintDefaultConfigAndExitIfRequested(options.NewDefaultOptions(), cleanFlagSet)

			if err := baseoptions.ParseAndApplyConfigFile(o, args); err != nil {
				return err
			}

			if errs := options.Validate(o); len(errs) != 0 {
				return utilserrors.NewAggregate(errs)
			}

			return run(o)
		},
	}

	o.AddFlags(cleanFlagSet)
	o.AddBaseFlags(cmd, cleanFlagSet)

	return cmd
}

func run(o *options.Options) error {
	c, err := o.Config(context.Background())
	if err != nil {
		return err
	}

	server, err := web.NewServer(generic.Default(), o, c)
	if err != nil {
		c.Close()
		return err
	}

	exit, err := server.Serve()
	if err != nil {
		c.Close()
		return err
	}
	klog.V(1).InfoS("Server started", "port", o.Port, "transport", o.Device.Transport)

	if o.Engine.AutoConnect {
		ctx, cancel := context.WithTimeout(context.Background(), o.Device.Timeout)
		if err := c.Engine.Connect(ctx, o.Device.Host, o.Device.Port); err != nil {
			klog.ErrorS(err, "Auto connect failed, connect through the API", "host", o.Device.Host, "port", o.Device.Port)
		}
		cancel()
	}

	// Wait for interrupt signal to gracefully shutdown the server
	exitCh := make(chan os.Signal, 1)
	// kill (no param) default send syscall.SIGTERM
	// kill -2 is syscall.SIGINT
	// kill -9 is syscall.SIGKILL but can't be catch, so don't need add it
	signal.Notify(exitCh, syscall.SIGINT, syscall.SIGTERM)
	<-exitCh
	ctx, cancel := context.WithTimeout(context.Background(), o.Wait)
	defer cancel()

	exit(ctx)
	klog.V(1).InfoS("Server stopped")
	return nil
}
