package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/asset-delivery/internal/bundle"
	"github.com/any-hub/asset-delivery/internal/config"
	"github.com/any-hub/asset-delivery/internal/logging"
	"github.com/any-hub/asset-delivery/internal/plugin"
	"github.com/any-hub/asset-delivery/internal/server"
	"github.com/any-hub/asset-delivery/internal/server/routes"
	"github.com/any-hub/asset-delivery/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["bundle_path"] = cfg.Assets.BundlePath
		fields["cache_dir"] = cfg.Assets.CacheDir
		fields["record_mode"] = cfg.Assets.RecordMode()
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 启动遵循“配置 → 资源包 → 插件挂载（启动清理）→ Fiber server”顺序，
	// 清理完成前不会接受任何 getAssetFile 调用。
	app, p, err := buildApp(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "插件挂载失败: %v\n", err)
		return 1
	}
	defer func() {
		if err := p.Detach(); err != nil {
			logger.WithError(err).Warn("插件解除挂载失败")
		}
	}()

	fields := logging.BaseFields("startup", opts.configPath)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["channel"] = p.Channel()
	fields["record_mode"] = cfg.Assets.RecordMode()
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := serve(ctx, app, cfg, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("asset-delivery", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 ASSET_DELIVERY_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("ASSET_DELIVERY_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

// buildApp 打开资源包、挂载插件并组装 Fiber 应用；失败时不会遗留已挂载的插件。
func buildApp(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*fiber.App, *plugin.Plugin, error) {
	b, err := bundle.NewDirBundle(cfg.Assets.BundlePath)
	if err != nil {
		return nil, nil, err
	}

	p, err := plugin.Attach(ctx, plugin.Options{
		Bundle:        b,
		CacheDir:      cfg.Assets.CacheDir,
		Logger:        logger,
		ChannelName:   cfg.Assets.ChannelName,
		StrictRecords: cfg.Assets.StrictRecords,
	})
	if err != nil {
		return nil, nil, err
	}

	app, err := server.NewApp(server.AppOptions{
		Logger:      logger,
		Handler:     p,
		ReadTimeout: cfg.Global.ReadTimeout.DurationValue(),
	})
	if err != nil {
		_ = p.Detach()
		return nil, nil, err
	}
	routes.RegisterDiagnosticsRoutes(app, p)
	return app, p, nil
}

// serve 监听端口直到 ctx 被取消，随后在 ShutdownTimeout 内优雅退出。
func serve(ctx context.Context, app *fiber.App, cfg *config.Config, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(fmt.Sprintf(":%d", port))
	}()

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.WithField("action", "shutdown").Info("收到退出信号，开始关闭服务")
	if err := app.ShutdownWithTimeout(cfg.Global.ShutdownTimeout.DurationValue()); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return <-errCh
}
