package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/rommer/cmd/rommer/commands"
	ferrors "git.home.luguber.info/inful/rommer/internal/foundation/errors"
	"git.home.luguber.info/inful/rommer/internal/version"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cli := &commands.CLI{}
	global := &commands.Global{Ctx: ctx, Logger: slog.Default()}
	parser, err := kong.New(cli,
		kong.Name("rommer"),
		kong.Description("Declarative Android ROM build pipeline: download, patch, repack and sign."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
		kong.Bind(global),
	)
	if err != nil {
		panic(err)
	}
	kctx, err := parser.Parse(args)
	parser.FatalIfErrorf(err)

	if err := kctx.Run(); err != nil {
		return ferrors.NewCLIErrorAdapter(cli.Verbose, global.Logger).Report(err)
	}
	return 0
}
