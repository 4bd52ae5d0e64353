// texconv decodes, encodes and catalogs texture files.
//
// Usage:
//
//	texconv decode input.dds output.png        # any recognised texture → PNG/BMP/TIFF
//	texconv encode input.png output.dds        # image → BC-compressed DDS
//	texconv info input.ti                      # show what the decoder makes of a file
//	texconv raw --width 64 --height 64 --layout RGB565 in out.png
//	texconv batch textures/ out/               # decode a directory tree
//	texconv scan textures/                     # record a tree in the catalog
package main

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/goopsie/pixcodec/pkg/arbiter"
	"github.com/goopsie/pixcodec/pkg/texture"
	"github.com/urfave/cli/v2"
)

const defaultDB = "pixcodec.db"

func newLogger(c *cli.Context) *log.Logger {
	logger := log.New(io.Discard, "", 0)
	if c.Bool("verbose") {
		logger.SetOutput(os.Stderr)
	}
	return logger
}

func newRegistry(logger *log.Logger) (*arbiter.Registry, error) {
	reg := arbiter.New(arbiter.WithLogger(logger))
	if err := texture.Register(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

func main() {
	app := cli.NewApp()

	app.Name = "texconv"
	app.Usage = "Texture decoder, encoder and catalog"
	app.Version = "1.0.0"

	cwd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "db",
			EnvVars: []string{"PIXCODEC_DB"},
			Value:   filepath.Join(cwd, defaultDB),
			Usage:   "path to catalog database",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "increase verbosity",
		},
	}

	app.Commands = []*cli.Command{
		decodeCommand(),
		encodeCommand(),
		infoCommand(),
		rawCommand(),
		batchCommand(),
		scanCommand(),
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
