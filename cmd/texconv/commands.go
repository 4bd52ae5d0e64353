package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goopsie/pixcodec/internal/catalog"
	"github.com/goopsie/pixcodec/pkg/arbiter"
	"github.com/goopsie/pixcodec/pkg/block"
	"github.com/goopsie/pixcodec/pkg/container"
	"github.com/goopsie/pixcodec/pkg/cursor"
	"github.com/goopsie/pixcodec/pkg/expand"
	"github.com/goopsie/pixcodec/pkg/packed"
	"github.com/goopsie/pixcodec/pkg/pixel"
	"github.com/goopsie/pixcodec/pkg/swizzle"
	"github.com/goopsie/pixcodec/pkg/texture"
	"github.com/urfave/cli/v2"
)

var expandFlag = &cli.StringFlag{
	Name:  "expand",
	Value: "auto",
	Usage: "decompress input first: auto, none, " + strings.Join(expand.Names(), ", "),
}

// expandData applies the --expand choice. It returns the expander used, if any.
func expandData(data []byte, mode string, size int) ([]byte, string, error) {
	var e expand.Expander
	switch mode {
	case "none", "":
		return data, "", nil
	case "auto":
		var ok bool
		if e, ok = expand.Sniff(data); !ok {
			return data, "", nil
		}
	default:
		var err error
		if e, err = expand.ByName(mode); err != nil {
			return nil, "", err
		}
	}
	out, err := e.Expand(data, size)
	if err != nil {
		return nil, "", fmt.Errorf("expand: %w", err)
	}
	return out, fmt.Sprint(e), nil
}

// newRequest reads path and wires its directory in for siblings and palettes.
func newRequest(path, mode string, full bool) (*arbiter.Request, error) {
	dir, err := container.Open(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	data, _, err = expandData(data, mode, 0)
	if err != nil {
		return nil, err
	}
	return &arbiter.Request{
		Name:        filepath.Base(path),
		Data:        data,
		Full:        full,
		Palettes:    dir,
		FindSibling: dir.FindSibling,
	}, nil
}

func decodeFile(ctx context.Context, reg *arbiter.Registry, in, out, mode string, full bool, factor float64) ([]string, string, error) {
	req, err := newRequest(in, mode, full)
	if err != nil {
		return nil, "", err
	}
	img, adapter, err := reg.Dispatch(ctx, req)
	if err != nil {
		return nil, "", err
	}
	written, err := writeFrames(out, img, factor)
	return written, adapter, err
}

func decodeCommand() *cli.Command {
	return &cli.Command{
		Name:      "decode",
		Usage:     "Decode a texture to PNG, BMP or TIFF",
		ArgsUsage: "INPUT OUTPUT",
		Flags: []cli.Flag{
			expandFlag,
			&cli.BoolFlag{Name: "full", Usage: "write every array slice or cube face"},
			&cli.Float64Flag{Name: "scale", Value: 1, Usage: "resize the output by this factor"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 2 {
				cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
			}

			reg, err := newRegistry(newLogger(c))
			if err != nil {
				return cli.Exit(err, 1)
			}
			in, out := c.Args().Get(0), c.Args().Get(1)
			written, adapter, err := decodeFile(c.Context, reg, in, out, c.String("expand"), c.Bool("full"), c.Float64("scale"))
			if err != nil {
				return cli.Exit(err, 1)
			}
			fmt.Printf("Decoded %s → %s (%s)\n", in, strings.Join(written, ", "), adapter)
			return nil
		},
	}
}

// autoFormat picks DXT1 for opaque images and DXT5 otherwise.
func autoFormat(img *pixel.Image) block.Format {
	for _, p := range img.Pix {
		if p>>24 != 0xFF {
			return block.DXT5
		}
	}
	return block.DXT1
}

func autoETCFormat(img *pixel.Image) block.Format {
	if autoFormat(img) == block.DXT5 {
		return block.ETC2RGBA8
	}
	return block.ETC2RGB
}

func encodeCommand() *cli.Command {
	return &cli.Command{
		Name:      "encode",
		Usage:     "Encode an image as a BC-compressed DDS or an ETC PKM, or patch it into a TI texture",
		ArgsUsage: "INPUT OUTPUT",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Value: "auto", Usage: "auto or a block format such as DXT5 or ETC2_RGB"},
			&cli.IntFlag{Name: "mips", Usage: "mip levels to write, 0 for a full chain"},
			&cli.BoolFlag{Name: "zstd", Usage: "wrap the output in a zstd envelope"},
			&cli.IntFlag{Name: "level", Value: expand.DefaultCompressionLevel, Usage: "zstd compression level"},
			&cli.StringFlag{Name: "ti", Usage: "TI file whose CLUT and pixels are replaced"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 2 {
				cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
			}
			in, out := c.Args().Get(0), c.Args().Get(1)

			img, err := readImage(in)
			if err != nil {
				return cli.Exit(err, 1)
			}

			var data []byte
			var desc string
			if tmpl := c.String("ti"); tmpl != "" {
				src, err := os.ReadFile(tmpl)
				if err != nil {
					return cli.Exit(err, 1)
				}
				if data, err = texture.PatchTI(src, img); err != nil {
					return cli.Exit(err, 1)
				}
				desc = "TI"
			} else if strings.EqualFold(filepath.Ext(out), ".pkm") {
				format := autoETCFormat(img)
				if name := c.String("format"); name != "auto" {
					if format, err = block.ParseFormat(name); err != nil {
						return cli.Exit(err, 1)
					}
				}
				if data, err = texture.EncodePKM(img, format); err != nil {
					return cli.Exit(err, 1)
				}
				desc = "PKM " + format.String()
			} else {
				format := autoFormat(img)
				if name := c.String("format"); name != "auto" {
					if format, err = block.ParseFormat(name); err != nil {
						return cli.Exit(err, 1)
					}
				}
				var buf bytes.Buffer
				if err := texture.EncodeDDS(&buf, img, format, c.Int("mips")); err != nil {
					return cli.Exit(err, 1)
				}
				data, desc = buf.Bytes(), format.String()
			}

			if c.Bool("zstd") {
				var buf bytes.Buffer
				if err := expand.EncodeEnvelope(&buf, data, expand.WithCompressionLevel(c.Int("level"))); err != nil {
					return cli.Exit(err, 1)
				}
				data, desc = buf.Bytes(), desc+"+zstd"
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return cli.Exit(err, 1)
			}
			fmt.Printf("Encoded %s → %s (%s, %d bytes)\n", in, out, desc, len(data))
			return nil
		},
	}
}

func infoCommand() *cli.Command {
	return &cli.Command{
		Name:      "info",
		Usage:     "Show how each adapter rates a file and what it decodes to",
		ArgsUsage: "FILE",
		Flags:     []cli.Flag{expandFlag},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
			}

			reg, err := newRegistry(newLogger(c))
			if err != nil {
				return cli.Exit(err, 1)
			}
			path := c.Args().First()
			req, err := newRequest(path, c.String("expand"), true)
			if err != nil {
				return cli.Exit(err, 1)
			}

			probes, err := reg.Rank(c.Context, req.Data, req.Hints())
			if err != nil {
				return cli.Exit(err, 1)
			}
			fmt.Printf("File: %s (%d bytes)\n", path, len(req.Data))
			for _, p := range probes {
				fmt.Printf("  %-8s score %3d  %s\n", p.Candidate, p.Score, p.State)
			}

			img, adapter, err := reg.Dispatch(c.Context, req)
			if err != nil {
				return cli.Exit(err, 1)
			}
			format, _ := img.Props.String(pixel.PropImageFormat)
			fmt.Printf("Adapter: %s\n", adapter)
			fmt.Printf("Dimensions: %dx%d\n", img.Width, img.Height)
			fmt.Printf("Format: %s\n", format)
			if mips, ok := img.Props.Int(pixel.PropMipmapCount); ok {
				fmt.Printf("Mip levels: %d\n", mips)
			}
			fmt.Printf("Frames: %d\n", len(pixel.Frames(img)))

			if adapter == "dds" {
				info, err := texture.ParseDDSHeader(cursor.New(req.Data))
				if err == nil {
					fmt.Printf("FourCC: %q, DXGI %d\n", info.FourCC, info.DXGIFormat)
					fmt.Printf("Data offset: 0x%x\n", info.DataOffset)
					fmt.Printf("Surface size: %d bytes (%.2f KB)\n", info.SurfaceSize(), float64(info.SurfaceSize())/1024)
				}
			}
			return nil
		},
	}
}

func rawCommand() *cli.Command {
	return &cli.Command{
		Name:      "raw",
		Usage:     "Decode headerless pixel data with an explicit layout",
		ArgsUsage: "INPUT OUTPUT",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "width", Required: true},
			&cli.IntFlag{Name: "height", Required: true},
			&cli.StringFlag{Name: "layout", Usage: "packed layout, one of " + layoutNames()},
			&cli.StringFlag{Name: "block", Usage: "block format such as DXT5, BC7 or ETC1"},
			&cli.IntFlag{Name: "offset", Usage: "byte offset of the pixel data"},
			&cli.StringFlag{Name: "swizzle", Usage: "unswizzle first: ps2, morton or psp"},
			&cli.StringFlag{Name: "palette", Usage: "palette file for paletted layouts"},
			&cli.BoolFlag{Name: "big-endian", Usage: "read multi-byte pixels big-endian"},
			&cli.StringFlag{Name: "expand", Value: "none", Usage: "decompress input first: none, auto, " + strings.Join(expand.Names(), ", ")},
			&cli.IntFlag{Name: "size", Usage: "expanded size, required for raw lz4 blocks"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 2 {
				cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
			}
			in, out := c.Args().Get(0), c.Args().Get(1)

			data, err := os.ReadFile(in)
			if err != nil {
				return cli.Exit(err, 1)
			}
			if data, _, err = expandData(data, c.String("expand"), c.Int("size")); err != nil {
				return cli.Exit(err, 1)
			}
			if off := c.Int("offset"); off > 0 {
				if off > len(data) {
					return cli.Exit(&pixel.TruncatedDataError{Need: off, Have: len(data)}, 1)
				}
				data = data[off:]
			}

			img, err := decodeRaw(c, data)
			if err != nil {
				return cli.Exit(err, 1)
			}
			if err := writeImage(out, img); err != nil {
				return cli.Exit(err, 1)
			}
			fmt.Printf("Decoded %s → %s (%dx%d)\n", in, out, img.Width, img.Height)
			return nil
		},
	}
}

func layoutNames() string {
	var names []string
	for _, l := range packed.Layouts() {
		names = append(names, l.String())
	}
	return strings.Join(names, ", ")
}

func decodeRaw(c *cli.Context, data []byte) (*pixel.Image, error) {
	w, h := c.Int("width"), c.Int("height")
	if err := pixel.CheckDimensions(w, h); err != nil {
		return nil, err
	}

	var kind swizzle.Kind
	if name := c.String("swizzle"); name != "" {
		var err error
		if kind, err = swizzle.ParseKind(name); err != nil {
			return nil, err
		}
	}

	if name := c.String("block"); name != "" {
		f, err := block.ParseFormat(name)
		if err != nil {
			return nil, err
		}
		if c.IsSet("swizzle") {
			d := swizzle.Descriptor{Width: (w + 3) / 4, Height: (h + 3) / 4, ElementSize: f.BlockSize(), Kind: kind}
			if data, err = unswizzlePrefix(data, d); err != nil {
				return nil, err
			}
		}
		return block.Decode(cursor.New(data), w, h, f)
	}

	layout, err := packed.ParseLayout(c.String("layout"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("swizzle") {
		switch {
		case layout == packed.Paletted4 && kind == swizzle.PS2:
			if data, err = swizzle.Unswizzle4(data[:min(len(data), layout.BytesFor(w, h))], w, h); err != nil {
				return nil, err
			}
		case layout.Nibbles():
			return nil, fmt.Errorf("4-bit data only supports ps2 swizzling of continuous nibbles")
		default:
			d := swizzle.Descriptor{Width: w, Height: h, ElementSize: layout.BytesFor(w, h) / (w * h), Kind: kind}
			if data, err = unswizzlePrefix(data, d); err != nil {
				return nil, err
			}
		}
	}

	var opts []packed.Option
	if c.Bool("big-endian") {
		opts = append(opts, packed.WithByteOrder(binary.BigEndian))
	}
	if layout.Paletted() {
		path := c.String("palette")
		if path == "" {
			return nil, pixel.ErrNoPalette
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		pal, err := container.ParsePalette(raw)
		if err != nil {
			return nil, err
		}
		opts = append(opts, packed.WithPalette(pal))
	}
	return packed.Decode(cursor.New(data), w, h, layout, opts...)
}

// unswizzlePrefix unswizzles the first d.Size() bytes of data.
func unswizzlePrefix(data []byte, d swizzle.Descriptor) ([]byte, error) {
	if len(data) < d.Size() {
		return nil, &pixel.TruncatedDataError{Need: d.Size(), Have: len(data)}
	}
	return swizzle.Unswizzle(data[:d.Size()], d)
}

func batchCommand() *cli.Command {
	return &cli.Command{
		Name:      "batch",
		Usage:     "Decode every recognised texture under a directory",
		ArgsUsage: "INPUT_DIR OUTPUT_DIR",
		Flags: []cli.Flag{
			expandFlag,
			&cli.StringFlag{Name: "ext", Value: ".png", Usage: "output extension"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 2 {
				cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
			}
			logger := newLogger(c)
			reg, err := newRegistry(logger)
			if err != nil {
				return cli.Exit(err, 1)
			}
			if err := batchConvert(c.Context, reg, logger, c.Args().Get(0), c.Args().Get(1), c.String("expand"), c.String("ext")); err != nil {
				return cli.Exit(err, 1)
			}
			return nil
		},
	}
}

func batchConvert(ctx context.Context, reg *arbiter.Registry, logger *log.Logger, inputDir, outputDir, mode, ext string) error {
	dir, err := container.Open(inputDir)
	if err != nil {
		return err
	}

	count, errors := 0, 0
	err = dir.Walk(func(name string) error {
		outPath := filepath.Join(outputDir, filepath.FromSlash(name)) + ext
		if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
		_, _, err := decodeFile(ctx, reg, filepath.Join(inputDir, filepath.FromSlash(name)), outPath, mode, false, 1)
		switch {
		case err == nil:
			count++
			if count%100 == 0 {
				fmt.Printf("Processed %d files...\n", count)
			}
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			logger.Printf("convert %s: %v\n", name, err)
			errors++
		}
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Printf("\nCompleted: %d files converted, %d skipped\n", count, errors)
	return nil
}

func scanCommand() *cli.Command {
	return &cli.Command{
		Name:      "scan",
		Usage:     "Scan a directory tree and record it in the catalog",
		ArgsUsage: "DIRECTORY",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "workers", Value: 10, Usage: "files decoded concurrently"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
			}

			logger := newLogger(c)
			reg, err := newRegistry(logger)
			if err != nil {
				return cli.Exit(err, 1)
			}
			db, err := catalog.NewDB(c.String("db"))
			if err != nil {
				return cli.Exit(err, 1)
			}
			defer db.Close()

			s := catalog.NewScanner(db, reg, logger, catalog.WithWorkers(c.Int("workers")))
			stats, err := s.Scan(c.Context, c.Args().First())
			if err != nil {
				return cli.Exit(err, 1)
			}
			fmt.Printf("Scanned %d files: %d decoded, %d unchanged, %d unmatched, %d failed\n",
				stats.Scanned, stats.Decoded, stats.Unchanged, stats.Unmatched, stats.Failed)

			counts, err := db.CountByAdapter()
			if err != nil {
				return cli.Exit(err, 1)
			}
			adapters := make([]string, 0, len(counts))
			for a := range counts {
				adapters = append(adapters, a)
			}
			sort.Strings(adapters)
			for _, a := range adapters {
				fmt.Printf("  %-8s %d\n", a, counts[a])
			}
			return nil
		},
	}
}
