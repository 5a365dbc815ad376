package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/mit-pdos/go-flatfs/config"
	"github.com/mit-pdos/go-flatfs/disk"
	"github.com/mit-pdos/go-flatfs/fs"
	"github.com/mit-pdos/go-flatfs/ftable"
	"github.com/mit-pdos/go-flatfs/util"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:        "flatfs",
		Description: "inspect and modify a flatfs volume image",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "image",
				Usage: "path of the volume image (default from config)",
			},
			&cli.Int64Flag{
				Name:  "blocks",
				Usage: "number of 512-byte blocks in the volume",
			},
			&cli.Uint64Flag{
				Name:  "debug",
				Usage: "debug log level",
			},
		},
		Commands: []*cli.Command{{
			Name:        "format",
			Aliases:     []string{"mkfs"},
			Description: "erase the volume, making room for --files files",
			Flags: []cli.Flag{
				&cli.Uint64Flag{
					Name:  "files",
					Usage: "number of directory slots, including the root",
				},
			},
			Action: withFS(func(c *config.Config, vol *fs.FileSystem, ctx *cli.Context) error {
				files := c.Files
				if ctx.IsSet("files") {
					files = ctx.Uint64("files")
				}
				if err := vol.Format(files); err != nil {
					return err
				}
				return vol.Sync()
			}),
		}, {
			Name:        "ls",
			Aliases:     []string{"list"},
			Description: "list the files on the volume",
			Action: withFS(func(c *config.Config, vol *fs.FileSystem, ctx *cli.Context) error {
				for _, name := range vol.List() {
					if _, err := fmt.Fprintln(ctx.App.Writer, name); err != nil {
						return fmt.Errorf("writing to stdout: %w", err)
					}
				}
				return nil
			}),
		}, {
			Name:        "put",
			Aliases:     []string{"write"},
			Usage:       "put NAME < data",
			Description: "replace the contents of a file with stdin",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "append",
					Usage: "append instead of replacing",
				},
			},
			Action: withFS(func(c *config.Config, vol *fs.FileSystem, ctx *cli.Context) error {
				mode := ftable.WRITE
				if ctx.Bool("append") {
					mode = ftable.APPEND
				}
				data, err := io.ReadAll(ctx.App.Reader)
				if err != nil {
					return fmt.Errorf("reading stdin: %w", err)
				}
				e, err := vol.Open(ctx.Args().First(), mode)
				if err != nil {
					return err
				}
				n, err := vol.Write(e, data)
				if cerr := vol.Close(e); err == nil {
					err = cerr
				}
				if err != nil {
					return err
				}
				logrus.WithField("bytes", n).Debug("wrote file")
				return vol.Sync()
			}),
		}, {
			Name:        "cat",
			Aliases:     []string{"read"},
			Usage:       "cat NAME",
			Description: "write the contents of a file to stdout",
			Action: withFS(func(c *config.Config, vol *fs.FileSystem, ctx *cli.Context) error {
				e, err := vol.Open(ctx.Args().First(), ftable.READ)
				if err != nil {
					return err
				}
				data := make([]byte, vol.Size(e))
				n, err := vol.Read(e, data)
				if cerr := vol.Close(e); err == nil {
					err = cerr
				}
				if err != nil {
					return err
				}
				if _, err := ctx.App.Writer.Write(data[:n]); err != nil {
					return fmt.Errorf("writing to stdout: %w", err)
				}
				return nil
			}),
		}, {
			Name:        "rm",
			Aliases:     []string{"delete", "remove"},
			Usage:       "rm NAME",
			Description: "delete a file",
			Action: withFS(func(c *config.Config, vol *fs.FileSystem, ctx *cli.Context) error {
				if err := vol.Delete(ctx.Args().First()); err != nil {
					return err
				}
				return vol.Sync()
			}),
		}, {
			Name:        "stat",
			Description: "show volume usage",
			Action: withFS(func(c *config.Config, vol *fs.FileSystem, ctx *cli.Context) error {
				st, err := vol.Stat()
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(ctx.App.Writer,
					"blocks: %d\ndata starts at: %d\nfree blocks: %d\nfiles: %d of %d\n",
					st.TotalBlocks, st.FirstDataBlock, st.FreeBlocks,
					st.Files, st.MaxFiles,
				)
				return err
			}),
		}},
	}
}

func withFS(
	f func(*config.Config, *fs.FileSystem, *cli.Context) error,
) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		c, err := config.Load()
		if err != nil {
			return err
		}
		if ctx.IsSet("image") {
			c.Image = ctx.String("image")
		}
		if ctx.IsSet("blocks") {
			c.TotalBlocks = ctx.Int64("blocks")
		}
		if ctx.IsSet("debug") {
			c.Debug = ctx.Uint64("debug")
		}
		if err := c.Validate(); err != nil {
			return err
		}
		util.SetDebug(c.Debug)

		d, err := disk.NewFileDisk(c.Image, uint64(c.TotalBlocks))
		if err != nil {
			return err
		}
		defer func() {
			if err := d.Close(); err != nil {
				logrus.WithField("image", c.Image).Errorf("closing image: %v", err)
			}
		}()
		logrus.WithFields(logrus.Fields{
			"image":  c.Image,
			"blocks": c.TotalBlocks,
		}).Debug("mounting")
		vol, err := fs.MkFileSystem(d, c.TotalBlocks)
		if err != nil {
			return err
		}
		return f(c, vol, ctx)
	}
}
