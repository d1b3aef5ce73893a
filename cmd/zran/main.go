// Command zran builds and queries a random-access index over a GZIP or
// zlib stream from the command line: C8, the thin glue spec.md's
// library operations are exercised through outside of Go code.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"
	"github.com/pkg/errors"

	"github.com/zrajna/indexed-gzip/internal/capnslog"

	"github.com/zrajna/indexed-gzip"
)

var log = capnslog.NewPackageLogger("github.com/zrajna/indexed-gzip", "cmd")

type buildCmd struct {
	File        string `arg:"" help:"Path to the compressed input file." type:"path"`
	Spacing     int64  `help:"Target uncompressed-byte distance between index entries." default:"1048576"`
	WindowSize  int64  `help:"History window size; must be >= 32768." default:"32768"`
	ReadbufSize int64  `help:"Compressed-data read buffer size." default:"16384"`
}

func (c *buildCmd) Run(g *globals) error {
	src, err := zran.NewFileSource(c.File)
	if err != nil {
		return errors.Wrap(err, "build: open source")
	}
	ix, err := zran.Open(src,
		zran.WithSpacing(c.Spacing),
		zran.WithWindowSize(c.WindowSize),
		zran.WithReadBufferSize(c.ReadbufSize),
		zran.WithAutoBuild(false),
	)
	if err != nil {
		return errors.Wrap(err, "build: open index")
	}
	defer ix.Close()

	if err := ix.Build(0, 0); err != nil {
		return errors.Wrap(err, "build: expand index")
	}
	log.Infof("build: indexed %s", c.File)
	return nil
}

type seekCmd struct {
	File   string `arg:"" help:"Path to the compressed input file." type:"path"`
	Offset int64  `arg:"" help:"Uncompressed byte offset to seek to."`
}

func (c *seekCmd) Run(g *globals) error {
	src, err := zran.NewFileSource(c.File)
	if err != nil {
		return errors.Wrap(err, "seek: open source")
	}
	ix, err := zran.Open(src)
	if err != nil {
		return errors.Wrap(err, "seek: open index")
	}
	defer ix.Close()

	pos, err := ix.Seek(c.Offset, io.SeekStart)
	if err != nil {
		return errors.Wrap(err, "seek")
	}
	fmt.Fprintln(os.Stdout, pos)
	return nil
}

type readRangeCmd struct {
	File   string `arg:"" help:"Path to the compressed input file." type:"path"`
	Offset int64  `arg:"" help:"Uncompressed byte offset to start reading from."`
	Length int64  `arg:"" help:"Number of uncompressed bytes to read."`
}

func (c *readRangeCmd) Run(g *globals) error {
	src, err := zran.NewFileSource(c.File)
	if err != nil {
		return errors.Wrap(err, "read-range: open source")
	}
	ix, err := zran.Open(src)
	if err != nil {
		return errors.Wrap(err, "read-range: open index")
	}
	defer ix.Close()

	if _, err := ix.Seek(c.Offset, io.SeekStart); err != nil {
		return errors.Wrap(err, "read-range: seek")
	}

	buf := make([]byte, c.Length)
	n, err := io.ReadFull(ix, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return errors.Wrap(err, "read-range: read")
	}
	_, werr := os.Stdout.Write(buf[:n])
	return werr
}

type globals struct {
	Debug   bool             `help:"Enable debug logging." short:"d"`
	Version kong.VersionFlag `help:"Show version and exit." short:"v"`

	Ctx *kong.Context `kong:"-"`
}

var cli struct {
	globals

	Build     buildCmd     `cmd:"" help:"Build a full index over a compressed file."`
	Seek      seekCmd      `cmd:"" help:"Seek to an uncompressed offset and print the resulting position."`
	ReadRange readRangeCmd `cmd:"" help:"Read a range of uncompressed bytes to stdout."`
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("zran"),
		kong.Description("Random access into GZIP and zlib streams."),
		kong.UsageOnError(),
		kong.Vars{"version": "0.1.0"},
	)
	cli.Ctx = ctx

	if cli.Debug {
		log.SetLevel(capnslog.DEBUG)
	} else {
		log.SetLevel(capnslog.NOTICE)
	}

	err := ctx.Run(&cli.globals)
	ctx.FatalIfErrorf(err)
}
