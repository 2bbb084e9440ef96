package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/ipfs/go-cid"
	"github.com/spf13/pflag"

	"xdao.co/ans104/bundle"
	"xdao.co/ans104/cidutil"
	"xdao.co/ans104/compliance"
	"xdao.co/ans104/config"
	"xdao.co/ans104/extract"
	"xdao.co/ans104/keys"
	"xdao.co/ans104/model"
	"xdao.co/ans104/source"
	"xdao.co/ans104/storage"
	"xdao.co/ans104/storage/archive"
	"xdao.co/ans104/storage/casconfig"
	"xdao.co/ans104/storage/casregistry"

	_ "xdao.co/ans104/storage/grpccas"
	_ "xdao.co/ans104/storage/localfs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "unpack":
		return cmdUnpack(ctx, args[1:], out, errOut)
	case "verify":
		return cmdVerify(ctx, args[1:], out, errOut)
	case "inspect":
		return cmdInspect(args[1:], out, errOut)
	case "pack":
		return cmdPack(args[1:], out, errOut)
	case "cid":
		return cmdCID(args[1:], out, errOut)
	case "backends":
		return cmdBackends(out)
	case "archive":
		return cmdArchive(ctx, args[1:], out, errOut)
	case "store":
		return cmdStore(ctx, args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "ans104: unpack and verify ANS-104 bundles")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  ans104 unpack [--config <file>] [--tx-id <id>] [--input-dir <dir>] [--output-dir <dir>] [--sink dir|tar|cas] [--mode permissive|strict] [--workers N] [--parallel-bundles N] [--include-unverified] [--report json|cbor]")
	fmt.Fprintln(w, "  ans104 verify [--mode permissive|strict] [--workers N] [--format text|json|cbor] <bundle> [<bundle> ...]")
	fmt.Fprintln(w, "  ans104 inspect [--items] <bundle>")
	fmt.Fprintln(w, "  ans104 pack --seed-hex <64hex> [--role <role>] [--scheme ed25519|solana] [--tag Name=Value ...] [--arfs] -o <bundle> <file> [<file> ...]")
	fmt.Fprintln(w, "  ans104 cid <file>")
	fmt.Fprintln(w, "  ans104 backends")
	fmt.Fprintln(w, "  ans104 archive export --store <store.yaml> --index <bundle.cids.json> [--zstd] [-o <file.tar>]")
	fmt.Fprintln(w, "  ans104 archive import --store <store.yaml> <file.tar>")
	fmt.Fprintln(w, "  ans104 store put --store <store.yaml> <file>")
	fmt.Fprintln(w, "  ans104 store get --store <store.yaml> --cid <cid> [-o <file>]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - the config file may also be given by "+config.EnvVar)
	fmt.Fprintln(w, "  - bundles ending in .zst or .lz4 are decompressed in memory; others are memory-mapped")
	fmt.Fprintln(w, "  - verify exits 1 when any item fails verification")
	fmt.Fprintln(w, "  - --arfs adds an ArFS metadata item linking each file's data item")
}

func cmdUnpack(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	fs := pflag.NewFlagSet("unpack", pflag.ContinueOnError)
	fs.SetOutput(errOut)

	var (
		configPath        string
		txID              string
		inputDir          string
		outputDir         string
		sink              string
		mode              string
		workers           int
		parallelBundles   int
		includeUnverified bool
		preferredBackend  string
		reportFormat      string
	)
	fs.StringVar(&configPath, "config", "", "YAML config file (default $"+config.EnvVar+")")
	fs.StringVar(&txID, "tx-id", "", "Only unpack bundles whose file name contains this 43-character id")
	fs.StringVar(&inputDir, "input-dir", "", "Directory holding bundle files")
	fs.StringVar(&outputDir, "output-dir", "", "Directory receiving extracted items")
	fs.StringVar(&sink, "sink", "", "Output sink: dir, tar or cas")
	fs.StringVar(&mode, "mode", "", "Compliance mode: permissive or strict")
	fs.IntVar(&workers, "workers", 0, "Concurrent item workers per bundle")
	fs.IntVar(&parallelBundles, "parallel-bundles", 0, "Bundles unpacked at once")
	fs.BoolVar(&includeUnverified, "include-unverified", false, "Write items that fail verification")
	fs.StringVar(&preferredBackend, "store-backend", "", "Store backend to write first (cas sink)")
	fs.StringVar(&reportFormat, "report", "", "Print bundle reports as json or cbor")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(errOut, "unpack takes no positional arguments")
		return 2
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	if fs.Changed("input-dir") {
		cfg.InputDir = inputDir
	}
	if fs.Changed("output-dir") {
		cfg.OutputDir = outputDir
	}
	if fs.Changed("sink") {
		cfg.Sink = sink
	}
	if fs.Changed("mode") {
		if cfg.Mode, err = compliance.ParseMode(mode); err != nil {
			fmt.Fprintln(errOut, err)
			return 2
		}
	}
	if fs.Changed("workers") {
		cfg.Workers = workers
	}
	if fs.Changed("parallel-bundles") {
		cfg.ParallelBundles = parallelBundles
	}
	if fs.Changed("include-unverified") {
		cfg.IncludeUnverified = includeUnverified
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(errOut, "invalid configuration: %v\n", err)
		return 2
	}
	log := cfg.Log.NewLogger(errOut)

	paths, err := source.SelectBundles(cfg.InputDir, txID)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	if len(paths) == 0 {
		log.Warn("no bundles to unpack", "input_dir", cfg.InputDir, "tx_id", txID)
		return 0
	}

	var newSink extract.SinkFactory
	switch cfg.Sink {
	case config.SinkTar:
		newSink = extract.TarSinks(cfg.OutputDir)
	case config.SinkCAS:
		cas, closeFn, err := cfg.Store.Open(casregistry.UsageCLI, preferredBackend)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		defer func() { _ = closeFn() }()
		newSink = extract.CASSinks(cas, cfg.OutputDir)
	default:
		newSink = extract.DirSinks(cfg.OutputDir)
	}

	opts := extract.Options{
		Unpack: bundle.Options{
			Mode:             cfg.Mode,
			Workers:          cfg.Workers,
			MetadataTag:      cfg.MetadataTag,
			MaxMetadataBytes: cfg.MaxMetadataBytes,
		},
		IncludeUnverified:    cfg.IncludeUnverified,
		MaxDecompressedBytes: cfg.MaxDecompressedBytes,
		ParallelBundles:      cfg.ParallelBundles,
		Logger:               log,
	}
	reports, runErr := extract.ExtractAll(ctx, paths, newSink, opts)
	if reportFormat != "" {
		if err := model.EncodeReport(out, reportFormat, reports); err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
	}
	if runErr != nil {
		log.Error("unpack finished with errors", "error", runErr)
		return 1
	}
	log.Info("unpack finished", "bundles", len(reports))
	return 0
}

func cmdVerify(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	fs := pflag.NewFlagSet("verify", pflag.ContinueOnError)
	fs.SetOutput(errOut)

	var mode string
	var workers int
	var format string
	fs.StringVar(&mode, "mode", "permissive", "Compliance mode: permissive or strict")
	fs.IntVar(&workers, "workers", 0, "Concurrent item workers (0 = number of CPUs)")
	fs.StringVar(&format, "format", "text", "Report format: text, json or cbor")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(errOut, "usage: ans104 verify [--mode permissive|strict] [--format text|json|cbor] <bundle> [<bundle> ...]")
		return 2
	}
	m, err := compliance.ParseMode(mode)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}

	opts := extract.Options{
		Unpack:            bundle.Options{Mode: m, Workers: workers},
		IncludeUnverified: true,
	}
	reports, runErr := extract.ExtractAll(ctx, fs.Args(), extract.DiscardSinks(), opts)
	if format == "text" {
		for _, r := range reports {
			printReport(out, r)
		}
	} else if err := model.EncodeReport(out, format, reports); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}

	failed := runErr != nil
	for _, r := range reports {
		if r.Failed > 0 {
			failed = true
		}
	}
	if failed {
		return 1
	}
	return 0
}

func printReport(w io.Writer, r *model.BundleReport) {
	fmt.Fprintf(w, "%s: %d verified, %d failed\n", r.Name, r.Verified, r.Failed)
	for _, it := range r.Items {
		status := "OK"
		if !it.Verified {
			status = "FAIL"
			if it.Error != nil {
				status += " " + it.Error.Error()
			}
		}
		fmt.Fprintf(w, "  %d\t%s\t%s\t%s\n", it.Index, it.ID, it.SignatureType, status)
	}
	if r.Error != nil {
		fmt.Fprintf(w, "  error: %s\n", r.Error.Error())
	}
}

func cmdInspect(args []string, out io.Writer, errOut io.Writer) int {
	fs := pflag.NewFlagSet("inspect", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	var items bool
	fs.BoolVar(&items, "items", false, "Decode each item and print its fields")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: ans104 inspect [--items] <bundle>")
		return 2
	}

	buf, err := source.Open(fs.Arg(0), source.Options{})
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer buf.Close()
	b, err := bundle.Open(buf.Bytes())
	if err != nil {
		fmt.Fprintf(errOut, "invalid bundle: %v\n", err)
		return 1
	}

	fmt.Fprintf(out, "items: %d\n", b.Len())
	status := 0
	for _, d := range b.Descriptors() {
		fmt.Fprintf(out, "%d\toffset=%d\tsize=%d\tid=%s\n", d.Index, d.Offset, d.Size, d.DeclaredID)
		if !items {
			continue
		}
		it, err := bundle.DecodeItem(b.Bytes(), d)
		if err != nil {
			fmt.Fprintf(out, "  error: %v\n", err)
			status = 1
			continue
		}
		fmt.Fprintf(out, "  signature-type: %s\n", it.SignatureType)
		fmt.Fprintf(out, "  owner: %s\n", base64.RawURLEncoding.EncodeToString(it.Owner))
		if it.Target != nil {
			fmt.Fprintf(out, "  target: %s\n", base64.RawURLEncoding.EncodeToString(it.Target))
		}
		if it.Anchor != nil {
			fmt.Fprintf(out, "  anchor: %s\n", base64.RawURLEncoding.EncodeToString(it.Anchor))
		}
		for _, t := range it.Tags {
			fmt.Fprintf(out, "  tag: %s=%s\n", t.Name, t.Value)
		}
		fmt.Fprintf(out, "  payload: %d bytes\n", it.PayloadSize())
	}
	return status
}

type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}
func (s *stringList) Type() string { return "Name=Value" }

func cmdPack(args []string, out io.Writer, errOut io.Writer) int {
	fs := pflag.NewFlagSet("pack", pflag.ContinueOnError)
	fs.SetOutput(errOut)

	var (
		seedHex    string
		role       string
		schemeName string
		output     string
		arfs       bool
		tagsKV     stringList
	)
	fs.StringVar(&seedHex, "seed-hex", "", "ed25519 seed as 64 hex chars")
	fs.StringVar(&role, "role", "", "Derive the signing key for this role from the seed")
	fs.StringVar(&schemeName, "scheme", "ed25519", "Signature scheme: ed25519 or solana")
	fs.StringVarP(&output, "output", "o", "", "Bundle file to write")
	fs.BoolVar(&arfs, "arfs", false, "Add an ArFS metadata item per file")
	fs.Var(&tagsKV, "tag", "Tag as Name=Value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if seedHex == "" || output == "" || fs.NArg() == 0 {
		fmt.Fprintln(errOut, "usage: ans104 pack --seed-hex <64hex> [--role <role>] [--tag Name=Value ...] -o <bundle> <file> [<file> ...]")
		return 2
	}

	seed, err := keys.ParseSeedHex(seedHex)
	if err != nil {
		fmt.Fprintf(errOut, "invalid --seed-hex: %v\n", err)
		return 2
	}
	if role != "" {
		if seed, err = keys.DeriveRoleSeed(seed, role); err != nil {
			fmt.Fprintf(errOut, "invalid --role: %v\n", err)
			return 2
		}
	}
	var signer *keys.Ed25519Signer
	switch schemeName {
	case "ed25519":
		signer, err = keys.NewEd25519Signer(seed)
	case "solana":
		signer, err = keys.NewSolanaSigner(seed)
	default:
		fmt.Fprintf(errOut, "unsupported --scheme %q\n", schemeName)
		return 2
	}
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	tags, err := parseTags(tagsKV)
	if err != nil {
		fmt.Fprintf(errOut, "invalid --tag: %v\n", err)
		return 2
	}

	var items [][]byte
	for _, path := range fs.Args() {
		payload, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(errOut, "read %s: %v\n", filepath.Base(path), err)
			return 1
		}
		raw, err := bundle.CreateItem(signer, payload, bundle.ItemOptions{Tags: tags})
		if err != nil {
			fmt.Fprintf(errOut, "%s: %v\n", filepath.Base(path), err)
			return 1
		}
		items = append(items, raw)
		it, err := bundle.ParseItem(raw)
		if err != nil {
			fmt.Fprintf(errOut, "%s: %v\n", filepath.Base(path), err)
			return 1
		}
		id := bundle.ItemID(it.Signature)
		fmt.Fprintf(out, "%s\t%s\n", id, filepath.Base(path))
		if !arfs {
			continue
		}

		meta, err := json.Marshal(map[string]any{
			"name":     filepath.Base(path),
			"size":     len(payload),
			"dataTxId": id.String(),
		})
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		raw, err = bundle.CreateItem(signer, meta, bundle.ItemOptions{
			Tags: []bundle.Tag{{Name: bundle.DefaultMetadataTag, Value: "0.11"}, {Name: "Content-Type", Value: "application/json"}},
		})
		if err != nil {
			fmt.Fprintf(errOut, "%s metadata: %v\n", filepath.Base(path), err)
			return 1
		}
		items = append(items, raw)
	}

	data, err := bundle.Assemble(items)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		fmt.Fprintf(errOut, "write %s: %v\n", output, err)
		return 1
	}
	return 0
}

func parseTags(kv []string) ([]bundle.Tag, error) {
	tags := make([]bundle.Tag, 0, len(kv))
	for _, s := range kv {
		name, value, ok := strings.Cut(s, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("expected Name=Value, got %q", s)
		}
		tags = append(tags, bundle.Tag{Name: name, Value: value})
	}
	return tags, bundle.ValidateTags(tags)
}

func cmdCID(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(errOut, "usage: ans104 cid <file>")
		return 2
	}
	f, err := os.Open(args[0])
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer f.Close()
	id, _, err := cidutil.CIDv1RawSHA256Reader(f)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	_, _ = fmt.Fprintln(out, id)
	return 0
}

func cmdBackends(out io.Writer) int {
	for _, b := range casregistry.List(casregistry.UsageCLI) {
		fmt.Fprintf(out, "%s\t%s\tkeys: %s\n", b.Name, b.Description, strings.Join(b.Keys, ", "))
	}
	return 0
}

func cmdArchive(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: ans104 archive <subcommand> ...")
		fmt.Fprintln(errOut, "subcommands: export, import")
		return 2
	}
	fs := pflag.NewFlagSet("archive "+args[0], pflag.ContinueOnError)
	fs.SetOutput(errOut)
	var storePath, indexPath, output string
	var compress bool
	fs.StringVar(&storePath, "store", "", "Store config YAML (casconfig format)")

	switch args[0] {
	case "export":
		fs.BoolVar(&compress, "zstd", false, "Compress the archive with zstd")
		fs.StringVar(&indexPath, "index", "", "CID index written by the cas sink")
		fs.StringVarP(&output, "output", "o", "", "TAR file to write (default stdout)")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		if storePath == "" || indexPath == "" {
			fmt.Fprintln(errOut, "usage: ans104 archive export --store <store.yaml> --index <bundle.cids.json> [-o <file.tar>]")
			return 2
		}
		cas, closeFn, err := openStore(storePath)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		defer func() { _ = closeFn() }()
		if err := archiveExport(ctx, cas, indexPath, output, compress, out); err != nil {
			fmt.Fprintf(errOut, "archive export: %v\n", err)
			return 1
		}
		return 0
	case "import":
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		if storePath == "" || fs.NArg() != 1 {
			fmt.Fprintln(errOut, "usage: ans104 archive import --store <store.yaml> <file.tar>")
			return 2
		}
		cas, closeFn, err := openStore(storePath)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		defer func() { _ = closeFn() }()
		f, err := os.Open(fs.Arg(0))
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		defer f.Close()
		labels, err := archive.Import(ctx, f, cas, archive.ImportOptions{})
		if err != nil {
			fmt.Fprintf(errOut, "archive import: %v\n", err)
			return 1
		}
		if err := archive.WriteLabels(out, labels); err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		return 0
	default:
		fmt.Fprintf(errOut, "unknown archive subcommand: %s\n", args[0])
		return 2
	}
}

func cmdStore(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: ans104 store <subcommand> ...")
		fmt.Fprintln(errOut, "subcommands: put, get")
		return 2
	}
	fs := pflag.NewFlagSet("store "+args[0], pflag.ContinueOnError)
	fs.SetOutput(errOut)
	var storePath, cidStr, output string
	fs.StringVar(&storePath, "store", "", "Store config YAML (casconfig format)")

	switch args[0] {
	case "put":
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		if storePath == "" || fs.NArg() != 1 {
			fmt.Fprintln(errOut, "usage: ans104 store put --store <store.yaml> <file>")
			return 2
		}
	case "get":
		fs.StringVar(&cidStr, "cid", "", "CID to fetch")
		fs.StringVarP(&output, "output", "o", "", "Output file (default stdout)")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		if storePath == "" || cidStr == "" || fs.NArg() != 0 {
			fmt.Fprintln(errOut, "usage: ans104 store get --store <store.yaml> --cid <cid> [-o <file>]")
			return 2
		}
	default:
		fmt.Fprintf(errOut, "unknown store subcommand: %s\n", args[0])
		return 2
	}

	cas, closeFn, err := openStore(storePath)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer func() { _ = closeFn() }()

	if args[0] == "put" {
		f, err := os.Open(fs.Arg(0))
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		defer f.Close()
		id, err := cas.Put(ctx, f)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		_, _ = fmt.Fprintln(out, id.String())
		return 0
	}

	id, err := cid.Decode(cidStr)
	if err != nil {
		fmt.Fprintln(errOut, storage.ErrInvalidCID)
		return 2
	}
	if err := storeGet(ctx, cas, id, output, out); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	return 0
}

// storeGet copies a verified payload to output, or to stdout when output is
// empty. A partial file is removed on failure.
func storeGet(ctx context.Context, cas storage.CAS, id cid.Cid, output string, stdout io.Writer) error {
	rc, err := cas.Get(ctx, id)
	if err != nil {
		return err
	}
	defer rc.Close()
	if output == "" {
		_, err = io.Copy(stdout, rc)
		return err
	}
	f, err := os.OpenFile(output, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	_, err = io.Copy(f, rc)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(output)
	}
	return err
}

func openStore(path string) (storage.CAS, func() error, error) {
	cfg, err := casconfig.LoadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return cfg.Open(casregistry.UsageCLI, "")
}

func archiveExport(ctx context.Context, cas storage.CAS, indexPath, output string, compress bool, stdout io.Writer) (err error) {
	f, err := os.Open(indexPath)
	if err != nil {
		return err
	}
	labels, err := archive.ReadLabels(f)
	_ = f.Close()
	if err != nil {
		return err
	}
	w := stdout
	if output != "" {
		of, err := os.Create(output)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := of.Close(); err == nil {
				err = cerr
			}
		}()
		w = of
	}
	return archive.Export(ctx, w, cas, nil, archive.ExportOptions{Labels: labels, IncludeIndex: true, Compress: compress})
}
