package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/razeghi71/dqserve/ast"
	"github.com/razeghi71/dqserve/auth"
	"github.com/razeghi71/dqserve/engine"
	"github.com/razeghi71/dqserve/loader"
	"github.com/razeghi71/dqserve/output"
	"github.com/razeghi71/dqserve/parser"
	"github.com/razeghi71/dqserve/table"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) > 0 && args[0] == "token" {
		return runToken(args[1:], stdout, stderr)
	}
	return runQuery(args, stdin, stdout, stderr)
}

func runQuery(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("dq", flag.ContinueOnError)
	fs.SetOutput(stderr)
	query := fs.String("q", "", "pipeline in pipe syntax (e.g. \"filter age > 20 | select name, age\")")
	opsFile := fs.String("ops", "", "pipeline as a JSON operation list; \"-\" reads stdin")
	format := fs.String("format", "table", "output format: table, json, csv, xlsx")
	outFile := fs.String("o", "", "write output to file instead of stdout")
	inferRows := fs.Int("infer-rows", loader.DefaultInferRows, "rows sampled for CSV type inference")
	describe := fs.Bool("describe", false, "summarise the result instead of printing it")
	explain := fs.Bool("explain", false, "print the pipeline and exit without loading data")
	verbose := fs.Bool("v", false, "log each pipeline step to stderr")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: dq [options] <file>\n       dq token -secret <secret> -sub <user>\n\n")
		fmt.Fprintf(stderr, "Runs a pipeline over a csv, json, jsonl, avro, parquet or xlsx file.\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  dq -q 'group city agg sum(amount) as total | sort total desc' sales.csv\n")
		fmt.Fprintf(stderr, "  dq -ops pipeline.json -format csv -o out.csv sales.csv.gz\n")
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *query != "" && *opsFile != "" {
		return errors.New("use either -q or -ops, not both")
	}
	ops, err := readPipeline(*query, *opsFile, stdin)
	if err != nil {
		return err
	}
	if *explain {
		_, err := io.WriteString(stdout, engine.Explain(ops))
		return err
	}

	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("expected exactly one input file")
	}
	filename := fs.Arg(0)

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	input, err := loader.LoadFile(filename, loader.Options{InferRows: *inferRows})
	if err != nil {
		return err
	}
	result, err := engine.NewSession(filename, input, logger).Run(ops)
	if err != nil {
		return err
	}
	if *describe {
		if result, err = engine.Describe(result); err != nil {
			return err
		}
	}

	w := stdout
	if *outFile != "" {
		f, err := os.Create(*outFile)
		if err != nil {
			return fmt.Errorf("cannot create %s: %w", *outFile, err)
		}
		defer f.Close()
		w = f
	}
	return writeResult(w, result, *format)
}

func readPipeline(query, opsFile string, stdin io.Reader) (ast.Pipeline, error) {
	switch {
	case query != "":
		ops, err := parser.Parse(query)
		if err != nil {
			return nil, fmt.Errorf("parse error: %w", err)
		}
		return ops, nil
	case opsFile != "":
		var data []byte
		var err error
		if opsFile == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(opsFile)
		}
		if err != nil {
			return nil, fmt.Errorf("cannot read pipeline: %w", err)
		}
		var ops ast.Pipeline
		if err := json.Unmarshal(data, &ops); err != nil {
			return nil, fmt.Errorf("invalid pipeline: %w", err)
		}
		return ops, nil
	}
	return ast.Pipeline{}, nil
}

func writeResult(w io.Writer, t *table.Table, format string) error {
	if format == "table" {
		printTable(w, t)
		return nil
	}

	resp, err := output.FromTable(t)
	if err != nil {
		return err
	}
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	case "csv":
		return output.WriteCSV(w, resp)
	case "xlsx":
		data, err := output.EncodeXLSX(resp)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("unsupported format %q (supported: table, json, csv, xlsx)", format)
	}
}

func printTable(w io.Writer, t *table.Table) {
	if t.NumCols() == 0 {
		return
	}
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(t.Columns())
	tw.SetAutoFormatHeaders(false)
	tw.SetAutoWrapText(false)
	for i := 0; i < t.NumRows(); i++ {
		row := t.Row(i)
		cells := make([]string, len(row))
		for j, v := range row {
			if v.IsNull() {
				cells[j] = "null"
			} else {
				cells[j] = v.AsString()
			}
		}
		tw.Append(cells)
	}
	tw.Render()
}

func runToken(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("dq token", flag.ContinueOnError)
	fs.SetOutput(stderr)
	secret := fs.String("secret", os.Getenv("DQ_JWT_SECRET"), "HS256 signing secret (default $DQ_JWT_SECRET)")
	sub := fs.String("sub", "", "user id to put in the token subject")
	email := fs.String("email", "", "email claim")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *sub == "" {
		return errors.New("token: -sub is required")
	}

	token, err := auth.Issue(*secret, *sub, *email, *ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, token)
	return err
}
