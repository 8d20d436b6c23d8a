package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	gojson "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/rzpsarthak13/vaccinesurvey/internal/sink"
	"github.com/rzpsarthak13/vaccinesurvey/pkg/vaccinesurvey"
)

var (
	outputFormat string
	publish      bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load the samples once and print them as a table",
	Long: `Logs in, loads every sample of the configured descriptor schema and prints
the resulting table. With --publish the table is also sent to the configured sink.

Example:
  vaccinesurvey import -u admin -p admin --output csv > samples.csv`,
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVarP(&outputFormat, "output", "o", "text", "output format: text, csv or json")
	importCmd.Flags().BoolVar(&publish, "publish", false, "publish the table to the configured sink")
}

func runImport(cmd *cobra.Command, args []string) error {
	write, ok := writers[outputFormat]
	if !ok {
		return fmt.Errorf("unknown output format %q", outputFormat)
	}
	if config.Server.Username == "" || config.Server.Password == "" {
		return fmt.Errorf("username and password are required")
	}

	client, err := vaccinesurvey.NewClient(config, vaccinesurvey.WithLogger(logger))
	if err != nil {
		return err
	}
	defer client.Close()

	ctx := cmd.Context()
	if err := client.Connect(ctx, config.Server.Username, config.Server.Password); err != nil {
		return err
	}
	table, err := client.LoadTable(ctx)
	if err != nil {
		return err
	}
	if publish {
		if err := client.Publish(ctx, table); err != nil {
			return err
		}
	}

	if err := write(cmd.OutOrStdout(), table); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%d samples loaded.\n", table.Len())
	return nil
}

var writers = map[string]func(io.Writer, *vaccinesurvey.Table) error{
	"text": writeText,
	"csv":  writeCSV,
	"json": writeJSON,
}

// header returns the data column names followed by the meta column names.
func header(t *vaccinesurvey.Table) []string {
	var names []string
	for _, c := range t.Columns() {
		names = append(names, c.Name)
	}
	for _, c := range t.Metas() {
		names = append(names, c.Name)
	}
	return names
}

func cells(t *vaccinesurvey.Table, i int) []string {
	row := append(t.Row(i), t.MetaRow(i)...)
	out := make([]string, len(row))
	for j, v := range row {
		out[j] = v.String()
	}
	return out
}

func writeText(w io.Writer, t *vaccinesurvey.Table) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header(t), "\t"))
	for i := 0; i < t.Len(); i++ {
		fmt.Fprintln(tw, strings.Join(cells(t, i), "\t"))
	}
	return tw.Flush()
}

func writeCSV(w io.Writer, t *vaccinesurvey.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header(t)); err != nil {
		return err
	}
	for i := 0; i < t.Len(); i++ {
		row := cells(t, i)
		for j, c := range row {
			if c == "?" {
				row[j] = ""
			}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

type jsonColumn struct {
	Name   string                `json:"name"`
	Kind   string                `json:"kind"`
	Group  string                `json:"group,omitempty"`
	Domain []vaccinesurvey.Value `json:"domain,omitempty"`
}

type jsonTable struct {
	Name    string                           `json:"name"`
	Columns []jsonColumn                     `json:"columns"`
	Metas   []jsonColumn                     `json:"metas"`
	Rows    []map[string]vaccinesurvey.Value `json:"rows"`
}

func writeJSON(w io.Writer, t *vaccinesurvey.Table) error {
	out := jsonTable{
		Name: t.Name(),
		Rows: make([]map[string]vaccinesurvey.Value, t.Len()),
	}
	for _, c := range t.Columns() {
		out.Columns = append(out.Columns, jsonColumn{Name: c.Name, Kind: c.Kind.String(), Group: c.Group, Domain: c.Domain})
	}
	for _, c := range t.Metas() {
		out.Metas = append(out.Metas, jsonColumn{Name: c.Name, Kind: c.Kind.String()})
	}
	for i := range out.Rows {
		out.Rows[i] = sink.RowObject(t, i)
	}

	enc := gojson.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
