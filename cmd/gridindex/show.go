package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mwantia/gridindex/data"
	"github.com/mwantia/gridindex/index"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

type showOptions struct {
	Records bool
}

var showOpts = &showOptions{}

var showCommand = &cobra.Command{
	Use:   "show <index-file>",
	Short: "Print the header and tables of a collection or partition index",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	showCommand.Flags().BoolVar(&showOpts.Records, "records", false,
		"Also print the record table of a collection index.")
}

func runShow(cmd *cobra.Command, args []string) error {
	store := index.NewStore(afero.NewOsFs())
	path := args[0]

	header, err := store.Header(path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "kind:      %s\n", header.Kind)
	fmt.Fprintf(out, "version:   %d\n", header.Version)
	fmt.Fprintf(out, "build id:  %s\n", header.BuildID)
	fmt.Fprintf(out, "built at:  %s\n", header.BuiltAt.Format(time.RFC3339Nano))
	fmt.Fprintf(out, "payload:   %d bytes\n", header.PayloadSize)
	fmt.Fprintf(out, "checksum:  %s\n", hex.EncodeToString(header.Checksum[:]))

	switch header.Kind {
	case data.KindCollection:
		ci, err := store.ReadCollection(path)
		if err != nil {
			return err
		}
		printCollection(out, ci)
	case data.KindPartition:
		pi, err := store.ReadPartition(path)
		if err != nil {
			return err
		}
		printPartition(out, pi)
	}
	return nil
}

func printCollection(out io.Writer, ci *index.CollectionIndex) {
	fmt.Fprintf(out, "name:      %s\n\n", ci.Name)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tSIZE\tMODIFIED")
	for _, f := range ci.Files {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", f.Name, f.Size, f.ModTime.Format(time.RFC3339Nano))
	}
	tw.Flush()
	fmt.Fprintln(out)

	tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VARIABLE\tLEVEL TYPE\tGRID\tSTAT\tREF TIMES\tLEVELS\tRECORDS")
	for _, ve := range ci.Variables {
		v := ve.Variable
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%d\n", v.Name, v.LevelType, v.GridID, v.Stat, len(ve.ReferenceTimes), levels(ve.Levels), ve.Count)
	}
	tw.Flush()

	if !showOpts.Records {
		return
	}

	fmt.Fprintln(out)
	tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VARIABLE\tREF TIME\tVALIDITY\tLEVEL\tFILE\tOFFSET\tLENGTH")
	for _, rd := range ci.Records {
		file := ""
		if rd.FileID >= 0 && rd.FileID < len(ci.Files) {
			file = ci.Files[rd.FileID].Name
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\n", rd.Variable.Name, rd.ReferenceTime.Format(time.RFC3339), rd.Validity, rd.Level, file, rd.Offset, rd.Length)
	}
	tw.Flush()
}

func printPartition(out io.Writer, pi *index.PartitionIndex) {
	fmt.Fprintf(out, "name:      %s\n\n", pi.Name)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CHILD\tKIND\tBUILD ID\tINDEX")
	for _, child := range pi.Children {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", child.Name, child.Kind, child.BuildID, child.IndexPath)
	}
	tw.Flush()
	fmt.Fprintln(out)

	tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VARIABLE\tLEVEL TYPE\tGRID\tSTAT\tREF TIMES\tLEVELS\tOWNERS")
	for _, ov := range pi.Variables {
		v := ov.Variable
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n", v.Name, v.LevelType, v.GridID, v.Stat, len(ov.ReferenceTimes), levels(ov.Levels), strings.Join(ov.Owners, ","))
	}
	tw.Flush()

	for _, ambiguity := range pi.Ambiguities {
		fmt.Fprintf(out, "\nambiguous: %v\n", ambiguity.Err())
	}
}

func levels(levels []data.Level) string {
	if len(levels) == 0 {
		return "-"
	}
	if len(levels) > 4 {
		return fmt.Sprintf("%s .. %s (%d)", levels[0], levels[len(levels)-1], len(levels))
	}

	parts := make([]string, 0, len(levels))
	for _, level := range levels {
		parts = append(parts, level.String())
	}
	return strings.Join(parts, ",")
}
