package pgcrud

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/edgeflare/pgcrud/pkg/entity"
	"github.com/spf13/cobra"
)

var collectionsCmd = &cobra.Command{
	Use:     "collections",
	Aliases: []string{"c"},
	Short:   "List the configured collections and their relations",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := newRegistry(cfg.Collections)
		if err != nil {
			return err
		}
		return printCollections(cmd.OutOrStdout(), registry)
	},
}

func printCollections(out io.Writer, registry *entity.Registry) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "COLLECTION\tTABLE\tKEY\tRELATIONS")
	for _, name := range registry.Names() {
		s, err := registry.Resolve(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s.%s\t%s\t%s\n", s.Name, s.DBSchema, s.Table, s.PrimaryKey, describeRelations(s))
	}
	return w.Flush()
}

func describeRelations(s *entity.Schema) string {
	if len(s.Relations) == 0 {
		return "-"
	}
	parts := make([]string, len(s.Relations))
	for i, rel := range s.Relations {
		desc := fmt.Sprintf("%s (%s %s)", rel.Name, rel.Kind, rel.Related)
		if s.IsCascade(rel.Name) {
			desc += " cascade"
		}
		parts[i] = desc
	}
	return strings.Join(parts, ", ")
}
