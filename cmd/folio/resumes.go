package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newResumesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resumes",
		Short: "List and delete resumes",
	}

	var limit, offset int
	list := &cobra.Command{
		Use:   "list",
		Short: "List your resumes, most recently updated first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := newClient().ListResumes(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tNAME\tUPDATED")
			for _, r := range res.Resumes {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, r.Title, r.DisplayName(), humanize.Time(r.UpdatedAt))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d\n", len(res.Resumes), res.TotalCount)
			return nil
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "page size")
	list.Flags().IntVar(&offset, "offset", 0, "page offset")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a resume and its photo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient().DeleteResume(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, del)
	return cmd
}
