// sdictl drives an sdi server from the command line.
package main

import (
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/juju/errors"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh/terminal"
	"golang.org/x/sync/errgroup"

	"github.com/nci/sdi/configuration"
	"github.com/nci/sdi/registry"
	"github.com/nci/sdi/taskevents"
)

var (
	passed = "Passed"
	failed = "Failed"
)

func inRed(str string) string {
	return fmt.Sprintf("\x1b[31;1m%s\x1b[0m", str)
}

func inGreen(str string) string {
	return fmt.Sprintf("\x1b[32;1m%s\x1b[0m", str)
}

func main() {
	if terminal.IsTerminal(int(os.Stdout.Fd())) {
		passed = inGreen(passed)
		failed = inRed(failed)
	}
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var host string
	root := &cobra.Command{
		Use:          "sdictl",
		Short:        "Administer the instances and tasks of an sdi server",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&host, "host", "H", "localhost:8080", "sdi server address")
	cl := func() *client { return newClient(host) }

	root.AddCommand(
		listCmd(cl),
		createCmd(cl),
		instanceActionCmd(cl, "start", "Start an instance"),
		instanceActionCmd(cl, "stop", "Stop an instance"),
		instanceActionCmd(cl, "restart", "Restart an instance"),
		checkCmd(cl),
		tasksCmd(cl),
		runCmd(cl),
	)
	return root
}

func listCmd(cl func() *client) *cobra.Command {
	return &cobra.Command{
		Use:   "list SPEC",
		Short: "List the instances of a service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			insts, err := cl().instances(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, inst := range insts {
				fmt.Fprintf(out, "%-24s %-12s %s\n", inst.Identifier, inst.Status, inst.Message)
			}
			return nil
		},
	}
}

func createCmd(cl func() *client) *cobra.Command {
	md := &configuration.ServiceMetadata{}
	cmd := &cobra.Command{
		Use:   "create SPEC IDENTIFIER",
		Short: "Create an instance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			md.Identifier = args[1]
			if err := cl().create(args[0], md); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s instance %s\n", args[0], args[1])
			return nil
		},
	}
	cmd.Flags().StringVar(&md.Name, "name", "", "service title")
	cmd.Flags().StringVar(&md.Description, "description", "", "service abstract")
	cmd.Flags().StringSliceVar(&md.Keywords, "keyword", nil, "service keywords")
	return cmd
}

func instanceActionCmd(cl func() *client, action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " SPEC IDENTIFIER",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cl().action(args[0], args[1], action)
		},
	}
}

// checkCmd checks the data source of every instance of the listed
// services, a few at a time.
func checkCmd(cl func() *client) *cobra.Command {
	var conc int
	cmd := &cobra.Command{
		Use:   "check [SPEC...]",
		Short: "Check the data sources of service instances",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cl()
			specs := args
			if len(specs) == 0 {
				var services []registry.ServiceInfo
				if err := c.do(http.MethodGet, "/1/OGC/list", nil, &services); err != nil {
					return err
				}
				for _, s := range services {
					specs = append(specs, string(s.Spec))
				}
			}

			var (
				mu  sync.Mutex
				bad int
				g   errgroup.Group
			)
			g.SetLimit(conc)
			out := cmd.OutOrStdout()
			for _, spec := range specs {
				insts, err := c.instances(spec)
				if err != nil {
					return err
				}
				for _, inst := range insts {
					spec, id := spec, inst.Identifier
					g.Go(func() error {
						res, err := c.checkDataSource(spec, id)
						mu.Lock()
						defer mu.Unlock()
						fmt.Fprintf(out, "Checking %s %s: ", spec, id)
						switch {
						case err != nil:
							bad++
							fmt.Fprintf(out, "%s (%v)\n", failed, err)
						case res.Status != "Success":
							bad++
							fmt.Fprintf(out, "%s (%s)\n", failed, res.Message)
						default:
							fmt.Fprintln(out, passed)
						}
						return nil
					})
				}
			}
			g.Wait()
			if bad > 0 {
				return errors.Errorf("%d data source checks failed", bad)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&conc, "concurrency", "n", 6, "concurrent checks")
	return cmd
}

func tasksCmd(cl func() *client) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List the stored tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := cl().tasks()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, t := range tasks {
				status := "-"
				if t.Status != nil {
					status = fmt.Sprintf("%s %.0f%%", t.Status.Status, t.Status.Percent)
				}
				next := ""
				if t.NextRun != nil {
					next = "next " + t.NextRun.Local().Format("2006-01-02 15:04")
				}
				fmt.Fprintf(out, "%-36s %-24s %-14s %s\n", t.ID, t.Authority+":"+t.Code, status, next)
			}
			return nil
		},
	}
}

func runCmd(cl func() *client) *cobra.Command {
	var follow bool
	cmd := &cobra.Command{
		Use:   "run TASK",
		Short: "Execute a stored task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cl()
			out := cmd.OutOrStdout()
			if !follow {
				jobID, err := c.execute(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "job %s\n", jobID)
				return nil
			}
			last, err := c.runAndFollow(args[0], func(st taskevents.TaskStatus) {
				fmt.Fprintf(out, "%-8s %5.1f%% %s\n", st.Status, st.Percent, st.Message)
			})
			if err != nil {
				return err
			}
			if last.Status == taskevents.StatusFailed {
				fmt.Fprintln(out, failed)
				return errors.Errorf("task %s failed", args[0])
			}
			fmt.Fprintln(out, passed)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "follow the job until it ends")
	return cmd
}
