package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/eleven-am/conduit"
)

func (c *cli) runCommand() *cobra.Command {
	var (
		params   []string
		priority string
		trigger  string
		quiet    bool
	)

	cmd := &cobra.Command{
		Use:   "run <workflow-file>",
		Short: "Execute a workflow and stream its events as JSON lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := conduit.LoadWorkflow(args[0])
			if err != nil {
				return err
			}
			input, err := parseParams(params)
			if err != nil {
				return err
			}

			opts := []conduit.RunOption{conduit.WithTrigger(trigger)}
			if priority != "" {
				opts = append(opts, conduit.WithPriority(conduit.Priority(priority)))
			}

			return c.withManager(func(m *conduit.Manager) error {
				return c.execute(cmd.Context(), m, wf, input, opts, quiet)
			})
		},
	}

	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "run parameter as key=value (repeatable)")
	cmd.Flags().StringVar(&priority, "priority", "", "run priority: high, medium or low")
	cmd.Flags().StringVar(&trigger, "trigger", "manual", "what started the run")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "print only the final run")
	return cmd
}

// execute submits the workflow, streams its messages and cancels the run on
// SIGINT or SIGTERM. It returns once the run is terminal.
func (c *cli) execute(parent context.Context, m *conduit.Manager, wf *conduit.Workflow, params map[string]interface{}, opts []conduit.RunOption, quiet bool) error {
	sigCtx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sub := m.Subscribe()
	defer m.Unsubscribe(sub)

	handle, err := m.Submit(sigCtx, wf, params, opts...)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(sigCtx)
	finished := make(chan struct{})

	g.Go(func() error {
		defer close(finished)
		for msg := range sub.C() {
			if msg.RunID != handle.ID {
				continue
			}
			if !quiet {
				if err := c.printLine(msg); err != nil {
					return err
				}
			}
			if msg.Kind == conduit.MessageKindRun && msg.Run.Status.IsTerminal() {
				return nil
			}
		}
		return errors.New("event stream closed before the run finished")
	})

	g.Go(func() error {
		select {
		case <-finished:
			return nil
		case <-ctx.Done():
		}
		if err := handle.Cancel(); err != nil && !errors.Is(err, conduit.ErrRunNotFound) {
			return err
		}
		<-handle.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	run, err := handle.Wait(context.Background())
	if err != nil {
		return err
	}
	if quiet {
		if err := c.printJSON(run); err != nil {
			return err
		}
	}
	if run.Status == conduit.RunStatusFailed {
		return fmt.Errorf("run %s failed: %s", run.ID, run.Error)
	}
	return nil
}

func (c *cli) runsCommand() *cobra.Command {
	var (
		limit      int
		workflowID string
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withManager(func(m *conduit.Manager) error {
				var (
					runs []conduit.Run
					err  error
				)
				if workflowID != "" {
					runs, err = m.ListRunsByWorkflow(cmd.Context(), workflowID, limit)
				} else {
					runs, err = m.ListRuns(cmd.Context(), limit)
				}
				if err != nil {
					return err
				}
				return c.printJSON(runs)
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs")
	cmd.Flags().StringVar(&workflowID, "workflow", "", "only runs of this workflow")
	return cmd
}

func (c *cli) logsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logs <run-id>",
		Short: "Print the persisted events of a run in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withManager(func(m *conduit.Manager) error {
				run, err := m.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				logs, err := m.GetLogs(cmd.Context(), run.ID)
				if err != nil {
					return err
				}
				for _, event := range logs {
					if err := c.printLine(event); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func (c *cli) templatesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates <workflow-id>",
		Short: "List saved parameter templates of a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withManager(func(m *conduit.Manager) error {
				templates, err := m.ListTemplates(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return c.printJSON(templates)
			})
		},
	}

	var params []string
	save := &cobra.Command{
		Use:   "save <workflow-id> <name>",
		Short: "Save a parameter template",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := parseParams(params)
			if err != nil {
				return err
			}
			return c.withManager(func(m *conduit.Manager) error {
				template, err := m.SaveTemplate(cmd.Context(), args[0], args[1], input)
				if err != nil {
					return err
				}
				return c.printJSON(template)
			})
		},
	}
	save.Flags().StringArrayVarP(&params, "param", "p", nil, "template parameter as key=value (repeatable)")

	remove := &cobra.Command{
		Use:   "delete <template-id>",
		Short: "Delete a parameter template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withManager(func(m *conduit.Manager) error {
				return m.DeleteTemplate(cmd.Context(), args[0])
			})
		},
	}

	cmd.AddCommand(save, remove)
	return cmd
}

func (c *cli) triggersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "triggers <workflow-id>",
		Short: "List stored triggers of a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withManager(func(m *conduit.Manager) error {
				triggers, err := m.ListTriggers(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return c.printJSON(triggers)
			})
		},
	}

	var (
		config   []string
		disabled bool
	)
	save := &cobra.Command{
		Use:   "save <workflow-id> <type>",
		Short: "Store a trigger definition",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := parseParams(config)
			if err != nil {
				return err
			}
			return c.withManager(func(m *conduit.Manager) error {
				trigger, err := m.SaveTrigger(cmd.Context(), args[0], args[1], input, !disabled)
				if err != nil {
					return err
				}
				return c.printJSON(trigger)
			})
		},
	}
	save.Flags().StringArrayVarP(&config, "set", "s", nil, "trigger config entry as key=value (repeatable)")
	save.Flags().BoolVar(&disabled, "disabled", false, "store the trigger disabled")

	remove := &cobra.Command{
		Use:   "delete <trigger-id>",
		Short: "Delete a trigger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withManager(func(m *conduit.Manager) error {
				return m.DeleteTrigger(cmd.Context(), args[0])
			})
		},
	}

	cmd.AddCommand(save, remove)
	return cmd
}

func (c *cli) nodeTypesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "node-types",
		Short: "List the registered node types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withManager(func(m *conduit.Manager) error {
				return c.printJSON(m.ListNodeTypes())
			})
		},
	}
}

func (c *cli) migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the execution store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withManager(func(m *conduit.Manager) error {
				cfg := m.Config()
				_, err := fmt.Fprintf(c.out, "%s store at %s is up to date\n", cfg.Storage.Backend, cfg.StoragePath())
				return err
			})
		},
	}
}

func (c *cli) healthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe the execution store and print engine status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withManager(func(m *conduit.Manager) error {
				status := m.Health(cmd.Context())
				if err := c.printJSON(status); err != nil {
					return err
				}
				if !status.Healthy {
					return fmt.Errorf("conduit is %s: %s", status.Status, status.StorageError)
				}
				return nil
			})
		},
	}
}
