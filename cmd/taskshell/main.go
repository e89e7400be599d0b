// Command taskshell is an interactive task executor shell: it reads
// run/out/err/kill/sleep/quit commands from standard input, spawns
// external programs on demand, and reports their output and termination
// on standard output.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/adamgreloch/taskshell/shell"
)

func newRootCmd() *cobra.Command {
	cfg := shell.DefaultConfig()

	var (
		maxTasks   int
		killSignal int
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "taskshell",
		Short: "Interactive task executor shell",
		Long: `taskshell reads commands from standard input, one per line:

  run PROGRAM [ARGS...]   spawn PROGRAM, assigning it the next task id
  out TASK_ID             print the most recent line of TASK_ID's stdout
  err TASK_ID             print the most recent line of TASK_ID's stderr
  kill TASK_ID            send the kill signal to TASK_ID's process group
  sleep MILLIS            pause the dispatcher for MILLIS milliseconds
  quit                    begin orderly shutdown

End-of-input is equivalent to quit. On shutdown, every task's process
group is sent SIGKILL and the executor waits for all tasks to terminate
before exiting.`,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
			cfg.MaxTasks = maxTasks
			cfg.KillSignal = syscall.Signal(killSignal)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			exec := shell.New(cfg, os.Stdout)
			code := exec.Run(ctx, os.Stdin)
			if code != 0 {
				return fmt.Errorf("taskshell: exited with status %d", code)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&maxTasks, "max-tasks", cfg.MaxTasks, "maximum number of tasks this run may create")
	cmd.Flags().IntVar(&killSignal, "kill-signal", int(cfg.KillSignal), "signal number sent by the kill command")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level diagnostics")

	return cmd
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		logrus.WithError(err).Error("taskshell: fatal")
		os.Exit(1)
	}
}
