package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/clawcontrol/claw/internal/core"
	"github.com/clawcontrol/claw/internal/storage"
	"github.com/clawcontrol/claw/pkg/models"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// recordingDeliverer records delivered notification IDs. Agents listed in
// fail get a delivery error.
type recordingDeliverer struct {
	mu        sync.Mutex
	delivered []string
	fail      map[string]bool
}

func (d *recordingDeliverer) Deliver(_ context.Context, agent *models.AgentView, n *models.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail[agent.ID] {
		return errors.New("connection refused")
	}
	d.delivered = append(d.delivered, n.ID)
	return nil
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// useTestBoard points the package-level Board and Dispatcher at a fresh
// file-backed board and restores the previous values when the test ends.
func useTestBoard(t *testing.T) (core.BoardService, *recordingDeliverer) {
	t.Helper()
	dir := t.TempDir()

	tasks := core.NewTaskStore(
		storage.NewFileCollection[models.Task](dir, "tasks", storage.FormatYAML),
		core.NewTaskIDGenerator(dir, "TASK", 3), models.P2, nil)
	agents := core.NewAgentRegistry(
		storage.NewFileCollection[models.Agent](dir, "agents", storage.FormatYAML),
		tasks, core.DefaultStaleTimeout, nil)
	notes := core.NewNotificationStore(
		storage.NewFileCollection[models.Notification](dir, "notifications", storage.FormatYAML),
		core.DefaultRetention, nil)
	board := core.NewBoardService(core.BoardDeps{
		Tasks:         tasks,
		Agents:        agents,
		Resolver:      core.NewAssignmentResolver(core.DefaultRoleTable, agents),
		Notifications: notes,
		Logger:        discardLogger,
	}, core.BoardConfig{RequireQAForDone: true})

	deliverer := &recordingDeliverer{fail: map[string]bool{}}
	dispatcher := core.NewDispatcher(notes, agents, deliverer, nil, nil, discardLogger,
		core.DispatcherConfig{Timeout: time.Second}, nil)

	origBoard, origDispatcher, origLogger := Board, Dispatcher, Logger
	Board, Dispatcher, Logger = board, dispatcher, discardLogger
	t.Cleanup(func() {
		Board, Dispatcher, Logger = origBoard, origDispatcher, origLogger
	})
	return board, deliverer
}

// runCLI executes the root command with args and returns its stdout. Flags
// are reset first since cobra keeps parsed values between executions.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := runCLI(t, args...)
	if err != nil {
		t.Fatalf("claw %v: %v", args, err)
	}
	return out
}
