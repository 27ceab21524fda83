package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// TaskIDGenerator hands out sequential task ids such as TASK-00001.
type TaskIDGenerator interface {
	// NextID returns the next id for which taken reports false. A nil taken
	// accepts the first candidate.
	NextID(taken func(id string) bool) (string, error)
}

// taskCounterFileName holds the last issued task number in the base path.
const taskCounterFileName = ".claw_task_counter"

// counterIDGenerator keeps the last issued number in a counter file. Callers
// hold the task collection lock, which also serializes counter updates.
type counterIDGenerator struct {
	counterPath string
	prefix      string
	padWidth    int
}

// NewTaskIDGenerator returns a generator persisting its counter in
// basePath/.claw_task_counter. padWidth 0 disables zero padding.
func NewTaskIDGenerator(basePath, prefix string, padWidth int) TaskIDGenerator {
	if prefix == "" {
		prefix = "TASK"
	}
	return &counterIDGenerator{
		counterPath: filepath.Join(basePath, taskCounterFileName),
		prefix:      prefix,
		padWidth:    padWidth,
	}
}

func (g *counterIDGenerator) NextID(taken func(id string) bool) (string, error) {
	counter, err := g.read()
	if err != nil {
		return "", err
	}

	var id string
	for {
		counter++
		id = g.format(counter)
		if taken == nil || !taken(id) {
			break
		}
	}

	if err := os.MkdirAll(filepath.Dir(g.counterPath), 0o750); err != nil {
		return "", fmt.Errorf("creating directory for task counter: %w", err)
	}
	if err := os.WriteFile(g.counterPath, []byte(strconv.Itoa(counter)), 0o600); err != nil {
		return "", fmt.Errorf("writing task counter: %w", err)
	}
	return id, nil
}

func (g *counterIDGenerator) read() (int, error) {
	data, err := os.ReadFile(g.counterPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading task counter: %w", err)
	}
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("parsing task counter %q: %w", trimmed, err)
	}
	return n, nil
}

func (g *counterIDGenerator) format(n int) string {
	if g.padWidth > 0 {
		return fmt.Sprintf("%s-%0*d", g.prefix, g.padWidth, n)
	}
	return fmt.Sprintf("%s-%d", g.prefix, n)
}
