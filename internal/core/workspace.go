package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/clawcontrol/claw/pkg/models"
	"gopkg.in/yaml.v3"
)

// DataDirName is the directory under the base path holding the file
// collections.
const DataDirName = "data"

// InitConfig holds the parameters for initializing a board workspace.
type InitConfig struct {
	BasePath   string
	Prefix     string
	Backend    string
	Format     string
	ServerAddr string
	RedisAddr  string
}

// InitResult holds a summary of what was created vs. skipped.
type InitResult struct {
	Created []string
	Skipped []string
}

// WorkspaceInitializer lays out a new board workspace.
type WorkspaceInitializer interface {
	Init(config InitConfig) (*InitResult, error)
}

type workspaceInitializer struct{}

// NewWorkspaceInitializer creates a new WorkspaceInitializer.
func NewWorkspaceInitializer() WorkspaceInitializer {
	return &workspaceInitializer{}
}

// clawconfigFile is the subset of .clawconfig written by init. The nesting
// matches the keys read by the configuration manager.
type clawconfigFile struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Storage struct {
		Backend    string `yaml:"backend"`
		Format     string `yaml:"format,omitempty"`
		SQLitePath string `yaml:"sqlite_path,omitempty"`
	} `yaml:"storage"`
	TaskID struct {
		Prefix   string `yaml:"prefix"`
		PadWidth int    `yaml:"pad_width"`
	} `yaml:"task_id"`
	Defaults struct {
		Priority string `yaml:"priority"`
	} `yaml:"defaults"`
	Agents struct {
		StaleTimeout string `yaml:"stale_timeout"`
	} `yaml:"agents"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Instance string `yaml:"instance"`
	} `yaml:"redis"`
	Workflow struct {
		RequireQAForDone bool `yaml:"require_qa_for_done"`
	} `yaml:"workflow"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

const gitignoreContent = `# Claw runtime files
.claw_events.jsonl
*.lock
*.db
*.db-journal
`

// Init creates the workspace directories and configuration. It is safe to run
// on an existing workspace: files and directories that already exist are
// skipped and not overwritten.
func (wi *workspaceInitializer) Init(config InitConfig) (*InitResult, error) {
	result := &InitResult{}
	def := DefaultConfig()

	if config.Prefix == "" {
		config.Prefix = def.TaskIDPrefix
	}
	config.Prefix = strings.ToUpper(config.Prefix)
	if !validPrefixPattern.MatchString(config.Prefix) {
		return nil, &ValidationError{Field: "prefix", Msg: fmt.Sprintf("%q must match [A-Z0-9]{1,10}", config.Prefix)}
	}
	if config.Backend == "" {
		config.Backend = def.Storage.Backend
	}
	if !validBackends[config.Backend] {
		return nil, &ValidationError{Field: "backend", Msg: fmt.Sprintf("%q must be file or sqlite", config.Backend)}
	}
	if config.Format == "" {
		config.Format = def.Storage.Format
	}
	if !validFormats[config.Format] {
		return nil, &ValidationError{Field: "format", Msg: fmt.Sprintf("%q must be yaml or json", config.Format)}
	}
	if config.ServerAddr == "" {
		config.ServerAddr = def.ServerAddr
	}

	for _, dir := range []string{config.BasePath, filepath.Join(config.BasePath, DataDirName)} {
		created, err := ensureDir(dir)
		if err != nil {
			return nil, fmt.Errorf("initializing workspace: creating directory %s: %w", dir, err)
		}
		if created {
			result.Created = append(result.Created, dir)
		} else {
			result.Skipped = append(result.Skipped, dir)
		}
	}

	if err := writeFileIfNotExists(filepath.Join(config.BasePath, ConfigFileName), func() ([]byte, error) {
		return renderClawconfig(config, def)
	}, result); err != nil {
		return nil, err
	}

	if err := writeFileIfNotExists(filepath.Join(config.BasePath, taskCounterFileName), func() ([]byte, error) {
		return []byte("0"), nil
	}, result); err != nil {
		return nil, err
	}

	if err := writeFileIfNotExists(filepath.Join(config.BasePath, ".gitignore"), func() ([]byte, error) {
		return []byte(gitignoreContent), nil
	}, result); err != nil {
		return nil, err
	}

	return result, nil
}

func renderClawconfig(config InitConfig, def *models.GlobalConfig) ([]byte, error) {
	var f clawconfigFile
	f.Server.Addr = config.ServerAddr
	f.Storage.Backend = config.Backend
	if config.Backend == "file" {
		f.Storage.Format = config.Format
	} else {
		f.Storage.SQLitePath = def.Storage.SQLitePath
	}
	f.TaskID.Prefix = config.Prefix
	f.TaskID.PadWidth = def.TaskIDPadWidth
	f.Defaults.Priority = string(def.DefaultPriority)
	f.Agents.StaleTimeout = def.AgentStaleTimeout.String()
	f.Redis.Addr = config.RedisAddr
	f.Redis.Instance = def.Redis.Instance
	f.Workflow.RequireQAForDone = def.RequireQAForDone
	f.Log.Level = def.LogLevel
	f.Log.Format = def.LogFormat

	data, err := yaml.Marshal(&f)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", ConfigFileName, err)
	}
	return append([]byte("# Claw board configuration. Environment variables CLAW_* override these keys.\n"), data...), nil
}

// ensureDir creates a directory if it does not exist. Returns true if created.
func ensureDir(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(path, 0o750); err != nil {
		return false, err
	}
	return true, nil
}

// writeFileIfNotExists writes content from contentFn if the file does not
// exist, recording created or skipped in result.
func writeFileIfNotExists(path string, contentFn func() ([]byte, error), result *InitResult) error {
	if _, err := os.Stat(path); err == nil {
		result.Skipped = append(result.Skipped, path)
		return nil
	}
	content, err := contentFn()
	if err != nil {
		return fmt.Errorf("initializing workspace: generating content for %s: %w", path, err)
	}
	if err := os.WriteFile(path, content, 0o600); err != nil {
		return fmt.Errorf("initializing workspace: writing %s: %w", path, err)
	}
	result.Created = append(result.Created, path)
	return nil
}
