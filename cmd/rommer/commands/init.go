package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/rommer/internal/config"
)

// InitCmd implements the 'init' command.
type InitCmd struct {
	Name  string `arg:"" help:"Directory of the new project"`
	Force bool   `help:"Overwrite an existing configuration file"`
}

func (i *InitCmd) Run() error {
	return RunInit(i.Name, i.Force, os.Stdout)
}

// RunInit scaffolds a project in dir.
func RunInit(dir string, force bool, out io.Writer) error {
	_, _ = fmt.Fprintln(out, "Initializing ROMMER project")
	written, err := config.InitProject(dir, force)
	if err != nil {
		_, _ = fmt.Fprintln(out, "Initialization failed")
		return err
	}
	for _, p := range written {
		rel, relErr := filepath.Rel(dir, p)
		if relErr != nil {
			rel = p
		}
		_, _ = fmt.Fprintf(out, "  created %s\n", rel)
	}
	_, _ = fmt.Fprintf(out, "Project initialized in %s\n", dir)
	_, _ = fmt.Fprintf(out, "Edit %s, then run: cd %s && rommer\n", filepath.Join(dir, config.DefaultConfigFile), dir)
	return nil
}
