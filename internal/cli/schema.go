// Package cli provides shared CLI utilities for obsidian and obsidiand.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const envAnnotationPrefix = "obsidian.env/"

// FlagSchema describes a command flag.
type FlagSchema struct {
	Name        string `json:"name"`
	Shorthand   string `json:"shorthand,omitempty"`
	Type        string `json:"type"`
	Default     string `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
}

// ArgSchema describes a positional argument parsed from the command's Use
// line: <name> is required, [name] optional and a trailing ... repeats.
type ArgSchema struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
	Variadic bool   `json:"variadic,omitempty"`
}

// EnvSchema is an environment variable the command reads.
type EnvSchema struct {
	Name    string `json:"name"`
	Default string `json:"default,omitempty"`
}

// CommandSchema is the machine-readable description printed by --help-json.
type CommandSchema struct {
	Name        string          `json:"name"`
	Use         string          `json:"use,omitempty"`
	Description string          `json:"description,omitempty"`
	Long        string          `json:"long,omitempty"`
	Args        []ArgSchema     `json:"args,omitempty"`
	Flags       []FlagSchema    `json:"flags,omitempty"`
	Env         []EnvSchema     `json:"env,omitempty"`
	Subcommands []CommandSchema `json:"subcommands,omitempty"`
}

// AnnotateEnv records an environment variable read by cmd and its
// subcommands so it shows up in the schema.
func AnnotateEnv(cmd *cobra.Command, name, defaultValue string) {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations[envAnnotationPrefix+name] = defaultValue
}

// GenerateSchema describes cmd and its visible subcommands.
func GenerateSchema(cmd *cobra.Command) CommandSchema {
	schema := CommandSchema{
		Name:        cmd.Name(),
		Use:         cmd.Use,
		Description: cmd.Short,
		Long:        cmd.Long,
		Args:        parseArgs(cmd.Use),
		Flags:       extractFlags(cmd),
		Env:         extractEnv(cmd),
	}

	for _, sub := range cmd.Commands() {
		if sub.Name() == "help" || sub.Hidden {
			continue
		}
		schema.Subcommands = append(schema.Subcommands, GenerateSchema(sub))
	}

	return schema
}

func parseArgs(use string) []ArgSchema {
	fields := strings.Fields(use)
	if len(fields) < 2 {
		return nil
	}

	var args []ArgSchema
	for _, f := range fields[1:] {
		variadic := strings.HasSuffix(f, "...")
		f = strings.TrimSuffix(f, "...")
		arg := ArgSchema{Variadic: variadic}
		switch {
		case strings.HasPrefix(f, "<") && strings.HasSuffix(f, ">"):
			arg.Name, arg.Required = f[1:len(f)-1], true
		case strings.HasPrefix(f, "[") && strings.HasSuffix(f, "]"):
			arg.Name = f[1 : len(f)-1]
		default:
			continue
		}
		args = append(args, arg)
	}
	return args
}

func extractFlags(cmd *cobra.Command) []FlagSchema {
	var flags []FlagSchema

	cmd.LocalFlags().VisitAll(func(f *pflag.Flag) {
		if f.Name == "help-json" || f.Name == "help" {
			return
		}
		flags = append(flags, flagToSchema(f))
	})

	return flags
}

func flagToSchema(f *pflag.Flag) FlagSchema {
	schema := FlagSchema{
		Name:        f.Name,
		Shorthand:   f.Shorthand,
		Type:        f.Value.Type(),
		Default:     f.DefValue,
		Description: f.Usage,
	}
	// MarkFlagRequired annotates the flag itself.
	if _, ok := f.Annotations[cobra.BashCompOneRequiredFlag]; ok {
		schema.Required = true
	}
	return schema
}

func extractEnv(cmd *cobra.Command) []EnvSchema {
	var env []EnvSchema
	for key, def := range cmd.Annotations {
		if name, ok := strings.CutPrefix(key, envAnnotationPrefix); ok {
			env = append(env, EnvSchema{Name: name, Default: def})
		}
	}
	sort.Slice(env, func(i, j int) bool { return env[i].Name < env[j].Name })
	return env
}

// AddHelpJSONFlag adds the --help-json flag to a command.
func AddHelpJSONFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().Bool("help-json", false, "Output command schema as JSON")
}

// HandleHelpJSON writes the schema of the command addressed by args when
// args contain --help-json. args excludes the program name. It runs before
// Execute so that argument validation does not reject the request.
func HandleHelpJSON(root *cobra.Command, args []string, out io.Writer) (bool, error) {
	for i, arg := range args {
		if arg != "--help-json" {
			continue
		}
		output, err := json.MarshalIndent(GenerateSchema(findTargetCommand(root, args[:i])), "", "  ")
		if err != nil {
			return true, fmt.Errorf("failed to generate schema: %w", err)
		}
		_, err = fmt.Fprintln(out, string(output))
		return true, err
	}
	return false, nil
}

func findTargetCommand(cmd *cobra.Command, args []string) *cobra.Command {
	if len(args) == 0 {
		return cmd
	}

	for _, sub := range cmd.Commands() {
		if sub.Name() == args[0] || sub.HasAlias(args[0]) {
			return findTargetCommand(sub, args[1:])
		}
	}

	return cmd
}
